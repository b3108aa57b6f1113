package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaRun(t *testing.T) {
	var trail []string
	step := func(name string, fail bool, compensateErr error) SagaStep {
		return SagaStep{
			Name: name,
			Action: func(ctx context.Context) error {
				trail = append(trail, "do:"+name)
				if fail {
					return errors.New(name + " failed")
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				trail = append(trail, "undo:"+name)
				return compensateErr
			},
		}
	}

	t.Run("all steps succeed", func(t *testing.T) {
		trail = nil
		result := NewSaga("test", testLogger(), step("a", false, nil), step("b", false, nil)).Run(context.Background())

		assert.True(t, result.Succeeded())
		assert.Equal(t, []string{"a", "b"}, result.Completed)
		assert.Equal(t, []string{"do:a", "do:b"}, trail)
	})

	t.Run("failure unwinds completed steps in reverse", func(t *testing.T) {
		trail = nil
		result := NewSaga("test", testLogger(),
			step("a", false, nil),
			step("b", false, nil),
			step("c", true, nil),
			step("d", false, nil),
		).Run(context.Background())

		require.False(t, result.Succeeded())
		assert.Equal(t, "c", result.FailedStep)
		assert.EqualError(t, result.Err, "c failed")
		assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, trail)
		assert.Equal(t, []string{"b", "a"}, result.Compensated)
	})

	t.Run("compensation errors are collected", func(t *testing.T) {
		trail = nil
		result := NewSaga("test", testLogger(),
			step("a", false, errors.New("undo a failed")),
			SagaStep{Name: "b", Action: func(ctx context.Context) error { return nil }},
			step("c", true, nil),
		).Run(context.Background())

		assert.Equal(t, "c", result.FailedStep)
		require.Contains(t, result.CompensationErrors, "a")
		assert.Empty(t, result.Compensated)
	})

	t.Run("compensation survives a cancelled request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var compensateCtxErr error

		result := NewSaga("test", testLogger(),
			SagaStep{
				Name:   "reserve",
				Action: func(ctx context.Context) error { return nil },
				Compensate: func(ctx context.Context) error {
					compensateCtxErr = ctx.Err()
					return nil
				},
			},
			SagaStep{
				Name: "confirm",
				Action: func(ctx context.Context) error {
					cancel()
					return ctx.Err()
				},
			},
		).Run(ctx)

		assert.ErrorIs(t, result.Err, context.Canceled)
		assert.NoError(t, compensateCtxErr)
	})

	t.Run("halted step keeps completed steps", func(t *testing.T) {
		trail = nil
		owned := errors.New("owned elsewhere")
		result := NewSaga("test", testLogger(),
			step("a", false, nil),
			SagaStep{
				Name:   "b",
				Action: func(ctx context.Context) error { return Halt(owned) },
			},
			step("c", false, nil),
		).Run(context.Background())

		assert.True(t, result.Halted)
		assert.Equal(t, "b", result.FailedStep)
		assert.ErrorIs(t, result.Err, owned)
		assert.Equal(t, []string{"do:a"}, trail)
		assert.Empty(t, result.Compensated)
	})
}
