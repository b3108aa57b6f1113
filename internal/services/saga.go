package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// compensationTimeout bounds each undo call once the request context is gone
const compensationTimeout = 10 * time.Second

// SagaStep is one forward action and the action that undoes it.
// Compensate may be nil for steps with nothing to undo.
type SagaStep struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga runs its steps in order and unwinds completed steps in reverse on failure
type Saga struct {
	Name   string
	Steps  []SagaStep
	logger *logrus.Logger
}

// SagaResult describes how far a saga got
type SagaResult struct {
	Outcome            string
	Completed          []string
	FailedStep         string
	Err                error
	Halted             bool
	Compensated        []string
	CompensationErrors map[string]error
}

type haltError struct{ err error }

func (e *haltError) Error() string { return e.err.Error() }
func (e *haltError) Unwrap() error { return e.err }

// Halt wraps a step error so Run stops at that step and leaves the completed
// steps in place. Used when another caller already owns their effects.
func Halt(err error) error {
	return &haltError{err: err}
}

// Succeeded reports whether every step ran
func (r *SagaResult) Succeeded() bool {
	return r.Err == nil
}

// NewSaga creates a saga from ordered steps
func NewSaga(name string, logger *logrus.Logger, steps ...SagaStep) *Saga {
	return &Saga{Name: name, Steps: steps, logger: logger}
}

// Run executes the steps. On the first failure, compensations of the steps
// that already completed run newest first, detached from ctx cancellation.
func (s *Saga) Run(ctx context.Context) *SagaResult {
	result := &SagaResult{CompensationErrors: map[string]error{}}

	for i, step := range s.Steps {
		log := s.logger.WithFields(logrus.Fields{"saga": s.Name, "step": step.Name})
		log.Debug("Saga step started")

		if err := step.Action(ctx); err != nil {
			log.WithError(err).Warn("Saga step failed")
			result.FailedStep = step.Name
			result.Err = err

			var halt *haltError
			if errors.As(err, &halt) {
				result.Halted = true
				log.Info("Saga halted without compensation")
				return result
			}

			s.compensate(ctx, s.Steps[:i], result)
			return result
		}

		result.Completed = append(result.Completed, step.Name)
		log.Debug("Saga step succeeded")
	}

	return result
}

func (s *Saga) compensate(ctx context.Context, done []SagaStep, result *SagaResult) {
	base := context.WithoutCancel(ctx)

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}

		cctx, cancel := context.WithTimeout(base, compensationTimeout)
		err := step.Compensate(cctx)
		cancel()

		log := s.logger.WithFields(logrus.Fields{"saga": s.Name, "step": step.Name})
		if err != nil {
			log.WithError(err).Error("Saga compensation failed")
			result.CompensationErrors[step.Name] = err
			continue
		}
		log.Info("Saga step compensated")
		result.Compensated = append(result.Compensated, step.Name)
	}
}
