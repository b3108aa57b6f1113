package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingTransitions(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		ok   bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCompleted, true},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusCompleted, BookingStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.False(t, BookingStatusPending.IsTerminal())
	assert.False(t, BookingStatus("pending").IsValid())
}

func TestBookingTransitionTableIsTotal(t *testing.T) {
	for _, s := range []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted} {
		_, ok := BookingTransitions[s]
		assert.True(t, ok, "missing row for %s", s)
	}
	for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded} {
		_, ok := PaymentTransitions[s]
		assert.True(t, ok, "missing row for %s", s)
	}
}

func TestSourcesFor(t *testing.T) {
	assert.ElementsMatch(t, []BookingStatus{BookingStatusPending, BookingStatusConfirmed}, SourcesFor(BookingStatusCancelled))
	assert.Equal(t, []BookingStatus{BookingStatusPending}, SourcesFor(BookingStatusConfirmed))
	assert.Equal(t, []BookingStatus{BookingStatusConfirmed}, SourcesFor(BookingStatusCompleted))
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusPending.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusFailed.IsTerminal())
	assert.True(t, PaymentStatusRefunded.IsTerminal())
}

func TestBookingCanAcceptPayment(t *testing.T) {
	b := &Booking{Status: BookingStatusPending, PaymentStatus: BookingPaymentPending}
	assert.True(t, b.CanAcceptPayment())

	b.PaymentStatus = BookingPaymentFailed
	assert.True(t, b.CanAcceptPayment())

	b.Status = BookingStatusCancelled
	assert.False(t, b.CanAcceptPayment())

	b = &Booking{Status: BookingStatusConfirmed, PaymentStatus: BookingPaymentPaid}
	assert.False(t, b.CanAcceptPayment())
}

func TestGenerateInvoiceNumber(t *testing.T) {
	id := uuid.MustParse("3fa85f64-5717-4562-b3fc-2c963f66afa6")
	at := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-20240309-3FA85F64", GenerateInvoiceNumber(id, at))
}

func TestDate(t *testing.T) {
	t.Run("json round trip", func(t *testing.T) {
		var payload struct {
			Date Date `json:"date"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-01-06"}`), &payload))
		assert.Equal(t, time.Saturday, payload.Date.Weekday())

		out, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"date":"2024-01-06"}`, string(out))
	})

	t.Run("scan", func(t *testing.T) {
		var d Date
		require.NoError(t, d.Scan(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, "2024-01-06", d.String())

		require.NoError(t, d.Scan([]byte("2024-02-29T00:00:00Z")))
		assert.Equal(t, "2024-02-29", d.String())

		assert.Error(t, d.Scan(42))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseDate("2024-13-01")
		assert.Error(t, err)
	})
}

func TestCostBreakdownScan(t *testing.T) {
	var b CostBreakdown
	require.NoError(t, b.Scan([]byte(`[{"item":"base","amount":"200","quantity":2},{"item":"tax","amount":"20","quantity":1}]`)))
	require.Len(t, b, 2)
	assert.Equal(t, "base", b[0].Item)
	assert.Equal(t, "200", b[0].Amount.String())

	v, err := CostBreakdown(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestErrors(t *testing.T) {
	assert.Equal(t, "participants: must be at least 1", NewValidationError("participants", "must be at least 1").Error())
	assert.Equal(t, "booking not found: abc", NewNotFoundError("booking", "abc").Error())

	d, _ := ParseDate("2024-01-01")
	capErr := &CapacityError{Date: d, Requested: 3, Remaining: 1}
	assert.Contains(t, capErr.Error(), "requested 3, 1 remaining")
}
