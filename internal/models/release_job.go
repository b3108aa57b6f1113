package models

import (
	"time"

	"github.com/google/uuid"
)

// ReleaseJobStatus is the state of a queued slot release
type ReleaseJobStatus string

const (
	ReleaseJobPending ReleaseJobStatus = "pending"
	ReleaseJobDone    ReleaseJobStatus = "done"
	ReleaseJobFailed  ReleaseJobStatus = "failed"
)

// ReleaseJob is an outbox entry asking the inventory service to give back a booking's slots.
// It is written in the same transaction that cancels or refunds the booking.
type ReleaseJob struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	BookingID     uuid.UUID        `json:"booking_id" db:"booking_id"`
	Reason        string           `json:"reason" db:"reason"`
	Status        ReleaseJobStatus `json:"status" db:"status"`
	Attempts      int              `json:"attempts" db:"attempts"`
	LastError     *string          `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt time.Time        `json:"next_attempt_at" db:"next_attempt_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// NewReleaseJob creates a pending job due immediately
func NewReleaseJob(bookingID uuid.UUID, reason string) *ReleaseJob {
	now := time.Now()
	return &ReleaseJob{
		ID:            uuid.New(),
		BookingID:     bookingID,
		Reason:        reason,
		Status:        ReleaseJobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ReleaseJobStats summarizes the queue
type ReleaseJobStats struct {
	Pending int `json:"pending" db:"pending"`
	Done    int `json:"done" db:"done"`
	Failed  int `json:"failed" db:"failed"`
}
