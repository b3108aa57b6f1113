package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError is returned for malformed input, before any remote call is made
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned for unknown tours, dates, bookings or payments
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// CapacityError means a (tour, date) does not have enough slots left
type CapacityError struct {
	TourID    uuid.UUID
	Date      Date
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for %s: requested %d, %d remaining", e.Date, e.Requested, e.Remaining)
}

// StateTransitionError is returned when an entity is not in a state that allows the change
type StateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

// ForbiddenError is returned when the caller does not own the resource
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// ServiceUnavailableError wraps a downstream timeout or connection failure
type ServiceUnavailableError struct {
	Service string
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// ReconciliationError is returned when a payment was taken but its slots could not be reserved.
// The booking is flagged for manual review.
type ReconciliationError struct {
	BookingID uuid.UUID
	PaymentID uuid.UUID
	Reason    string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("booking %s requires reconciliation: %s", e.BookingID, e.Reason)
}
