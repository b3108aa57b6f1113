package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventCreated                PaymentEventType = "payment_created"
	PaymentEventReplayed               PaymentEventType = "payment_replayed"
	PaymentEventCompleted              PaymentEventType = "payment_completed"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventRefunded               PaymentEventType = "payment_refunded"
	PaymentEventReserveFailed          PaymentEventType = "reserve_failed"
	PaymentEventReserveUnavailable     PaymentEventType = "reserve_unavailable"
	PaymentEventReconciliationRequired PaymentEventType = "reconciliation_required"
	PaymentEventBookingConfirmed       PaymentEventType = "booking_confirmed"
	PaymentEventBookingConfirmFailed   PaymentEventType = "booking_confirmation_failed"
	PaymentEventReleaseScheduled       PaymentEventType = "release_scheduled"
	PaymentEventAmountMismatch         PaymentEventType = "amount_mismatch"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceUser   PaymentEventSource = "user"
	PaymentSourceAdmin  PaymentEventSource = "admin"
	PaymentSourceSaga   PaymentEventSource = "saga"
	PaymentSourceSystem PaymentEventSource = "system"
)

// PaymentEvent is an immutable audit entry for one step of a payment's life
type PaymentEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty" db:"payment_id"`
	BookingID *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *decimal.Decimal `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string          `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool            `json:"amounts_match,omitempty" db:"amounts_match"`

	PaymentStatus *string `json:"payment_status,omitempty" db:"payment_status"`
	Details       JSONB   `json:"details,omitempty" db:"details"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceType    *string `json:"device_type,omitempty" db:"device_type"`
	CorrelationID *string `json:"correlation_id,omitempty" db:"correlation_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentEvent creates a new payment event with required fields
func NewPaymentEvent(eventType PaymentEventType, source PaymentEventSource) *PaymentEvent {
	return &PaymentEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetPayment links the event to a payment and its booking
func (pe *PaymentEvent) SetPayment(p *Payment) *PaymentEvent {
	if p == nil {
		return pe
	}
	pe.PaymentID = &p.ID
	pe.BookingID = &p.BookingID
	status := string(p.Status)
	pe.PaymentStatus = &status
	return pe
}

// SetBooking links the event to a booking
func (pe *PaymentEvent) SetBooking(bookingID uuid.UUID) *PaymentEvent {
	pe.BookingID = &bookingID
	return pe
}

// SetAmounts records expected vs received and returns whether they match exactly
func (pe *PaymentEvent) SetAmounts(expected, received decimal.Decimal, currency string) bool {
	pe.ExpectedAmount = &expected
	pe.ReceivedAmount = &received
	pe.Currency = &currency

	match := expected.Equal(received)
	pe.AmountsMatch = &match
	return match
}

// SetError sets error information
func (pe *PaymentEvent) SetError(message string, code string) *PaymentEvent {
	pe.ErrorMessage = &message
	if code != "" {
		pe.ErrorCode = &code
	}
	return pe
}

// SetDetails attaches structured context
func (pe *PaymentEvent) SetDetails(details map[string]interface{}) *PaymentEvent {
	pe.Details = JSONB(details)
	return pe
}

// SetMetadata sets request metadata
func (pe *PaymentEvent) SetMetadata(meta RequestMetadata) *PaymentEvent {
	if meta.IPAddress != "" {
		pe.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		pe.UserAgent = &meta.UserAgent
	}
	if meta.DeviceType != "" {
		pe.DeviceType = &meta.DeviceType
	}
	if meta.CorrelationID != "" {
		pe.CorrelationID = &meta.CorrelationID
	}
	return pe
}

// RequestMetadata describes the client behind a request
type RequestMetadata struct {
	IPAddress     string
	UserAgent     string
	DeviceType    string
	CorrelationID string
}
