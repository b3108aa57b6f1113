package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/voyagehub/tour-booking-backend/pkg/pricing"
)

// ============================================================================
// BOOKING STATUSES (matches DB ENUMs)
// ============================================================================

// BookingStatus represents the lifecycle status of a booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// BookingPaymentStatus mirrors the payment side on the booking
// Matches PostgreSQL ENUM: booking_payment_status
type BookingPaymentStatus string

const (
	BookingPaymentPending  BookingPaymentStatus = "PENDING"
	BookingPaymentPaid     BookingPaymentStatus = "PAID"
	BookingPaymentFailed   BookingPaymentStatus = "FAILED"
	BookingPaymentRefunded BookingPaymentStatus = "REFUNDED"
)

// BookingTransitions lists every allowed status change. CANCELLED and COMPLETED are terminal.
var BookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted},
	BookingStatusCancelled: {},
	BookingStatusCompleted: {},
}

// BookingPaymentTransitions lists the allowed payment status changes on a booking.
// FAILED may go back to PENDING when the customer retries with a new payment.
var BookingPaymentTransitions = map[BookingPaymentStatus][]BookingPaymentStatus{
	BookingPaymentPending:  {BookingPaymentPaid, BookingPaymentFailed},
	BookingPaymentFailed:   {BookingPaymentPending, BookingPaymentPaid},
	BookingPaymentPaid:     {BookingPaymentRefunded},
	BookingPaymentRefunded: {},
}

// CanTransitionTo reports whether s may move to next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range BookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s BookingStatus) IsTerminal() bool {
	return len(BookingTransitions[s]) == 0
}

// IsValid reports whether s is a known status
func (s BookingStatus) IsValid() bool {
	_, ok := BookingTransitions[s]
	return ok
}

// SourcesFor returns every status that may move to target
func SourcesFor(target BookingStatus) []BookingStatus {
	var sources []BookingStatus
	for _, from := range []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted} {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// CanTransitionTo reports whether s may move to next
func (s BookingPaymentStatus) CanTransitionTo(next BookingPaymentStatus) bool {
	for _, allowed := range BookingPaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reconciliation reasons
const (
	ReconciliationSoldOut        = "sold_out"
	ReconciliationReleaseFailed  = "release_failed"
	ReconciliationRefundRequired = "refund_required"
	ReconciliationCancelFailed   = "cancel_failed"
)

// DefaultCancellationReason is used when the caller gives none
const DefaultCancellationReason = "cancelled by user"

// ============================================================================
// JSONB PAYLOAD TYPES
// ============================================================================

// CostBreakdown is the priced snapshot taken when a booking is created
type CostBreakdown []pricing.Line

// Value implements the driver.Valuer interface
func (b CostBreakdown) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (b *CostBreakdown) Scan(value interface{}) error {
	if value == nil {
		*b = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, b)
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is a customer's claim on participants slots of one tour departure
type Booking struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	UserID        uuid.UUID            `json:"user_id" db:"user_id"`
	TourID        uuid.UUID            `json:"tour_id" db:"tour_id"`
	DepartureDate Date                 `json:"departure_date" db:"departure_date"`
	Participants  int                  `json:"participants" db:"participants"`
	UnitPrice     decimal.Decimal      `json:"unit_price" db:"unit_price"`
	TotalCost     decimal.Decimal      `json:"total_cost" db:"total_cost"`
	Currency      string               `json:"currency" db:"currency"`
	CostBreakdown CostBreakdown        `json:"cost_breakdown" db:"cost_breakdown"`
	Notes         *string              `json:"notes,omitempty" db:"notes"`
	BookingDate   time.Time            `json:"booking_date" db:"booking_date"`
	Status        BookingStatus        `json:"status" db:"status"`
	PaymentStatus BookingPaymentStatus `json:"payment_status" db:"payment_status"`

	// SlotsReserved is true while the inventory service holds slots for this booking
	SlotsReserved bool `json:"slots_reserved" db:"slots_reserved"`

	ReconciliationRequired bool    `json:"reconciliation_required" db:"reconciliation_required"`
	ReconciliationReason   *string `json:"reconciliation_reason,omitempty" db:"reconciliation_reason"`

	CancellationReason *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	IdempotencyKey *string   `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// IsOwnedBy reports whether the booking belongs to userID
func (b *Booking) IsOwnedBy(userID uuid.UUID) bool {
	return b.UserID == userID
}

// CanAcceptPayment reports whether a new payment may be opened against the booking
func (b *Booking) CanAcceptPayment() bool {
	return b.Status == BookingStatusPending &&
		(b.PaymentStatus == BookingPaymentPending || b.PaymentStatus == BookingPaymentFailed)
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// CalculateCostRequest asks for a priced preview
type CalculateCostRequest struct {
	TourID        uuid.UUID `json:"tour_id" binding:"required"`
	Participants  int       `json:"participants" binding:"required"`
	DepartureDate string    `json:"departure_date" binding:"required"`
}

// CostResponse is the priced preview
type CostResponse struct {
	TourID        uuid.UUID       `json:"tour_id"`
	DepartureDate string          `json:"departure_date"`
	Participants  int             `json:"participants"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Currency      string          `json:"currency"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Breakdown     []pricing.Line  `json:"breakdown"`
}

// CreateBookingRequest opens a PENDING booking
type CreateBookingRequest struct {
	TourID        uuid.UUID `json:"tour_id" binding:"required"`
	DepartureDate string    `json:"departure_date" binding:"required"`
	Participants  int       `json:"participants" binding:"required"`
	Notes         *string   `json:"notes,omitempty"`
}

// CreateBookingResponse is returned by the booking endpoint
type CreateBookingResponse struct {
	Booking      *Booking              `json:"booking"`
	Availability *AvailabilityResponse `json:"availability,omitempty"`
	Replayed     bool                  `json:"replayed"`
}

// CancelBookingRequest carries an optional reason
type CancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// CancelBookingResponse reports the cancellation and whether a release is pending
type CancelBookingResponse struct {
	Booking          *Booking `json:"booking"`
	ReleaseScheduled bool     `json:"release_scheduled"`
}

// ResolveReconciliationRequest closes a manual review item
type ResolveReconciliationRequest struct {
	Note   string `json:"note" binding:"required"`
	Cancel bool   `json:"cancel"`
}

// ReconciliationView lists everything awaiting manual review
type ReconciliationView struct {
	Bookings          []Booking    `json:"bookings"`
	FailedReleaseJobs []ReleaseJob `json:"failed_release_jobs"`
}
