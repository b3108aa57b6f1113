package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment
// Matches PostgreSQL ENUM: payment_status
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentTransitions lists every allowed status change. failed and refunded are terminal.
var PaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

// CanTransitionTo reports whether s may move to next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range PaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s PaymentStatus) IsTerminal() bool {
	return len(PaymentTransitions[s]) == 0
}

// PaymentMethod is how the customer pays
type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodDebitCard    PaymentMethod = "debit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodEWallet      PaymentMethod = "e_wallet"
	PaymentMethodCash         PaymentMethod = "cash"
)

// IsValid reports whether m is a supported method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodBankTransfer, PaymentMethodEWallet, PaymentMethodCash:
		return true
	}
	return false
}

// Payment is one attempt to pay for a booking
type Payment struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	BookingID      uuid.UUID       `json:"booking_id" db:"booking_id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	Method         PaymentMethod   `json:"method" db:"method"`
	InvoiceNumber  string          `json:"invoice_number" db:"invoice_number"`
	Status         PaymentStatus   `json:"status" db:"status"`
	FailureReason  *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	IdempotencyKey *string         `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt       *time.Time      `json:"failed_at,omitempty" db:"failed_at"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty" db:"refunded_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsOwnedBy reports whether the payment belongs to userID
func (p *Payment) IsOwnedBy(userID uuid.UUID) bool {
	return p.UserID == userID
}

// GenerateInvoiceNumber builds INV-YYYYMMDD-XXXXXXXX from the payment id
func GenerateInvoiceNumber(paymentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("INV-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(paymentID.String()[:8]))
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// ProcessPaymentRequest opens a pending payment.
// A nil amount is taken from the booking's total cost.
type ProcessPaymentRequest struct {
	BookingID uuid.UUID        `json:"booking_id" binding:"required"`
	Method    PaymentMethod    `json:"method" binding:"required"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// ProcessPaymentResponse wraps the payment, flagging replays
type ProcessPaymentResponse struct {
	Payment  *Payment `json:"payment"`
	Replayed bool     `json:"replayed"`
}

// PaymentActionResponse is returned after a failure or refund
type PaymentActionResponse struct {
	Payment          *Payment `json:"payment"`
	Booking          *Booking `json:"booking"`
	ReleaseScheduled bool     `json:"release_scheduled"`
}

// PaymentReasonRequest carries the reason for a failure or refund
type PaymentReasonRequest struct {
	Reason string `json:"reason"`
}

// PaymentOutcome is the result of completing a payment
type PaymentOutcome string

const (
	OutcomeConfirmed   PaymentOutcome = "confirmed"
	OutcomeSoldOut     PaymentOutcome = "sold_out"
	OutcomeRetryable   PaymentOutcome = "retryable"
	OutcomeCompensated PaymentOutcome = "compensated"
)

// CompletePaymentResponse is returned by the complete endpoint
type CompletePaymentResponse struct {
	Outcome PaymentOutcome `json:"outcome"`
	Payment *Payment       `json:"payment"`
	Booking *Booking       `json:"booking"`
	Message string         `json:"message,omitempty"`
}
