package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

const paymentColumns = `id, booking_id, user_id, amount, currency, method, invoice_number, status,
	failure_reason, idempotency_key, created_at, completed_at, failed_at, refunded_at, updated_at`

// PaymentRepository owns the payments table
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a pending payment. ErrDuplicate means the booking already has a
// pending payment or the idempotency key was used before.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO payments (
			id, booking_id, user_id, amount, currency, method, invoice_number, status,
			idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		p.ID, p.BookingID, p.UserID, p.Amount, p.Currency, p.Method, p.InvoiceNumber, p.Status, p.IdempotencyKey,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	// A retry after a failed attempt puts the booking back to PENDING
	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings SET payment_status = 'PENDING', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'FAILED'`, p.BookingID); err != nil {
		return fmt.Errorf("failed to reset booking payment status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}

	return nil
}

// GetByID returns nil, nil when the payment does not exist
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetByIdempotencyKey finds a payment created earlier with the same key
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
}

// GetPendingByBooking returns the booking's non-terminal payment, if any
func (r *PaymentRepository) GetPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 AND status = 'pending'`, bookingID)
}

// GetCompletedByBooking returns the payment that paid for the booking, if any
func (r *PaymentRepository) GetCompletedByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 AND status = 'completed' ORDER BY completed_at DESC LIMIT 1`, bookingID)
}

// ListByBooking returns all payment attempts for a booking
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// MarkCompleted moves pending to completed
func (r *PaymentRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.transition(ctx, id, models.PaymentStatusPending, models.PaymentStatusCompleted, `
		UPDATE payments
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns)
}

// MarkFailed moves pending to failed
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	return r.transition(ctx, id, models.PaymentStatusPending, models.PaymentStatusFailed, `
		UPDATE payments
		SET status = 'failed', failure_reason = $3, failed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns, reason)
}

// MarkRefunded moves completed to refunded
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	return r.transition(ctx, id, models.PaymentStatusCompleted, models.PaymentStatusRefunded, `
		UPDATE payments
		SET status = 'refunded', failure_reason = $3, refunded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns, reason)
}

func (r *PaymentRepository) transition(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus, query string, extra ...interface{}) (*models.Payment, error) {
	if !from.CanTransitionTo(to) {
		return nil, &models.StateTransitionError{Entity: "payment", From: string(from), To: string(to)}
	}

	args := append([]interface{}{id, from}, extra...)

	var p models.Payment
	err := r.db.GetContext(ctx, &p, query, args...)
	if err == nil {
		return &p, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to move payment to %s: %w", to, err)
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, models.NewNotFoundError("payment", id.String())
	}
	return nil, &models.StateTransitionError{Entity: "payment", From: string(current.Status), To: string(to)}
}
