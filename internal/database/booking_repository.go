package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

const bookingColumns = `id, user_id, tour_id, departure_date, participants, unit_price, total_cost, currency,
	cost_breakdown, notes, booking_date, status, payment_status, slots_reserved,
	reconciliation_required, reconciliation_reason, cancellation_reason,
	cancelled_at, confirmed_at, completed_at, idempotency_key, created_at, updated_at`

// BookingRepository owns the bookings table. Multi-table changes that must
// land together (cancel + release job, sold out + failed payment) run in one
// transaction here.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a PENDING booking. ErrDuplicate means the idempotency key was already used.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, tour_id, departure_date, participants, unit_price, total_cost, currency,
			cost_breakdown, notes, booking_date, status, payment_status, idempotency_key,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		b.ID, b.UserID, b.TourID, b.DepartureDate, b.Participants, b.UnitPrice, b.TotalCost, b.Currency,
		b.CostBreakdown, b.Notes, b.BookingDate, b.Status, b.PaymentStatus, b.IdempotencyKey,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "bookings_user_idempotency_key") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// GetByID returns nil, nil when the booking does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.GetContext(ctx, &b, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &b, nil
}

// GetByIdempotencyKey finds a booking created earlier with the same key
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 AND idempotency_key = $2`

	err := r.db.GetContext(ctx, &b, query, userID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by idempotency key: %w", err)
	}

	return &b, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := r.db.SelectContext(ctx, &bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

// ListReconciliation returns bookings flagged for manual review
func (r *BookingRepository) ListReconciliation(ctx context.Context, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE reconciliation_required = TRUE
		ORDER BY updated_at ASC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &bookings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list reconciliation bookings: %w", err)
	}

	return bookings, nil
}

// MarkConfirmed moves PENDING to CONFIRMED with payment PAID and slots held
func (r *BookingRepository) MarkConfirmed(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.transition(ctx, r.db, id, models.BookingStatusConfirmed, `
		UPDATE bookings
		SET status = 'CONFIRMED', payment_status = 'PAID', slots_reserved = TRUE,
			confirmed_at = NOW(), updated_at = NOW()
		WHERE id = ? AND status IN (?)
		RETURNING `+bookingColumns)
}

// MarkCompleted moves CONFIRMED to COMPLETED
func (r *BookingRepository) MarkCompleted(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.transition(ctx, r.db, id, models.BookingStatusCompleted, `
		UPDATE bookings
		SET status = 'COMPLETED', completed_at = NOW(), updated_at = NOW()
		WHERE id = ? AND status IN (?)
		RETURNING `+bookingColumns)
}

// SetPaymentStatus changes payment_status when the current value allows it
func (r *BookingRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, to models.BookingPaymentStatus) (*models.Booking, error) {
	var from []models.BookingPaymentStatus
	for _, s := range []models.BookingPaymentStatus{models.BookingPaymentPending, models.BookingPaymentPaid, models.BookingPaymentFailed, models.BookingPaymentRefunded} {
		if s == to || s.CanTransitionTo(to) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return nil, &models.StateTransitionError{Entity: "booking payment", From: "any", To: string(to)}
	}

	query, args, err := sqlx.In(`
		UPDATE bookings
		SET payment_status = ?, updated_at = NOW()
		WHERE id = ? AND payment_status IN (?)
		RETURNING `+bookingColumns, to, id, from)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment status query: %w", err)
	}

	var b models.Booking
	err = r.db.GetContext(ctx, &b, r.db.Rebind(query), args...)
	if err == sql.ErrNoRows {
		return nil, r.transitionFailure(ctx, r.db, id, "booking payment", string(to), true)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking payment status: %w", err)
	}

	return &b, nil
}

// Cancel moves PENDING or CONFIRMED to CANCELLED. In the same transaction any
// pending payment is failed and a release job is queued when slots were held
// or a payment was opened. A reserve is only attempted for a booking with a
// payment, and its response may have been lost, so slots_reserved alone is not
// enough. Releasing a booking that never reserved is a no-op downstream.
func (r *BookingRepository) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, *models.ReleaseJob, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	b, err := r.transition(ctx, tx, id, models.BookingStatusCancelled, `
		UPDATE bookings
		SET status = 'CANCELLED', cancellation_reason = ?, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = ? AND status IN (?)
		RETURNING `+bookingColumns, reason)
	if err != nil {
		return nil, nil, err
	}

	var paid bool
	if err := tx.GetContext(ctx, &paid, `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = $1)`, id); err != nil {
		return nil, nil, fmt.Errorf("failed to check payments: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = 'booking cancelled', failed_at = NOW(), updated_at = NOW()
		WHERE booking_id = $1 AND status = 'pending'`, id); err != nil {
		return nil, nil, fmt.Errorf("failed to fail pending payments: %w", err)
	}

	var job *models.ReleaseJob
	if b.SlotsReserved || paid {
		job = models.NewReleaseJob(id, reason)
		if err := insertReleaseJob(ctx, tx, job); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return b, job, nil
}

// RecordSoldOut fails the payment and flags the booking for manual review.
// The booking stays PENDING.
func (r *BookingRepository) RecordSoldOut(ctx context.Context, bookingID, paymentID uuid.UUID, reason string) (*models.Booking, *models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var p models.Payment
	err = tx.GetContext(ctx, &p, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, failed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+paymentColumns, paymentID, reason)
	if err == sql.ErrNoRows {
		return nil, nil, &models.StateTransitionError{Entity: "payment", From: "non-pending", To: string(models.PaymentStatusFailed)}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fail payment: %w", err)
	}

	var b models.Booking
	err = tx.GetContext(ctx, &b, `
		UPDATE bookings
		SET payment_status = 'FAILED', reconciliation_required = TRUE, reconciliation_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+bookingColumns, bookingID, reason)
	if err == sql.ErrNoRows {
		return nil, nil, r.transitionFailure(ctx, tx, bookingID, "booking", "reconciliation", false)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to flag booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit sold out: %w", err)
	}

	return &b, &p, nil
}

// FlagReconciliation marks a booking for manual review without touching its status
func (r *BookingRepository) FlagReconciliation(ctx context.Context, id uuid.UUID, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET reconciliation_required = TRUE, reconciliation_reason = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to flag booking: %w", err)
	}
	return requireOneRow(result, "booking", id)
}

// ResolveReconciliation clears the review flag, keeping the note as the reason
func (r *BookingRepository) ResolveReconciliation(ctx context.Context, id uuid.UUID, note string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, `
		UPDATE bookings
		SET reconciliation_required = FALSE, reconciliation_reason = $2, updated_at = NOW()
		WHERE id = $1 AND reconciliation_required = TRUE
		RETURNING `+bookingColumns, id, note)
	if err == sql.ErrNoRows {
		return nil, r.transitionFailure(ctx, r.db, id, "booking", "resolved", false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reconciliation: %w", err)
	}
	return &b, nil
}

// MarkSlotsReleased records that the inventory service gave the slots back
func (r *BookingRepository) MarkSlotsReleased(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bookings SET slots_reserved = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark slots released: %w", err)
	}
	return nil
}

// transition runs a conditional status update. The query uses ? placeholders:
// extra args first, then the id, then the allowed source statuses.
func (r *BookingRepository) transition(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, to models.BookingStatus, query string, extra ...interface{}) (*models.Booking, error) {
	sources := models.SourcesFor(to)
	args := append(extra, id, sources)

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build transition query: %w", err)
	}

	var b models.Booking
	err = sqlx.GetContext(ctx, q, &b, q.Rebind(query), inArgs...)
	if err == sql.ErrNoRows {
		return nil, r.transitionFailure(ctx, q, id, "booking", string(to), false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to move booking to %s: %w", to, err)
	}

	return &b, nil
}

// transitionFailure explains why a conditional update touched no rows
func (r *BookingRepository) transitionFailure(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, entity, to string, paymentSide bool) error {
	var current struct {
		Status        string `db:"status"`
		PaymentStatus string `db:"payment_status"`
	}
	err := sqlx.GetContext(ctx, q, &current, `SELECT status, payment_status FROM bookings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return models.NewNotFoundError("booking", id.String())
	}
	if err != nil {
		return fmt.Errorf("failed to load booking state: %w", err)
	}

	from := current.Status
	if paymentSide {
		from = current.PaymentStatus
	}
	return &models.StateTransitionError{Entity: entity, From: from, To: to}
}

func requireOneRow(result sql.Result, resource string, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NewNotFoundError(resource, id.String())
	}
	return nil
}
