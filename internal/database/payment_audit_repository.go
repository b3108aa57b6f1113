package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// PaymentEventRepository writes the immutable payment audit trail
type PaymentEventRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentEventRepository creates a new payment event repository
func NewPaymentEventRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentEventRepository {
	return &PaymentEventRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends a payment event
func (r *PaymentEventRepository) Log(ctx context.Context, event *models.PaymentEvent) error {
	if event == nil {
		return fmt.Errorf("payment event cannot be nil")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_events (
			id, payment_id, booking_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			payment_status, details,
			error_message, error_code,
			ip_address, user_agent, device_type, correlation_id,
			created_at
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13,
			$14, $15, $16, $17,
			$18
		)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.PaymentID, event.BookingID,
		event.EventType, event.EventSource,
		event.ExpectedAmount, event.ReceivedAmount, event.Currency, event.AmountsMatch,
		event.PaymentStatus, event.Details,
		event.ErrorMessage, event.ErrorCode,
		event.IPAddress, event.UserAgent, event.DeviceType, event.CorrelationID,
		event.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.EventType,
			"payment_id": event.PaymentID,
			"booking_id": event.BookingID,
		}).Error("CRITICAL: Failed to log payment event")
		return fmt.Errorf("failed to log payment event: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"payment_id": event.PaymentID,
	}).Debug("Payment event logged")

	return nil
}

const paymentEventColumns = `id, payment_id, booking_id, event_type, event_source,
	expected_amount, received_amount, currency, amounts_match, payment_status, details,
	error_message, error_code, ip_address, user_agent, device_type, correlation_id, created_at`

// ListByPayment returns a payment's events in order
func (r *PaymentEventRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error) {
	events := []models.PaymentEvent{}
	query := `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE payment_id = $1 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &events, query, paymentID); err != nil {
		return nil, fmt.Errorf("failed to get events by payment: %w", err)
	}

	return events, nil
}

// ListByBooking returns every payment event of a booking in order
func (r *PaymentEventRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentEvent, error) {
	events := []models.PaymentEvent{}
	query := `SELECT ` + paymentEventColumns + ` FROM payment_events WHERE booking_id = $1 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &events, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get events by booking: %w", err)
	}

	return events, nil
}

// ListAmountMismatches returns events where the received amount differed from the booking total
func (r *PaymentEventRepository) ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentEvent, error) {
	events := []models.PaymentEvent{}
	query := `
		SELECT ` + paymentEventColumns + `
		FROM payment_events
		WHERE amounts_match = FALSE
		ORDER BY created_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get amount mismatches: %w", err)
	}

	return events, nil
}
