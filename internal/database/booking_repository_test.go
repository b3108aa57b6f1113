package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

func setupBookingRepo(t *testing.T) (*BookingRepository, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewBookingRepository(db), mock, func() { mockDB.Close() }
}

var bookingColumnNames = []string{
	"id", "user_id", "tour_id", "departure_date", "participants", "unit_price", "total_cost", "currency",
	"cost_breakdown", "notes", "booking_date", "status", "payment_status", "slots_reserved",
	"reconciliation_required", "reconciliation_reason", "cancellation_reason",
	"cancelled_at", "confirmed_at", "completed_at", "idempotency_key", "created_at", "updated_at",
}

func bookingRow(b *models.Booking) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(bookingColumnNames).AddRow(
		b.ID.String(), b.UserID.String(), b.TourID.String(), b.DepartureDate.Time, b.Participants,
		b.UnitPrice.String(), b.TotalCost.String(), "IDR",
		[]byte(`[{"item":"base","amount":"200","quantity":2}]`), nil, now,
		string(b.Status), string(b.PaymentStatus), b.SlotsReserved,
		b.ReconciliationRequired, nil, nil,
		nil, nil, nil, nil, now, now,
	)
}

func sampleBooking(t *testing.T) *models.Booking {
	return &models.Booking{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		TourID:        uuid.New(),
		DepartureDate: mustDate(t, "2024-06-01"),
		Participants:  2,
		UnitPrice:     decimal.RequireFromString("100"),
		TotalCost:     decimal.RequireFromString("210"),
		Currency:      "IDR",
		BookingDate:   time.Now(),
		Status:        models.BookingStatusPending,
		PaymentStatus: models.BookingPaymentPending,
	}
}

func TestBookingCreate(t *testing.T) {
	repo, mock, cleanup := setupBookingRepo(t)
	defer cleanup()

	b := sampleBooking(t)

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`INSERT INTO bookings`).
			WithArgs(b.ID, b.UserID, b.TourID, b.DepartureDate, 2, "100", "210", "IDR",
				sqlmock.AnyArg(), nil, sqlmock.AnyArg(), "PENDING", "PENDING", nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		require.NoError(t, repo.Create(context.Background(), b))
		assert.Equal(t, now, b.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate idempotency key", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_user_idempotency_key"})

		err := repo.Create(context.Background(), b)
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingGetByID(t *testing.T) {
	repo, mock, cleanup := setupBookingRepo(t)
	defer cleanup()

	b := sampleBooking(t)

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \$1`).
			WithArgs(b.ID).
			WillReturnRows(bookingRow(b))

		got, err := repo.GetByID(context.Background(), b.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, b.ID, got.ID)
		assert.True(t, got.TotalCost.Equal(b.TotalCost))
		require.Len(t, got.CostBreakdown, 1)
		assert.Equal(t, "base", got.CostBreakdown[0].Item)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM bookings WHERE id = \$1`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows(bookingColumnNames))

		got, err := repo.GetByID(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingMarkConfirmed(t *testing.T) {
	repo, mock, cleanup := setupBookingRepo(t)
	defer cleanup()

	b := sampleBooking(t)

	t.Run("pending becomes confirmed", func(t *testing.T) {
		confirmed := *b
		confirmed.Status = models.BookingStatusConfirmed
		confirmed.PaymentStatus = models.BookingPaymentPaid
		confirmed.SlotsReserved = true

		mock.ExpectQuery(`UPDATE bookings\s+SET status = 'CONFIRMED'.*WHERE id = \? AND status IN \(\?\)`).
			WithArgs(b.ID, "PENDING").
			WillReturnRows(bookingRow(&confirmed))

		got, err := repo.MarkConfirmed(context.Background(), b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusConfirmed, got.Status)
		assert.Equal(t, models.BookingPaymentPaid, got.PaymentStatus)
		assert.True(t, got.SlotsReserved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancelled booking cannot be confirmed", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(sqlmock.NewRows(bookingColumnNames))
		mock.ExpectQuery(`SELECT status, payment_status FROM bookings WHERE id = \$1`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status", "payment_status"}).AddRow("CANCELLED", "PENDING"))

		_, err := repo.MarkConfirmed(context.Background(), b.ID)

		var stErr *models.StateTransitionError
		require.True(t, errors.As(err, &stErr))
		assert.Equal(t, "CANCELLED", stErr.From)
		assert.Equal(t, "CONFIRMED", stErr.To)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown booking", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(sqlmock.NewRows(bookingColumnNames))
		mock.ExpectQuery(`SELECT status, payment_status FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"status", "payment_status"}))

		_, err := repo.MarkConfirmed(context.Background(), b.ID)

		var nfErr *models.NotFoundError
		assert.True(t, errors.As(err, &nfErr))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingCancel(t *testing.T) {
	repo, mock, cleanup := setupBookingRepo(t)
	defer cleanup()

	t.Run("confirmed booking queues a release job", func(t *testing.T) {
		b := sampleBooking(t)
		cancelled := *b
		cancelled.Status = models.BookingStatusCancelled
		cancelled.PaymentStatus = models.BookingPaymentPaid
		cancelled.SlotsReserved = true

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings\s+SET status = 'CANCELLED'.*WHERE id = \? AND status IN \(\?, \?\)`).
			WithArgs("change of plans", b.ID, "PENDING", "CONFIRMED").
			WillReturnRows(bookingRow(&cancelled))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM payments WHERE booking_id = \$1\)`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`UPDATE payments\s+SET status = 'failed'`).
			WithArgs(b.ID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO release_jobs`).
			WithArgs(sqlmock.AnyArg(), b.ID, "change of plans", "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, job, err := repo.Cancel(context.Background(), b.ID, "change of plans")
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, got.Status)
		require.NotNil(t, job)
		assert.Equal(t, b.ID, job.BookingID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending payment after a lost reserve response queues a release job", func(t *testing.T) {
		b := sampleBooking(t)
		cancelled := *b
		cancelled.Status = models.BookingStatusCancelled

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(bookingRow(&cancelled))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`UPDATE payments`).
			WithArgs(b.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO release_jobs`).
			WithArgs(sqlmock.AnyArg(), b.ID, models.DefaultCancellationReason, "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, job, err := repo.Cancel(context.Background(), b.ID, models.DefaultCancellationReason)
		require.NoError(t, err)
		assert.False(t, got.SlotsReserved)
		require.NotNil(t, job)
		assert.Equal(t, b.ID, job.BookingID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("booking without payments queues nothing", func(t *testing.T) {
		b := sampleBooking(t)
		cancelled := *b
		cancelled.Status = models.BookingStatusCancelled

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(bookingRow(&cancelled))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(b.ID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`UPDATE payments`).
			WithArgs(b.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, job, err := repo.Cancel(context.Background(), b.ID, models.DefaultCancellationReason)
		require.NoError(t, err)
		assert.Nil(t, job)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already cancelled", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WillReturnRows(sqlmock.NewRows(bookingColumnNames))
		mock.ExpectQuery(`SELECT status, payment_status FROM bookings`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status", "payment_status"}).AddRow("CANCELLED", "PENDING"))
		mock.ExpectRollback()

		_, _, err := repo.Cancel(context.Background(), id, "again")

		var stErr *models.StateTransitionError
		assert.True(t, errors.As(err, &stErr))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRecordSoldOut(t *testing.T) {
	repo, mock, cleanup := setupBookingRepo(t)
	defer cleanup()

	b := sampleBooking(t)
	paymentID := uuid.New()
	now := time.Now()

	flagged := *b
	flagged.PaymentStatus = models.BookingPaymentFailed
	flagged.ReconciliationRequired = true

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE payments\s+SET status = 'failed'`).
		WithArgs(paymentID, models.ReconciliationSoldOut).
		WillReturnRows(sqlmock.NewRows(paymentColumnNames).AddRow(
			paymentID.String(), b.ID.String(), b.UserID.String(), "210", "IDR", "credit_card", "INV-20240601-ABCDEF12",
			"failed", "sold_out", nil, now, nil, now, nil, now,
		))
	mock.ExpectQuery(`UPDATE bookings\s+SET payment_status = 'FAILED', reconciliation_required = TRUE`).
		WithArgs(b.ID, models.ReconciliationSoldOut).
		WillReturnRows(bookingRow(&flagged))
	mock.ExpectCommit()

	gotBooking, gotPayment, err := repo.RecordSoldOut(context.Background(), b.ID, paymentID, models.ReconciliationSoldOut)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, gotBooking.Status)
	assert.True(t, gotBooking.ReconciliationRequired)
	assert.Equal(t, models.PaymentStatusFailed, gotPayment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingSetPaymentStatus(t *testing.T) {
	repo, mock, cleanup := setupBookingRepo(t)
	defer cleanup()

	b := sampleBooking(t)
	failed := *b
	failed.PaymentStatus = models.BookingPaymentFailed

	mock.ExpectQuery(`UPDATE bookings\s+SET payment_status = \?, updated_at = NOW\(\)\s+WHERE id = \? AND payment_status IN \(\?, \?\)`).
		WithArgs("FAILED", b.ID, "PENDING", "FAILED").
		WillReturnRows(bookingRow(&failed))

	got, err := repo.SetPaymentStatus(context.Background(), b.ID, models.BookingPaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaymentFailed, got.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
