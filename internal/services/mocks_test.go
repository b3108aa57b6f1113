package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustDate(s string) models.Date {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ----------------------------------------------------------------------------

type mockInventoryStore struct{ mock.Mock }

func (m *mockInventoryStore) InitializeRange(ctx context.Context, tourID uuid.UUID, dates []time.Time, slots int, hotel, transport bool) (int, int, error) {
	args := m.Called(ctx, tourID, dates, slots, hotel, transport)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockInventoryStore) Upsert(ctx context.Context, tourID uuid.UUID, date models.Date, slots int, hotel, transport bool) (*models.InventoryRecord, error) {
	args := m.Called(ctx, tourID, date, slots, hotel, transport)
	rec, _ := args.Get(0).(*models.InventoryRecord)
	return rec, args.Error(1)
}

func (m *mockInventoryStore) GetByTourAndDate(ctx context.Context, tourID uuid.UUID, date models.Date) (*models.InventoryRecord, error) {
	args := m.Called(ctx, tourID, date)
	rec, _ := args.Get(0).(*models.InventoryRecord)
	return rec, args.Error(1)
}

func (m *mockInventoryStore) ListByTour(ctx context.Context, tourID uuid.UUID) ([]models.InventoryRecord, error) {
	args := m.Called(ctx, tourID)
	recs, _ := args.Get(0).([]models.InventoryRecord)
	return recs, args.Error(1)
}

func (m *mockInventoryStore) ListRange(ctx context.Context, tourID uuid.UUID, start, end models.Date) ([]models.InventoryRecord, error) {
	args := m.Called(ctx, tourID, start, end)
	recs, _ := args.Get(0).([]models.InventoryRecord)
	return recs, args.Error(1)
}

func (m *mockInventoryStore) Delete(ctx context.Context, tourID uuid.UUID, date models.Date) error {
	return m.Called(ctx, tourID, date).Error(0)
}

func (m *mockInventoryStore) Reserve(ctx context.Context, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.InventoryReservation, int, bool, error) {
	args := m.Called(ctx, bookingID, tourID, date, participants)
	res, _ := args.Get(0).(*models.InventoryReservation)
	return res, args.Int(1), args.Bool(2), args.Error(3)
}

func (m *mockInventoryStore) Release(ctx context.Context, bookingID uuid.UUID) (bool, int, error) {
	args := m.Called(ctx, bookingID)
	return args.Bool(0), args.Int(1), args.Error(2)
}

// ----------------------------------------------------------------------------

type mockInventoryGateway struct{ mock.Mock }

func (m *mockInventoryGateway) CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	args := m.Called(ctx, tourID, date, participants)
	res, _ := args.Get(0).(*models.AvailabilityResponse)
	return res, args.Error(1)
}

func (m *mockInventoryGateway) Reserve(ctx context.Context, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.ReserveResponse, error) {
	args := m.Called(ctx, bookingID, tourID, date, participants)
	res, _ := args.Get(0).(*models.ReserveResponse)
	return res, args.Error(1)
}

func (m *mockInventoryGateway) Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error) {
	args := m.Called(ctx, bookingID)
	res, _ := args.Get(0).(*models.ReleaseResponse)
	return res, args.Error(1)
}

// ----------------------------------------------------------------------------

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) GetTour(ctx context.Context, tourID uuid.UUID) (*models.TourInfo, error) {
	args := m.Called(ctx, tourID)
	tour, _ := args.Get(0).(*models.TourInfo)
	return tour, args.Error(1)
}

// ----------------------------------------------------------------------------

type mockBookingStore struct{ mock.Mock }

func (m *mockBookingStore) Create(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBookingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error) {
	args := m.Called(ctx, userID, key)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	args := m.Called(ctx, userID, limit, offset)
	bs, _ := args.Get(0).([]models.Booking)
	return bs, args.Error(1)
}

func (m *mockBookingStore) ListReconciliation(ctx context.Context, limit int) ([]models.Booking, error) {
	args := m.Called(ctx, limit)
	bs, _ := args.Get(0).([]models.Booking)
	return bs, args.Error(1)
}

func (m *mockBookingStore) MarkConfirmed(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) MarkCompleted(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) SetPaymentStatus(ctx context.Context, id uuid.UUID, to models.BookingPaymentStatus) (*models.Booking, error) {
	args := m.Called(ctx, id, to)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, *models.ReleaseJob, error) {
	args := m.Called(ctx, id, reason)
	b, _ := args.Get(0).(*models.Booking)
	job, _ := args.Get(1).(*models.ReleaseJob)
	return b, job, args.Error(2)
}

func (m *mockBookingStore) RecordSoldOut(ctx context.Context, bookingID, paymentID uuid.UUID, reason string) (*models.Booking, *models.Payment, error) {
	args := m.Called(ctx, bookingID, paymentID, reason)
	b, _ := args.Get(0).(*models.Booking)
	p, _ := args.Get(1).(*models.Payment)
	return b, p, args.Error(2)
}

func (m *mockBookingStore) FlagReconciliation(ctx context.Context, id uuid.UUID, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *mockBookingStore) ResolveReconciliation(ctx context.Context, id uuid.UUID, note string) (*models.Booking, error) {
	args := m.Called(ctx, id, note)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) MarkSlotsReleased(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// ----------------------------------------------------------------------------

type mockPaymentStore struct{ mock.Mock }

func (m *mockPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Payment, error) {
	args := m.Called(ctx, userID, key)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) GetPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, bookingID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	args := m.Called(ctx, bookingID)
	ps, _ := args.Get(0).([]models.Payment)
	return ps, args.Error(1)
}

func (m *mockPaymentStore) MarkCompleted(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	args := m.Called(ctx, id, reason)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentStore) MarkRefunded(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	args := m.Called(ctx, id, reason)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

// ----------------------------------------------------------------------------

// recordingEvents keeps every logged event in order
type recordingEvents struct {
	events []*models.PaymentEvent
}

func (r *recordingEvents) Log(ctx context.Context, event *models.PaymentEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error) {
	var out []models.PaymentEvent
	for _, e := range r.events {
		if e.PaymentID != nil && *e.PaymentID == paymentID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *recordingEvents) ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentEvent, error) {
	return nil, nil
}

func (r *recordingEvents) types() []models.PaymentEventType {
	out := make([]models.PaymentEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// ----------------------------------------------------------------------------

type mockReleases struct {
	mock.Mock
	nudges int
}

func (m *mockReleases) Nudge() { m.nudges++ }

func (m *mockReleases) Enqueue(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return m.Called(ctx, bookingID, reason).Error(0)
}

func (m *mockReleases) ListFailed(ctx context.Context, limit int) ([]models.ReleaseJob, error) {
	args := m.Called(ctx, limit)
	jobs, _ := args.Get(0).([]models.ReleaseJob)
	return jobs, args.Error(1)
}

// ----------------------------------------------------------------------------

type mockJobStore struct{ mock.Mock }

func (m *mockJobStore) Enqueue(ctx context.Context, job *models.ReleaseJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockJobStore) FetchDue(ctx context.Context, now time.Time, limit int) ([]models.ReleaseJob, error) {
	args := m.Called(ctx, now, limit)
	jobs, _ := args.Get(0).([]models.ReleaseJob)
	return jobs, args.Error(1)
}

func (m *mockJobStore) MarkDone(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockJobStore) MarkAttemptFailed(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time, exhausted bool) error {
	return m.Called(ctx, id, lastError, nextAttemptAt, exhausted).Error(0)
}

func (m *mockJobStore) ListFailed(ctx context.Context, limit int) ([]models.ReleaseJob, error) {
	args := m.Called(ctx, limit)
	jobs, _ := args.Get(0).([]models.ReleaseJob)
	return jobs, args.Error(1)
}

func (m *mockJobStore) Stats(ctx context.Context) (*models.ReleaseJobStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*models.ReleaseJobStats)
	return stats, args.Error(1)
}
