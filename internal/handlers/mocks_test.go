package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/voyagehub/tour-booking-backend/internal/middleware"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/internal/services"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// withUser stands in for AuthMiddleware
func withUser(userID uuid.UUID, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, middleware.UserContext{UserID: userID, Roles: roles})
		c.Next()
	}
}

func resultOrNil[T any](args mock.Arguments, i int) *T {
	if v := args.Get(i); v != nil {
		return v.(*T)
	}
	return nil
}

type mockInventory struct{ mock.Mock }

func (m *mockInventory) PreviewRange(req *models.PreviewRangeRequest) (*models.PreviewRangeResponse, error) {
	args := m.Called(req)
	return resultOrNil[models.PreviewRangeResponse](args, 0), args.Error(1)
}

func (m *mockInventory) InitializeRange(ctx context.Context, tourID uuid.UUID, req *models.InitializeRangeRequest) (*models.InitializeRangeResponse, error) {
	args := m.Called(ctx, tourID, req)
	return resultOrNil[models.InitializeRangeResponse](args, 0), args.Error(1)
}

func (m *mockInventory) UpdateInventory(ctx context.Context, tourID uuid.UUID, date models.Date, req *models.UpdateInventoryRequest) (*models.InventoryRecord, error) {
	args := m.Called(ctx, tourID, date, req)
	return resultOrNil[models.InventoryRecord](args, 0), args.Error(1)
}

func (m *mockInventory) GetInventoryStatus(ctx context.Context, tourID uuid.UUID) ([]models.InventoryRecord, error) {
	args := m.Called(ctx, tourID)
	records, _ := args.Get(0).([]models.InventoryRecord)
	return records, args.Error(1)
}

func (m *mockInventory) GetAvailabilityRange(ctx context.Context, tourID uuid.UUID, start, end models.Date) ([]models.InventoryRecord, error) {
	args := m.Called(ctx, tourID, start, end)
	records, _ := args.Get(0).([]models.InventoryRecord)
	return records, args.Error(1)
}

func (m *mockInventory) DeleteInventory(ctx context.Context, tourID uuid.UUID, date models.Date) error {
	return m.Called(ctx, tourID, date).Error(0)
}

func (m *mockInventory) CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	args := m.Called(ctx, tourID, date, participants)
	return resultOrNil[models.AvailabilityResponse](args, 0), args.Error(1)
}

func (m *mockInventory) Reserve(ctx context.Context, req *models.ReserveRequest) (*models.ReserveResponse, error) {
	args := m.Called(ctx, req)
	return resultOrNil[models.ReserveResponse](args, 0), args.Error(1)
}

func (m *mockInventory) Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error) {
	args := m.Called(ctx, bookingID)
	return resultOrNil[models.ReleaseResponse](args, 0), args.Error(1)
}

type mockWorkflow struct{ mock.Mock }

func (m *mockWorkflow) CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	args := m.Called(ctx, tourID, date, participants)
	return resultOrNil[models.AvailabilityResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) CalculateCost(ctx context.Context, req *models.CalculateCostRequest) (*models.CostResponse, error) {
	args := m.Called(ctx, req)
	return resultOrNil[models.CostResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) StartBooking(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest, idempotencyKey *string) (*models.CreateBookingResponse, error) {
	args := m.Called(ctx, userID, req, idempotencyKey)
	return resultOrNil[models.CreateBookingResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) GetBooking(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, actor, id)
	return resultOrNil[models.Booking](args, 0), args.Error(1)
}

func (m *mockWorkflow) ListBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	args := m.Called(ctx, userID, limit, offset)
	bookings, _ := args.Get(0).([]models.Booking)
	return bookings, args.Error(1)
}

func (m *mockWorkflow) ListBookingPayments(ctx context.Context, actor services.Actor, bookingID uuid.UUID) ([]models.Payment, error) {
	args := m.Called(ctx, actor, bookingID)
	payments, _ := args.Get(0).([]models.Payment)
	return payments, args.Error(1)
}

func (m *mockWorkflow) CancelBooking(ctx context.Context, actor services.Actor, bookingID uuid.UUID, reason *string, meta models.RequestMetadata) (*models.CancelBookingResponse, error) {
	args := m.Called(ctx, actor, bookingID, reason, meta)
	return resultOrNil[models.CancelBookingResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) CompleteBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	return resultOrNil[models.Booking](args, 0), args.Error(1)
}

func (m *mockWorkflow) ProcessPayment(ctx context.Context, actor services.Actor, req *models.ProcessPaymentRequest, idempotencyKey *string, meta models.RequestMetadata) (*models.ProcessPaymentResponse, error) {
	args := m.Called(ctx, actor, req, idempotencyKey, meta)
	return resultOrNil[models.ProcessPaymentResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) GetPayment(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, actor, id)
	return resultOrNil[models.Payment](args, 0), args.Error(1)
}

func (m *mockWorkflow) CompletePayment(ctx context.Context, actor services.Actor, paymentID uuid.UUID, meta models.RequestMetadata) (*models.CompletePaymentResponse, error) {
	args := m.Called(ctx, actor, paymentID, meta)
	return resultOrNil[models.CompletePaymentResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) FailPayment(ctx context.Context, actor services.Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error) {
	args := m.Called(ctx, actor, paymentID, reason, meta)
	return resultOrNil[models.PaymentActionResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) RefundPayment(ctx context.Context, actor services.Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error) {
	args := m.Called(ctx, actor, paymentID, reason, meta)
	return resultOrNil[models.PaymentActionResponse](args, 0), args.Error(1)
}

func (m *mockWorkflow) ListPaymentEvents(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error) {
	args := m.Called(ctx, paymentID)
	events, _ := args.Get(0).([]models.PaymentEvent)
	return events, args.Error(1)
}

func (m *mockWorkflow) ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentEvent, error) {
	args := m.Called(ctx, limit)
	events, _ := args.Get(0).([]models.PaymentEvent)
	return events, args.Error(1)
}

func (m *mockWorkflow) ListReconciliation(ctx context.Context, limit int) (*models.ReconciliationView, error) {
	args := m.Called(ctx, limit)
	return resultOrNil[models.ReconciliationView](args, 0), args.Error(1)
}

func (m *mockWorkflow) ResolveReconciliation(ctx context.Context, bookingID uuid.UUID, req *models.ResolveReconciliationRequest) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, req)
	return resultOrNil[models.Booking](args, 0), args.Error(1)
}

type mockReleaseControl struct{ mock.Mock }

func (m *mockReleaseControl) RunOnce(ctx context.Context) (*services.RunSummary, error) {
	args := m.Called(ctx)
	return resultOrNil[services.RunSummary](args, 0), args.Error(1)
}

func (m *mockReleaseControl) GetStatus(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(map[string]interface{})
	return status, args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

var errBoom = errors.New("boom")
