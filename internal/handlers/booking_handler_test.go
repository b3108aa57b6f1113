package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/voyagehub/tour-booking-backend/internal/middleware"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/internal/services"
)

func setupBookingRouter(userID uuid.UUID, roles ...string) (*gin.Engine, *mockWorkflow, *mockReleaseControl) {
	workflow := &mockWorkflow{}
	releases := &mockReleaseControl{}
	logger := testLogger()
	bookings := NewBookingHandler(workflow, logger)
	payments := NewPaymentHandler(workflow, logger)
	admin := NewAdminHandler(workflow, releases, logger)

	router := newTestRouter()
	api := router.Group("/api/v1")
	api.GET("/tours/:tour_id/availability/check", bookings.CheckAvailability)
	api.POST("/bookings/cost", bookings.CalculateCost)

	protected := api.Group("", withUser(userID, roles...))
	protected.POST("/bookings", bookings.CreateBooking)
	protected.GET("/bookings", bookings.ListBookings)
	protected.GET("/bookings/:id", bookings.GetBooking)
	protected.GET("/bookings/:id/payments", bookings.ListBookingPayments)
	protected.POST("/bookings/:id/cancel", bookings.CancelBooking)
	protected.POST("/payments", payments.ProcessPayment)
	protected.GET("/payments/:id", payments.GetPayment)
	protected.POST("/payments/:id/complete", payments.CompletePayment)
	protected.POST("/payments/:id/fail", payments.FailPayment)

	adminGroup := protected.Group("", middleware.RequireRole(middleware.RoleAdmin))
	adminGroup.POST("/payments/:id/refund", payments.RefundPayment)
	adminGroup.GET("/admin/reconciliation", admin.ListReconciliation)
	adminGroup.POST("/admin/reconciliation/:id/resolve", admin.ResolveReconciliation)
	adminGroup.POST("/admin/bookings/:id/complete", admin.CompleteBooking)
	adminGroup.GET("/admin/payments/mismatches", admin.ListAmountMismatches)
	adminGroup.GET("/admin/payments/:id/events", admin.ListPaymentEvents)
	adminGroup.GET("/admin/release-jobs/status", admin.ReleaseJobsStatus)
	adminGroup.POST("/admin/release-jobs/run", admin.RunReleaseJobs)

	return router, workflow, releases
}

func TestBookingHandler_CheckAvailabilityDegraded(t *testing.T) {
	router, workflow, _ := setupBookingRouter(uuid.New())
	tourID := uuid.New()
	workflow.On("CheckAvailability", mock.Anything, tourID, mock.Anything, 2).
		Return(&models.AvailabilityResponse{Available: false, Degraded: true, Message: models.MsgUnableToCheck}, nil)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/tours/"+tourID.String()+"/availability/check?date=2024-06-01&participants=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.AvailabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Available)
	assert.True(t, resp.Degraded)
}

func TestBookingHandler_CalculateCost(t *testing.T) {
	router, workflow, _ := setupBookingRouter(uuid.New())
	tourID := uuid.New()
	workflow.On("CalculateCost", mock.Anything, mock.MatchedBy(func(req *models.CalculateCostRequest) bool {
		return req.TourID == tourID && req.Participants == 2
	})).Return(&models.CostResponse{TourID: tourID, TotalCost: decimal.RequireFromString("5250000")}, nil)

	w := serve(router, jsonRequest(t, http.MethodPost, "/api/v1/bookings/cost", gin.H{
		"tour_id":        tourID,
		"participants":   2,
		"departure_date": "2024-06-01",
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_cost":"5250000"`)
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	userID, tourID := uuid.New(), uuid.New()
	body := gin.H{"tour_id": tourID, "departure_date": "2030-01-15", "participants": 2}

	t.Run("created", func(t *testing.T) {
		router, workflow, _ := setupBookingRouter(userID)
		key := "abc-1"
		workflow.On("StartBooking", mock.Anything, userID, mock.Anything, &key).
			Return(&models.CreateBookingResponse{Booking: &models.Booking{ID: uuid.New(), Status: models.BookingStatusPending}}, nil)

		req := jsonRequest(t, http.MethodPost, "/api/v1/bookings", body)
		req.Header.Set("Idempotency-Key", key)
		w := serve(router, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		workflow.AssertExpectations(t)
	})

	t.Run("replayed", func(t *testing.T) {
		router, workflow, _ := setupBookingRouter(userID)
		workflow.On("StartBooking", mock.Anything, userID, mock.Anything, mock.Anything).
			Return(&models.CreateBookingResponse{Booking: &models.Booking{ID: uuid.New()}, Replayed: true}, nil)

		w := serve(router, jsonRequest(t, http.MethodPost, "/api/v1/bookings", body))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not enough slots", func(t *testing.T) {
		router, workflow, _ := setupBookingRouter(userID)
		workflow.On("StartBooking", mock.Anything, userID, mock.Anything, (*string)(nil)).
			Return(nil, &models.CapacityError{Requested: 2, Remaining: 1})

		w := serve(router, jsonRequest(t, http.MethodPost, "/api/v1/bookings", body))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"remaining":1`)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		workflow := &mockWorkflow{}
		router := newTestRouter()
		router.POST("/bookings", NewBookingHandler(workflow, testLogger()).CreateBooking)

		w := serve(router, jsonRequest(t, http.MethodPost, "/bookings", body))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestBookingHandler_ListBookingsClampsLimit(t *testing.T) {
	userID := uuid.New()
	router, workflow, _ := setupBookingRouter(userID)
	workflow.On("ListBookings", mock.Anything, userID, 20, 0).Return([]models.Booking{}, nil)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/bookings?limit=1000", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	workflow.AssertExpectations(t)
}

func TestBookingHandler_GetBookingForbidden(t *testing.T) {
	userID := uuid.New()
	router, workflow, _ := setupBookingRouter(userID)
	bookingID := uuid.New()
	workflow.On("GetBooking", mock.Anything, services.Actor{UserID: userID}, bookingID).
		Return(nil, &models.ForbiddenError{Message: "booking belongs to another user"})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/"+bookingID.String(), nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	userID := uuid.New()
	bookingID := uuid.New()

	t.Run("with reason", func(t *testing.T) {
		router, workflow, _ := setupBookingRouter(userID)
		workflow.On("CancelBooking", mock.Anything, mock.Anything, bookingID, mock.MatchedBy(func(reason *string) bool {
			return reason != nil && *reason == "change of plans"
		}), mock.Anything).Return(&models.CancelBookingResponse{
			Booking:          &models.Booking{ID: bookingID, Status: models.BookingStatusCancelled},
			ReleaseScheduled: true,
		}, nil)

		w := serve(router, jsonRequest(t, http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/cancel", gin.H{"reason": "change of plans"}))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"release_scheduled":true`)
	})

	t.Run("without body", func(t *testing.T) {
		router, workflow, _ := setupBookingRouter(userID)
		workflow.On("CancelBooking", mock.Anything, mock.Anything, bookingID, (*string)(nil), mock.Anything).
			Return(nil, &models.StateTransitionError{Entity: "booking", From: "COMPLETED", To: "CANCELLED"})

		w := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/cancel", nil))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), CodeStateTransition)
	})
}
