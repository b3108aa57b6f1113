package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/internal/services"
	"github.com/voyagehub/tour-booking-backend/internal/utils"
)

// BookingWorkflow is the booking service's use-case surface
type BookingWorkflow interface {
	CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error)
	CalculateCost(ctx context.Context, req *models.CalculateCostRequest) (*models.CostResponse, error)
	StartBooking(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest, idempotencyKey *string) (*models.CreateBookingResponse, error)
	GetBooking(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
	ListBookingPayments(ctx context.Context, actor services.Actor, bookingID uuid.UUID) ([]models.Payment, error)
	CancelBooking(ctx context.Context, actor services.Actor, bookingID uuid.UUID, reason *string, meta models.RequestMetadata) (*models.CancelBookingResponse, error)
	CompleteBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)

	ProcessPayment(ctx context.Context, actor services.Actor, req *models.ProcessPaymentRequest, idempotencyKey *string, meta models.RequestMetadata) (*models.ProcessPaymentResponse, error)
	GetPayment(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Payment, error)
	CompletePayment(ctx context.Context, actor services.Actor, paymentID uuid.UUID, meta models.RequestMetadata) (*models.CompletePaymentResponse, error)
	FailPayment(ctx context.Context, actor services.Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error)
	RefundPayment(ctx context.Context, actor services.Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error)

	ListPaymentEvents(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error)
	ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentEvent, error)
	ListReconciliation(ctx context.Context, limit int) (*models.ReconciliationView, error)
	ResolveReconciliation(ctx context.Context, bookingID uuid.UUID, req *models.ResolveReconciliationRequest) (*models.Booking, error)
}

const maxPageSize = 100

// BookingHandler handles tour booking endpoints
type BookingHandler struct {
	workflow BookingWorkflow
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(workflow BookingWorkflow, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{workflow: workflow, logger: logger}
}

// CheckAvailability proxies the inventory check. An unreachable inventory service
// yields available=false with degraded=true instead of an error.
// @Router /tours/{tour_id}/availability/check [get]
func (h *BookingHandler) CheckAvailability(c *gin.Context) {
	tourID, ok := parseUUIDParam(c, "tour_id")
	if !ok {
		return
	}
	date, ok := parseDateParam(c, "date", c.Query("date"))
	if !ok {
		return
	}
	participants, ok := queryInt(c, "participants", 1)
	if !ok {
		return
	}

	resp, err := h.workflow.CheckAvailability(c.Request.Context(), tourID, date, participants)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CalculateCost prices a booking without creating it
// @Summary Calculate booking cost
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CalculateCostRequest true "Tour, date and participants"
// @Success 200 {object} models.CostResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse "Tour not found"
// @Router /bookings/cost [post]
func (h *BookingHandler) CalculateCost(c *gin.Context) {
	var req models.CalculateCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.workflow.CalculateCost(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateBooking opens a PENDING booking for the caller
// @Summary Create a tour booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays return the original booking"
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.CreateBookingResponse
// @Success 200 {object} models.CreateBookingResponse "Replayed"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Not enough slots"
// @Security BearerAuth
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.workflow.StartBooking(c.Request.Context(), actor.UserID, &req, idempotencyKey(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// ListBookings returns the caller's bookings, newest first
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := h.workflow.ListBookings(c.Request.Context(), actor.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings), "limit": limit, "offset": offset})
}

// GetBooking returns one booking owned by the caller
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.workflow.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ListBookingPayments returns every payment attempt for a booking
func (h *BookingHandler) ListBookingPayments(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payments, err := h.workflow.ListBookingPayments(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking_id": id, "payments": payments})
}

// CancelBooking cancels a PENDING or CONFIRMED booking.
// Reserved slots are returned asynchronously by the release worker.
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	// Body is optional
	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	resp, err := h.workflow.CancelBooking(c.Request.Context(), actor, id, req.Reason, utils.RequestMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
