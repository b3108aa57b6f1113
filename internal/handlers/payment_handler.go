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

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	workflow BookingWorkflow
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(workflow BookingWorkflow, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{workflow: workflow, logger: logger}
}

// ============================================================================
// PROCESS PAYMENT - POST /api/v1/payments
// ============================================================================

// ProcessPayment opens a pending payment for a booking
// @Summary Start a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays return the original payment"
// @Param request body models.ProcessPaymentRequest true "Payment request"
// @Success 201 {object} models.ProcessPaymentResponse
// @Failure 400 {object} ErrorResponse "Invalid method or amount mismatch"
// @Failure 409 {object} ErrorResponse "Booking cannot accept payment"
// @Security BearerAuth
// @Router /payments [post]
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.workflow.ProcessPayment(c.Request.Context(), actor, &req, idempotencyKey(c), utils.RequestMetadata(c))
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

// GetPayment returns one payment
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.workflow.GetPayment(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// ============================================================================
// COMPLETE PAYMENT - POST /api/v1/payments/:id/complete
// ============================================================================

// CompletePayment marks the payment completed and confirms the booking.
// Sold out answers 409 SOLD_OUT; an unreachable inventory service answers 503
// and the call may be retried; a rolled back confirmation answers 409 with the
// compensated payment and booking.
// @Router /payments/{id}/complete [post]
func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.workflow.CompletePayment(c.Request.Context(), actor, id, utils.RequestMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if resp.Outcome == models.OutcomeCompensated {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "booking_not_confirmed",
			"message": resp.Message,
			"code":    CodeCompensated,
			"outcome": resp.Outcome,
			"payment": resp.Payment,
			"booking": resp.Booking,
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// FailPayment records a declined payment; the booking stays open for another attempt
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	h.reasonAction(c, h.workflow.FailPayment)
}

// RefundPayment refunds a payment and cancels its booking (admin only)
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	h.reasonAction(c, h.workflow.RefundPayment)
}

type reasonActionFunc func(ctx context.Context, actor services.Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error)

func (h *PaymentHandler) reasonAction(c *gin.Context, action reasonActionFunc) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.PaymentReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	resp, err := action(c.Request.Context(), actor, id, req.Reason, utils.RequestMetadata(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
