package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/internal/services"
)

// ReleaseControl exposes the release worker to operators
type ReleaseControl interface {
	RunOnce(ctx context.Context) (*services.RunSummary, error)
	GetStatus(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-only booking service endpoints
type AdminHandler struct {
	workflow BookingWorkflow
	releases ReleaseControl
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(workflow BookingWorkflow, releases ReleaseControl, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{workflow: workflow, releases: releases, logger: logger}
}

// ===================================================================
// RECONCILIATION
// ===================================================================

// ListReconciliation handles GET /api/v1/admin/reconciliation
// Returns bookings flagged for manual review and release jobs that ran out of attempts.
func (h *AdminHandler) ListReconciliation(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}

	view, err := h.workflow.ListReconciliation(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ResolveReconciliation handles POST /api/v1/admin/reconciliation/:id/resolve
func (h *AdminHandler) ResolveReconciliation(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.ResolveReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	booking, err := h.workflow.ResolveReconciliation(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"cancelled":  req.Cancel,
	}).Info("Reconciliation resolved")

	c.JSON(http.StatusOK, booking)
}

// CompleteBooking handles POST /api/v1/admin/bookings/:id/complete
func (h *AdminHandler) CompleteBooking(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.workflow.CompleteBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ===================================================================
// PAYMENT AUDIT
// ===================================================================

// ListPaymentEvents handles GET /api/v1/admin/payments/:id/events
func (h *AdminHandler) ListPaymentEvents(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	events, err := h.workflow.ListPaymentEvents(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_id": id, "events": events})
}

// ListAmountMismatches handles GET /api/v1/admin/payments/mismatches
func (h *AdminHandler) ListAmountMismatches(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}

	events, err := h.workflow.ListAmountMismatches(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// ===================================================================
// RELEASE WORKER
// ===================================================================

// ReleaseJobsStatus handles GET /api/v1/admin/release-jobs/status
func (h *AdminHandler) ReleaseJobsStatus(c *gin.Context) {
	status, err := h.releases.GetStatus(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// RunReleaseJobs handles POST /api/v1/admin/release-jobs/run
// Processes due jobs immediately instead of waiting for the schedule.
func (h *AdminHandler) RunReleaseJobs(c *gin.Context) {
	summary, err := h.releases.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
