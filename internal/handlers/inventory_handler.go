package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// InventoryOperations is what the inventory endpoints need from the service layer
type InventoryOperations interface {
	PreviewRange(req *models.PreviewRangeRequest) (*models.PreviewRangeResponse, error)
	InitializeRange(ctx context.Context, tourID uuid.UUID, req *models.InitializeRangeRequest) (*models.InitializeRangeResponse, error)
	UpdateInventory(ctx context.Context, tourID uuid.UUID, date models.Date, req *models.UpdateInventoryRequest) (*models.InventoryRecord, error)
	GetInventoryStatus(ctx context.Context, tourID uuid.UUID) ([]models.InventoryRecord, error)
	GetAvailabilityRange(ctx context.Context, tourID uuid.UUID, start, end models.Date) ([]models.InventoryRecord, error)
	DeleteInventory(ctx context.Context, tourID uuid.UUID, date models.Date) error
	CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error)
	Reserve(ctx context.Context, req *models.ReserveRequest) (*models.ReserveResponse, error)
	Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error)
}

// InventoryHandler serves the inventory service API
type InventoryHandler struct {
	inventory InventoryOperations
	logger    *logrus.Logger
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventory InventoryOperations, logger *logrus.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, logger: logger}
}

// ============================================================================
// OPERATOR ENDPOINTS
// ============================================================================

// PreviewRange lists the dates a range plan would create, without writing anything
// @Summary Preview an inventory range
// @Tags Inventory
// @Accept json
// @Produce json
// @Param request body models.PreviewRangeRequest true "Range plan"
// @Success 200 {object} models.PreviewRangeResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /inventory/preview-range [post]
func (h *InventoryHandler) PreviewRange(c *gin.Context) {
	var req models.PreviewRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.inventory.PreviewRange(&req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// InitializeRange materializes a range plan for one tour
// @Summary Initialize tour inventory over a date range
// @Tags Inventory
// @Accept json
// @Produce json
// @Param tour_id path string true "Tour ID"
// @Param request body models.InitializeRangeRequest true "Range plan with capacity"
// @Success 201 {object} models.InitializeRangeResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /tours/{tour_id}/inventory/initialize-range [post]
func (h *InventoryHandler) InitializeRange(c *gin.Context) {
	tourID, ok := parseUUIDParam(c, "tour_id")
	if !ok {
		return
	}

	var req models.InitializeRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.inventory.InitializeRange(c.Request.Context(), tourID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// UpdateInventory sets the capacity of a single date
// @Router /tours/{tour_id}/inventory/{date} [put]
func (h *InventoryHandler) UpdateInventory(c *gin.Context) {
	tourID, ok := parseUUIDParam(c, "tour_id")
	if !ok {
		return
	}
	date, ok := parseDateParam(c, "date", c.Param("date"))
	if !ok {
		return
	}

	var req models.UpdateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	record, err := h.inventory.UpdateInventory(c.Request.Context(), tourID, date, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// DeleteInventory removes a date that has no active reservations
// @Router /tours/{tour_id}/inventory/{date} [delete]
func (h *InventoryHandler) DeleteInventory(c *gin.Context) {
	tourID, ok := parseUUIDParam(c, "tour_id")
	if !ok {
		return
	}
	date, ok := parseDateParam(c, "date", c.Param("date"))
	if !ok {
		return
	}

	if err := h.inventory.DeleteInventory(c.Request.Context(), tourID, date); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ============================================================================
// PUBLIC ENDPOINTS
// ============================================================================

// GetInventoryStatus returns every configured date of a tour
// @Router /tours/{tour_id}/inventory [get]
func (h *InventoryHandler) GetInventoryStatus(c *gin.Context) {
	tourID, ok := parseUUIDParam(c, "tour_id")
	if !ok {
		return
	}

	records, err := h.inventory.GetInventoryStatus(c.Request.Context(), tourID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tour_id": tourID, "inventory": records, "count": len(records)})
}

// GetAvailabilityRange returns the configured dates between start_date and end_date
// @Router /tours/{tour_id}/availability [get]
func (h *InventoryHandler) GetAvailabilityRange(c *gin.Context) {
	tourID, ok := parseUUIDParam(c, "tour_id")
	if !ok {
		return
	}
	start, ok := parseDateParam(c, "start_date", c.Query("start_date"))
	if !ok {
		return
	}
	end, ok := parseDateParam(c, "end_date", c.Query("end_date"))
	if !ok {
		return
	}

	records, err := h.inventory.GetAvailabilityRange(c.Request.Context(), tourID, start, end)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tour_id":      tourID,
		"start_date":   start,
		"end_date":     end,
		"availability": records,
	})
}

// CheckAvailability answers whether participants can still book a date
// @Router /tours/{tour_id}/availability/check [get]
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
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

	resp, err := h.inventory.CheckAvailability(c.Request.Context(), tourID, date, participants)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// SERVICE ENDPOINTS (booking service only)
// ============================================================================

// Reserve takes slots for a paid booking. Replays with the same booking_id return the original reservation.
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.inventory.Reserve(c.Request.Context(), &req)
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

// Release returns a booking's slots to the pool
func (h *InventoryHandler) Release(c *gin.Context) {
	bookingID, ok := parseUUIDParam(c, "booking_id")
	if !ok {
		return
	}

	resp, err := h.inventory.Release(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
