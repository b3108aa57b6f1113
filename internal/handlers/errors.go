package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/middleware"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/internal/services"
)

// Error codes returned in the JSON body
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeCapacity        = "INSUFFICIENT_CAPACITY"
	CodeStateTransition = "INVALID_STATE_TRANSITION"
	CodeForbidden       = "FORBIDDEN"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeSoldOut         = "SOLD_OUT"
	CodeCompensated     = "BOOKING_NOT_CONFIRMED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondError maps a typed service error to its HTTP status and writes the body
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		vErr     *models.ValidationError
		nfErr    *models.NotFoundError
		capErr   *models.CapacityError
		stErr    *models.StateTransitionError
		fbErr    *models.ForbiddenError
		unavErr  *models.ServiceUnavailableError
		reconErr *models.ReconciliationError
	)

	switch {
	case errors.As(err, &vErr):
		resp := ErrorResponse{Error: "validation_error", Message: vErr.Error(), Code: CodeValidation}
		if vErr.Field != "" {
			resp.Details = map[string]interface{}{"field": vErr.Field}
		}
		c.JSON(http.StatusBadRequest, resp)
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: nfErr.Error(), Code: CodeNotFound})
	case errors.As(err, &capErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "insufficient_capacity",
			Message: capErr.Error(),
			Code:    CodeCapacity,
			Details: map[string]interface{}{
				"requested": capErr.Requested,
				"remaining": capErr.Remaining,
			},
		})
	case errors.As(err, &stErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_state_transition",
			Message: stErr.Error(),
			Code:    CodeStateTransition,
			Details: map[string]interface{}{"entity": stErr.Entity, "from": stErr.From, "to": stErr.To},
		})
	case errors.As(err, &fbErr):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: fbErr.Error(), Code: CodeForbidden})
	case errors.As(err, &unavErr):
		logger.WithError(err).WithField("service", unavErr.Service).Warn("Downstream service unavailable")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_unavailable",
			Message: unavErr.Service + " is temporarily unavailable, please retry",
			Code:    CodeUnavailable,
		})
	case errors.As(err, &reconErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "sold_out",
			Message: "payment received but the tour date sold out; the booking is under review",
			Code:    CodeSoldOut,
			Details: map[string]interface{}{
				"booking_id": reconErr.BookingID,
				"payment_id": reconErr.PaymentID,
				"reason":     reconErr.Reason,
			},
		})
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An unexpected error occurred",
			Code:    CodeInternal,
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: message, Code: CodeValidation})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseDateParam(c *gin.Context, name, value string) (models.Date, bool) {
	date, err := models.ParseDate(value)
	if err != nil {
		badRequest(c, name+" must be YYYY-MM-DD")
		return models.Date{}, false
	}
	return date, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// actorFrom builds the caller identity used for ownership checks
func actorFrom(c *gin.Context) (services.Actor, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "user not authenticated", Code: CodeUnauthorized})
		return services.Actor{}, false
	}
	return services.Actor{UserID: userCtx.UserID, Admin: userCtx.IsAdmin()}, true
}

func idempotencyKey(c *gin.Context) *string {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		return nil
	}
	return &key
}
