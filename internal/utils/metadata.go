package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// RequestIDHeader carries the correlation id between services
const RequestIDHeader = "X-Request-ID"

// RequestMetadata collects client details for audit rows
func RequestMetadata(c *gin.Context) models.RequestMetadata {
	userAgent := GetUserAgent(c)
	device := ParseUserAgent(userAgent)

	return models.RequestMetadata{
		IPAddress:     GetRealIP(c),
		UserAgent:     userAgent,
		DeviceType:    device.DeviceType,
		CorrelationID: c.GetHeader(RequestIDHeader),
	}
}
