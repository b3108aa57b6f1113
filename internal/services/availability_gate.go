package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/clients"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// InventoryGateway is the booking service's view of the inventory service
type InventoryGateway interface {
	CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error)
	Reserve(ctx context.Context, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.ReserveResponse, error)
	Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error)
}

// AvailabilityGate answers availability questions without ever blocking a booking
// on inventory outages
type AvailabilityGate struct {
	inventory InventoryGateway
	logger    *logrus.Logger
}

// NewAvailabilityGate creates a new AvailabilityGate
func NewAvailabilityGate(inventory InventoryGateway, logger *logrus.Logger) *AvailabilityGate {
	return &AvailabilityGate{inventory: inventory, logger: logger}
}

// Check returns a degraded "unavailable" answer when the inventory service cannot be reached.
// Any other failure is returned as is.
func (g *AvailabilityGate) Check(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	if participants < 1 {
		return nil, models.NewValidationError("participants", "must be at least 1")
	}

	res, err := g.inventory.CheckAvailability(ctx, tourID, date, participants)
	if err == nil {
		return res, nil
	}
	if !clients.IsUnavailable(err) {
		return nil, err
	}

	g.logger.WithError(err).WithFields(logrus.Fields{
		"tour_id": tourID,
		"date":    date.String(),
	}).Warn("Availability check degraded")

	return &models.AvailabilityResponse{
		Available: false,
		Message:   models.MsgUnableToCheck,
		Degraded:  true,
	}, nil
}
