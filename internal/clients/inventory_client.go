package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// InventoryClient calls the inventory service over HTTP
type InventoryClient struct {
	jsonClient
}

// NewInventoryClient creates a client with a bounded per-call timeout
func NewInventoryClient(baseURL string, timeout time.Duration, tokens TokenSource, callerName string, logger *logrus.Logger) *InventoryClient {
	return &InventoryClient{jsonClient: newJSONClient("inventory", baseURL, timeout, tokens, callerName, logger)}
}

// CheckAvailability asks whether participants slots are free on date
func (c *InventoryClient) CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	q := url.Values{}
	q.Set("date", date.String())
	q.Set("participants", strconv.Itoa(participants))
	path := fmt.Sprintf("/api/v1/tours/%s/availability/check?%s", tourID, q.Encode())

	var out models.AvailabilityResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reserve decrements the booking's slots. Safe to retry for the same booking.
func (c *InventoryClient) Reserve(ctx context.Context, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.ReserveResponse, error) {
	body := models.ReserveRequest{
		BookingID:    bookingID,
		TourID:       tourID,
		Date:         date.String(),
		Participants: participants,
	}

	var out models.ReserveResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/inventory/reservations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Release returns the booking's slots. Safe to call more than once.
func (c *InventoryClient) Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error) {
	path := fmt.Sprintf("/api/v1/inventory/reservations/%s/release", bookingID)

	var out models.ReleaseResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
