package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// CatalogClient reads tour prices from the external tour catalog
type CatalogClient struct {
	jsonClient
}

// NewCatalogClient creates a catalog client. The catalog is public, so no token is sent.
func NewCatalogClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *CatalogClient {
	return &CatalogClient{jsonClient: newJSONClient("catalog", baseURL, timeout, nil, "", logger)}
}

// GetTour returns the tour's current price and status
func (c *CatalogClient) GetTour(ctx context.Context, tourID uuid.UUID) (*models.TourInfo, error) {
	var tour models.TourInfo
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tours/%s", tourID), nil, &tour); err != nil {
		return nil, err
	}
	if !tour.Active {
		return nil, models.NewValidationError("tour_id", "tour is not open for booking")
	}
	return &tour, nil
}
