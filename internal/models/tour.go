package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TourInfo is the catalog's view of a tour, used for pricing
type TourInfo struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Active   bool            `json:"active"`
}
