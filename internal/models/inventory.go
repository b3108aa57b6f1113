package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InventoryRecord tracks capacity for one (tour, date)
type InventoryRecord struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	TourID             uuid.UUID `json:"tour_id" db:"tour_id"`
	Date               Date      `json:"date" db:"date"`
	SlotsTotal         int       `json:"slots_total" db:"slots_total"`
	SlotsLeft          int       `json:"slots_left" db:"slots_left"`
	HotelAvailable     bool      `json:"hotel_available" db:"hotel_available"`
	TransportAvailable bool      `json:"transport_available" db:"transport_available"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Reserved returns the number of slots currently held by reservations
func (r *InventoryRecord) Reserved() int {
	return r.SlotsTotal - r.SlotsLeft
}

// ReservationStatus is the state of a per-booking reservation
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "reserved"
	ReservationReleased ReservationStatus = "released"
)

// InventoryReservation records the slots one booking consumed.
// Release flips it to released once, which is what keeps release idempotent.
type InventoryReservation struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	BookingID    uuid.UUID         `json:"booking_id" db:"booking_id"`
	TourID       uuid.UUID         `json:"tour_id" db:"tour_id"`
	Date         Date              `json:"date" db:"date"`
	Participants int               `json:"participants" db:"participants"`
	Status       ReservationStatus `json:"status" db:"status"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	ReleasedAt   *time.Time        `json:"released_at,omitempty" db:"released_at"`
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// PreviewRangeRequest is the body of a range preview
type PreviewRangeRequest struct {
	StartDate    string   `json:"start_date" binding:"required"`
	EndDate      string   `json:"end_date" binding:"required"`
	SkipDays     []int    `json:"skip_days,omitempty"`
	SkipWeekends bool     `json:"skip_weekends,omitempty"`
	SkipDates    []string `json:"skip_dates,omitempty"`
}

// PreviewRangeResponse lists the dates a plan would materialize
type PreviewRangeResponse struct {
	Dates         []string `json:"dates"`
	Count         int      `json:"count"`
	ExcludedDates []string `json:"excluded_dates"`
}

// InitializeRangeRequest materializes a plan for one tour
type InitializeRangeRequest struct {
	PreviewRangeRequest
	Slots              int  `json:"slots" binding:"gte=0"`
	HotelAvailable     bool `json:"hotel_available"`
	TransportAvailable bool `json:"transport_available"`
}

// InitializeRangeResponse reports how a plan was applied
type InitializeRangeResponse struct {
	TourID         uuid.UUID `json:"tour_id"`
	CreatedRecords int       `json:"created_records"`
	SkippedRecords int       `json:"skipped_records"`
	ExcludedDates  int       `json:"excluded_dates"`
	Dates          []string  `json:"dates"`
}

// UpdateInventoryRequest sets the capacity of one date
type UpdateInventoryRequest struct {
	Slots              int  `json:"slots" binding:"gte=0"`
	HotelAvailable     bool `json:"hotel_available"`
	TransportAvailable bool `json:"transport_available"`
}

// AvailabilityResponse answers "can this be booked"
type AvailabilityResponse struct {
	Available          bool   `json:"available"`
	Message            string `json:"message"`
	SlotsLeft          int    `json:"slots_left"`
	HotelAvailable     bool   `json:"hotel_available"`
	TransportAvailable bool   `json:"transport_available"`
	// Degraded is set when the inventory service could not be reached
	Degraded bool `json:"degraded,omitempty"`
}

// Availability messages
const (
	MsgNoInventory        = "no inventory configured for this date"
	MsgAvailable          = "slots available"
	MsgUnableToCheck      = "unable to check availability"
	msgInsufficientFormat = "only %d slots left"
)

// InsufficientSlotsMessage states how many slots remain
func InsufficientSlotsMessage(left int) string {
	if left <= 0 {
		return "no slots left for this date"
	}
	return fmt.Sprintf(msgInsufficientFormat, left)
}

// ReserveRequest is sent by the booking service after a payment completes
type ReserveRequest struct {
	BookingID    uuid.UUID `json:"booking_id" binding:"required"`
	TourID       uuid.UUID `json:"tour_id" binding:"required"`
	Date         string    `json:"date" binding:"required"`
	Participants int       `json:"participants" binding:"required,min=1"`
}

// ReserveResponse wraps the reservation, flagging replays
type ReserveResponse struct {
	Reservation *InventoryReservation `json:"reservation"`
	SlotsLeft   int                   `json:"slots_left"`
	Replayed    bool                  `json:"replayed"`
}

// ReleaseResponse reports whether this call returned slots to the pool
type ReleaseResponse struct {
	BookingID uuid.UUID `json:"booking_id"`
	Released  bool      `json:"released"`
	SlotsLeft int       `json:"slots_left,omitempty"`
}
