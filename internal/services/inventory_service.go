package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/pkg/daterange"
)

// InventoryStore is the persistence the inventory service needs
type InventoryStore interface {
	InitializeRange(ctx context.Context, tourID uuid.UUID, dates []time.Time, slots int, hotel, transport bool) (int, int, error)
	Upsert(ctx context.Context, tourID uuid.UUID, date models.Date, slots int, hotel, transport bool) (*models.InventoryRecord, error)
	GetByTourAndDate(ctx context.Context, tourID uuid.UUID, date models.Date) (*models.InventoryRecord, error)
	ListByTour(ctx context.Context, tourID uuid.UUID) ([]models.InventoryRecord, error)
	ListRange(ctx context.Context, tourID uuid.UUID, start, end models.Date) ([]models.InventoryRecord, error)
	Delete(ctx context.Context, tourID uuid.UUID, date models.Date) error
	Reserve(ctx context.Context, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.InventoryReservation, int, bool, error)
	Release(ctx context.Context, bookingID uuid.UUID) (bool, int, error)
}

// InventoryService owns per-date tour capacity
type InventoryService struct {
	store  InventoryStore
	logger *logrus.Logger
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(store InventoryStore, logger *logrus.Logger) *InventoryService {
	return &InventoryService{store: store, logger: logger}
}

// rangeOptions validates a preview request and turns it into generator options
func rangeOptions(req *models.PreviewRangeRequest) (daterange.Options, error) {
	start, err := daterange.ParseDate(req.StartDate)
	if err != nil {
		return daterange.Options{}, models.NewValidationError("start_date", "must be YYYY-MM-DD")
	}
	end, err := daterange.ParseDate(req.EndDate)
	if err != nil {
		return daterange.Options{}, models.NewValidationError("end_date", "must be YYYY-MM-DD")
	}
	if daterange.SpanDays(start, end) > daterange.MaxSpanDays {
		return daterange.Options{}, models.NewValidationError("end_date", fmt.Sprintf("range may not exceed %d days", daterange.MaxSpanDays))
	}

	weekdays, err := daterange.ParseWeekdays(req.SkipDays)
	if err != nil {
		return daterange.Options{}, models.NewValidationError("skip_days", err.Error())
	}
	skipDates, err := daterange.ParseDates(req.SkipDates)
	if err != nil {
		return daterange.Options{}, models.NewValidationError("skip_dates", err.Error())
	}

	return daterange.Options{
		Start:        start,
		End:          end,
		SkipWeekdays: weekdays,
		SkipWeekends: req.SkipWeekends,
		SkipDates:    skipDates,
	}, nil
}

// PreviewRange lists the dates a plan would create, without writing anything
func (s *InventoryService) PreviewRange(req *models.PreviewRangeRequest) (*models.PreviewRangeResponse, error) {
	opts, err := rangeOptions(req)
	if err != nil {
		return nil, err
	}

	result := daterange.Expand(opts)
	return &models.PreviewRangeResponse{
		Dates:         daterange.Format(result.Dates),
		Count:         len(result.Dates),
		ExcludedDates: daterange.Format(result.Excluded),
	}, nil
}

// InitializeRange creates a record per planned date. Dates that already exist keep their counters.
func (s *InventoryService) InitializeRange(ctx context.Context, tourID uuid.UUID, req *models.InitializeRangeRequest) (*models.InitializeRangeResponse, error) {
	if req.Slots < 0 {
		return nil, models.NewValidationError("slots", "must not be negative")
	}
	opts, err := rangeOptions(&req.PreviewRangeRequest)
	if err != nil {
		return nil, err
	}

	result := daterange.Expand(opts)
	created, skipped := 0, 0
	if len(result.Dates) > 0 {
		created, skipped, err = s.store.InitializeRange(ctx, tourID, result.Dates, req.Slots, req.HotelAvailable, req.TransportAvailable)
		if err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"tour_id":  tourID,
		"created":  created,
		"skipped":  skipped,
		"excluded": len(result.Excluded),
	}).Info("Inventory range initialized")

	return &models.InitializeRangeResponse{
		TourID:         tourID,
		CreatedRecords: created,
		SkippedRecords: skipped,
		ExcludedDates:  len(result.Excluded),
		Dates:          daterange.Format(result.Dates),
	}, nil
}

// UpdateInventory sets the capacity of one date, creating the record if needed
func (s *InventoryService) UpdateInventory(ctx context.Context, tourID uuid.UUID, date models.Date, req *models.UpdateInventoryRequest) (*models.InventoryRecord, error) {
	if req.Slots < 0 {
		return nil, models.NewValidationError("slots", "must not be negative")
	}

	record, err := s.store.Upsert(ctx, tourID, date, req.Slots, req.HotelAvailable, req.TransportAvailable)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tour_id":     tourID,
		"date":        date.String(),
		"slots_total": record.SlotsTotal,
		"slots_left":  record.SlotsLeft,
	}).Info("Inventory updated")

	return record, nil
}

// GetInventoryStatus returns every record of a tour in date order
func (s *InventoryService) GetInventoryStatus(ctx context.Context, tourID uuid.UUID) ([]models.InventoryRecord, error) {
	return s.store.ListByTour(ctx, tourID)
}

// GetAvailabilityRange returns the records within [start, end]
func (s *InventoryService) GetAvailabilityRange(ctx context.Context, tourID uuid.UUID, start, end models.Date) ([]models.InventoryRecord, error) {
	if start.After(end.Time) {
		return nil, models.NewValidationError("end_date", "must not be before start_date")
	}
	if daterange.SpanDays(start.Time, end.Time) > daterange.MaxSpanDays {
		return nil, models.NewValidationError("end_date", fmt.Sprintf("range may not exceed %d days", daterange.MaxSpanDays))
	}
	return s.store.ListRange(ctx, tourID, start, end)
}

// DeleteInventory removes a date that holds no active reservations
func (s *InventoryService) DeleteInventory(ctx context.Context, tourID uuid.UUID, date models.Date) error {
	if err := s.store.Delete(ctx, tourID, date); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"tour_id": tourID, "date": date.String()}).Info("Inventory date removed")
	return nil
}

// CheckAvailability is advisory; only Reserve decides
func (s *InventoryService) CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	if participants < 1 {
		return nil, models.NewValidationError("participants", "must be at least 1")
	}

	record, err := s.store.GetByTourAndDate(ctx, tourID, date)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &models.AvailabilityResponse{Available: false, Message: models.MsgNoInventory}, nil
	}

	res := &models.AvailabilityResponse{
		SlotsLeft:          record.SlotsLeft,
		HotelAvailable:     record.HotelAvailable,
		TransportAvailable: record.TransportAvailable,
	}
	if record.SlotsLeft < participants {
		res.Message = models.InsufficientSlotsMessage(record.SlotsLeft)
		return res, nil
	}

	res.Available = true
	res.Message = models.MsgAvailable
	return res, nil
}

// Reserve takes participants slots for a booking. Repeating the call for the
// same booking returns the original reservation.
func (s *InventoryService) Reserve(ctx context.Context, req *models.ReserveRequest) (*models.ReserveResponse, error) {
	if req.Participants < 1 {
		return nil, models.NewValidationError("participants", "must be at least 1")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, models.NewValidationError("date", "must be YYYY-MM-DD")
	}

	reservation, slotsLeft, replayed, err := s.store.Reserve(ctx, req.BookingID, req.TourID, date, req.Participants)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id":   req.BookingID,
			"tour_id":      req.TourID,
			"date":         req.Date,
			"participants": req.Participants,
		}).Warn("Reservation rejected")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": req.BookingID,
		"slots_left": slotsLeft,
		"replayed":   replayed,
	}).Info("Slots reserved")

	return &models.ReserveResponse{Reservation: reservation, SlotsLeft: slotsLeft, Replayed: replayed}, nil
}

// Release gives a booking's slots back once; later calls report released=false
func (s *InventoryService) Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error) {
	released, slotsLeft, err := s.store.Release(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"released":   released,
		"slots_left": slotsLeft,
	}).Info("Release processed")

	return &models.ReleaseResponse{BookingID: bookingID, Released: released, SlotsLeft: slotsLeft}, nil
}
