package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/clients"
	"github.com/voyagehub/tour-booking-backend/internal/database"
	"github.com/voyagehub/tour-booking-backend/internal/models"
	"github.com/voyagehub/tour-booking-backend/pkg/pricing"
)

var errPaymentCompletedElsewhere = errors.New("payment completed by another request")

// BookingStore is the booking persistence the saga needs
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
	ListReconciliation(ctx context.Context, limit int) ([]models.Booking, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, to models.BookingPaymentStatus) (*models.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, *models.ReleaseJob, error)
	RecordSoldOut(ctx context.Context, bookingID, paymentID uuid.UUID, reason string) (*models.Booking, *models.Payment, error)
	FlagReconciliation(ctx context.Context, id uuid.UUID, reason string) error
	ResolveReconciliation(ctx context.Context, id uuid.UUID, note string) (*models.Booking, error)
}

// PaymentStore is the payment persistence the saga needs
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Payment, error)
	GetPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error)
}

// PaymentEventStore is the payment audit trail
type PaymentEventStore interface {
	Log(ctx context.Context, event *models.PaymentEvent) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error)
	ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentEvent, error)
}

// TourCatalog prices tours
type TourCatalog interface {
	GetTour(ctx context.Context, tourID uuid.UUID) (*models.TourInfo, error)
}

// ReleaseScheduler hands slot releases to the background worker
type ReleaseScheduler interface {
	Nudge()
	Enqueue(ctx context.Context, bookingID uuid.UUID, reason string) error
	ListFailed(ctx context.Context, limit int) ([]models.ReleaseJob, error)
}

// Actor is the authenticated caller
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

func (a Actor) canAccess(owner uuid.UUID) bool {
	return a.Admin || a.UserID == owner
}

// BookingSagaConfig holds configuration for the saga
type BookingSagaConfig struct {
	Currency        string
	MaxParticipants int
}

// BookingSaga coordinates booking, payment and inventory in the order
// check → price → book → pay → reserve → confirm
type BookingSaga struct {
	bookings  BookingStore
	payments  PaymentStore
	events    PaymentEventStore
	gate      *AvailabilityGate
	inventory InventoryGateway
	catalog   TourCatalog
	releases  ReleaseScheduler
	config    BookingSagaConfig
	logger    *logrus.Logger
}

// NewBookingSaga creates a new BookingSaga
func NewBookingSaga(
	bookings BookingStore,
	payments PaymentStore,
	events PaymentEventStore,
	inventory InventoryGateway,
	catalog TourCatalog,
	releases ReleaseScheduler,
	config BookingSagaConfig,
	logger *logrus.Logger,
) *BookingSaga {
	return &BookingSaga{
		bookings:  bookings,
		payments:  payments,
		events:    events,
		gate:      NewAvailabilityGate(inventory, logger),
		inventory: inventory,
		catalog:   catalog,
		releases:  releases,
		config:    config,
		logger:    logger,
	}
}

// ============================================================================
// AVAILABILITY & COST
// ============================================================================

// CheckAvailability is the fail-soft advisory check
func (s *BookingSaga) CheckAvailability(ctx context.Context, tourID uuid.UUID, date models.Date, participants int) (*models.AvailabilityResponse, error) {
	return s.gate.Check(ctx, tourID, date, participants)
}

func (s *BookingSaga) validateParticipants(participants int) error {
	if participants < 1 {
		return models.NewValidationError("participants", "must be at least 1")
	}
	if s.config.MaxParticipants > 0 && participants > s.config.MaxParticipants {
		return models.NewValidationError("participants", fmt.Sprintf("must not exceed %d", s.config.MaxParticipants))
	}
	return nil
}

func parseDepartureDate(value string) (models.Date, error) {
	date, err := models.ParseDate(value)
	if err != nil {
		return models.Date{}, models.NewValidationError("departure_date", "must be YYYY-MM-DD")
	}
	if date.Before(models.NewDate(time.Now()).Time) {
		return models.Date{}, models.NewValidationError("departure_date", "must not be in the past")
	}
	return date, nil
}

func (s *BookingSaga) quote(ctx context.Context, tourID uuid.UUID, participants int) (*models.TourInfo, *pricing.Quote, error) {
	tour, err := s.catalog.GetTour(ctx, tourID)
	if err != nil {
		return nil, nil, err
	}

	quote, err := pricing.Calculate(tour.Price, participants)
	if err != nil {
		return nil, nil, models.NewValidationError("participants", err.Error())
	}
	return tour, quote, nil
}

func (s *BookingSaga) currencyFor(tour *models.TourInfo) string {
	if tour.Currency != "" {
		return tour.Currency
	}
	return s.config.Currency
}

// CalculateCost prices a party without writing anything
func (s *BookingSaga) CalculateCost(ctx context.Context, req *models.CalculateCostRequest) (*models.CostResponse, error) {
	if err := s.validateParticipants(req.Participants); err != nil {
		return nil, err
	}
	date, err := parseDepartureDate(req.DepartureDate)
	if err != nil {
		return nil, err
	}

	tour, quote, err := s.quote(ctx, req.TourID, req.Participants)
	if err != nil {
		return nil, err
	}

	return &models.CostResponse{
		TourID:        req.TourID,
		DepartureDate: date.String(),
		Participants:  req.Participants,
		UnitPrice:     quote.UnitPrice,
		Currency:      s.currencyFor(tour),
		TotalCost:     quote.TotalCost,
		Breakdown:     quote.Breakdown,
	}, nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

// StartBooking checks availability, prices the party and opens a PENDING booking.
// An inventory outage does not block the booking; the reserve after payment decides.
func (s *BookingSaga) StartBooking(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest, idempotencyKey *string) (*models.CreateBookingResponse, error) {
	if idempotencyKey != nil && *idempotencyKey != "" {
		existing, err := s.bookings.GetByIdempotencyKey(ctx, userID, *idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			return &models.CreateBookingResponse{Booking: existing, Replayed: true}, nil
		}
	} else {
		idempotencyKey = nil
	}

	if err := s.validateParticipants(req.Participants); err != nil {
		return nil, err
	}
	date, err := parseDepartureDate(req.DepartureDate)
	if err != nil {
		return nil, err
	}

	// 1. Advisory availability check
	availability, err := s.gate.Check(ctx, req.TourID, date, req.Participants)
	if err != nil {
		return nil, err
	}
	if !availability.Available && !availability.Degraded {
		return nil, &models.CapacityError{
			TourID:    req.TourID,
			Date:      date,
			Requested: req.Participants,
			Remaining: availability.SlotsLeft,
		}
	}

	// 2. Price
	tour, quote, err := s.quote(ctx, req.TourID, req.Participants)
	if err != nil {
		return nil, err
	}

	// 3. Create
	booking := &models.Booking{
		ID:             uuid.New(),
		UserID:         userID,
		TourID:         req.TourID,
		DepartureDate:  date,
		Participants:   req.Participants,
		UnitPrice:      quote.UnitPrice,
		TotalCost:      quote.TotalCost,
		Currency:       s.currencyFor(tour),
		CostBreakdown:  models.CostBreakdown(quote.Breakdown),
		Notes:          req.Notes,
		BookingDate:    time.Now(),
		Status:         models.BookingStatusPending,
		PaymentStatus:  models.BookingPaymentPending,
		IdempotencyKey: idempotencyKey,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		if errors.Is(err, database.ErrDuplicate) && idempotencyKey != nil {
			existing, getErr := s.bookings.GetByIdempotencyKey(ctx, userID, *idempotencyKey)
			if getErr == nil && existing != nil {
				return &models.CreateBookingResponse{Booking: existing, Replayed: true}, nil
			}
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"user_id":      userID,
		"tour_id":      booking.TourID,
		"date":         date.String(),
		"participants": booking.Participants,
		"total_cost":   booking.TotalCost.String(),
		"degraded":     availability.Degraded,
	}).Info("Booking created")

	return &models.CreateBookingResponse{Booking: booking, Availability: availability}, nil
}

func (s *BookingSaga) loadBooking(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFoundError("booking", id.String())
	}
	if !actor.canAccess(booking.UserID) {
		return nil, &models.ForbiddenError{Message: "booking belongs to another user"}
	}
	return booking, nil
}

// GetBooking returns a booking the actor may see
func (s *BookingSaga) GetBooking(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error) {
	return s.loadBooking(ctx, actor, id)
}

// ListBookings returns the user's bookings, newest first
func (s *BookingSaga) ListBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	return s.bookings.ListByUser(ctx, userID, limit, offset)
}

// ListBookingPayments returns every payment attempt of a booking
func (s *BookingSaga) ListBookingPayments(ctx context.Context, actor Actor, bookingID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.loadBooking(ctx, actor, bookingID); err != nil {
		return nil, err
	}
	return s.payments.ListByBooking(ctx, bookingID)
}

// CancelBooking is accepted whatever the state of the inventory service.
// Held slots are returned by the release worker.
func (s *BookingSaga) CancelBooking(ctx context.Context, actor Actor, bookingID uuid.UUID, reason *string, meta models.RequestMetadata) (*models.CancelBookingResponse, error) {
	if _, err := s.loadBooking(ctx, actor, bookingID); err != nil {
		return nil, err
	}

	why := models.DefaultCancellationReason
	if reason != nil && *reason != "" {
		why = *reason
	}

	booking, job, err := s.bookings.Cancel(ctx, bookingID, why)
	if err != nil {
		return nil, err
	}

	if job != nil {
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReleaseScheduled, sourceFor(actor)).
			SetBooking(bookingID).
			SetDetails(map[string]interface{}{"release_job_id": job.ID.String(), "reason": why}).
			SetMetadata(meta))
		s.releases.Nudge()
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":        bookingID,
		"reason":            why,
		"release_scheduled": job != nil,
	}).Info("Booking cancelled")

	return &models.CancelBookingResponse{Booking: booking, ReleaseScheduled: job != nil}, nil
}

// CompleteBooking marks a CONFIRMED booking as travelled
func (s *BookingSaga) CompleteBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.MarkCompleted(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("booking_id", bookingID).Info("Booking completed")
	return booking, nil
}

// ============================================================================
// PAYMENTS
// ============================================================================

// ProcessPayment opens a pending payment for the booking's exact total
func (s *BookingSaga) ProcessPayment(ctx context.Context, actor Actor, req *models.ProcessPaymentRequest, idempotencyKey *string, meta models.RequestMetadata) (*models.ProcessPaymentResponse, error) {
	if !req.Method.IsValid() {
		return nil, models.NewValidationError("method", "unsupported payment method")
	}

	if idempotencyKey != nil && *idempotencyKey != "" {
		existing, err := s.payments.GetByIdempotencyKey(ctx, actor.UserID, *idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReplayed, models.PaymentSourceUser).SetPayment(existing).SetMetadata(meta))
			return &models.ProcessPaymentResponse{Payment: existing, Replayed: true}, nil
		}
	} else {
		idempotencyKey = nil
	}

	booking, err := s.loadBooking(ctx, actor, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.CanAcceptPayment() {
		return nil, &models.StateTransitionError{
			Entity: "booking",
			From:   fmt.Sprintf("%s/%s", booking.Status, booking.PaymentStatus),
			To:     "payment",
		}
	}

	amount := booking.TotalCost
	if req.Amount != nil && !req.Amount.IsZero() {
		amount = *req.Amount
	}

	check := models.NewPaymentEvent(models.PaymentEventAmountMismatch, models.PaymentSourceUser).
		SetBooking(booking.ID).
		SetMetadata(meta)
	if !check.SetAmounts(booking.TotalCost, amount, booking.Currency) {
		s.audit(ctx, check.SetError("amount does not match booking total", "AMOUNT_MISMATCH"))
		return nil, models.NewValidationError("amount", fmt.Sprintf("must equal the booking total of %s", booking.TotalCost.String()))
	}

	if pending, err := s.payments.GetPendingByBooking(ctx, booking.ID); err != nil {
		return nil, err
	} else if pending != nil {
		return s.replayPending(ctx, pending, amount, meta)
	}

	now := time.Now()
	paymentID := uuid.New()
	payment := &models.Payment{
		ID:             paymentID,
		BookingID:      booking.ID,
		UserID:         booking.UserID,
		Amount:         amount,
		Currency:       booking.Currency,
		Method:         req.Method,
		InvoiceNumber:  models.GenerateInvoiceNumber(paymentID, now),
		Status:         models.PaymentStatusPending,
		IdempotencyKey: idempotencyKey,
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
		// Lost a race with another request for the same booking or key
		if idempotencyKey != nil {
			if existing, getErr := s.payments.GetByIdempotencyKey(ctx, actor.UserID, *idempotencyKey); getErr == nil && existing != nil {
				return &models.ProcessPaymentResponse{Payment: existing, Replayed: true}, nil
			}
		}
		pending, getErr := s.payments.GetPendingByBooking(ctx, booking.ID)
		if getErr != nil {
			return nil, getErr
		}
		if pending == nil {
			return nil, &models.StateTransitionError{Entity: "payment", From: "conflict", To: string(models.PaymentStatusPending)}
		}
		return s.replayPending(ctx, pending, amount, meta)
	}

	event := models.NewPaymentEvent(models.PaymentEventCreated, models.PaymentSourceUser).SetPayment(payment).SetMetadata(meta)
	event.SetAmounts(booking.TotalCost, amount, booking.Currency)
	s.audit(ctx, event)

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": booking.ID,
		"invoice":    payment.InvoiceNumber,
		"amount":     amount.String(),
		"method":     payment.Method,
	}).Info("Payment created")

	return &models.ProcessPaymentResponse{Payment: payment, Replayed: false}, nil
}

func (s *BookingSaga) replayPending(ctx context.Context, pending *models.Payment, amount decimal.Decimal, meta models.RequestMetadata) (*models.ProcessPaymentResponse, error) {
	if !pending.Amount.Equal(amount) {
		return nil, &models.StateTransitionError{Entity: "payment", From: string(models.PaymentStatusPending), To: string(models.PaymentStatusPending)}
	}
	s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReplayed, models.PaymentSourceUser).SetPayment(pending).SetMetadata(meta))
	return &models.ProcessPaymentResponse{Payment: pending, Replayed: true}, nil
}

func (s *BookingSaga) loadPayment(ctx context.Context, actor Actor, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, models.NewNotFoundError("payment", id.String())
	}
	if !actor.canAccess(payment.UserID) {
		return nil, &models.ForbiddenError{Message: "payment belongs to another user"}
	}
	return payment, nil
}

// GetPayment returns a payment the actor may see
func (s *BookingSaga) GetPayment(ctx context.Context, actor Actor, id uuid.UUID) (*models.Payment, error) {
	return s.loadPayment(ctx, actor, id)
}

// CompletePayment captures a pending payment and converts the booking's claim
// into held slots. The reserve is authoritative; losing the race for the last
// slots is an expected outcome, not a failure of the system.
func (s *BookingSaga) CompletePayment(ctx context.Context, actor Actor, paymentID uuid.UUID, meta models.RequestMetadata) (*models.CompletePaymentResponse, error) {
	payment, err := s.loadPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFoundError("booking", payment.BookingID.String())
	}

	switch payment.Status {
	case models.PaymentStatusCompleted:
		return &models.CompletePaymentResponse{
			Outcome: models.OutcomeConfirmed,
			Payment: payment,
			Booking: booking,
			Message: "payment already completed",
		}, nil
	case models.PaymentStatusPending:
	default:
		return nil, &models.StateTransitionError{Entity: "payment", From: string(payment.Status), To: string(models.PaymentStatusCompleted)}
	}
	if booking.Status != models.BookingStatusPending {
		return nil, &models.StateTransitionError{Entity: "booking", From: string(booking.Status), To: string(models.BookingStatusConfirmed)}
	}

	source := sourceFor(actor)
	var (
		completed *models.Payment
		confirmed *models.Booking
	)

	saga := NewSaga("complete_payment", s.logger,
		SagaStep{
			Name: "verify_availability",
			Action: func(ctx context.Context) error {
				res, err := s.gate.Check(ctx, booking.TourID, booking.DepartureDate, booking.Participants)
				if err != nil {
					s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Availability re-check failed, relying on reserve")
					return nil
				}
				// Advisory only. A retry after a lost reserve response sees its own
				// slots as taken, so only the reserve decides sold out.
				if !res.Available && !res.Degraded {
					s.logger.WithFields(logrus.Fields{
						"booking_id": booking.ID,
						"slots_left": res.SlotsLeft,
					}).Info("Re-check shows too few slots, deferring to reserve")
				}
				return nil
			},
		},
		SagaStep{
			Name: "reserve_inventory",
			Action: func(ctx context.Context) error {
				_, err := s.inventory.Reserve(ctx, booking.ID, booking.TourID, booking.DepartureDate, booking.Participants)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return s.releaseNow(ctx, booking.ID, "payment saga compensation")
			},
		},
		SagaStep{
			Name: "complete_payment",
			Action: func(ctx context.Context) error {
				p, err := s.payments.MarkCompleted(ctx, payment.ID)
				if err == nil {
					completed = p
					return nil
				}
				// A concurrent completion owns the reservation and is confirming it
				var stErr *models.StateTransitionError
				if errors.As(err, &stErr) {
					current, gerr := s.payments.GetByID(ctx, payment.ID)
					if gerr == nil && current != nil && current.Status == models.PaymentStatusCompleted {
						completed = current
						return Halt(errPaymentCompletedElsewhere)
					}
				}
				return err
			},
			Compensate: func(ctx context.Context) error {
				refunded, err := s.payments.MarkRefunded(ctx, payment.ID, "booking could not be confirmed")
				if err != nil {
					return err
				}
				s.audit(ctx, models.NewPaymentEvent(models.PaymentEventRefunded, models.PaymentSourceSaga).SetPayment(refunded))
				return nil
			},
		},
		SagaStep{
			Name: "confirm_booking",
			Action: func(ctx context.Context) error {
				b, err := s.bookings.MarkConfirmed(ctx, booking.ID)
				confirmed = b
				return err
			},
		},
	)

	result := saga.Run(ctx)
	log := s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": booking.ID,
	})

	if result.Halted {
		log.Info("Payment completed by a concurrent request")
		latest, err := s.bookings.GetByID(ctx, booking.ID)
		if err != nil || latest == nil {
			latest = booking
		}
		return &models.CompletePaymentResponse{
			Outcome: models.OutcomeConfirmed,
			Payment: completed,
			Booking: latest,
			Message: "payment already completed",
		}, nil
	}

	if result.Succeeded() {
		result.Outcome = string(models.OutcomeConfirmed)
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventCompleted, source).SetPayment(completed).SetMetadata(meta))
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventBookingConfirmed, models.PaymentSourceSaga).SetPayment(completed))
		log.Info("Booking confirmed")
		return &models.CompletePaymentResponse{Outcome: models.OutcomeConfirmed, Payment: completed, Booking: confirmed}, nil
	}

	var (
		capErr *models.CapacityError
		nfErr  *models.NotFoundError
	)
	switch {
	case result.FailedStep == "reserve_inventory":
		if errors.As(result.Err, &capErr) || errors.As(result.Err, &nfErr) {
			result.Outcome = string(models.OutcomeSoldOut)
			return s.recordSoldOut(ctx, booking, payment, result.Err, meta)
		}
		if clients.IsUnavailable(result.Err) {
			result.Outcome = string(models.OutcomeRetryable)
			s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReserveUnavailable, models.PaymentSourceSaga).
				SetPayment(payment).
				SetError(result.Err.Error(), "SERVICE_UNAVAILABLE"))
			log.WithError(result.Err).Warn("Reserve unavailable, payment left pending for retry")
			return nil, result.Err
		}
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReserveFailed, models.PaymentSourceSaga).
			SetPayment(payment).
			SetError(result.Err.Error(), ""))
		return nil, result.Err
	}

	// Payment capture or confirmation failed after slots were taken
	result.Outcome = string(models.OutcomeCompensated)
	s.audit(ctx, models.NewPaymentEvent(models.PaymentEventBookingConfirmFailed, models.PaymentSourceSaga).
		SetPayment(payment).
		SetError(result.Err.Error(), "").
		SetDetails(map[string]interface{}{"failed_step": result.FailedStep, "compensated": result.Compensated}))

	if len(result.CompensationErrors) > 0 {
		if err := s.bookings.FlagReconciliation(ctx, booking.ID, models.ReconciliationRefundRequired); err != nil {
			log.WithError(err).Error("Failed to flag booking for reconciliation")
		}
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReconciliationRequired, models.PaymentSourceSaga).
			SetPayment(payment).
			SetDetails(map[string]interface{}{"reason": models.ReconciliationRefundRequired}))
	}

	log.WithError(result.Err).WithField("failed_step", result.FailedStep).Warn("Payment saga compensated")

	current, err := s.payments.GetByID(ctx, payment.ID)
	if err != nil || current == nil {
		current = payment
	}
	latest, err := s.bookings.GetByID(ctx, booking.ID)
	if err != nil || latest == nil {
		latest = booking
	}

	return &models.CompletePaymentResponse{
		Outcome: models.OutcomeCompensated,
		Payment: current,
		Booking: latest,
		Message: result.Err.Error(),
	}, nil
}

func (s *BookingSaga) recordSoldOut(ctx context.Context, booking *models.Booking, payment *models.Payment, cause error, meta models.RequestMetadata) (*models.CompletePaymentResponse, error) {
	s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReserveFailed, models.PaymentSourceSaga).
		SetPayment(payment).
		SetError(cause.Error(), "INSUFFICIENT_CAPACITY"))

	flagged, failed, err := s.bookings.RecordSoldOut(ctx, booking.ID, payment.ID, models.ReconciliationSoldOut)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReconciliationRequired, models.PaymentSourceSaga).
		SetPayment(failed).
		SetDetails(map[string]interface{}{"reason": models.ReconciliationSoldOut}).
		SetMetadata(meta))

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": booking.ID,
	}).Warn("Sold out after payment, booking flagged for review")

	return &models.CompletePaymentResponse{
			Outcome: models.OutcomeSoldOut,
			Payment: failed,
			Booking: flagged,
			Message: cause.Error(),
		}, &models.ReconciliationError{
			BookingID: booking.ID,
			PaymentID: payment.ID,
			Reason:    models.ReconciliationSoldOut,
		}
}

// releaseNow tries the inventory service directly and falls back to the release queue
func (s *BookingSaga) releaseNow(ctx context.Context, bookingID uuid.UUID, reason string) error {
	_, err := s.inventory.Release(ctx, bookingID)
	if err == nil {
		return nil
	}
	s.logger.WithError(err).WithField("booking_id", bookingID).Warn("Immediate release failed, queueing")
	return s.releases.Enqueue(ctx, bookingID, reason)
}

// FailPayment records a declined payment. The booking stays PENDING so the
// customer can pay again.
func (s *BookingSaga) FailPayment(ctx context.Context, actor Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error) {
	if _, err := s.loadPayment(ctx, actor, paymentID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "payment declined"
	}

	failed, err := s.payments.MarkFailed(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.SetPaymentStatus(ctx, failed.BookingID, models.BookingPaymentFailed)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, models.NewPaymentEvent(models.PaymentEventFailed, sourceFor(actor)).
		SetPayment(failed).
		SetError(reason, "").
		SetMetadata(meta))

	s.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"booking_id": failed.BookingID,
		"reason":     reason,
	}).Info("Payment failed")

	return &models.PaymentActionResponse{Payment: failed, Booking: booking}, nil
}

// RefundPayment returns a completed payment, cancels the booking and schedules
// the release of its slots. Repeating it for a refunded payment retries the
// cancellation.
func (s *BookingSaga) RefundPayment(ctx context.Context, actor Actor, paymentID uuid.UUID, reason string, meta models.RequestMetadata) (*models.PaymentActionResponse, error) {
	if _, err := s.loadPayment(ctx, actor, paymentID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "refund requested"
	}

	replayed := false
	refunded, err := s.payments.MarkRefunded(ctx, paymentID, reason)
	if err != nil {
		var stErr *models.StateTransitionError
		if !errors.As(err, &stErr) {
			return nil, err
		}
		current, gerr := s.payments.GetByID(ctx, paymentID)
		if gerr != nil || current == nil || current.Status != models.PaymentStatusRefunded {
			return nil, err
		}
		refunded, replayed = current, true
	}

	log := s.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"booking_id": refunded.BookingID,
		"replayed":   replayed,
	})

	booking, err := s.bookings.SetPaymentStatus(ctx, refunded.BookingID, models.BookingPaymentRefunded)
	if err != nil {
		log.WithError(err).Warn("Failed to mark booking refunded")
	}

	var (
		stErr  *models.StateTransitionError
		queued bool
	)
	cancelled, job, err := s.bookings.Cancel(ctx, refunded.BookingID, "refunded: "+reason)
	switch {
	case err == nil:
		booking = cancelled
	case errors.As(err, &stErr):
		// Already cancelled or completed; the refund stands on its own
		log.WithError(err).Info("Booking not cancelled by refund")
	default:
		// The refund is committed, so the slots go back through the queue and
		// the booking is left for review
		log.WithError(err).Error("Failed to cancel refunded booking")
		if qerr := s.releases.Enqueue(ctx, refunded.BookingID, "refunded: "+reason); qerr != nil {
			log.WithError(qerr).Error("Failed to queue release for refunded booking")
			return nil, err
		}
		queued = true
		if ferr := s.bookings.FlagReconciliation(ctx, refunded.BookingID, models.ReconciliationCancelFailed); ferr != nil {
			log.WithError(ferr).Error("Failed to flag booking for reconciliation")
		}
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReconciliationRequired, models.PaymentSourceSaga).
			SetPayment(refunded).
			SetDetails(map[string]interface{}{"reason": models.ReconciliationCancelFailed}))
	}

	eventType := models.PaymentEventRefunded
	if replayed {
		eventType = models.PaymentEventReplayed
	}
	s.audit(ctx, models.NewPaymentEvent(eventType, sourceFor(actor)).
		SetPayment(refunded).
		SetDetails(map[string]interface{}{"reason": reason}).
		SetMetadata(meta))

	if job != nil {
		s.audit(ctx, models.NewPaymentEvent(models.PaymentEventReleaseScheduled, models.PaymentSourceSaga).
			SetPayment(refunded).
			SetDetails(map[string]interface{}{"release_job_id": job.ID.String()}))
		s.releases.Nudge()
	}

	log.Info("Payment refunded")

	return &models.PaymentActionResponse{Payment: refunded, Booking: booking, ReleaseScheduled: job != nil || queued}, nil
}

// ListPaymentEvents returns the audit trail of one payment
func (s *BookingSaga) ListPaymentEvents(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentEvent, error) {
	return s.events.ListByPayment(ctx, paymentID)
}

// ListAmountMismatches returns rejected payment attempts whose amount was wrong
func (s *BookingSaga) ListAmountMismatches(ctx context.Context, limit int) ([]models.PaymentEvent, error) {
	return s.events.ListAmountMismatches(ctx, limit)
}

// ============================================================================
// RECONCILIATION
// ============================================================================

// ListReconciliation returns flagged bookings and exhausted release jobs
func (s *BookingSaga) ListReconciliation(ctx context.Context, limit int) (*models.ReconciliationView, error) {
	bookings, err := s.bookings.ListReconciliation(ctx, limit)
	if err != nil {
		return nil, err
	}
	jobs, err := s.releases.ListFailed(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &models.ReconciliationView{Bookings: bookings, FailedReleaseJobs: jobs}, nil
}

// ResolveReconciliation closes a review item, optionally cancelling the booking first
func (s *BookingSaga) ResolveReconciliation(ctx context.Context, bookingID uuid.UUID, req *models.ResolveReconciliationRequest) (*models.Booking, error) {
	if req.Cancel {
		_, job, err := s.bookings.Cancel(ctx, bookingID, "reconciliation: "+req.Note)
		var stErr *models.StateTransitionError
		if err != nil && !errors.As(err, &stErr) {
			return nil, err
		}
		if job != nil {
			s.releases.Nudge()
		}
	}

	booking, err := s.bookings.ResolveReconciliation(ctx, bookingID, req.Note)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"cancelled":  req.Cancel,
	}).Info("Reconciliation resolved")

	return booking, nil
}

// audit writes a payment event. A failed audit write never fails the operation.
func (s *BookingSaga) audit(ctx context.Context, event *models.PaymentEvent) {
	if err := s.events.Log(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WithError(err).WithField("event_type", event.EventType).Warn("Failed to write payment event")
	}
}

func sourceFor(actor Actor) models.PaymentEventSource {
	if actor.Admin {
		return models.PaymentSourceAdmin
	}
	return models.PaymentSourceUser
}
