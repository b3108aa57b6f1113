package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

const inventoryColumns = `id, tour_id, date, slots_total, slots_left, hotel_available, transport_available, created_at, updated_at`

const reservationColumns = `id, booking_id, tour_id, date, participants, status, created_at, released_at`

// InventoryRepository owns inventory_records and inventory_reservations
type InventoryRepository struct {
	db *sqlx.DB
}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// InitializeRange inserts one record per date in a single transaction.
// Dates that already have a record are left untouched and counted as skipped.
func (r *InventoryRepository) InitializeRange(ctx context.Context, tourID uuid.UUID, dates []time.Time, slots int, hotel, transport bool) (created int, skipped int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO inventory_records (
			id, tour_id, date, slots_total, slots_left, hotel_available, transport_available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (tour_id, date) DO NOTHING`

	for _, d := range dates {
		result, err := tx.ExecContext(ctx, query, uuid.New(), tourID, models.NewDate(d), slots, hotel, transport)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert inventory for %s: %w", d.Format("2006-01-02"), err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 1 {
			created++
		} else {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit inventory range: %w", err)
	}

	return created, skipped, nil
}

// Upsert sets the capacity of one date. On an existing record the slots already
// reserved are preserved, so slots_left becomes slots - reserved.
func (r *InventoryRepository) Upsert(ctx context.Context, tourID uuid.UUID, date models.Date, slots int, hotel, transport bool) (*models.InventoryRecord, error) {
	query := `
		INSERT INTO inventory_records (
			id, tour_id, date, slots_total, slots_left, hotel_available, transport_available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (tour_id, date) DO UPDATE SET
			slots_left = EXCLUDED.slots_total - (inventory_records.slots_total - inventory_records.slots_left),
			slots_total = EXCLUDED.slots_total,
			hotel_available = EXCLUDED.hotel_available,
			transport_available = EXCLUDED.transport_available,
			updated_at = NOW()
		WHERE EXCLUDED.slots_total >= inventory_records.slots_total - inventory_records.slots_left
		RETURNING ` + inventoryColumns

	var record models.InventoryRecord
	err := r.db.GetContext(ctx, &record, query, uuid.New(), tourID, date, slots, hotel, transport)
	if err == nil {
		return &record, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to upsert inventory: %w", err)
	}

	// Conflict row was kept because the new total is below what is already reserved
	existing, getErr := r.GetByTourAndDate(ctx, tourID, date)
	if getErr != nil {
		return nil, getErr
	}
	reserved := 0
	if existing != nil {
		reserved = existing.Reserved()
	}
	return nil, models.NewValidationError("slots", fmt.Sprintf("cannot be lower than the %d slots already reserved", reserved))
}

// GetByTourAndDate returns nil, nil when no record exists
func (r *InventoryRepository) GetByTourAndDate(ctx context.Context, tourID uuid.UUID, date models.Date) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	query := `SELECT ` + inventoryColumns + ` FROM inventory_records WHERE tour_id = $1 AND date = $2`

	err := r.db.GetContext(ctx, &record, query, tourID, date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory record: %w", err)
	}

	return &record, nil
}

// ListByTour returns every record of a tour in date order
func (r *InventoryRepository) ListByTour(ctx context.Context, tourID uuid.UUID) ([]models.InventoryRecord, error) {
	records := []models.InventoryRecord{}
	query := `SELECT ` + inventoryColumns + ` FROM inventory_records WHERE tour_id = $1 ORDER BY date ASC`

	if err := r.db.SelectContext(ctx, &records, query, tourID); err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}

	return records, nil
}

// ListRange returns the records of a tour within [start, end] in date order
func (r *InventoryRepository) ListRange(ctx context.Context, tourID uuid.UUID, start, end models.Date) ([]models.InventoryRecord, error) {
	records := []models.InventoryRecord{}
	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory_records
		WHERE tour_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC`

	if err := r.db.SelectContext(ctx, &records, query, tourID, start, end); err != nil {
		return nil, fmt.Errorf("failed to list inventory range: %w", err)
	}

	return records, nil
}

// Delete removes one date unless it still holds active reservations
func (r *InventoryRepository) Delete(ctx context.Context, tourID uuid.UUID, date models.Date) error {
	query := `
		DELETE FROM inventory_records
		WHERE tour_id = $1 AND date = $2
		AND NOT EXISTS (
			SELECT 1 FROM inventory_reservations
			WHERE tour_id = $1 AND date = $2 AND status = 'reserved'
		)`

	result, err := r.db.ExecContext(ctx, query, tourID, date)
	if err != nil {
		return fmt.Errorf("failed to delete inventory: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	existing, err := r.GetByTourAndDate(ctx, tourID, date)
	if err != nil {
		return err
	}
	if existing == nil {
		return models.NewNotFoundError("inventory", fmt.Sprintf("%s/%s", tourID, date))
	}
	return &models.StateTransitionError{Entity: "inventory record", From: "reserved", To: "deleted"}
}

// Reserve atomically records the booking's reservation and decrements slots_left.
// A retry for a booking that already holds slots returns the existing reservation
// without decrementing again.
func (r *InventoryRepository) Reserve(ctx context.Context, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.InventoryReservation, int, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var reservation models.InventoryReservation
	insertQuery := `
		INSERT INTO inventory_reservations (id, booking_id, tour_id, date, participants, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'reserved', NOW())
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING ` + reservationColumns

	err = tx.GetContext(ctx, &reservation, insertQuery, uuid.New(), bookingID, tourID, date, participants)
	if err == sql.ErrNoRows {
		existing, slotsLeft, err := r.replayReservation(ctx, tx, bookingID, tourID, date, participants)
		if err != nil {
			return nil, 0, false, err
		}
		return existing, slotsLeft, true, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to insert reservation: %w", err)
	}

	// The conditional decrement is the only thing that prevents overbooking
	var slotsLeft int
	decrementQuery := `
		UPDATE inventory_records
		SET slots_left = slots_left - $3, updated_at = NOW()
		WHERE tour_id = $1 AND date = $2 AND slots_left >= $3
		RETURNING slots_left`

	err = tx.GetContext(ctx, &slotsLeft, decrementQuery, tourID, date, participants)
	if err == sql.ErrNoRows {
		return nil, 0, false, r.capacityFailure(ctx, tx, tourID, date, participants)
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to decrement inventory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, false, fmt.Errorf("failed to commit reservation: %w", err)
	}

	return &reservation, slotsLeft, false, nil
}

func (r *InventoryRepository) replayReservation(ctx context.Context, tx *sqlx.Tx, bookingID, tourID uuid.UUID, date models.Date, participants int) (*models.InventoryReservation, int, error) {
	var existing models.InventoryReservation
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations WHERE booking_id = $1`
	if err := tx.GetContext(ctx, &existing, query, bookingID); err != nil {
		return nil, 0, fmt.Errorf("failed to load existing reservation: %w", err)
	}

	if existing.Status == models.ReservationReleased {
		return nil, 0, &models.StateTransitionError{Entity: "reservation", From: string(models.ReservationReleased), To: string(models.ReservationReserved)}
	}
	if existing.TourID != tourID || !existing.Date.Equal(date.Time) || existing.Participants != participants {
		return nil, 0, models.NewValidationError("booking_id", "already holds a reservation with different details")
	}

	var slotsLeft int
	if err := tx.GetContext(ctx, &slotsLeft, `SELECT slots_left FROM inventory_records WHERE tour_id = $1 AND date = $2`, tourID, date); err != nil {
		return nil, 0, fmt.Errorf("failed to read slots left: %w", err)
	}

	return &existing, slotsLeft, nil
}

func (r *InventoryRepository) capacityFailure(ctx context.Context, tx *sqlx.Tx, tourID uuid.UUID, date models.Date, participants int) error {
	var slotsLeft int
	err := tx.GetContext(ctx, &slotsLeft, `SELECT slots_left FROM inventory_records WHERE tour_id = $1 AND date = $2`, tourID, date)
	if err == sql.ErrNoRows {
		return models.NewNotFoundError("inventory", fmt.Sprintf("%s/%s", tourID, date))
	}
	if err != nil {
		return fmt.Errorf("failed to read slots left: %w", err)
	}
	return &models.CapacityError{TourID: tourID, Date: date, Requested: participants, Remaining: slotsLeft}
}

// Release returns a booking's slots to the pool exactly once.
// released is false when there was nothing left to release.
func (r *InventoryRepository) Release(ctx context.Context, bookingID uuid.UUID) (released bool, slotsLeft int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var reservation models.InventoryReservation
	flipQuery := `
		UPDATE inventory_reservations
		SET status = 'released', released_at = NOW()
		WHERE booking_id = $1 AND status = 'reserved'
		RETURNING ` + reservationColumns

	err = tx.GetContext(ctx, &reservation, flipQuery, bookingID)
	if err == sql.ErrNoRows {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to mark reservation released: %w", err)
	}

	restoreQuery := `
		UPDATE inventory_records
		SET slots_left = LEAST(slots_total, slots_left + $3), updated_at = NOW()
		WHERE tour_id = $1 AND date = $2
		RETURNING slots_left`

	err = tx.GetContext(ctx, &slotsLeft, restoreQuery, reservation.TourID, reservation.Date, reservation.Participants)
	if err != nil && err != sql.ErrNoRows {
		return false, 0, fmt.Errorf("failed to restore inventory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit release: %w", err)
	}

	return true, slotsLeft, nil
}

// GetReservation returns nil, nil when the booking never reserved
func (r *InventoryRepository) GetReservation(ctx context.Context, bookingID uuid.UUID) (*models.InventoryReservation, error) {
	var reservation models.InventoryReservation
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations WHERE booking_id = $1`

	err := r.db.GetContext(ctx, &reservation, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	return &reservation, nil
}
