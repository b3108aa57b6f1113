package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

const releaseJobColumns = `id, booking_id, reason, status, attempts, last_error, next_attempt_at, completed_at, created_at, updated_at`

// ReleaseJobRepository owns the release_jobs outbox
type ReleaseJobRepository struct {
	db *sqlx.DB
}

// NewReleaseJobRepository creates a new ReleaseJobRepository
func NewReleaseJobRepository(db *sqlx.DB) *ReleaseJobRepository {
	return &ReleaseJobRepository{db: db}
}

// insertReleaseJob queues a job inside the caller's transaction.
// A booking only ever needs one release, so a second insert is ignored.
func insertReleaseJob(ctx context.Context, exec sqlx.ExecerContext, job *models.ReleaseJob) error {
	query := `
		INSERT INTO release_jobs (id, booking_id, reason, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, NOW(), NOW())
		ON CONFLICT (booking_id) DO NOTHING`

	if _, err := exec.ExecContext(ctx, query, job.ID, job.BookingID, job.Reason, job.Status, job.NextAttemptAt); err != nil {
		return fmt.Errorf("failed to queue release job: %w", err)
	}
	return nil
}

// Enqueue queues a release outside any other transaction
func (r *ReleaseJobRepository) Enqueue(ctx context.Context, job *models.ReleaseJob) error {
	return insertReleaseJob(ctx, r.db, job)
}

// FetchDue returns pending jobs whose next attempt is due, oldest first
func (r *ReleaseJobRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]models.ReleaseJob, error) {
	jobs := []models.ReleaseJob{}
	query := `
		SELECT ` + releaseJobColumns + `
		FROM release_jobs
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &jobs, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch due release jobs: %w", err)
	}

	return jobs, nil
}

// MarkDone records a successful release
func (r *ReleaseJobRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE release_jobs
		SET status = 'done', attempts = attempts + 1, last_error = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark release job done: %w", err)
	}
	return nil
}

// MarkAttemptFailed records a failed attempt and schedules the next one,
// or parks the job as failed when exhausted
func (r *ReleaseJobRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time, exhausted bool) error {
	status := models.ReleaseJobPending
	if exhausted {
		status = models.ReleaseJobFailed
	}

	query := `
		UPDATE release_jobs
		SET status = $2, attempts = attempts + 1, last_error = $3, next_attempt_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	if _, err := r.db.ExecContext(ctx, query, id, status, lastError, nextAttemptAt); err != nil {
		return fmt.Errorf("failed to record release attempt: %w", err)
	}
	return nil
}

// ListFailed returns parked jobs for the reconciliation view
func (r *ReleaseJobRepository) ListFailed(ctx context.Context, limit int) ([]models.ReleaseJob, error) {
	jobs := []models.ReleaseJob{}
	query := `
		SELECT ` + releaseJobColumns + `
		FROM release_jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list failed release jobs: %w", err)
	}

	return jobs, nil
}

// Stats counts jobs per status
func (r *ReleaseJobRepository) Stats(ctx context.Context) (*models.ReleaseJobStats, error) {
	var stats models.ReleaseJobStats
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'done') AS done,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM release_jobs`

	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get release job stats: %w", err)
	}

	return &stats, nil
}
