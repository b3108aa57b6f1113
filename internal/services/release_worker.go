package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/config"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// maxReleaseBackoff caps the delay between attempts of one job
const maxReleaseBackoff = 30 * time.Minute

// ReleaseJobStore is the outbox the worker drains
type ReleaseJobStore interface {
	Enqueue(ctx context.Context, job *models.ReleaseJob) error
	FetchDue(ctx context.Context, now time.Time, limit int) ([]models.ReleaseJob, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time, exhausted bool) error
	ListFailed(ctx context.Context, limit int) ([]models.ReleaseJob, error)
	Stats(ctx context.Context) (*models.ReleaseJobStats, error)
}

// SlotReleaser gives a booking's slots back to inventory
type SlotReleaser interface {
	Release(ctx context.Context, bookingID uuid.UUID) (*models.ReleaseResponse, error)
}

// ReleaseBookingStore records release results on the booking
type ReleaseBookingStore interface {
	MarkSlotsReleased(ctx context.Context, id uuid.UUID) error
	FlagReconciliation(ctx context.Context, id uuid.UUID, reason string) error
}

// RunSummary reports one pass over the queue
type RunSummary struct {
	Processed int       `json:"processed"`
	Released  int       `json:"released"`
	Failed    int       `json:"failed"`
	Exhausted int       `json:"exhausted"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// ReleaseWorker retries slot releases queued by cancellations and refunds
type ReleaseWorker struct {
	cron     *cron.Cron
	jobs     ReleaseJobStore
	releaser SlotReleaser
	bookings ReleaseBookingStore
	cfg      config.ReleaseWorkerConfig
	logger   *logrus.Logger
	now      func() time.Time

	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup

	runMu   sync.Mutex
	stateMu sync.RWMutex
	lastRun *RunSummary
}

// NewReleaseWorker creates a worker. Call Start to begin scheduled runs.
func NewReleaseWorker(jobs ReleaseJobStore, releaser SlotReleaser, bookings ReleaseBookingStore, cfg config.ReleaseWorkerConfig, logger *logrus.Logger) *ReleaseWorker {
	return &ReleaseWorker{
		cron:     cron.New(cron.WithSeconds()),
		jobs:     jobs,
		releaser: releaser,
		bookings: bookings,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start schedules the retry job and begins listening for nudges
func (w *ReleaseWorker) Start() error {
	w.logger.Info("Starting release worker...")

	// Cron format: second minute hour day month weekday
	if _, err := w.cron.AddFunc(w.cfg.Schedule, w.scheduledRun); err != nil {
		return fmt.Errorf("failed to schedule release job: %w", err)
	}

	w.wg.Add(1)
	go w.listen()

	w.cron.Start()
	w.logger.WithField("schedule", w.cfg.Schedule).Info("Release worker started")
	return nil
}

// Stop waits for a running pass to finish
func (w *ReleaseWorker) Stop() {
	w.logger.Info("Stopping release worker...")
	ctx := w.cron.Stop()
	close(w.stop)
	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("Release worker stopped")
}

// Nudge asks for an immediate pass without waiting for it
func (w *ReleaseWorker) Nudge() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *ReleaseWorker) listen() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-w.trigger:
			w.scheduledRun()
		}
	}
}

func (w *ReleaseWorker) scheduledRun() {
	if _, err := w.RunOnce(context.Background()); err != nil {
		w.logger.WithError(err).Error("Release pass failed")
	}
}

// RunOnce drains the due jobs. Overlapping passes are skipped.
func (w *ReleaseWorker) RunOnce(ctx context.Context) (*RunSummary, error) {
	if !w.runMu.TryLock() {
		w.logger.Debug("Release pass already running, skipping")
		return &RunSummary{StartedAt: w.now()}, nil
	}
	defer w.runMu.Unlock()

	summary := &RunSummary{StartedAt: w.now()}
	jobs, err := w.jobs.FetchDue(ctx, summary.StartedAt, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	for i := range jobs {
		summary.Processed++
		switch w.process(ctx, &jobs[i]) {
		case jobReleased:
			summary.Released++
		case jobRetry:
			summary.Failed++
		case jobExhausted:
			summary.Failed++
			summary.Exhausted++
		}
	}

	summary.Duration = time.Since(summary.StartedAt).String()
	if summary.Processed > 0 {
		w.logger.WithFields(logrus.Fields{
			"processed": summary.Processed,
			"released":  summary.Released,
			"failed":    summary.Failed,
			"exhausted": summary.Exhausted,
		}).Info("Release pass completed")
	}

	w.stateMu.Lock()
	w.lastRun = summary
	w.stateMu.Unlock()

	return summary, nil
}

type jobResult int

const (
	jobReleased jobResult = iota
	jobRetry
	jobExhausted
)

func (w *ReleaseWorker) process(ctx context.Context, job *models.ReleaseJob) jobResult {
	log := w.logger.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"booking_id": job.BookingID,
		"attempt":    job.Attempts + 1,
	})

	res, err := w.releaser.Release(ctx, job.BookingID)
	if err == nil {
		if err := w.jobs.MarkDone(ctx, job.ID); err != nil {
			log.WithError(err).Error("Failed to mark release job done")
		}
		if err := w.bookings.MarkSlotsReleased(ctx, job.BookingID); err != nil {
			log.WithError(err).Error("Failed to clear booking slots flag")
		}
		log.WithField("released", res.Released).Info("Slots released")
		return jobReleased
	}

	attempts := job.Attempts + 1
	exhausted := attempts >= w.cfg.MaxAttempts
	next := w.now().Add(w.Backoff(attempts))

	if markErr := w.jobs.MarkAttemptFailed(ctx, job.ID, err.Error(), next, exhausted); markErr != nil {
		log.WithError(markErr).Error("Failed to record release attempt")
	}

	if !exhausted {
		log.WithError(err).WithField("next_attempt_at", next).Warn("Release failed, will retry")
		return jobRetry
	}

	log.WithError(err).Error("Release attempts exhausted, flagging booking for review")
	if flagErr := w.bookings.FlagReconciliation(ctx, job.BookingID, models.ReconciliationReleaseFailed); flagErr != nil {
		log.WithError(flagErr).Error("Failed to flag booking")
	}
	return jobExhausted
}

// Backoff doubles the base delay per attempt, capped at maxReleaseBackoff
func (w *ReleaseWorker) Backoff(attempts int) time.Duration {
	delay := w.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxReleaseBackoff {
			return maxReleaseBackoff
		}
	}
	return delay
}

// Enqueue queues a release outside of a booking transaction and nudges the worker
func (w *ReleaseWorker) Enqueue(ctx context.Context, bookingID uuid.UUID, reason string) error {
	if err := w.jobs.Enqueue(ctx, models.NewReleaseJob(bookingID, reason)); err != nil {
		return err
	}
	w.Nudge()
	return nil
}

// ListFailed returns jobs that ran out of attempts
func (w *ReleaseWorker) ListFailed(ctx context.Context, limit int) ([]models.ReleaseJob, error) {
	return w.jobs.ListFailed(ctx, limit)
}

// GetStatus returns the schedule, queue counts and the last pass
func (w *ReleaseWorker) GetStatus(ctx context.Context) (map[string]interface{}, error) {
	stats, err := w.jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}

	entries := w.cron.Entries()
	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	w.stateMu.RLock()
	lastRun := w.lastRun
	w.stateMu.RUnlock()

	return map[string]interface{}{
		"running":      len(entries) > 0,
		"schedule":     w.cfg.Schedule,
		"max_attempts": w.cfg.MaxAttempts,
		"jobs":         jobs,
		"queue":        stats,
		"last_run":     lastRun,
	}, nil
}
