package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
)

// RetryDecision is the verdict of scheduling the next attempt.
type RetryDecision string

const (
	RetryScheduled RetryDecision = "scheduled"
	RetryExhausted RetryDecision = "exhausted"
)

// LedgerStore is the durable record store behind the ledger manager.
type LedgerStore interface {
	Create(ctx context.Context, rec *models.FailureRecord) error
	Get(ctx context.Context, id string) (*models.FailureRecord, error)
	UpdateRetryState(ctx context.Context, id string, attempt int, nextRetryAt time.Time, lastError string) error
	MarkResolved(ctx context.Context, id, method string, at time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]models.FailureRecord, error)
	Counts(ctx context.Context) (resolved, pending int64, err error)
	CreatedSince(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteUnresolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetryScheduler hands a retry job to the delayed task queue.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, job models.RetryJob, delay time.Duration) error
}

// LedgerManager owns the failure-record lifecycle: creation, backoff
// bookkeeping, resolution and the retry-vs-exhaustion decision. No other
// component mutates records.
type LedgerManager struct {
	store     LedgerStore
	scheduler RetryScheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewLedgerManager(store LedgerStore, scheduler RetryScheduler, logger *slog.Logger) *LedgerManager {
	return &LedgerManager{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordFailure opens a failure record for a notification that missed both
// channels on its first attempt and schedules the initial retry.
func (m *LedgerManager) RecordFailure(ctx context.Context, userID, event string, payload models.NotificationPayload, cause string, priority models.Priority) error {
	snapshot, err := models.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("snapshot payload: %w", err)
	}

	delay := models.BackoffDelay(0)
	now := m.now()
	rec := &models.FailureRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Event:       event,
		Priority:    priority,
		Payload:     snapshot,
		Attempt:     0,
		MaxAttempts: priority.MaxAttempts(),
		NextRetryAt: now.Add(delay),
		LastError:   cause,
		CreatedAt:   now,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerPersist, err)
	}

	job := models.RetryJob{
		RecordID:      rec.ID,
		UserID:        userID,
		Event:         event,
		Payload:       payload,
		OriginalError: cause,
	}
	if err := m.scheduler.ScheduleRetry(ctx, job, delay); err != nil {
		// The record exists even if the job publish failed; the due-retries
		// backfill query can still find it.
		m.logger.Error("failed to schedule initial retry",
			slog.String("record_id", rec.ID), slog.Any("error", err))
	}

	m.logger.Info("notification queued for retry",
		slog.String("record_id", rec.ID),
		slog.String("user_id", userID),
		slog.String("event", event),
		slog.String("priority", string(priority)))
	return nil
}

// ScheduleNextRetry registers a failed attempt. It either schedules the next
// delayed job per the backoff table or declares the record exhausted once
// the attempt counter reaches its ceiling.
func (m *LedgerManager) ScheduleNextRetry(ctx context.Context, recordID, cause string) (RetryDecision, error) {
	rec, err := m.store.Get(ctx, recordID)
	if err != nil {
		return "", fmt.Errorf("load record %s: %w", recordID, err)
	}
	if rec == nil {
		return "", fmt.Errorf("record %s no longer exists", recordID)
	}

	attempt := rec.Attempt + 1
	if attempt >= rec.MaxAttempts {
		if err := m.store.UpdateRetryState(ctx, recordID, attempt, rec.NextRetryAt, cause); err != nil {
			return "", fmt.Errorf("%w: %v", ErrLedgerPersist, err)
		}
		m.logger.Warn("retry budget exhausted",
			slog.String("record_id", recordID),
			slog.Int("attempts", attempt),
			slog.String("last_error", cause))
		return RetryExhausted, nil
	}

	delay := models.BackoffDelay(attempt)
	nextRetryAt := m.now().Add(delay)
	if err := m.store.UpdateRetryState(ctx, recordID, attempt, nextRetryAt, cause); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedgerPersist, err)
	}

	payload, err := rec.DecodePayload()
	if err != nil {
		return "", fmt.Errorf("decode payload for %s: %w", recordID, err)
	}
	job := models.RetryJob{
		RecordID:      rec.ID,
		UserID:        rec.UserID,
		Event:         rec.Event,
		Payload:       payload,
		OriginalError: cause,
	}
	if err := m.scheduler.ScheduleRetry(ctx, job, delay); err != nil {
		m.logger.Error("failed to schedule retry",
			slog.String("record_id", recordID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
	return RetryScheduled, nil
}

// Resolve closes a record with the delivery method that finally reached the
// user. It is idempotent: resolving an already-resolved record is a no-op
// and the first method wins.
func (m *LedgerManager) Resolve(ctx context.Context, recordID, method string) error {
	if err := m.store.MarkResolved(ctx, recordID, method, m.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerPersist, err)
	}
	return nil
}

// Get loads a record; nil means it no longer exists.
func (m *LedgerManager) Get(ctx context.Context, recordID string) (*models.FailureRecord, error) {
	return m.store.Get(ctx, recordID)
}

// DueRetries returns unresolved records whose retry time has passed. The
// primary retry path is event-driven through the delayed scheduler; this
// query serves diagnostics and backfill.
func (m *LedgerManager) DueRetries(ctx context.Context, limit int) ([]models.FailureRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.store.Due(ctx, m.now(), limit)
}

// LedgerReport summarises ledger state for the diagnostics surface.
type LedgerReport struct {
	Resolved        int64 `json:"resolved"`
	Pending         int64 `json:"pending"`
	FailuresLast24h int64 `json:"failures_last_24h"`
}

// Report builds the read-only diagnostics view of the ledger.
func (m *LedgerManager) Report(ctx context.Context) (LedgerReport, error) {
	resolved, pending, err := m.store.Counts(ctx)
	if err != nil {
		return LedgerReport{}, err
	}
	recent, err := m.store.CreatedSince(ctx, m.now().Add(-24*time.Hour))
	if err != nil {
		return LedgerReport{}, err
	}
	return LedgerReport{
		Resolved:        resolved,
		Pending:         pending,
		FailuresLast24h: recent,
	}, nil
}

// Cleanup deletes resolved records older than the retention window and
// never-resolved records older than three times that window.
func (m *LedgerManager) Cleanup(ctx context.Context, retention time.Duration) (resolvedDeleted, staleDeleted int64, err error) {
	now := m.now()
	resolvedDeleted, err = m.store.DeleteResolvedBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, 0, err
	}
	staleDeleted, err = m.store.DeleteUnresolvedBefore(ctx, now.Add(-3*retention))
	if err != nil {
		return resolvedDeleted, 0, err
	}
	return resolvedDeleted, staleDeleted, nil
}
