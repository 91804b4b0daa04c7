package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/services"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
)

// redeliveryDelay spaces out re-runs of a job that hit an infrastructure
// error, giving the dependency time to recover.
const redeliveryDelay = 30 * time.Second

// RetryDelivery re-runs the hybrid channel logic without touching the
// ledger. Satisfied by the orchestrator; kept abstract so the worker and the
// orchestrator have no construction cycle.
type RetryDelivery interface {
	Retry(ctx context.Context, userID, event string, payload models.NotificationPayload, live models.LiveSender) models.DeliveryOutcome
}

// RecordLedger is the slice of the ledger manager the worker needs.
type RecordLedger interface {
	Get(ctx context.Context, recordID string) (*models.FailureRecord, error)
	Resolve(ctx context.Context, recordID, method string) error
	ScheduleNextRetry(ctx context.Context, recordID, cause string) (services.RetryDecision, error)
}

// Escalator receives records whose retry budget ran out.
type Escalator interface {
	Escalate(ctx context.Context, rec *models.FailureRecord, payload models.NotificationPayload)
}

// RetryWorker consumes retry jobs one record-attempt at a time. Success
// resolves the record; failure schedules the next backoff step; exhaustion
// hands the record to escalation exactly once.
type RetryWorker struct {
	base          *BaseConsumer
	delivery      RetryDelivery
	ledger        RecordLedger
	escalation    Escalator
	scheduler     services.RetryScheduler
	live          models.LiveSender
	metrics       *metrics.Metrics
	logger        *slog.Logger
	maxDeliveries int
}

func NewRetryWorker(
	base *BaseConsumer,
	delivery RetryDelivery,
	ledger RecordLedger,
	escalation Escalator,
	sched services.RetryScheduler,
	live models.LiveSender,
	m *metrics.Metrics,
	logger *slog.Logger,
	maxDeliveries int,
) *RetryWorker {
	if maxDeliveries <= 0 {
		maxDeliveries = 3
	}
	return &RetryWorker{
		base:          base,
		delivery:      delivery,
		ledger:        ledger,
		escalation:    escalation,
		scheduler:     sched,
		live:          live,
		metrics:       m,
		logger:        logger,
		maxDeliveries: maxDeliveries,
	}
}

func (w *RetryWorker) Start(ctx context.Context) error {
	return w.base.Start(ctx, w.handleDelivery)
}

func (w *RetryWorker) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	w.metrics.JobStarted()

	var job models.RetryJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		w.logger.Error("failed to unmarshal retry job", slog.Any("error", err))
		w.metrics.JobFailed()
		_ = msg.Reject(false)
		return err
	}

	if err := w.ProcessJob(ctx, job); err != nil {
		return w.redeliver(ctx, msg, job, err)
	}

	w.metrics.JobCompleted()
	return msg.Ack(false)
}

// redeliver republishes a job that hit an infrastructure error, carrying an
// explicit counter in the job body. Broker requeueing would hand the message
// straight back without counting it, so a persistent failure could hot-loop
// the same delivery forever.
func (w *RetryWorker) redeliver(ctx context.Context, msg amqp.Delivery, job models.RetryJob, cause error) error {
	job.Redeliveries++
	if job.Redeliveries >= w.maxDeliveries {
		w.logger.Error("retry job failed, message dead-lettered",
			slog.String("record_id", job.RecordID),
			slog.Int("redeliveries", job.Redeliveries),
			slog.Any("error", cause))
		w.metrics.JobFailed()
		_ = msg.Nack(false, false)
		return cause
	}

	if err := w.scheduler.ScheduleRetry(ctx, job, redeliveryDelay); err != nil {
		// Republish failed too; fall back to broker requeue rather than
		// losing the job.
		w.logger.Error("failed to republish retry job, requeueing",
			slog.String("record_id", job.RecordID), slog.Any("error", err))
		w.metrics.JobCompleted()
		_ = msg.Nack(false, true)
		return cause
	}

	w.logger.Warn("retry job failed, republished with delay",
		slog.String("record_id", job.RecordID),
		slog.Int("redeliveries", job.Redeliveries),
		slog.Any("error", cause))
	w.metrics.JobCompleted()
	_ = msg.Ack(false)
	return cause
}

// ProcessJob runs one retry attempt for one failure record. Channel failures
// are normal outcomes handled through the ledger; the returned error covers
// only infrastructure problems worth redelivering the job for.
func (w *RetryWorker) ProcessJob(ctx context.Context, job models.RetryJob) error {
	rec, err := w.ledger.Get(ctx, job.RecordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", job.RecordID, err)
	}
	if rec == nil {
		w.logger.Debug("retry job for deleted record, dropping",
			slog.String("record_id", job.RecordID))
		return nil
	}
	// A direct send may have reached the user while this job was in flight.
	// The record is the source of truth: resolved means nothing to do.
	if rec.Resolved {
		w.logger.Debug("record already resolved, dropping retry",
			slog.String("record_id", rec.ID),
			slog.String("method", rec.ResolvedMethod))
		return nil
	}
	if rec.Exhausted() {
		w.logger.Debug("record already exhausted, dropping retry",
			slog.String("record_id", rec.ID))
		return nil
	}

	payload := job.Payload
	if payload.Title == "" && payload.Body == "" {
		// Older jobs may not carry the payload; fall back to the snapshot.
		payload, err = rec.DecodePayload()
		if err != nil {
			return fmt.Errorf("decode payload for %s: %w", rec.ID, err)
		}
	}

	outcome := w.delivery.Retry(ctx, rec.UserID, rec.Event, payload, w.live)
	if outcome.Succeeded {
		method := models.MethodPush
		if outcome.LiveChannelUsed && !outcome.PushChannelUsed {
			method = models.MethodLive
		}
		if err := w.ledger.Resolve(ctx, rec.ID, method); err != nil {
			return fmt.Errorf("resolve record %s: %w", rec.ID, err)
		}
		w.metrics.IncResolved()
		w.logger.Info("retry delivered notification",
			slog.String("record_id", rec.ID),
			slog.String("method", method),
			slog.Int("attempt", rec.Attempt+1))
		return nil
	}

	decision, err := w.ledger.ScheduleNextRetry(ctx, rec.ID, outcome.Error)
	if err != nil {
		return fmt.Errorf("schedule next retry for %s: %w", rec.ID, err)
	}
	if decision == services.RetryExhausted {
		rec.Attempt++
		rec.LastError = outcome.Error
		w.escalation.Escalate(ctx, rec, payload)
	}
	return nil
}
