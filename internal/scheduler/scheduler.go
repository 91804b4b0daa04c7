package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/retry"
)

// Channel is the slice of the amqp channel surface the scheduler publishes
// through. *amqp.Channel satisfies it.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Scheduler publishes retry jobs that become visible after a per-job delay.
// Delay is implemented with a transient holding queue: messages carry a TTL
// and dead-letter into the ready queue when it lapses. The broker guarantees
// at-least-once handoff; dedup is the consumer's resolution-state guard.
type Scheduler struct {
	ch         Channel
	readyQueue string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	retryCfg   retry.Config

	// amqp channels are not safe for concurrent publishes.
	mu sync.Mutex
}

func New(conn *amqp.Connection, readyQueue string, m *metrics.Metrics, logger *slog.Logger, retryCfg retry.Config) (*Scheduler, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return NewWithChannel(ch, readyQueue, m, logger, retryCfg), nil
}

// NewWithChannel builds a scheduler over an already-open channel.
func NewWithChannel(ch Channel, readyQueue string, m *metrics.Metrics, logger *slog.Logger, retryCfg retry.Config) *Scheduler {
	return &Scheduler{
		ch:         ch,
		readyQueue: readyQueue,
		logger:     logger,
		metrics:    m,
		retryCfg:   retryCfg,
	}
}

// ScheduleRetry enqueues a job that the retry worker will see after the
// delay. A non-positive delay publishes straight to the ready queue.
func (s *Scheduler) ScheduleRetry(ctx context.Context, job models.RetryJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retry job: %w", err)
	}

	publish := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if delay <= 0 {
			return s.publishTo(s.readyQueue, body)
		}
		return s.publishDelayed(body, delay)
	}

	if err := retry.Do(ctx, s.retryCfg, publish); err != nil {
		return fmt.Errorf("publish retry job %s: %w", job.RecordID, err)
	}

	s.metrics.JobScheduled()
	s.logger.Debug("retry job scheduled",
		slog.String("record_id", job.RecordID),
		slog.Duration("delay", delay))
	return nil
}

// publishDelayed parks the message in a holding queue whose TTL dead-letters
// into the ready queue. The holding queue expires itself shortly after the
// message leaves it.
func (s *Scheduler) publishDelayed(body []byte, delay time.Duration) error {
	holdQueue := fmt.Sprintf("%s.hold.%d", s.readyQueue, time.Now().UnixNano())

	_, err := s.ch.QueueDeclare(
		holdQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl":             delay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": s.readyQueue,
			"x-expires":                 delay.Milliseconds() + 60_000,
		},
	)
	if err != nil {
		return fmt.Errorf("declare holding queue: %w", err)
	}
	return s.publishTo(holdQueue, body)
}

func (s *Scheduler) publishTo(queue string, body []byte) error {
	return s.ch.Publish(
		"", // default exchange
		queue,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (s *Scheduler) Close() error {
	return s.ch.Close()
}
