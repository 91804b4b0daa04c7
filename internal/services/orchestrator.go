package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/repository"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
)

const (
	defaultBatchSize  = 10
	defaultBatchPause = 200 * time.Millisecond
)

// PresenceChecker reads the presence directory.
type PresenceChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// TokenDirectory reads active device tokens and deactivates dead ones.
type TokenDirectory interface {
	ActiveTokens(ctx context.Context, userID string) ([]models.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
}

// FailureRecorder opens a failure record and schedules its first retry.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, userID, event string, payload models.NotificationPayload, cause string, priority models.Priority) error
}

// Orchestrator drives hybrid delivery: live channel first for connected
// users, push fallback otherwise, failure ledger when both miss. Its public
// methods never return an error for a delivery failure, only for malformed
// input; every channel outcome is reported through DeliveryOutcome.
type Orchestrator struct {
	presence   PresenceChecker
	tokens     TokenDirectory
	push       PushProvider
	ledger     FailureRecorder
	metrics    *metrics.Metrics
	logger     *slog.Logger
	role       string
	batchSize  int
	batchPause time.Duration
}

func NewOrchestrator(
	presence PresenceChecker,
	tokens TokenDirectory,
	push PushProvider,
	ledger FailureRecorder,
	m *metrics.Metrics,
	logger *slog.Logger,
	role string,
	batchSize int,
	batchPause time.Duration,
) *Orchestrator {
	if role == "" {
		role = "user"
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchPause <= 0 {
		batchPause = defaultBatchPause
	}
	return &Orchestrator{
		presence:   presence,
		tokens:     tokens,
		push:       push,
		ledger:     ledger,
		metrics:    m,
		logger:     logger,
		role:       role,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// SendHybrid delivers one notification to one user. The returned error is
// non-nil only for malformed input.
func (o *Orchestrator) SendHybrid(ctx context.Context, userID, event string, payload models.NotificationPayload, opts models.SendOptions) (models.DeliveryOutcome, error) {
	if err := validateSend(userID, event, payload); err != nil {
		return models.DeliveryOutcome{}, err
	}

	if delivered := o.attemptLive(ctx, userID, event, payload, opts); delivered {
		o.metrics.IncSentLive()
		return models.DeliveryOutcome{LiveChannelUsed: true, Succeeded: true}, nil
	}

	delivered, cause := o.attemptPush(ctx, userID, payload)
	if delivered {
		o.metrics.IncSentPush()
		return models.DeliveryOutcome{PushChannelUsed: true, Succeeded: true}, nil
	}

	outcome := models.DeliveryOutcome{Error: "both channels failed"}
	if err := o.ledger.RecordFailure(ctx, userID, event, payload, cause, opts.Priority); err != nil {
		// A ledger write failure must not crash the send path.
		o.logger.Error("failed to record delivery failure",
			slog.String("user_id", userID),
			slog.String("event", event),
			slog.Any("error", fmt.Errorf("%w: %v", ErrLedgerPersist, err)))
		return outcome, nil
	}
	o.metrics.IncQueued()
	outcome.QueuedForRetry = true
	return outcome, nil
}

// Retry re-runs the channel logic for an existing failure record. It never
// opens a new record; that lineage is owned by the retry worker's ledger
// calls.
func (o *Orchestrator) Retry(ctx context.Context, userID, event string, payload models.NotificationPayload, live models.LiveSender) models.DeliveryOutcome {
	opts := models.SendOptions{Live: live}
	if delivered := o.attemptLive(ctx, userID, event, payload, opts); delivered {
		o.metrics.IncSentLive()
		return models.DeliveryOutcome{LiveChannelUsed: true, Succeeded: true}
	}

	delivered, cause := o.attemptPush(ctx, userID, payload)
	if delivered {
		o.metrics.IncSentPush()
		return models.DeliveryOutcome{PushChannelUsed: true, Succeeded: true}
	}
	return models.DeliveryOutcome{Error: cause}
}

// SendToMany fans a notification out to many users in fixed-size batches.
// Sends within a batch run concurrently and independently; a failed send
// never blocks its batch. Batches are separated by a short pause to bound
// load on collaborators.
func (o *Orchestrator) SendToMany(ctx context.Context, userIDs []string, event string, payload models.NotificationPayload, opts models.SendOptions) models.BatchOutcome {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = o.batchSize
	}

	var out models.BatchOutcome
	var mu sync.Mutex

	for start := 0; start < len(userIDs); start += batchSize {
		end := start + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batch := userIDs[start:end]
		out.Batches++

		var wg sync.WaitGroup
		for _, userID := range batch {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				outcome, err := o.SendHybrid(ctx, userID, event, payload, opts)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					out.Failed++
				case outcome.Succeeded:
					out.Sent++
				case outcome.QueuedForRetry:
					out.Queued++
				default:
					out.Failed++
				}
			}(userID)
		}
		wg.Wait()

		if end < len(userIDs) {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(o.batchPause):
			}
		}
	}
	return out
}

// attemptLive runs step one of the hybrid algorithm. A presence read error
// is treated as offline; a panicking caller-supplied callback is treated as
// a miss.
func (o *Orchestrator) attemptLive(ctx context.Context, userID, event string, payload models.NotificationPayload, opts models.SendOptions) bool {
	if opts.Live == nil || opts.BypassLive {
		return false
	}

	role := opts.Role
	if role == "" {
		role = o.role
	}
	online, err := o.presence.Exists(ctx, repository.PresenceKey(role, userID))
	if err != nil {
		o.logger.Warn("presence lookup failed, falling back to push",
			slog.String("user_id", userID), slog.Any("error", err))
		return false
	}
	if !online {
		return false
	}
	return o.invokeLive(ctx, opts.Live, userID, event, payload)
}

func (o *Orchestrator) invokeLive(ctx context.Context, live models.LiveSender, userID, event string, payload models.NotificationPayload) (delivered bool) {
	// The callback is caller-supplied; a panic inside it must degrade to the
	// push channel, not escape the send.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("live channel callback panicked",
				slog.String("user_id", userID), slog.Any("panic", r))
			delivered = false
		}
	}()
	return live(ctx, userID, event, payload)
}

// attemptPush runs steps two and three. It reports whether at least one
// token was delivered to, plus the failure cause when none was.
func (o *Orchestrator) attemptPush(ctx context.Context, userID string, payload models.NotificationPayload) (bool, string) {
	tokens, err := o.tokens.ActiveTokens(ctx, userID)
	if err != nil {
		o.logger.Warn("token lookup failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return false, fmt.Sprintf("%s: token lookup: %v", ErrChannelFailure, err)
	}

	values := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token.Token == "" || !models.SupportsPush(token.Platform) {
			continue
		}
		values = append(values, token.Token)
	}
	if len(values) == 0 {
		return false, fmt.Sprintf("%s: no active device tokens", ErrChannelUnavailable)
	}

	resp, err := o.push.Send(ctx, &PushPayload{
		Tokens:   values,
		Title:    payload.Title,
		Body:     payload.Body,
		Data:     payload.Data,
		ImageURL: payload.ImageURL,
	})
	if err != nil {
		o.logger.Warn("push send failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return false, fmt.Sprintf("%s: %s: %v", ErrChannelFailure, o.push.Name(), err)
	}

	o.deactivateInvalid(ctx, resp.Results)

	if resp.SuccessCount > 0 {
		return true, ""
	}
	return false, fmt.Sprintf("%s: %s rejected all %d tokens", ErrChannelFailure, o.push.Name(), len(values))
}

// deactivateInvalid requests deactivation for tokens the provider classified
// as permanently dead. Deactivation failures never change the send verdict.
func (o *Orchestrator) deactivateInvalid(ctx context.Context, results []PushResult) {
	for _, res := range results {
		if res.Success || !IsTokenInvalid(res.Error) {
			continue
		}
		if err := o.tokens.Deactivate(ctx, res.Token); err != nil {
			o.logger.Warn("token deactivation failed",
				slog.String("token", res.Token), slog.Any("error", err))
			continue
		}
		o.logger.Info("deactivated invalid device token",
			slog.String("token", res.Token), slog.String("code", res.Error.Code))
	}
}

func validateSend(userID, event string, payload models.NotificationPayload) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if event == "" {
		return fmt.Errorf("event name is required")
	}
	if payload.Title == "" && payload.Body == "" {
		return fmt.Errorf("payload requires a title or body")
	}
	return nil
}
