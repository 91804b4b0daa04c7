package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/models"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
)

type fakePresence struct {
	online bool
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakePresence) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.online, f.err
}

type fakeTokens struct {
	tokens      []models.DeviceToken
	err         error
	deactivated []string
	mu          sync.Mutex
}

func (f *fakeTokens) ActiveTokens(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	return f.tokens, f.err
}

func (f *fakeTokens) Deactivate(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, token)
	return nil
}

type fakeProvider struct {
	resp  *PushResponse
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Send(ctx context.Context, payload *PushPayload) (*PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.resp, f.err
}

type recordedFailure struct {
	userID   string
	event    string
	payload  models.NotificationPayload
	cause    string
	priority models.Priority
}

type fakeRecorder struct {
	failures []recordedFailure
	err      error
	mu       sync.Mutex
}

func (f *fakeRecorder) RecordFailure(ctx context.Context, userID, event string, payload models.NotificationPayload, cause string, priority models.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, recordedFailure{userID, event, payload, cause, priority})
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeToken(userID, token string) models.DeviceToken {
	return models.DeviceToken{UserID: userID, Token: token, Platform: "android", Active: true}
}

func newTestOrchestrator(presence *fakePresence, tokens *fakeTokens, provider *fakeProvider, recorder *fakeRecorder) *Orchestrator {
	return NewOrchestrator(presence, tokens, provider, recorder, metrics.New(), testLogger(), "user", 10, time.Millisecond)
}

func payloadFixture() models.NotificationPayload {
	return models.NotificationPayload{
		Title:    "New quotation",
		Body:     "Your quotation was accepted",
		Category: "quotation_accepted",
	}
}

func TestSendHybridLiveShortCircuit(t *testing.T) {
	presence := &fakePresence{online: true}
	tokens := &fakeTokens{tokens: []models.DeviceToken{activeToken("u1", "t1")}}
	provider := &fakeProvider{resp: &PushResponse{SuccessCount: 1}}
	recorder := &fakeRecorder{}
	orch := newTestOrchestrator(presence, tokens, provider, recorder)

	liveCalls := 0
	opts := models.SendOptions{
		Priority: models.PriorityNormal,
		Live: func(ctx context.Context, userID, event string, payload models.NotificationPayload) bool {
			liveCalls++
			return true
		},
	}

	outcome, err := orch.SendHybrid(context.Background(), "u1", "quotation.accepted", payloadFixture(), opts)
	require.NoError(t, err)

	assert.True(t, outcome.LiveChannelUsed)
	assert.True(t, outcome.Succeeded)
	assert.False(t, outcome.PushChannelUsed)
	assert.False(t, outcome.QueuedForRetry)
	assert.Equal(t, 1, liveCalls)
	assert.Equal(t, 0, provider.calls, "push must not be attempted after a live success")
	assert.Empty(t, recorder.failures, "no failure record on live success")
}

func TestSendHybridPushFallbackWhenOffline(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{tokens: []models.DeviceToken{activeToken("u1", "t1")}}
	provider := &fakeProvider{resp: &PushResponse{SuccessCount: 1, Results: []PushResult{{Token: "t1", Success: true}}}}
	recorder := &fakeRecorder{}
	orch := newTestOrchestrator(presence, tokens, provider, recorder)

	opts := models.SendOptions{
		Priority: models.PriorityNormal,
		Live: func(ctx context.Context, userID, event string, payload models.NotificationPayload) bool {
			t.Fatal("live callback must not run for an offline user")
			return false
		},
	}

	outcome, err := orch.SendHybrid(context.Background(), "u1", "quotation.accepted", payloadFixture(), opts)
	require.NoError(t, err)

	assert.True(t, outcome.PushChannelUsed)
	assert.True(t, outcome.Succeeded)
	assert.False(t, outcome.LiveChannelUsed)
	assert.Empty(t, recorder.failures)
}

func TestSendHybridBypassLiveSkipsPresence(t *testing.T) {
	presence := &fakePresence{online: true}
	tokens := &fakeTokens{tokens: []models.DeviceToken{activeToken("u1", "t1")}}
	provider := &fakeProvider{resp: &PushResponse{SuccessCount: 1}}
	orch := newTestOrchestrator(presence, tokens, provider, &fakeRecorder{})

	opts := models.SendOptions{
		BypassLive: true,
		Live: func(ctx context.Context, userID, event string, payload models.NotificationPayload) bool {
			t.Fatal("live callback must not run when bypassed")
			return false
		},
	}

	outcome, err := orch.SendHybrid(context.Background(), "u1", "ev", payloadFixture(), opts)
	require.NoError(t, err)
	assert.True(t, outcome.PushChannelUsed)
	assert.Equal(t, 0, presence.calls)
}

func TestSendHybridBothChannelsFailCreatesRecord(t *testing.T) {
	tests := []struct {
		priority    models.Priority
		maxAttempts int
	}{
		{models.PriorityCritical, 5},
		{models.PriorityHigh, 4},
		{models.PriorityNormal, 3},
		{models.PriorityLow, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			presence := &fakePresence{online: false}
			tokens := &fakeTokens{tokens: []models.DeviceToken{activeToken("u1", "t1")}}
			provider := &fakeProvider{err: fmt.Errorf("provider unreachable")}
			recorder := &fakeRecorder{}
			orch := newTestOrchestrator(presence, tokens, provider, recorder)

			outcome, err := orch.SendHybrid(context.Background(), "u1", "ev", payloadFixture(), models.SendOptions{Priority: tt.priority})
			require.NoError(t, err)

			assert.False(t, outcome.Succeeded)
			assert.True(t, outcome.QueuedForRetry)
			assert.Equal(t, "both channels failed", outcome.Error)

			require.Len(t, recorder.failures, 1, "exactly one failure record")
			failure := recorder.failures[0]
			assert.Equal(t, tt.priority, failure.priority)
			assert.Equal(t, tt.maxAttempts, failure.priority.MaxAttempts())
		})
	}
}

func TestSendHybridNoTokensCritical(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{}
	provider := &fakeProvider{}
	recorder := &fakeRecorder{}
	orch := newTestOrchestrator(presence, tokens, provider, recorder)

	opts := models.SendOptions{
		Priority: models.PriorityCritical,
		Live: func(ctx context.Context, userID, event string, payload models.NotificationPayload) bool {
			return true
		},
	}

	outcome, err := orch.SendHybrid(context.Background(), "u1", "ev", payloadFixture(), opts)
	require.NoError(t, err)

	assert.False(t, outcome.LiveChannelUsed)
	assert.False(t, outcome.PushChannelUsed)
	assert.True(t, outcome.QueuedForRetry)
	assert.Equal(t, 0, provider.calls, "no tokens means no provider call")

	require.Len(t, recorder.failures, 1)
	assert.Equal(t, models.PriorityCritical, recorder.failures[0].priority)
	assert.Equal(t, 5, recorder.failures[0].priority.MaxAttempts())
	assert.Contains(t, recorder.failures[0].cause, "no active device tokens")
}

func TestSendHybridDeactivatesInvalidTokens(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{tokens: []models.DeviceToken{
		activeToken("u1", "t1"),
		activeToken("u1", "t2"),
		activeToken("u1", "t3"),
	}}
	provider := &fakeProvider{resp: &PushResponse{
		SuccessCount: 2,
		FailureCount: 1,
		Results: []PushResult{
			{Token: "t1", Success: true},
			{Token: "t2", Success: false, Error: &PushError{Code: "SOME_CODE", Message: "Registration Not Found"}},
			{Token: "t3", Success: true},
		},
	}}
	recorder := &fakeRecorder{}
	orch := newTestOrchestrator(presence, tokens, provider, recorder)

	outcome, err := orch.SendHybrid(context.Background(), "u1", "ev", payloadFixture(), models.SendOptions{})
	require.NoError(t, err)

	assert.True(t, outcome.Succeeded, "partial success still succeeds")
	assert.Equal(t, []string{"t2"}, tokens.deactivated, "only the invalid token is deactivated")
	assert.Empty(t, recorder.failures)
}

func TestSendHybridLiveCallbackPanicDegradesToPush(t *testing.T) {
	presence := &fakePresence{online: true}
	tokens := &fakeTokens{tokens: []models.DeviceToken{activeToken("u1", "t1")}}
	provider := &fakeProvider{resp: &PushResponse{SuccessCount: 1}}
	orch := newTestOrchestrator(presence, tokens, provider, &fakeRecorder{})

	opts := models.SendOptions{
		Live: func(ctx context.Context, userID, event string, payload models.NotificationPayload) bool {
			panic("session gateway exploded")
		},
	}

	outcome, err := orch.SendHybrid(context.Background(), "u1", "ev", payloadFixture(), opts)
	require.NoError(t, err)
	assert.True(t, outcome.PushChannelUsed)
	assert.True(t, outcome.Succeeded)
}

func TestSendHybridMalformedInput(t *testing.T) {
	orch := newTestOrchestrator(&fakePresence{}, &fakeTokens{}, &fakeProvider{}, &fakeRecorder{})

	_, err := orch.SendHybrid(context.Background(), "", "ev", payloadFixture(), models.SendOptions{})
	assert.Error(t, err)

	_, err = orch.SendHybrid(context.Background(), "u1", "", payloadFixture(), models.SendOptions{})
	assert.Error(t, err)

	_, err = orch.SendHybrid(context.Background(), "u1", "ev", models.NotificationPayload{}, models.SendOptions{})
	assert.Error(t, err)
}

func TestSendHybridLedgerFailureDoesNotPropagate(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{}
	recorder := &fakeRecorder{err: fmt.Errorf("database down")}
	orch := newTestOrchestrator(presence, tokens, &fakeProvider{}, recorder)

	outcome, err := orch.SendHybrid(context.Background(), "u1", "ev", payloadFixture(), models.SendOptions{})
	require.NoError(t, err, "ledger persist failure must not crash the send path")
	assert.False(t, outcome.Succeeded)
	assert.False(t, outcome.QueuedForRetry, "a failed ledger write is not a queued retry")
}

func TestRetryNeverCreatesRecord(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{}
	recorder := &fakeRecorder{}
	orch := newTestOrchestrator(presence, tokens, &fakeProvider{}, recorder)

	outcome := orch.Retry(context.Background(), "u1", "ev", payloadFixture(), nil)
	assert.False(t, outcome.Succeeded)
	assert.Empty(t, recorder.failures, "retry must never open a new record")
}

func TestSendToManyBatches(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{tokens: []models.DeviceToken{activeToken("", "t1")}}
	provider := &fakeProvider{resp: &PushResponse{SuccessCount: 1}}
	orch := newTestOrchestrator(presence, tokens, provider, &fakeRecorder{})

	userIDs := make([]string, 23)
	for i := range userIDs {
		userIDs[i] = fmt.Sprintf("user-%d", i)
	}

	out := orch.SendToMany(context.Background(), userIDs, "ev", payloadFixture(), models.SendOptions{BatchSize: 10})

	assert.Equal(t, 3, out.Batches, "23 users with batch size 10 means 3 batches")
	assert.Equal(t, 23, out.Sent+out.Failed+out.Queued, "every user accounted for")
	assert.Equal(t, 23, out.Sent)
}

func TestSendToManyIsolatesFailures(t *testing.T) {
	presence := &fakePresence{online: false}
	tokens := &fakeTokens{}
	recorder := &fakeRecorder{}
	orch := newTestOrchestrator(presence, tokens, &fakeProvider{}, recorder)

	// Users without tokens queue for retry; the empty id fails validation.
	userIDs := []string{"u1", "", "u3"}
	out := orch.SendToMany(context.Background(), userIDs, "ev", payloadFixture(), models.SendOptions{BatchSize: 2})

	assert.Equal(t, 2, out.Batches)
	assert.Equal(t, 0, out.Sent)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 2, out.Queued)
	assert.Equal(t, 3, out.Sent+out.Failed+out.Queued)
}
