package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayTable(t *testing.T) {
	assert.Equal(t, 1*time.Minute, BackoffDelay(0))
	assert.Equal(t, 5*time.Minute, BackoffDelay(1))
	assert.Equal(t, 30*time.Minute, BackoffDelay(2))
	assert.Equal(t, 2*time.Hour, BackoffDelay(3))
	assert.Equal(t, 8*time.Hour, BackoffDelay(4))

	assert.Equal(t, 8*time.Hour, BackoffDelay(9), "attempts past the table reuse the last delay")
	assert.Equal(t, 1*time.Minute, BackoffDelay(-1))
}

func TestPriorityMaxAttempts(t *testing.T) {
	assert.Equal(t, 5, PriorityCritical.MaxAttempts())
	assert.Equal(t, 4, PriorityHigh.MaxAttempts())
	assert.Equal(t, 3, PriorityNormal.MaxAttempts())
	assert.Equal(t, 2, PriorityLow.MaxAttempts())
	assert.Equal(t, 3, Priority("unknown").MaxAttempts(), "unknown tiers default to normal")
}

func TestPayloadSnapshotRoundTrip(t *testing.T) {
	payload := NotificationPayload{
		Title:    "Quotation decision",
		Body:     "Your quotation was accepted",
		Data:     map[string]string{"quotation_id": "q-42"},
		ImageURL: "https://cdn.example.com/check.png",
		Category: "quotation_accepted",
	}

	snapshot, err := EncodePayload(payload)
	require.NoError(t, err)

	rec := FailureRecord{Payload: snapshot}
	decoded, err := rec.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestExhausted(t *testing.T) {
	rec := FailureRecord{Attempt: 2, MaxAttempts: 3}
	assert.False(t, rec.Exhausted())
	rec.Attempt = 3
	assert.True(t, rec.Exhausted())
}
