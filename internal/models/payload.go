package models

import "context"

// Priority classifies a notification and controls how many retry attempts it
// is granted once it lands in the failure ledger.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// MaxAttempts returns the retry ceiling for the tier. Unknown tiers fall back
// to the normal ceiling.
func (p Priority) MaxAttempts() int {
	switch p {
	case PriorityCritical:
		return 5
	case PriorityHigh:
		return 4
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// NotificationPayload is the user-facing content of a single notification.
// It is passed by value through the pipeline and never mutated after
// construction.
type NotificationPayload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	Category string            `json:"category,omitempty"`
}

// LiveSender attempts delivery over an already-open session and reports
// whether a connected client actually received the message. Implementations
// are supplied by the session gateway that owns the connections.
type LiveSender func(ctx context.Context, userID, event string, payload NotificationPayload) bool

// SendOptions tunes a single hybrid send.
type SendOptions struct {
	Priority   Priority
	BypassLive bool
	Live       LiveSender
	// Role selects the presence key namespace, e.g. "client" or "professional".
	// Empty means the orchestrator default.
	Role string
	// BatchSize only applies to fan-out sends; zero means the default.
	BatchSize int
}

// DeliveryOutcome is returned once per delivery attempt. It is never
// persisted.
type DeliveryOutcome struct {
	LiveChannelUsed bool   `json:"live_channel_used"`
	PushChannelUsed bool   `json:"push_channel_used"`
	Succeeded       bool   `json:"succeeded"`
	QueuedForRetry  bool   `json:"queued_for_retry"`
	Error           string `json:"error,omitempty"`
}

// BatchOutcome aggregates a fan-out send.
type BatchOutcome struct {
	Batches int `json:"batches"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Queued  int `json:"queued"`
}

// RetryJob is the unit handed to the delayed task scheduler. It carries
// enough of the original send to retry without re-reading the ledger.
type RetryJob struct {
	RecordID      string              `json:"record_id"`
	UserID        string              `json:"user_id"`
	Event         string              `json:"event"`
	Payload       NotificationPayload `json:"payload"`
	OriginalError string              `json:"original_error,omitempty"`

	// Redeliveries counts how many times a worker hit an infrastructure
	// error on this job and republished it. Unrelated to Attempt on the
	// failure record, which only counts real delivery attempts.
	Redeliveries int `json:"redeliveries,omitempty"`
}
