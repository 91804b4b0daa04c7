package models

import (
	"encoding/json"
	"time"
)

// Resolution methods recorded when a failure record is closed out.
const (
	MethodLive  = "live"
	MethodPush  = "push"
	MethodSMS   = "sms"
	MethodEmail = "email"
)

// backoffTable is the fixed delay sequence between successive retry attempts.
var backoffTable = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	8 * time.Hour,
}

// BackoffDelay returns the delay preceding the given attempt number. Attempts
// past the end of the table reuse the last entry.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffTable) {
		attempt = len(backoffTable) - 1
	}
	return backoffTable[attempt]
}

// FailureRecord is the durable trace of a notification that failed both
// delivery channels. Only the ledger manager writes to it; a record is
// terminated either by resolution or by exhausting its attempts.
type FailureRecord struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	UserID         string     `gorm:"index" json:"user_id"`
	Event          string     `json:"event"`
	Priority       Priority   `json:"priority"`
	Payload        string     `json:"payload"`
	Attempt        int        `json:"attempt"`
	MaxAttempts    int        `json:"max_attempts"`
	NextRetryAt    time.Time  `gorm:"index" json:"next_retry_at"`
	Resolved       bool       `gorm:"index" json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedMethod string     `json:"resolved_method,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (FailureRecord) TableName() string {
	return "notification_failures"
}

// Exhausted reports whether the record has consumed its retry budget.
func (r *FailureRecord) Exhausted() bool {
	return r.Attempt >= r.MaxAttempts
}

// DecodePayload reconstructs the original notification payload from the
// stored snapshot.
func (r *FailureRecord) DecodePayload() (NotificationPayload, error) {
	var p NotificationPayload
	if err := json.Unmarshal([]byte(r.Payload), &p); err != nil {
		return NotificationPayload{}, err
	}
	return p, nil
}

// EncodePayload snapshots a payload for durable storage.
func EncodePayload(p NotificationPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
