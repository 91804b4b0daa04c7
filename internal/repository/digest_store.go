package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// DigestEntry is one escalated opportunity notification waiting for batched
// delivery. The delivery cadence is owned elsewhere; only the append and
// drain contracts live here.
type DigestEntry struct {
	Event    string    `json:"event"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// DigestStore accumulates per-user digests in Redis.
type DigestStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDigestStore(client *redis.Client, ttl time.Duration) *DigestStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &DigestStore{
		client: client,
		ttl:    ttl,
	}
}

func digestKey(userID string) string {
	return "notification:digest:" + userID
}

// Append pushes an entry onto the user's digest and refreshes its expiry.
func (d *DigestStore) Append(ctx context.Context, userID string, entry DigestEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := digestKey(userID)
	if err := d.client.RPush(ctx, key, raw).Err(); err != nil {
		return err
	}
	return d.client.Expire(ctx, key, d.ttl).Err()
}

// Entries returns the user's pending digest in append order.
func (d *DigestStore) Entries(ctx context.Context, userID string) ([]DigestEntry, error) {
	raws, err := d.client.LRange(ctx, digestKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]DigestEntry, 0, len(raws))
	for _, raw := range raws {
		var entry DigestEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear drops the user's digest after it has been delivered.
func (d *DigestStore) Clear(ctx context.Context, userID string) error {
	return d.client.Del(ctx, digestKey(userID)).Err()
}
