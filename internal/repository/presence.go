package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// PresenceDirectory answers whether a user currently holds a live session.
// Connect/disconnect bookkeeping is owned by the session gateway; the core
// only reads, but the full contract is exposed for completeness.
type PresenceDirectory struct {
	client *redis.Client
}

func NewPresenceDirectory(client *redis.Client) *PresenceDirectory {
	return &PresenceDirectory{client: client}
}

// PresenceKey builds the online marker key for a user in a role namespace.
func PresenceKey(role, userID string) string {
	return "online_" + role + ":" + userID
}

// Exists reports whether the key is set.
func (p *PresenceDirectory) Exists(ctx context.Context, key string) (bool, error) {
	n, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Set marks a key, optionally with a TTL. A zero TTL means no expiry; the
// gateway deletes explicitly on disconnect.
func (p *PresenceDirectory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.client.Set(ctx, key, value, ttl).Err()
}

// Delete clears a key.
func (p *PresenceDirectory) Delete(ctx context.Context, key string) error {
	return p.client.Del(ctx, key).Err()
}
