// Package sessionstore provides the survey session store implementations:
// Redis for production and an in-memory store for tests and the CLI
// simulator. Both enforce the per-session in-flight lock.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/wordmine/wordmine/internal/errs"
	"github.com/wordmine/wordmine/internal/survey"
)

const (
	sessionKeyPrefix = "survey:session:"
	lockKeyPrefix    = "survey:lock:"

	// DefaultTTL expires abandoned sessions.
	DefaultTTL = 24 * time.Hour

	// lockTTL caps how long a crashed step can hold a session hostage.
	lockTTL = 30 * time.Second
)

// Redis stores sessions as JSON values with a TTL and takes the in-flight
// lock with SETNX.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed session store. A non-positive ttl falls
// back to DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get loads a session by id.
func (r *Redis) Get(ctx context.Context, id string) (*survey.Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errs.NotFound("survey session %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load survey session %s: %w", id, err)
	}
	var sess survey.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode survey session %s: %w", id, err)
	}
	return &sess, nil
}

// Put upserts a session, refreshing its TTL.
func (r *Redis) Put(ctx context.Context, sess *survey.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode survey session %s: %w", sess.ID, err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+sess.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store survey session %s: %w", sess.ID, err)
	}
	return nil
}

// Acquire takes the session's step lock, failing with a conflict while
// another step is in flight.
func (r *Redis) Acquire(ctx context.Context, id string) (func(), error) {
	key := lockKeyPrefix + id
	ok, err := r.client.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock survey session %s: %w", id, err)
	}
	if !ok {
		return nil, errs.Conflict("survey session %s has a step in flight", id)
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.client.Del(ctx, key).Err()
	}
	return release, nil
}
