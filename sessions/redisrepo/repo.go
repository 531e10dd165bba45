// Package redisrepo stores sessions in Redis so they survive restarts and can be shared
// between instances. Records expire with the key TTL.
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/charger-dashboard/internal/errors"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "charger:session:"

type Repo struct {
	redis redis.UniversalClient
}

func New(client redis.UniversalClient) *Repo {
	return &Repo{redis: client}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (r *Repo) Upsert(ctx context.Context, record sessions.Record) error {
	if record.ID == "" {
		return fmt.Errorf("sessionID is required")
	}
	ttl := record.ExpiresAt.Sub(sessions.NowTimeFunc())
	if ttl <= 0 {
		return r.Delete(ctx, record.ID)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.redis.Set(ctx, key(record.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, sessionID string) (sessions.Record, error) {
	if sessionID == "" {
		return sessions.Record{}, errors.ErrSessionNotFound
	}
	data, err := r.redis.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sessions.Record{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return sessions.Record{}, fmt.Errorf("failed to load session: %w", err)
	}

	var record sessions.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return sessions.Record{}, fmt.Errorf("failed to decode session: %w", err)
	}
	if !sessions.NowTimeFunc().Before(record.ExpiresAt) {
		return sessions.Record{}, errors.ErrSessionExpired
	}
	return record, nil
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.redis.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping verifies the connection, bounded by timeout.
func (r *Repo) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.redis.Ping(ctx).Err()
}
