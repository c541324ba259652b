// ABOUTME: Session handler backed by Redis hashes with native key expiry
// ABOUTME: A per-principal set without expiry indexes sessions for bulk revocation

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix   = "chartguard:session:"
	principalKeyPrefix = "chartguard:principal-sessions:"
	defaultRedisTTL    = 8 * time.Hour
	defaultDialTimeout = 5 * time.Second
)

// RedisConfig captures the settings for the Redis session backend.
type RedisConfig struct {
	Addr    string
	DB      int
	TTL     time.Duration // key expiry; should match the session lifetime
	Timeout time.Duration
}

// RedisHandler stores each session as a hash keyed chartguard:session:<id>.
type RedisHandler struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Ensure RedisHandler implements Handler.
var _ Handler = (*RedisHandler)(nil)

// NewRedisHandler creates a handler with its own client. Call Open to verify connectivity.
func NewRedisHandler(cfg RedisConfig, now func() time.Time) *RedisHandler {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	return newRedisHandler(client, cfg, now)
}

func newRedisHandler(client *redis.Client, cfg RedisConfig, now func() time.Time) *RedisHandler {
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &RedisHandler{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		now:     now,
		logger:  slog.Default().With("component", "session", "backend", "redis"),
	}
}

// Open pings Redis within the configured timeout.
func (h *RedisHandler) Open(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (h *RedisHandler) Close() error {
	return h.client.Close()
}

// Read loads a record and refreshes its last activity and expiry.
func (h *RedisHandler) Read(ctx context.Context, id string) (*Record, error) {
	key := sessionKey(id)
	fields, err := h.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	rec, err := decodeRecord(id, fields)
	if err != nil {
		return nil, err
	}

	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "last_activity", formatTime(h.now()))
		pipe.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}
	return rec, nil
}

// Write stores a record, keeping the original created_at on overwrite.
func (h *RedisHandler) Write(ctx context.Context, r *Record) error {
	key := sessionKey(r.ID)
	payload := r.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"principal_id", r.PrincipalID,
			"payload", payload,
			"last_activity", formatTime(r.LastActivity),
		)
		pipe.HSetNX(ctx, key, "created_at", formatTime(r.CreatedAt))
		pipe.Expire(ctx, key, h.ttl)
		// the index never expires; GC prunes members whose session keys are gone
		if r.PrincipalID != "" {
			pipe.SAdd(ctx, principalKey(r.PrincipalID), r.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Destroy removes a record and its index entry.
func (h *RedisHandler) Destroy(ctx context.Context, id string) error {
	key := sessionKey(id)
	principalID, err := h.client.HGet(ctx, key, "principal_id").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("destroying session: %w", err)
	}

	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if principalID != "" {
			pipe.SRem(ctx, principalKey(principalID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}

// DestroyPrincipal removes every indexed session of principalID.
func (h *RedisHandler) DestroyPrincipal(ctx context.Context, principalID string) (int, error) {
	idx := principalKey(principalID)
	ids, err := h.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("listing principal sessions: %w", err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}

	var deleted int64
	if len(keys) > 0 {
		deleted, err = h.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("destroying principal sessions: %w", err)
		}
	}
	if err := h.client.Del(ctx, idx).Err(); err != nil {
		return 0, fmt.Errorf("clearing session index: %w", err)
	}

	h.logger.Info("revoked principal sessions", "principal_id", principalID, "count", deleted)
	return int(deleted), nil
}

// GC prunes index entries whose session keys have already expired. Redis
// expires idle sessions itself through the key TTL, so maxAge is unused.
func (h *RedisHandler) GC(ctx context.Context, _ time.Duration) (int, error) {
	pruned := 0
	iter := h.client.Scan(ctx, 0, principalKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		idx := iter.Val()
		ids, err := h.client.SMembers(ctx, idx).Result()
		if err != nil {
			return pruned, fmt.Errorf("listing session index: %w", err)
		}
		for _, id := range ids {
			n, err := h.client.Exists(ctx, sessionKey(id)).Result()
			if err != nil {
				return pruned, fmt.Errorf("checking session: %w", err)
			}
			if n == 0 {
				if err := h.client.SRem(ctx, idx, id).Err(); err != nil {
					return pruned, fmt.Errorf("pruning session index: %w", err)
				}
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scanning session indexes: %w", err)
	}

	if pruned > 0 {
		h.logger.Debug("pruned dangling session index entries", "count", pruned)
	}
	return pruned, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func principalKey(principalID string) string {
	return principalKeyPrefix + principalID
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeRecord(id string, fields map[string]string) (*Record, error) {
	// a touch racing a destroy can leave a hash with only last_activity
	if fields["created_at"] == "" {
		return nil, ErrSessionNotFound
	}

	rec := &Record{
		ID:          id,
		PrincipalID: fields["principal_id"],
		Payload:     []byte(fields["payload"]),
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.LastActivity, err = time.Parse(time.RFC3339Nano, fields["last_activity"]); err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}
	return rec, nil
}
