package redishost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ggoodman/mcp-dispatch/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

var _ sessions.SessionHost = (*Host)(nil)

// maxTxRetries bounds optimistic retries in MutateSession.
const maxTxRetries = 16

// Config for Redis-backed SessionHost. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
}

type Host struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to Redis and verifies the connection with PING.
func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sessions:"
	}
	return &Host{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) sessionKey(sessionID string) string { return h.keyPrefix + "session:" + sessionID }

func (h *Host) CreateSession(ctx context.Context, meta *sessions.SessionMetadata) error {
	if meta == nil || meta.SessionID == "" {
		return fmt.Errorf("redishost: session id is required")
	}
	now := time.Now().UTC()
	stored := *meta
	stored.Capabilities = slices.Clone(meta.Capabilities)
	if stored.MetaVersion == 0 {
		stored.MetaVersion = 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.LastAccess = now

	b, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := h.client.SetNX(ctx, h.sessionKey(meta.SessionID), b, stored.TTL).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return sessions.ErrSessionExists
	}
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.SessionMetadata, error) {
	var out *sessions.SessionMetadata
	err := h.update(ctx, sessionID, func(m *sessions.SessionMetadata) error {
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Host) MutateSession(ctx context.Context, sessionID string, fn func(*sessions.SessionMetadata) error) error {
	return h.update(ctx, sessionID, func(m *sessions.SessionMetadata) error {
		id, created := m.SessionID, m.CreatedAt
		if err := fn(m); err != nil {
			return err
		}
		m.SessionID, m.CreatedAt = id, created
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	if err := h.client.Del(ctx, h.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// update runs fn against the stored record inside a WATCH transaction,
// refreshing LastAccess and the key expiry.
func (h *Host) update(ctx context.Context, sessionID string, fn func(*sessions.SessionMetadata) error) error {
	key := h.sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sessions.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}
		var m sessions.SessionMetadata
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if err := fn(&m); err != nil {
			return err
		}
		m.LastAccess = time.Now().UTC()
		nb, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, m.TTL)
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := h.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redishost: mutate %s: too much contention", sessionID)
}
