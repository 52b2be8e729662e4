package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

// Default configuration for the Redis session store.
const (
	// DefaultKeyPrefix namespaces session keys in a shared Redis instance.
	DefaultKeyPrefix = "consultos:session:"
	// DefaultTTL bounds how long an abandoned session survives.
	DefaultTTL = 72 * time.Hour
)

// Opts holds configuration options for the Redis session store.
type Opts struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Option defines a configuration option for the Redis session store.
type Option func(*Opts)

// WithAddr sets the Redis server address (host:port).
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(o *Opts) { o.Password = password }
}

// WithDB selects the Redis logical database.
func WithDB(db int) Option {
	return func(o *Opts) { o.DB = db }
}

// WithKeyPrefix overrides the session key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// WithTTL overrides the session expiry.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// RedisStore persists session state as JSON values in Redis with a TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a Redis-backed session store and verifies the
// connection with a ping.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	slog.Debug("Creating Redis session store", "addr", cfg.Addr, "db", cfg.DB, "ttl", cfg.TTL)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "addr", cfg.Addr, "error", err)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("Redis session store connected", "addr", cfg.Addr)
	return &RedisStore{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// LoadSession fetches and decodes the state for a session id.
func (s *RedisStore) LoadSession(ctx context.Context, sessionID string) (*models.SessionState, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	if err != nil {
		slog.Error("RedisStore LoadSession failed", "sessionID", sessionID, "error", err)
		return nil, fmt.Errorf("redis get session %s: %w", sessionID, err)
	}
	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		slog.Error("RedisStore LoadSession unmarshal failed", "sessionID", sessionID, "error", err)
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

// SaveSession encodes and stores the state, refreshing the TTL.
func (s *RedisStore) SaveSession(ctx context.Context, state *models.SessionState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("session state must carry a session id")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	if err := s.client.Set(ctx, s.key(state.SessionID), raw, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveSession failed", "sessionID", state.SessionID, "error", err)
		return fmt.Errorf("redis set session %s: %w", state.SessionID, err)
	}
	return nil
}

// DeleteSession removes the state for a session id.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		slog.Error("RedisStore DeleteSession failed", "sessionID", sessionID, "error", err)
		return fmt.Errorf("redis del session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}
