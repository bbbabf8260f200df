package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSessionPrefix  = "cachesvc:"
	defaultSessionIdleTTL = 30 * time.Minute
	sessionPingTimeout    = 500 * time.Millisecond
)

// SessionConfig holds configuration for the session-scoped backend.
type SessionConfig struct {
	Addr      string        // Redis address (e.g. "localhost:6379")
	Password  string        // Redis password
	DB        int           // Redis database number
	KeyPrefix string        // Key prefix for namespacing (default: "cachesvc:")
	SessionID string        // Session identifier (default: random UUID)
	IdleTTL   time.Duration // Session lifetime after the last write (default: 30m)
}

// Session is a Backend whose items live for the duration of one session.
// All items of a session are kept in a single Redis hash which expires after
// IdleTTL without writes, taking the whole session with it.
type Session struct {
	client     *redis.Client
	ownsClient bool
	sessionID  string
	hashKey    string
	idleTTL    time.Duration
}

// NewSession creates a session backend with its own Redis client.
func NewSession(cfg SessionConfig) *Session {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewSessionFromClient(client, cfg)
	s.ownsClient = true
	return s
}

// NewSessionFromClient creates a session backend using an existing client.
// Addr, Password and DB in cfg are ignored. The client is not closed by Close.
func NewSessionFromClient(client *redis.Client, cfg SessionConfig) *Session {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	id := cfg.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultSessionIdleTTL
	}
	return &Session{
		client:    client,
		sessionID: id,
		hashKey:   prefix + "session:" + id,
		idleTTL:   ttl,
	}
}

// SessionID returns the identifier of the session this backend is bound to.
func (s *Session) SessionID() string {
	return s.sessionID
}

func (s *Session) GetItem(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.HGet(ctx, s.hashKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Session) SetItem(ctx context.Context, key string, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey, key, value)
		pipe.Expire(ctx, s.hashKey, s.idleTTL)
		return nil
	})
	return err
}

func (s *Session) RemoveItem(ctx context.Context, key string) error {
	return s.client.HDel(ctx, s.hashKey, key).Err()
}

func (s *Session) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.hashKey).Err()
}

func (s *Session) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.hashKey).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Session) Key(ctx context.Context, index int) (string, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(keys) {
		return "", ErrNotFound
	}
	return keys[index], nil
}

// Keys fetches the whole session field list in one HKEYS round trip.
func (s *Session) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.hashKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Session) Type() Type { return TypeSession }

// IsEnabled pings Redis with a short timeout.
func (s *Session) IsEnabled(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, sessionPingTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

func (s *Session) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}
