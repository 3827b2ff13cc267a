// File: internal/schedule/store.go
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/config"
)

// SessionStore persists the most recently accepted payload for the lifetime
// of an operating session. Implementations must tolerate concurrent access.
type SessionStore interface {
	Put(ctx context.Context, p *WeekPayload) error
	Get(ctx context.Context) (*WeekPayload, error)
	Close() error
}

// ErrNotFound is returned by SessionStore.Get when nothing has been cached.
var ErrNotFound = errors.New("no cached payload")

// redisStore keeps the payload under a fixed key in redis with a TTL, the
// closest analog to the original session-scoped storage.
type redisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.StoreConfig) (SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return &redisStore{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

func (s *redisStore) Put(ctx context.Context, p *WeekPayload) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *redisStore) Get(ctx context.Context) (*WeekPayload, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (s *redisStore) Close() error { return s.client.Close() }

// NopStore is used when no redis is configured; only the in-memory cache of
// the Resolver holds state then.
type NopStore struct{}

func (NopStore) Put(context.Context, *WeekPayload) error   { return nil }
func (NopStore) Get(context.Context) (*WeekPayload, error) { return nil, ErrNotFound }
func (NopStore) Close() error                              { return nil }

// Resolver hands out the payload for a run: in-memory cache first, then the
// session store, then the built-in default. Accepted payloads are written
// through to both layers. Accept arrives on API handler goroutines while
// Resolve runs on the flow goroutine, so the cache is mutex-guarded.
type Resolver struct {
	logger *zap.Logger
	store  SessionStore

	mu  sync.Mutex
	mem *WeekPayload
}

// NewResolver builds a Resolver over the given session store. A nil store is
// replaced with NopStore.
func NewResolver(logger *zap.Logger, store SessionStore) *Resolver {
	if store == nil {
		store = NopStore{}
	}
	return &Resolver{logger: logger.Named("payload_resolver"), store: store}
}

// Accept validates and caches an externally submitted payload.
func (r *Resolver) Accept(ctx context.Context, p *WeekPayload) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("rejecting payload: %w", err)
	}
	r.mu.Lock()
	r.mem = p
	r.mu.Unlock()
	if err := r.store.Put(ctx, p); err != nil {
		// Session-store write failure is not fatal; the in-memory copy
		// still serves the current session.
		r.logger.Warn("failed to persist payload to session store", zap.Error(err))
	}
	r.logger.Info("accepted external payload",
		zap.String("weekStart", p.WeekStartISO),
		zap.Int("days", len(p.Days)))
	return nil
}

// Resolve returns the payload the next run should use. It never fails: an
// empty or corrupt store falls back to the built-in default week.
func (r *Resolver) Resolve(ctx context.Context) *WeekPayload {
	r.mu.Lock()
	cached := r.mem
	r.mu.Unlock()
	if cached != nil {
		r.logger.Debug("using in-memory payload")
		return cached
	}

	p, err := r.store.Get(ctx)
	if err == nil {
		if verr := p.Validate(); verr == nil {
			r.logger.Info("using payload from session store")
			r.mu.Lock()
			r.mem = p
			r.mu.Unlock()
			return p
		}
		r.logger.Warn("session store held an invalid payload; ignoring", zap.Error(p.Validate()))
	} else if !errors.Is(err, ErrNotFound) {
		r.logger.Warn("session store read failed", zap.Error(err))
	}

	r.logger.Info("using built-in default payload")
	return DefaultPayload()
}
