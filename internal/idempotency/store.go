// Package idempotency caches factory-event-intake responses so a retried
// multipart POST from the same failure event does not trigger a second
// recovery action. Grounded on FluxForge's idempotency/store.go, with a
// Redis backend and an in-memory fallback for tests and single-instance
// deployments.
package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Response is the cached outcome of a previous factory event submission.
type Response struct {
	StatusCode int
	Body       []byte
}

// Backend is the subset of a key-value store the idempotency cache needs.
type Backend interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type entry struct {
	Resp      Response
	Timestamp time.Time
}

// Store caches Responses by idempotency key. With no backend it falls back
// to an in-process map with manual TTL expiry.
type Store struct {
	backend Backend
	ttl     time.Duration
	cache   sync.Map
}

// NewStore builds a Store. backend may be nil, in which case the Store
// operates purely in memory.
func NewStore(backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{backend: backend, ttl: ttl}
}

// Get returns the cached response for key, if any.
func (s *Store) Get(ctx context.Context, key string) (Response, bool) {
	if s.backend != nil {
		val, err := s.backend.Get(ctx, key)
		if err != nil || val == "" {
			return Response{}, false
		}
		var e entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return Response{}, false
		}
		return e.Resp, true
	}

	val, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := val.(entry)
	if time.Since(e.Timestamp) > s.ttl {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.Resp, true
}

// Set caches resp under key for the store's TTL.
func (s *Store) Set(ctx context.Context, key string, resp Response) error {
	e := entry{Resp: resp, Timestamp: time.Now()}
	if s.backend != nil {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return s.backend.Set(ctx, key, string(data), s.ttl)
	}
	s.cache.Store(key, e)
	return nil
}
