package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestStoreMemoryFallbackRoundTrip(t *testing.T) {
	s := NewStore(nil, time.Hour)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on empty store")
	}

	want := Response{StatusCode: 202, Body: []byte("accepted")}
	if err := s.Set(ctx, "key-1", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get(ctx, "key-1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.StatusCode != want.StatusCode || string(got.Body) != string(want.Body) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

type fakeBackend struct {
	data map[string]string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{data: make(map[string]string)} }

func (f *fakeBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeBackend) Get(ctx context.Context, key string) (string, error) {
	return f.data[key], nil
}

func TestStoreBackedRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	s := NewStore(backend, time.Hour)
	ctx := context.Background()

	want := Response{StatusCode: 409, Body: []byte(`{"error":"duplicate"}`)}
	if err := s.Set(ctx, "evt-1", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get(ctx, "evt-1")
	if !ok {
		t.Fatal("expected hit from backend")
	}
	if got.StatusCode != want.StatusCode {
		t.Fatalf("got status %d, want %d", got.StatusCode, want.StatusCode)
	}
}
