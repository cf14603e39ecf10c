package tiered_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/adapter/tiered"
	"github.com/TheOliver413/taskmanager-back/internal/port/cache/cachetest"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestTiered_Compliance(t *testing.T) {
	cachetest.RunCompliance(t, tiered.New(newMemCache(), newMemCache(), time.Minute))
}

func TestTiered_ComplianceWithoutL2(t *testing.T) {
	cachetest.RunCompliance(t, tiered.New(newMemCache(), nil, time.Minute))
}

func TestTiered_L2HitWithBackfill(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	l2.data["user.2"] = []byte("1")

	val, found, err := c.Get(ctx, "user.2")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "1" {
		t.Fatalf("expected L2 hit with 1, got %q (found=%v)", val, found)
	}
	if string(l1.data["user.2"]) != "1" {
		t.Fatal("expected L1 backfill")
	}
	if l1.ttls["user.2"] != 5*time.Minute {
		t.Fatalf("expected backfill ttl 5m, got %v", l1.ttls["user.2"])
	}
}

func TestTiered_L1TTLIsCapped(t *testing.T) {
	l1 := newMemCache()
	c := tiered.New(l1, newMemCache(), time.Minute)
	ctx := context.Background()

	_ = c.Set(ctx, "long", []byte("v"), time.Hour)
	_ = c.Set(ctx, "short", []byte("v"), time.Second)
	_ = c.Set(ctx, "forever", []byte("v"), 0)

	if l1.ttls["long"] != time.Minute || l1.ttls["forever"] != time.Minute {
		t.Fatalf("expected L1 ttl capped to 1m, got %v", l1.ttls)
	}
	if l1.ttls["short"] != time.Second {
		t.Fatalf("expected short ttl kept, got %v", l1.ttls["short"])
	}
}

func TestTiered_L2FailureDegradesToL1(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	l2.err = errors.New("connection refused")
	c := tiered.New(l1, l2, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set should not surface L2 errors, got %v", err)
	}
	val, found, err := c.Get(ctx, "k")
	if err != nil || !found || string(val) != "v" {
		t.Fatalf("expected L1 hit, got %q found=%v err=%v", val, found, err)
	}
	if _, found, err := c.Get(ctx, "other"); err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete should not surface L2 errors, got %v", err)
	}
}

func TestTiered_L1FailureIsReturned(t *testing.T) {
	l1 := newMemCache()
	l1.err = errors.New("boom")
	c := tiered.New(l1, newMemCache(), time.Minute)

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected L1 error")
	}
}
