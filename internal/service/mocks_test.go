package service

import (
	"context"
	"sync"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/port/messagequeue"
)

type published struct {
	subject string
	data    []byte
}

// mockQueue records publishes and delivers them to local subscribers.
type mockQueue struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string][]messagequeue.Handler
	publishErr error
	calls      int
}

func newMockQueue() *mockQueue {
	return &mockQueue{handlers: make(map[string][]messagequeue.Handler)}
}

func (q *mockQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	q.calls++
	if err := ctx.Err(); err != nil {
		q.mu.Unlock()
		return err
	}
	if q.publishErr != nil {
		q.mu.Unlock()
		return q.publishErr
	}
	q.published = append(q.published, published{subject: subject, data: data})
	handlers := append([]messagequeue.Handler(nil), q.handlers[subject]...)
	q.mu.Unlock()

	for _, h := range handlers {
		_ = h(context.Background(), subject, data)
	}
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = append(q.handlers[subject], handler)
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func (q *mockQueue) messages() []published {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]published(nil), q.published...)
}

type broadcastEvent struct {
	channel   string
	eventType string
	payload   any
}

// mockBroadcaster records hub broadcasts.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, channel, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{channel: channel, eventType: eventType, payload: payload})
}

func (b *mockBroadcaster) all() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent(nil), b.events...)
}

// memCache is a map-backed cache.Cache that counts reads.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
