package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/messagequeue"
	"github.com/TheOliver413/taskmanager-back/internal/resilience"
)

func sampleTask() *task.Task {
	return &task.Task{ID: 7, Title: "Report", Status: task.StatusPending, CreatorID: 1}
}

func TestChangeNotifier_PublishIgnoresCallerCancellation(t *testing.T) {
	q := newMockQueue()
	n := NewChangeNotifier(q, nil, nil, testChannel, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Publish(ctx, sampleTask(), nil)

	msgs := q.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	p, err := messagequeue.DecodeTaskUpdated(msgs[0].data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Task.ID != 7 || p.AssignedUsers == nil {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestChangeNotifier_WithoutQueueBroadcastsLocally(t *testing.T) {
	hub := &mockBroadcaster{}
	n := NewChangeNotifier(nil, nil, hub, testChannel, time.Second, nil)

	n.Publish(context.Background(), sampleTask(), []user.Summary{{ID: 1, Name: "Ana"}})

	events := hub.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].channel != testChannel || events[0].eventType != messagequeue.EventTaskUpdated {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	p, ok := events[0].payload.(messagequeue.TaskUpdatedPayload)
	if !ok || len(p.AssignedUsers) != 1 {
		t.Fatalf("unexpected payload: %#v", events[0].payload)
	}
}

func TestChangeNotifier_BreakerStopsPublishing(t *testing.T) {
	q := newMockQueue()
	q.publishErr = errors.New("broker down")
	hub := &mockBroadcaster{}
	br := resilience.NewBreaker("notify", 2, time.Minute)
	n := NewChangeNotifier(q, br, hub, testChannel, time.Second, nil)

	for range 3 {
		n.Publish(context.Background(), sampleTask(), nil)
	}

	if got := q.callCount(); got != 2 {
		t.Fatalf("expected breaker to stop after 2 failures, got %d publish calls", got)
	}
	if br.State() != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %s", br.State())
	}
	if got := len(hub.all()); got != 3 {
		t.Fatalf("expected 3 local fallbacks, got %d", got)
	}
}

func TestChangeNotifier_NoFallbackWhenDeliveryUnknown(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing ack", fmt.Errorf("publish: %w", messagequeue.ErrDeliveryUnknown)},
		{"deadline exceeded", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newMockQueue()
			q.publishErr = tt.err
			hub := &mockBroadcaster{}
			n := NewChangeNotifier(q, nil, hub, testChannel, time.Second, nil)

			n.Publish(context.Background(), sampleTask(), nil)

			if got := q.callCount(); got != 1 {
				t.Fatalf("expected 1 publish call, got %d", got)
			}
			if got := len(hub.all()); got != 0 {
				t.Fatalf("expected no local broadcast, got %d", got)
			}
		})
	}
}

func TestChangeNotifier_Relay(t *testing.T) {
	q := newMockQueue()
	hub := &mockBroadcaster{}
	n := NewChangeNotifier(q, nil, hub, testChannel, time.Second, nil)

	stop, err := n.Relay(context.Background())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), testChannel, []byte(`{"event":"Other"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := len(hub.all()); got != 0 {
		t.Fatalf("expected invalid message to be dropped, got %d events", got)
	}

	n.Publish(context.Background(), sampleTask(), nil)
	events := hub.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 relayed event, got %d", len(events))
	}
	p, ok := events[0].payload.(messagequeue.TaskUpdatedPayload)
	if !ok || p.Task.ID != 7 {
		t.Fatalf("unexpected payload: %#v", events[0].payload)
	}
}

func TestChangeNotifier_RelayWithoutQueue(t *testing.T) {
	n := NewChangeNotifier(nil, nil, &mockBroadcaster{}, testChannel, time.Second, nil)
	stop, err := n.Relay(context.Background())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	stop()
}
