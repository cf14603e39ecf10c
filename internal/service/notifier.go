package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tmotel "github.com/TheOliver413/taskmanager-back/internal/adapter/otel"
	"github.com/TheOliver413/taskmanager-back/internal/domain/task"
	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/broadcast"
	"github.com/TheOliver413/taskmanager-back/internal/port/messagequeue"
	"github.com/TheOliver413/taskmanager-back/internal/resilience"
)

// ChangeNotifier publishes TaskUpdatedEvent messages after a mutation has
// committed. Publishing is best effort: failures are logged and counted but
// never reach the caller.
//
// With a queue the event goes to the broker and comes back to the local hub
// through Relay, so every instance's subscribers see it. Without a queue, or
// when the broker rejects the message, the event goes straight to the hub.
// When the outcome of a publish is unknown the hub is left alone, so local
// subscribers never get the event twice.
type ChangeNotifier struct {
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	hub     broadcast.Broadcaster
	channel string
	timeout time.Duration
	metrics *tmotel.Metrics
}

// NewChangeNotifier creates a notifier for channel. queue, breaker, hub and
// metrics may each be nil.
func NewChangeNotifier(queue messagequeue.Queue, breaker *resilience.Breaker, hub broadcast.Broadcaster, channel string, timeout time.Duration, metrics *tmotel.Metrics) *ChangeNotifier {
	return &ChangeNotifier{
		queue:   queue,
		breaker: breaker,
		hub:     hub,
		channel: channel,
		timeout: timeout,
		metrics: metrics,
	}
}

// Channel returns the channel events are published on.
func (n *ChangeNotifier) Channel() string {
	return n.channel
}

// Publish sends the fresh state of t and its assignees. It does not honor
// cancellation of ctx: the mutation has already committed.
func (n *ChangeNotifier) Publish(ctx context.Context, t *task.Task, assignees []user.Summary) {
	if assignees == nil {
		assignees = []user.Summary{}
	}
	payload := messagequeue.TaskUpdatedPayload{
		Event:         messagequeue.EventTaskUpdated,
		Task:          *t,
		AssignedUsers: assignees,
	}

	ctx = context.WithoutCancel(ctx)
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	ctx, span := tmotel.StartNotifySpan(ctx, n.channel, t.ID)

	err := n.publish(ctx, &payload)
	tmotel.EndSpan(span, err)
	if err == nil {
		return
	}

	slog.ErrorContext(ctx, "change notification failed", "task_id", t.ID, "channel", n.channel, "error", err)
	if n.metrics != nil {
		n.metrics.NotifyFailures.Add(ctx, 1)
	}
	if n.queue == nil || n.hub == nil {
		return
	}
	if deliveryUnknown(err) {
		// The relay delivers it if the broker stored it.
		slog.WarnContext(ctx, "skipping local fallback, broker may hold the event", "task_id", t.ID)
		return
	}
	n.hub.BroadcastEvent(ctx, n.channel, messagequeue.EventTaskUpdated, payload)
}

func deliveryUnknown(err error) bool {
	return errors.Is(err, messagequeue.ErrDeliveryUnknown) || errors.Is(err, context.DeadlineExceeded)
}

func (n *ChangeNotifier) publish(ctx context.Context, payload *messagequeue.TaskUpdatedPayload) error {
	if n.queue == nil {
		if n.hub != nil {
			n.hub.BroadcastEvent(ctx, n.channel, messagequeue.EventTaskUpdated, *payload)
		}
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", payload.Event, err)
	}
	send := func(ctx context.Context) error {
		return n.queue.Publish(ctx, n.channel, data)
	}
	if n.breaker == nil {
		return send(ctx)
	}
	return n.breaker.Execute(ctx, send)
}

// Relay forwards events from the queue to the local hub. It returns a stop
// function; without a queue it is a no-op.
func (n *ChangeNotifier) Relay(ctx context.Context) (func(), error) {
	if n.queue == nil || n.hub == nil {
		return func() {}, nil
	}

	stop, err := n.queue.Subscribe(ctx, n.channel, func(ctx context.Context, _ string, data []byte) error {
		p, err := messagequeue.DecodeTaskUpdated(data)
		if err != nil {
			// Malformed messages are acked and dropped.
			slog.WarnContext(ctx, "dropping invalid tasks channel message", "channel", n.channel, "error", err)
			return nil
		}
		n.hub.BroadcastEvent(ctx, n.channel, p.Event, *p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	return stop, nil
}
