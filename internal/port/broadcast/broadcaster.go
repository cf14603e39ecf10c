// Package broadcast defines the port for pushing real-time events to
// clients subscribed to a named channel.
package broadcast

import "context"

// Broadcaster delivers events to the local subscribers of a channel.
// Delivery is best effort; slow or gone subscribers are dropped.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, channel, eventType string, payload any)
}
