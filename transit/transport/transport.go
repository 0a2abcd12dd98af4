// Package transport defines the pluggable transport contract:
// connect/disconnect/subscribe/publish over topics, with payloads already
// serialized to bytes by the caller.
package transport

import "context"

// Handler receives a message delivered on a subscribed topic.
type Handler func(payload []byte)

// Transport is the abstraction Transit runs its frame exchange over.
// Implementations must deliver messages in arrival order per topic per
// subscriber and report connection loss out-of-band (via the error
// returned from a blocking Connect, or a future call failing).
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Subscribe(topic string, handler Handler) error
	Publish(topic string, payload []byte) error
}
