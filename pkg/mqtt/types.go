package mqtt

import (
	"context"
)

// MessageHandler processes one inbound message. Handlers run on their own
// goroutine with a bounded context, so they may block briefly.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the MQTT client used by the agent's publisher and by tools that
// talk to agents.
type Client interface {
	// Start begins connecting in the background and returns immediately.
	Start(ctx context.Context) error

	// Disconnect closes the session. The last will is not sent.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter. Registrations are
	// replayed after every reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	// IsConnected follows the connection callbacks; it can lag a silent
	// network failure by up to the keep-alive interval.
	IsConnected() bool
}
