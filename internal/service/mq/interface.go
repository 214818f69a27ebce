package mq

import "context"

// Message is a broker-neutral event.
type Message struct {
	ID       string            // broker id, e.g. a Redis stream id or kafka partition/offset
	Topic    string
	Key      string            // partition key, the campaign id for lifecycle events
	Payload  []byte            // JSON
	Metadata map[string]string
}

// Producer publishes events.
type Producer interface {
	// Publish sends payload to topic. An empty key lets the broker pick a partition.
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

// Consumer delivers events to a handler.
type Consumer interface {
	// Subscribe consumes topic until ctx is done. A handler error leaves the
	// message unacknowledged.
	Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error
	Close() error
}
