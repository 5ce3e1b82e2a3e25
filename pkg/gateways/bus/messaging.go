package bus

import "context"

const (
	// AtMostOnce and friends mirror the MQTT delivery guarantees.
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
	ExactlyOnce byte = 2
)

// InMsg is one message received from the bus.
type InMsg struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// MessageHandler receives messages of one subscription.
type MessageHandler func(InMsg)

// Messaging is the transport behind Publisher and Subscriber.
type Messaging interface {
	// Start connects to the broker, retrying until it succeeds or ctx is done.
	Start(ctx context.Context) error
	Stop() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}
