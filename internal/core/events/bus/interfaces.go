package bus

import (
	"errors"
	"reflect"
)

var (
	ErrQueueNotFound = errors.New("message queue not found")
	ErrNilPayload    = errors.New("nil message payload")
)

// Subscription represents a handler bound to one message type of a queue.
// Use Cancel to stop receiving messages.
type Subscription interface {
	// ID is a unique identifier for this subscription.
	ID() string
	// MessageType returns the payload type this subscription receives.
	MessageType() reflect.Type
	// IsActive reports whether this subscription is still registered.
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// Sender delivers messages into named queues. It is the only part of the
// dispatcher safe to hand to another goroutine.
type Sender interface {
	Send(queue string, payload any) error
}
