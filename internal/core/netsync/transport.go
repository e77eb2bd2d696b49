package netsync

import (
	"context"
	"errors"
)

var (
	ErrClosed        = errors.New("transport closed")
	ErrUnknownClient = errors.New("unknown client")
	ErrNotOwned      = errors.New("component not owned by client")
)

// Transport carries whole snapshot payloads between two peers in send order.
// Payload boundaries are kept by the underlying protocol.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
