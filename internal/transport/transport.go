package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned once either end of a transport is closed
var ErrClosed = errors.New("transport closed")

// Delivery is one received message
type Delivery struct {
	// ID identifies the delivery for Ack
	ID   string
	Data []byte
}

// Transport is one end of the bidirectional message channel between a
// supervisor and a store worker. Messages are delivered in send order.
type Transport interface {
	// Receive blocks until a message arrives, ctx is done or the transport
	// is closed (ErrClosed)
	Receive(ctx context.Context) (Delivery, error)
	// Send delivers an encoded message to the other end
	Send(ctx context.Context, data []byte) error
	// Ack marks a received message as handled
	Ack(ctx context.Context, id string) error
	// Close releases the transport; pending Receive calls return ErrClosed
	Close() error
}
