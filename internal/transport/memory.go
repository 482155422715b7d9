package transport

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultPipeBuffer is the per-direction capacity of a pipe
const DefaultPipeBuffer = 64

// PipeEnd is one end of an in-process pipe
type PipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	seq  atomic.Uint64
	acks atomic.Int64

	closed     chan struct{}
	closeOnce  sync.Once
	peerClosed <-chan struct{}
}

// NewPipe returns two connected transport ends. Closing either end closes
// the pipe for both.
func NewPipe(buffer int) (*PipeEnd, *PipeEnd) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}

	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})

	a := &PipeEnd{in: ba, out: ab, closed: aClosed, peerClosed: bClosed}
	b := &PipeEnd{in: ab, out: ba, closed: bClosed, peerClosed: aClosed}
	return a, b
}

// Receive returns the next message sent by the other end. Messages sent
// before the other end closed are still delivered.
func (p *PipeEnd) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-p.closed:
		return Delivery{}, ErrClosed
	default:
	}

	select {
	case data := <-p.in:
		return p.delivery(data), nil
	default:
	}

	select {
	case data := <-p.in:
		return p.delivery(data), nil
	case <-p.closed:
		return Delivery{}, ErrClosed
	case <-p.peerClosed:
		select {
		case data := <-p.in:
			return p.delivery(data), nil
		default:
			return Delivery{}, ErrClosed
		}
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

func (p *PipeEnd) delivery(data []byte) Delivery {
	return Delivery{ID: strconv.FormatUint(p.seq.Add(1), 10), Data: data}
}

// Send delivers a copy of data to the other end, blocking while the pipe is full
func (p *PipeEnd) Send(ctx context.Context, data []byte) error {
	msg := append([]byte(nil), data...)

	select {
	case <-p.closed:
		return ErrClosed
	case <-p.peerClosed:
		return ErrClosed
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-p.peerClosed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ack counts the acknowledgement; pipe deliveries need no redelivery tracking
func (p *PipeEnd) Ack(ctx context.Context, id string) error {
	p.acks.Add(1)
	return nil
}

// Acked returns the number of acknowledged deliveries
func (p *PipeEnd) Acked() int {
	return int(p.acks.Load())
}

// Close closes this end
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
