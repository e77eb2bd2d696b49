package netsync

import (
	"context"
	"sync"
)

// pipe is an in-memory Transport pair.
type pipe struct {
	in, out chan []byte
	done    chan struct{}
	once    sync.Once
}

func newPipe() (*pipe, *pipe) {
	ab, ba := make(chan []byte, 16), make(chan []byte, 16)
	done := make(chan struct{})
	return &pipe{in: ba, out: ab, done: done}, &pipe{in: ab, out: ba, done: done}
}

func (p *pipe) Send(ctx context.Context, payload []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.out <- append([]byte(nil), payload...):
		return nil
	}
}

func (p *pipe) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// stalled accepts no payload until the send context ends. Every send context
// is reported on sends.
type stalled struct {
	sends chan context.Context
}

func newStalled() *stalled { return &stalled{sends: make(chan context.Context, 64)} }

func (s *stalled) Send(ctx context.Context, _ []byte) error {
	select {
	case s.sends <- ctx:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stalled) Receive(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stalled) Close() error { return nil }
