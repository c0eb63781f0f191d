package transport

import (
	"context"
	"sync"

	"quantum-relay/domain/event"
	qerrors "quantum-relay/errors"
)

// ConnectionSink is the buffered bridge between the relay's fan-out and one
// socket's write pump. Consume never blocks: a full buffer or a closed sink
// reports ErrStaleConnectionWrite and the caller drops the event. A slow
// client loses events, it never slows the room down.
type ConnectionSink struct {
	out  chan event.DomainEvent
	done chan struct{}
	once sync.Once
}

func NewConnectionSink(buffer int) *ConnectionSink {
	return &ConnectionSink{
		out:  make(chan event.DomainEvent, buffer),
		done: make(chan struct{}),
	}
}

func (s *ConnectionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return qerrors.ErrStaleConnectionWrite
	default:
	}
	select {
	case s.out <- e:
		return nil
	default:
		return qerrors.ErrStaleConnectionWrite
	}
}

// Out is drained by the connection's write pump.
func (s *ConnectionSink) Out() <-chan event.DomainEvent {
	return s.out
}

// Close makes every later Consume fail fast. Safe to call more than once.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done unblocks the write pump when the sink is closed.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}
