package transport

import (
	"context"
	"sync"

	"github.com/udit2303/sitegossip/pkg/keys"
)

// Subscription is the application's handle on one topic: an outbound sink,
// an inbound event stream and a one-shot readiness signal.
type Subscription struct {
	net    *Network
	topic  keys.TopicID
	events chan Event

	ready     chan struct{}
	readyOnce sync.Once
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() keys.TopicID {
	return s.topic
}

// Events yields inbound frames for the topic. The channel is closed when
// the network shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Ready is closed once at least one peer is connected.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Send broadcasts b to every connected peer. It is safe for concurrent use.
// Having no peers is not an error; the broadcast is simply lost.
func (s *Subscription) Send(ctx context.Context, b []byte) error {
	return s.send(ctx, CategoryGossip, b)
}

func (s *Subscription) send(ctx context.Context, c Category, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.net.isClosed() {
		return ErrSinkClosed
	}
	frame := encodeFrame(c, s.topic, b)
	if c == CategoryGossip {
		s.net.markSeen(frame)
	}
	s.net.broadcast(frame, nil)
	return nil
}

func (s *Subscription) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}
