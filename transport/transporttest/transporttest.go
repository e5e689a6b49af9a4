// Package transporttest provides publisher and subscriber stubs for transport
// tests.
package transporttest

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher accepts and discards every message.
type Publisher struct {
	Closed bool
}

func (*Publisher) Publish(string, ...*message.Message) error { return nil }

func (p *Publisher) Close() error {
	p.Closed = true
	return nil
}

// Subscriber hands out channels that never deliver.
type Subscriber struct {
	Closed bool
}

func (*Subscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}

func (s *Subscriber) Close() error {
	s.Closed = true
	return nil
}
