// Package memory contains an in-memory publisher for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// defaultCapacity bounds retained messages so a long-lived dev process
// does not grow without limit; the oldest messages are dropped first.
const defaultCapacity = 1024

// Message captures one published run event.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher retains published run events in a bounded ring for
// inspection. It stands in for the Pub/Sub publisher when no project is
// configured.
type Publisher struct {
	mu     sync.RWMutex
	seq    int
	buf    []Message
	maxLen int
}

// New returns a memory Publisher with the default capacity.
func New() *Publisher {
	return &Publisher{maxLen: defaultCapacity}
}

// Publish records the message and returns its assigned ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg := Message{
		ID:      fmt.Sprintf("mem-%d", p.seq),
		Topic:   topic,
		Payload: payload,
	}
	p.buf = append(p.buf, msg)
	if len(p.buf) > p.maxLen {
		p.buf = p.buf[len(p.buf)-p.maxLen:]
	}
	return msg.ID, nil
}

// Messages returns all retained messages, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.buf))
	copy(out, p.buf)
	return out
}

// TopicMessages returns retained messages for one topic, oldest first.
func (p *Publisher) TopicMessages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Message
	for _, m := range p.buf {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
