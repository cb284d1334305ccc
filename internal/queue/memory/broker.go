// Package memory provides an in-process broker for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rivaleye/pricewatch/internal/queue"
)

// Broker holds bounded per-topic channels. One Broker backs both the
// publisher and any consumers, so a worker and the API surface can share it
// inside a single process.
type Broker struct {
	mu       sync.Mutex
	capacity int
	topics   map[string]chan queue.Message
}

// NewBroker creates a Broker whose topics hold up to capacity messages.
func NewBroker(capacity int) *Broker {
	if capacity <= 0 {
		capacity = 64
	}
	return &Broker{
		capacity: capacity,
		topics:   make(map[string]chan queue.Message),
	}
}

func (b *Broker) topic(name string) chan queue.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan queue.Message, b.capacity)
		b.topics[name] = ch
	}
	return ch
}

// Pull removes and returns the next message on a topic without blocking.
// Test helper for inspecting dead-letter output.
func (b *Broker) Pull(topic string) (queue.Message, bool) {
	select {
	case msg := <-b.topic(topic):
		return msg, true
	default:
		return queue.Message{}, false
	}
}

// Len reports the number of pending messages on a topic.
func (b *Broker) Len(topic string) int {
	return len(b.topic(topic))
}

// Publisher returns a queue.Publisher writing into this broker.
func (b *Broker) Publisher() queue.Publisher {
	return &publisher{broker: b}
}

// Consumer returns a queue.Consumer draining one topic with the given
// prefetch bound.
func (b *Broker) Consumer(topic string, prefetch int) queue.Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &consumer{broker: b, topic: topic, prefetch: prefetch}
}

type publisher struct {
	broker *Broker
}

func (p *publisher) Publish(ctx context.Context, topic string, msg queue.Message) (string, error) {
	cloned := queue.Message{
		Body:       append([]byte(nil), msg.Body...),
		Attributes: make(map[string]string, len(msg.Attributes)),
	}
	for k, v := range msg.Attributes {
		cloned.Attributes[k] = v
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("publish canceled: %w", ctx.Err())
	case p.broker.topic(topic) <- cloned:
		return fmt.Sprintf("memory-%s-%d", topic, p.broker.Len(topic)), nil
	}
}

func (p *publisher) Close() error { return nil }

type consumer struct {
	broker   *Broker
	topic    string
	prefetch int
}

// Receive drains the topic until the context finishes, running up to
// prefetch handlers concurrently, then waits for in-flight handlers.
func (c *consumer) Receive(ctx context.Context, handler queue.Handler) error {
	ch := c.broker.topic(c.topic)
	slots := make(chan struct{}, c.prefetch)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case msg := <-ch:
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(m queue.Message) {
				defer wg.Done()
				defer func() { <-slots }()
				handler(ctx, queue.NewDelivery(m, func() {}))
			}(msg)
		}
	}
}

func (c *consumer) Close() error { return nil }
