// Package queue defines the durable-queue abstraction the pipeline consumes
// from and publishes to. Backends exist for GCP Pub/Sub and, for tests and
// local runs, an in-memory broker.
package queue

import (
	"context"
)

// Attribute keys carried alongside the message payload. Retry state lives
// here so retry/backoff is explicit and observable instead of relying on
// broker redelivery counters.
const (
	AttrRetryCount = "x-retry-count"
	AttrLastError  = "x-last-error"
)

// Message is a payload plus its metadata attributes.
type Message struct {
	Body       []byte
	Attributes map[string]string
}

// Delivery is one received message plus its acknowledgement handle.
type Delivery struct {
	Message
	ack func()
}

// NewDelivery wraps a message with its ack callback. Backends construct
// deliveries; tests may too.
func NewDelivery(msg Message, ack func()) Delivery {
	return Delivery{Message: msg, ack: ack}
}

// Ack removes the delivery from the queue. Safe to call once per delivery.
func (d Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Handler processes one delivery. It must ack before returning.
type Handler func(ctx context.Context, d Delivery)

// Consumer drains a subscription, invoking the handler for each delivery
// with bounded concurrency. Receive blocks until the context finishes and
// all in-flight handlers have drained.
type Consumer interface {
	Receive(ctx context.Context, handler Handler) error
	Close() error
}

// Publisher sends messages to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) (string, error)
	Close() error
}
