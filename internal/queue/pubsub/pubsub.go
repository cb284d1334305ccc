// Package pubsub implements the queue abstraction on GCP Pub/Sub.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/rivaleye/pricewatch/internal/queue"
)

// Config identifies the Pub/Sub resources the pipeline uses.
type Config struct {
	ProjectID      string
	SubscriptionID string
	Prefetch       int
}

// Consumer drains one Pub/Sub subscription. The prefetch limit maps onto
// ReceiveSettings.MaxOutstandingMessages, which is what bounds concurrently
// in-flight handlers.
type Consumer struct {
	client *pubsub.Client
	sub    *pubsub.Subscriber
}

// NewConsumer connects a subscriber using Application Default Credentials.
func NewConsumer(ctx context.Context, cfg Config) (*Consumer, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscriber(cfg.SubscriptionID)
	if cfg.Prefetch > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.Prefetch
	}
	return &Consumer{client: client, sub: sub}, nil
}

// Receive blocks, invoking the handler per delivery, until the context is
// canceled. Pub/Sub drains in-flight callbacks before Receive returns,
// which gives the worker its graceful shutdown.
func (c *Consumer) Receive(ctx context.Context, handler queue.Handler) error {
	err := c.sub.Receive(ctx, func(msgCtx context.Context, m *pubsub.Message) {
		delivery := queue.NewDelivery(queue.Message{
			Body:       m.Data,
			Attributes: m.Attributes,
		}, m.Ack)
		handler(msgCtx, delivery)
	})
	if err != nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Close releases the subscriber's client connection.
func (c *Consumer) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// PublisherClient publishes to Pub/Sub topics, caching per-topic publisher
// handles.
type PublisherClient struct {
	client     *pubsub.Client
	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewPublisher connects a publishing client.
func NewPublisher(ctx context.Context, projectID string) (*PublisherClient, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PublisherClient{
		client:     client,
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

// Publish sends the message and waits for the server acknowledgement so
// callers get a real message id back.
func (p *PublisherClient) Publish(ctx context.Context, topic string, msg queue.Message) (string, error) {
	result := p.topicPublisher(topic).Publish(ctx, &pubsub.Message{
		Data:       msg.Body,
		Attributes: msg.Attributes,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return id, nil
}

func (p *PublisherClient) topicPublisher(topic string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.publishers[topic]
	if !ok {
		pub = p.client.Publisher(topic)
		p.publishers[topic] = pub
	}
	return pub
}

// Close stops all topic publishers and the client.
func (p *PublisherClient) Close() error {
	p.mu.Lock()
	for _, pub := range p.publishers {
		pub.Stop()
	}
	p.mu.Unlock()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
