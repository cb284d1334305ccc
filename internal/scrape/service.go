package scrape

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/queue"
)

// Service is the facade in front of the pipeline: it enforces the domain
// policy, canonicalizes URLs, and either fetches immediately or enqueues a
// durable scrape job.
type Service struct {
	policy    *DomainPolicy
	fetcher   PriceFetcher
	publisher queue.Publisher
	topic     string
	clock     Clock
	logger    *zap.Logger
}

// NewService constructs the facade.
func NewService(policy *DomainPolicy, fetcher PriceFetcher, publisher queue.Publisher, topic string, clock Clock, logger *zap.Logger) *Service {
	return &Service{
		policy:    policy,
		fetcher:   fetcher,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
	}
}

// FetchPrice validates and canonicalizes the URL, then runs the fetch
// pipeline synchronously.
func (s *Service) FetchPrice(ctx context.Context, rawURL string, allowRenderFallback bool) (PriceResult, error) {
	canonical, err := s.admit(rawURL)
	if err != nil {
		return PriceResult{}, err
	}
	return s.fetcher.FetchPrice(ctx, canonical, allowRenderFallback)
}

// EnqueueScrape publishes a durable scrape job and returns the broker's
// message id. It never waits for processing; downstream outcomes surface
// through the audit log and the DLQ.
func (s *Service) EnqueueScrape(ctx context.Context, rawURL, competitorID, productID, requestedBy string) (string, error) {
	canonical, err := s.admit(rawURL)
	if err != nil {
		return "", err
	}
	domain, err := ExtractDomain(canonical)
	if err != nil {
		return "", err
	}

	req := Request{
		URL:          canonical,
		Domain:       domain,
		CompetitorID: competitorID,
		ProductID:    productID,
		RequestedBy:  requestedBy,
		RequestedAt:  s.clock.Now().UTC(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal scrape request: %w", err)
	}

	id, err := s.publisher.Publish(ctx, s.topic, queue.Message{
		Body:       body,
		Attributes: map[string]string{queue.AttrRetryCount: "0"},
	})
	if err != nil {
		return "", fmt.Errorf("enqueue scrape: %w", err)
	}
	s.logger.Info("scrape enqueued",
		zap.String("url", canonical),
		zap.String("domain", domain),
		zap.String("message_id", id),
	)
	return id, nil
}

// admit applies the domain policy and canonicalization shared by both
// entry points.
func (s *Service) admit(rawURL string) (string, error) {
	if err := s.policy.Validate(rawURL); err != nil {
		return "", err
	}
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", err
	}
	return canonical, nil
}
