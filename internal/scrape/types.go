// Package scrape defines core types shared across the price pipeline.
package scrape

import (
	"time"
)

// Status represents the terminal outcome recorded for one processing attempt.
type Status string

// Execution status values persisted in the audit log.
const (
	StatusSuccess         Status = "success"
	StatusRetryScheduled  Status = "retry_scheduled"
	StatusFailedPermanent Status = "failed_permanent"
	StatusFailedTransient Status = "failed_transient"
	StatusInvalidPayload  Status = "invalid_payload"
)

// RenderedSourcePrefix tags results that came from the rendered page.
// The prefix is part of the stored data format and must stay stable.
const RenderedSourcePrefix = "playwright->"

// Request is the queue message payload describing one scrape job.
type Request struct {
	URL          string    `json:"url"`
	Domain       string    `json:"domain"`
	CompetitorID string    `json:"competitor_id,omitempty"`
	ProductID    string    `json:"product_id,omitempty"`
	RequestedBy  string    `json:"requested_by"`
	RequestedAt  time.Time `json:"requested_at"`
}

// PriceResult is the outcome of a price fetch, static or rendered.
type PriceResult struct {
	Price      float64 `json:"price"`
	Currency   string  `json:"currency,omitempty"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Rendered reports whether the result came through the render fallback.
func (r PriceResult) Rendered() bool {
	return len(r.Source) >= len(RenderedSourcePrefix) &&
		r.Source[:len(RenderedSourcePrefix)] == RenderedSourcePrefix
}

// Competitor is the collaborator entity whose price snapshot this pipeline
// mutates. Persistence of the rest of the entity is owned elsewhere.
type Competitor struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	ProductID      string     `json:"product_id"`
	LastPrice      *float64   `json:"last_price,omitempty"`
	LastCurrency   string     `json:"last_currency,omitempty"`
	LastSource     string     `json:"last_source,omitempty"`
	LastConfidence *float64   `json:"last_confidence,omitempty"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
}

// PriceHistoryEntry is one append-only price observation.
type PriceHistoryEntry struct {
	ProductID    string    `json:"product_id"`
	CompetitorID string    `json:"competitor_id,omitempty"`
	SourceURL    string    `json:"source_url"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency,omitempty"`
	Source       string    `json:"source"`
	Confidence   float64   `json:"confidence"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Execution is the append-only audit record written once per attempt.
type Execution struct {
	URL            string    `json:"url"`
	Domain         string    `json:"domain"`
	CompetitorID   string    `json:"competitor_id,omitempty"`
	ProductID      string    `json:"product_id,omitempty"`
	Status         Status    `json:"status"`
	ErrorClass     string    `json:"error_class,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Source         string    `json:"source,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	Price          *float64  `json:"price,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	UsedPlaywright bool      `json:"used_playwright"`
	Attempt        int       `json:"attempt"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Failure describes why a job was dead-lettered.
type Failure struct {
	ErrorClass   string    `json:"error_class"`
	ErrorMessage string    `json:"error_message"`
	Attempt      int       `json:"attempt"`
	FailedAt     time.Time `json:"failed_at"`
}

// DeadLetter is the envelope published to the dead-letter queue.
type DeadLetter struct {
	Payload Request `json:"payload"`
	Failure Failure `json:"failure"`
}
