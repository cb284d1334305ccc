package scrape

import (
	"context"
	"time"
)

// CompetitorStore is the external collaborator owning competitor entities.
// The pipeline only resolves competitors and mutates their price snapshot.
type CompetitorStore interface {
	GetByID(ctx context.Context, id string) (Competitor, error)
	UpdatePriceSnapshot(ctx context.Context, competitor Competitor, price float64, currency, source string, confidence float64) (Competitor, error)
	RecordPriceHistory(ctx context.Context, entry PriceHistoryEntry) (PriceHistoryEntry, error)
}

// AuditStore appends one execution record per processing attempt.
type AuditStore interface {
	RecordExecution(ctx context.Context, exec Execution) error
}

// PriceFetcher resolves a URL to a priced result.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, url string, allowRenderFallback bool) (PriceResult, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
