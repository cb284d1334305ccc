// Package postgres implements the competitor and audit stores on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rivaleye/pricewatch/internal/scrape"
)

// Querier is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists competitor snapshots, price history, and the audit log.
//
// Expected schema:
//
//	competitors(id, name, product_id, last_price, last_currency,
//	            last_source, last_confidence, last_checked_at)
//	price_history(product_id, competitor_id, source_url, price, currency,
//	              source, confidence, captured_at)
//	scrape_executions(url, domain, competitor_id, product_id, status,
//	                  error_class, error_message, source, confidence,
//	                  price, currency, used_playwright, attempt,
//	                  latency_ms, created_at)
type Store struct {
	db    Querier
	clock scrape.Clock
}

// New wraps a pool (or mock) into a Store.
func New(db Querier, clock scrape.Clock) *Store {
	return &Store{db: db, clock: clock}
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// GetByID resolves a competitor row.
func (s *Store) GetByID(ctx context.Context, id string) (scrape.Competitor, error) {
	const query = `
		SELECT id, name, product_id, last_price, last_currency,
		       last_source, last_confidence, last_checked_at
		FROM competitors
		WHERE id = $1
	`
	var c scrape.Competitor
	var currency, source *string
	err := s.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.ProductID,
		&c.LastPrice,
		&currency,
		&source,
		&c.LastConfidence,
		&c.LastCheckedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scrape.Competitor{}, fmt.Errorf("competitor %s: %w", id, scrape.ErrCompetitorNotFound)
		}
		return scrape.Competitor{}, fmt.Errorf("select competitor: %w", err)
	}
	if currency != nil {
		c.LastCurrency = *currency
	}
	if source != nil {
		c.LastSource = *source
	}
	return c, nil
}

// UpdatePriceSnapshot overwrites the competitor's last-observed price
// fields and returns the mutated entity.
func (s *Store) UpdatePriceSnapshot(ctx context.Context, competitor scrape.Competitor, price float64, currency, source string, confidence float64) (scrape.Competitor, error) {
	const query = `
		UPDATE competitors
		SET last_price = $2, last_currency = $3, last_source = $4,
		    last_confidence = $5, last_checked_at = $6
		WHERE id = $1
	`
	now := s.clock.Now().UTC()
	tag, err := s.db.Exec(ctx, query, competitor.ID, price, currency, source, confidence, now)
	if err != nil {
		return scrape.Competitor{}, fmt.Errorf("update price snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.Competitor{}, fmt.Errorf("competitor %s: %w", competitor.ID, scrape.ErrCompetitorNotFound)
	}
	competitor.LastPrice = &price
	competitor.LastCurrency = currency
	competitor.LastSource = source
	competitor.LastConfidence = &confidence
	competitor.LastCheckedAt = &now
	return competitor, nil
}

// RecordPriceHistory appends one observation row.
func (s *Store) RecordPriceHistory(ctx context.Context, entry scrape.PriceHistoryEntry) (scrape.PriceHistoryEntry, error) {
	const query = `
		INSERT INTO price_history
			(product_id, competitor_id, source_url, price, currency, source, confidence, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if entry.CapturedAt.IsZero() {
		entry.CapturedAt = s.clock.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		entry.ProductID,
		nullable(entry.CompetitorID),
		entry.SourceURL,
		entry.Price,
		nullable(entry.Currency),
		entry.Source,
		entry.Confidence,
		entry.CapturedAt,
	)
	if err != nil {
		return scrape.PriceHistoryEntry{}, fmt.Errorf("insert price history: %w", err)
	}
	return entry, nil
}

// RecordExecution appends one audit row.
func (s *Store) RecordExecution(ctx context.Context, exec scrape.Execution) error {
	const query = `
		INSERT INTO scrape_executions
			(url, domain, competitor_id, product_id, status, error_class,
			 error_message, source, confidence, price, currency,
			 used_playwright, attempt, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = s.clock.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		exec.URL,
		exec.Domain,
		nullable(exec.CompetitorID),
		nullable(exec.ProductID),
		string(exec.Status),
		nullable(exec.ErrorClass),
		nullable(exec.ErrorMessage),
		nullable(exec.Source),
		exec.Confidence,
		exec.Price,
		nullable(exec.Currency),
		exec.UsedPlaywright,
		exec.Attempt,
		exec.LatencyMS,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scrape execution: %w", err)
	}
	return nil
}

// nullable maps empty strings onto SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
