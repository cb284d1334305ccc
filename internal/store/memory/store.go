// Package memory provides in-memory store implementations for tests and
// local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rivaleye/pricewatch/internal/scrape"
)

// Store keeps competitors, price history, and audit records in memory.
type Store struct {
	mu          sync.RWMutex
	clock       scrape.Clock
	competitors map[string]scrape.Competitor
	history     []scrape.PriceHistoryEntry
	executions  []scrape.Execution
}

// New returns an empty Store using the provided clock.
func New(clock scrape.Clock) *Store {
	return &Store{
		clock:       clock,
		competitors: make(map[string]scrape.Competitor),
	}
}

// AddCompetitor seeds a competitor. Test and local-dev helper.
func (s *Store) AddCompetitor(c scrape.Competitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitors[c.ID] = c
}

// GetByID resolves a competitor or scrape.ErrCompetitorNotFound.
func (s *Store) GetByID(_ context.Context, id string) (scrape.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitors[id]
	if !ok {
		return scrape.Competitor{}, fmt.Errorf("competitor %s: %w", id, scrape.ErrCompetitorNotFound)
	}
	return c, nil
}

// UpdatePriceSnapshot overwrites the competitor's last-observed price
// fields. The overwrite is idempotent, which is what makes duplicate
// deliveries harmless.
func (s *Store) UpdatePriceSnapshot(_ context.Context, competitor scrape.Competitor, price float64, currency, source string, confidence float64) (scrape.Competitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitors[competitor.ID]
	if !ok {
		return scrape.Competitor{}, fmt.Errorf("competitor %s: %w", competitor.ID, scrape.ErrCompetitorNotFound)
	}
	now := s.clock.Now().UTC()
	c.LastPrice = &price
	c.LastCurrency = currency
	c.LastSource = source
	c.LastConfidence = &confidence
	c.LastCheckedAt = &now
	s.competitors[c.ID] = c
	return c, nil
}

// RecordPriceHistory appends one observation.
func (s *Store) RecordPriceHistory(_ context.Context, entry scrape.PriceHistoryEntry) (scrape.PriceHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CapturedAt.IsZero() {
		entry.CapturedAt = s.clock.Now().UTC()
	}
	s.history = append(s.history, entry)
	return entry, nil
}

// RecordExecution appends one audit record.
func (s *Store) RecordExecution(_ context.Context, exec scrape.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = s.clock.Now().UTC()
	}
	s.executions = append(s.executions, exec)
	return nil
}

// History returns a copy of the recorded price history.
func (s *Store) History() []scrape.PriceHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.PriceHistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Executions returns a copy of the audit log.
func (s *Store) Executions() []scrape.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Execution, len(s.executions))
	copy(out, s.executions)
	return out
}

// Competitor returns the current competitor state.
func (s *Store) Competitor(id string) (scrape.Competitor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitors[id]
	return c, ok
}
