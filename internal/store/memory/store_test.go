package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivaleye/pricewatch/internal/scrape"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func TestStoreGetByID(t *testing.T) {
	t.Parallel()

	store := New(fixedClock{at: time.Now()})
	store.AddCompetitor(scrape.Competitor{ID: "comp-1", Name: "Migros", ProductID: "prod-1"})

	c, err := store.GetByID(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, "Migros", c.Name)

	_, err = store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, scrape.ErrCompetitorNotFound)
}

func TestStoreUpdatePriceSnapshot(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := New(fixedClock{at: now})
	store.AddCompetitor(scrape.Competitor{ID: "comp-1", Name: "Migros"})

	updated, err := store.UpdatePriceSnapshot(context.Background(), scrape.Competitor{ID: "comp-1"}, 42.5, "TRY", "structured_offer", 0.75)
	require.NoError(t, err)
	require.NotNil(t, updated.LastPrice)
	assert.Equal(t, 42.5, *updated.LastPrice)
	assert.Equal(t, "TRY", updated.LastCurrency)
	assert.Equal(t, "structured_offer", updated.LastSource)
	require.NotNil(t, updated.LastCheckedAt)
	assert.Equal(t, now, *updated.LastCheckedAt)

	// Overwriting with the same observation is harmless.
	again, err := store.UpdatePriceSnapshot(context.Background(), scrape.Competitor{ID: "comp-1"}, 42.5, "TRY", "structured_offer", 0.75)
	require.NoError(t, err)
	assert.Equal(t, *updated.LastPrice, *again.LastPrice)

	_, err = store.UpdatePriceSnapshot(context.Background(), scrape.Competitor{ID: "missing"}, 1, "TRY", "x", 0.1)
	assert.ErrorIs(t, err, scrape.ErrCompetitorNotFound)
}

func TestStoreRecordPriceHistoryFillsCapturedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store := New(fixedClock{at: now})

	entry, err := store.RecordPriceHistory(context.Background(), scrape.PriceHistoryEntry{
		ProductID: "prod-1",
		SourceURL: "https://migros.com.tr/urun/1",
		Price:     19.9,
	})
	require.NoError(t, err)
	assert.Equal(t, now, entry.CapturedAt)
	require.Len(t, store.History(), 1)
}

func TestStoreRecordExecution(t *testing.T) {
	t.Parallel()

	store := New(fixedClock{at: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)})
	err := store.RecordExecution(context.Background(), scrape.Execution{
		URL:    "https://migros.com.tr/urun/1",
		Status: scrape.StatusSuccess,
	})
	require.NoError(t, err)

	execs := store.Executions()
	require.Len(t, execs, 1)
	assert.False(t, execs[0].CreatedAt.IsZero())
}
