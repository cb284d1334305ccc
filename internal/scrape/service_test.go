package scrape_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/queue"
	"github.com/rivaleye/pricewatch/internal/queue/memory"
	"github.com/rivaleye/pricewatch/internal/scrape"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

type recordingFetcher struct {
	lastURL     string
	lastRender  bool
	result      scrape.PriceResult
	err         error
	invocations int
}

func (f *recordingFetcher) FetchPrice(_ context.Context, url string, allowRenderFallback bool) (scrape.PriceResult, error) {
	f.invocations++
	f.lastURL = url
	f.lastRender = allowRenderFallback
	return f.result, f.err
}

func newTestService(t *testing.T, policy *scrape.DomainPolicy, fetcher scrape.PriceFetcher) (*scrape.Service, *memory.Broker) {
	t.Helper()
	broker := memory.NewBroker(8)
	clock := fixedClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := scrape.NewService(policy, fetcher, broker.Publisher(), "scrape-jobs", clock, zap.NewNop())
	return svc, broker
}

func TestServiceFetchPriceCanonicalizesBeforeFetching(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{result: scrape.PriceResult{Price: 42.5, Currency: "TRY", Source: "structured_offer", Confidence: 0.75}}
	svc, _ := newTestService(t, scrape.NewDomainPolicy(false, nil), fetcher)

	result, err := svc.FetchPrice(context.Background(), "https://WWW.Migros.com.tr/urun/sut/?utm_source=x", true)
	require.NoError(t, err)
	assert.Equal(t, 42.5, result.Price)
	assert.Equal(t, "https://migros.com.tr/urun/sut", fetcher.lastURL)
	assert.True(t, fetcher.lastRender)
}

func TestServiceFetchPriceRejectsDisallowedDomain(t *testing.T) {
	t.Parallel()

	fetcher := &recordingFetcher{}
	policy := scrape.NewDomainPolicy(true, []string{"migros.com.tr"})
	svc, _ := newTestService(t, policy, fetcher)

	_, err := svc.FetchPrice(context.Background(), "https://rakip.example/urun/1", true)
	var vErr *scrape.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, fetcher.invocations)
}

func TestServiceEnqueueScrapePublishesCanonicalJob(t *testing.T) {
	t.Parallel()

	svc, broker := newTestService(t, scrape.NewDomainPolicy(false, nil), &recordingFetcher{})

	id, err := svc.EnqueueScrape(context.Background(), "https://www.a101.com.tr/urun/1/?gclid=zzz", "comp-1", "prod-1", "scheduler")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msg, ok := broker.Pull("scrape-jobs")
	require.True(t, ok, "expected a published job")
	assert.Equal(t, "0", msg.Attributes[queue.AttrRetryCount])

	var req scrape.Request
	require.NoError(t, json.Unmarshal(msg.Body, &req))
	assert.Equal(t, "https://a101.com.tr/urun/1", req.URL)
	assert.Equal(t, "a101.com.tr", req.Domain)
	assert.Equal(t, "comp-1", req.CompetitorID)
	assert.Equal(t, "prod-1", req.ProductID)
	assert.Equal(t, "scheduler", req.RequestedBy)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), req.RequestedAt)
}

func TestServiceEnqueueScrapeRejectsBadURL(t *testing.T) {
	t.Parallel()

	svc, broker := newTestService(t, scrape.NewDomainPolicy(false, nil), &recordingFetcher{})

	_, err := svc.EnqueueScrape(context.Background(), "no-scheme", "", "", "cli")
	var vErr *scrape.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, broker.Len("scrape-jobs"))
}
