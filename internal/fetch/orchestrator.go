package fetch

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/extract"
	"github.com/rivaleye/pricewatch/internal/metrics"
	"github.com/rivaleye/pricewatch/internal/scrape"
)

// PageFetcher fetches static HTML.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// PageRenderer produces HTML after client-side rendering.
type PageRenderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// OrchestratorConfig tunes retry and fallback behavior.
type OrchestratorConfig struct {
	MaxRetries    int           // static fetch attempts beyond the first
	MaxBackoff    time.Duration // cap for the per-attempt delay
	MinConfidence float64       // below this, a regex-only hit triggers render
}

// Orchestrator decides which HTML the extraction chain sees: the static
// body first, the rendered DOM when the static pass produced nothing or
// only a weak regex hit.
type Orchestrator struct {
	static   PageFetcher
	renderer PageRenderer
	chain    *extract.Chain
	cfg      OrchestratorConfig
	logger   *zap.Logger
}

// NewOrchestrator builds an Orchestrator. renderer may be nil, which
// disables the render fallback regardless of the caller's flag.
func NewOrchestrator(static PageFetcher, renderer PageRenderer, chain *extract.Chain, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	return &Orchestrator{
		static:   static,
		renderer: renderer,
		chain:    chain,
		cfg:      cfg,
		logger:   logger,
	}
}

// FetchPrice runs the static fetch (with retry), the extraction chain, and
// conditionally the render fallback. It fails with scrape.ErrNoPriceFound
// when every strategy on every obtained HTML came up empty.
func (o *Orchestrator) FetchPrice(ctx context.Context, url string, allowRenderFallback bool) (scrape.PriceResult, error) {
	var staticResult *extract.Result

	page, fetchErr := o.fetchWithRetry(ctx, url)
	if fetchErr == nil {
		staticResult = o.chain.Extract(string(page.Body), url)
		if staticResult != nil && o.acceptable(staticResult, allowRenderFallback) {
			return toPriceResult(staticResult), nil
		}
	} else {
		o.logger.Warn("static fetch failed", zap.String("url", url), zap.Error(fetchErr))
	}

	if allowRenderFallback && o.renderer != nil {
		if res, ok := o.renderAndExtract(ctx, url); ok {
			return res, nil
		}
	}

	// A weak static hit still beats nothing once the fallback is spent.
	if staticResult != nil {
		return toPriceResult(staticResult), nil
	}
	if fetchErr != nil {
		return scrape.PriceResult{}, fetchErr
	}
	return scrape.PriceResult{}, scrape.ErrNoPriceFound
}

// acceptable reports whether a static result short-circuits the fallback:
// anything but a regex hit below the confidence floor does.
func (o *Orchestrator) acceptable(res *extract.Result, allowRenderFallback bool) bool {
	if !allowRenderFallback {
		return true
	}
	return res.Source != extract.SourceRegex || res.Confidence >= o.cfg.MinConfidence
}

func (o *Orchestrator) renderAndExtract(ctx context.Context, url string) (scrape.PriceResult, bool) {
	page, err := o.renderer.Render(ctx, url)
	if err != nil {
		o.logger.Warn("render fallback failed", zap.String("url", url), zap.Error(err))
		return scrape.PriceResult{}, false
	}
	res := o.chain.Extract(string(page.Body), url)
	if res == nil {
		return scrape.PriceResult{}, false
	}
	metrics.IncRenderPromotion()
	res.Source = scrape.RenderedSourcePrefix + res.Source
	return toPriceResult(res), true
}

// fetchWithRetry retries the static GET on transient failures with capped
// exponential backoff (min(2^attempt, cap) seconds).
func (o *Orchestrator) fetchWithRetry(ctx context.Context, url string) (Page, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncFetchRetry()
			if err := sleepContext(ctx, o.backoff(attempt)); err != nil {
				return Page{}, err
			}
		}
		page, err := o.static.Fetch(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if severity, _ := scrape.Classify(err); severity == scrape.Permanent {
			break
		}
		o.logger.Debug("static fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return Page{}, fmt.Errorf("static fetch %s: %w", url, lastErr)
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if delay > o.cfg.MaxBackoff {
		delay = o.cfg.MaxBackoff
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func toPriceResult(res *extract.Result) scrape.PriceResult {
	return scrape.PriceResult{
		Price:      res.Price,
		Currency:   res.Currency,
		Source:     res.Source,
		Confidence: res.Confidence,
	}
}
