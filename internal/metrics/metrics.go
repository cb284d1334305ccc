// Package metrics exposes Prometheus collectors for the scrape pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeExecutionsTotal *prometheus.CounterVec
	scrapeDurationSeconds *prometheus.HistogramVec
	renderPromotionsTotal prometheus.Counter
	fetchRetriesTotal     prometheus.Counter

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		scrapeExecutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_scrape_executions_total",
				Help: "Total scrape job attempts, labeled by terminal status and domain.",
			},
			[]string{"status", "domain"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_scrape_duration_seconds",
				Help:    "Histogram of per-attempt scrape latencies, labeled by status.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)

		renderPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_render_promotions_total",
				Help: "Total fetches that fell back to headless rendering.",
			},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_fetch_retries_total",
				Help: "Total static fetch retry attempts.",
			},
		)
	})
}

// RecordExecution counts one processed attempt.
func RecordExecution(status, domain string, latency time.Duration) {
	if scrapeExecutionsTotal == nil {
		return
	}
	scrapeExecutionsTotal.WithLabelValues(status, domain).Inc()
	scrapeDurationSeconds.WithLabelValues(status).Observe(latency.Seconds())
}

// IncRenderPromotion counts one headless-render fallback.
func IncRenderPromotion() {
	if renderPromotionsTotal == nil {
		return
	}
	renderPromotionsTotal.Inc()
}

// IncFetchRetry counts one static fetch retry.
func IncFetchRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
