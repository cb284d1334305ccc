// Package fetch retrieves product-page HTML, statically via Colly and
// through a headless-render fallback, and orchestrates price extraction
// over whichever HTML it obtained.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/rivaleye/pricewatch/internal/scrape"
)

// Page is the raw outcome of one fetch, static or rendered.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// StaticConfig controls the plain HTTP fetcher.
type StaticConfig struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// StaticFetcher executes single HTTP GETs using a Colly collector.
// Redirects are followed by the underlying client.
type StaticFetcher struct {
	cfg  StaticConfig
	base *colly.Collector
}

// NewStatic builds a StaticFetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &StaticFetcher{cfg: cfg, base: c}
}

// Fetch performs one GET and returns the page body. Non-2xx responses come
// back as *scrape.HTTPStatusError so the classifier can read the status.
func (f *StaticFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &scrape.HTTPStatusError{StatusCode: r.StatusCode, URL: url}
			return
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, url); err != nil {
		if fetchErr != nil {
			return Page{}, fetchErr
		}
		return Page{}, err
	}
	if fetchErr != nil {
		return Page{}, fetchErr
	}
	return page, nil
}

// runCollector bridges Colly's blocking Visit with context cancellation.
func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
