package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/extract"
	"github.com/rivaleye/pricewatch/internal/scrape"
)

const offerHTML = `<html><head>
<script type="application/ld+json">{"@type":"Product","offers":{"price":"42.50","priceCurrency":"TRY"}}</script>
</head><body></body></html>`

const bareRegexHTML = `<html><body><div>son fiyat ₺19,90</div></body></html>`

type scriptedFetcher struct {
	pages []Page
	errs  []error
	calls int
}

func (f *scriptedFetcher) Fetch(context.Context, string) (Page, error) {
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		i = len(f.pages) - 1
	}
	return f.pages[i], f.errs[i]
}

type fakeRenderer struct {
	page  Page
	err   error
	calls int
}

func (r *fakeRenderer) Render(context.Context, string) (Page, error) {
	r.calls++
	return r.page, r.err
}

func newTestOrchestrator(static PageFetcher, renderer PageRenderer, maxRetries int) *Orchestrator {
	return NewOrchestrator(static, renderer, extract.NewChain(), OrchestratorConfig{
		MaxRetries: maxRetries,
		MaxBackoff: time.Millisecond,
	}, zap.NewNop())
}

func TestOrchestratorStaticSuccessSkipsRender(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{pages: []Page{{Body: []byte(offerHTML), StatusCode: 200}}, errs: []error{nil}}
	renderer := &fakeRenderer{}
	o := newTestOrchestrator(static, renderer, 2)

	res, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.NoError(t, err)
	assert.Equal(t, 42.50, res.Price)
	assert.Equal(t, "TRY", res.Currency)
	assert.Equal(t, extract.SourceStructured, res.Source)
	assert.False(t, res.Rendered())
	assert.Zero(t, renderer.calls)
}

func TestOrchestratorRetriesTransientFetchErrors(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{
		pages: []Page{{}, {}, {Body: []byte(offerHTML), StatusCode: 200}},
		errs: []error{
			&scrape.HTTPStatusError{StatusCode: 503, URL: "https://example.com/p"},
			&scrape.HTTPStatusError{StatusCode: 502, URL: "https://example.com/p"},
			nil,
		},
	}
	o := newTestOrchestrator(static, nil, 2)

	res, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.NoError(t, err)
	assert.Equal(t, 42.50, res.Price)
	assert.Equal(t, 3, static.calls)
}

func TestOrchestratorStopsRetryingOnPermanentError(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{
		pages: []Page{{}},
		errs:  []error{&scrape.HTTPStatusError{StatusCode: 404, URL: "https://example.com/p"}},
	}
	o := newTestOrchestrator(static, nil, 3)

	_, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.Error(t, err)
	var httpErr *scrape.HTTPStatusError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, 1, static.calls)
}

func TestOrchestratorWeakRegexPromotesRender(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{pages: []Page{{Body: []byte(bareRegexHTML), StatusCode: 200}}, errs: []error{nil}}
	renderer := &fakeRenderer{page: Page{Body: []byte(offerHTML), StatusCode: 200, Rendered: true}}
	o := newTestOrchestrator(static, renderer, 0)

	res, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.NoError(t, err)
	assert.Equal(t, 42.50, res.Price)
	assert.Equal(t, scrape.RenderedSourcePrefix+extract.SourceStructured, res.Source)
	assert.True(t, res.Rendered())
	assert.Equal(t, 1, renderer.calls)
}

func TestOrchestratorKeepsWeakRegexWhenRenderDisallowed(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{pages: []Page{{Body: []byte(bareRegexHTML), StatusCode: 200}}, errs: []error{nil}}
	renderer := &fakeRenderer{page: Page{Body: []byte(offerHTML), StatusCode: 200}}
	o := newTestOrchestrator(static, renderer, 0)

	res, err := o.FetchPrice(context.Background(), "https://example.com/p", false)
	require.NoError(t, err)
	assert.Equal(t, 19.90, res.Price)
	assert.Equal(t, extract.SourceRegex, res.Source)
	assert.Zero(t, renderer.calls)
}

func TestOrchestratorFallsBackToWeakRegexWhenRenderFails(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{pages: []Page{{Body: []byte(bareRegexHTML), StatusCode: 200}}, errs: []error{nil}}
	renderer := &fakeRenderer{err: errors.New("browser crashed")}
	o := newTestOrchestrator(static, renderer, 0)

	res, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.NoError(t, err)
	assert.Equal(t, 19.90, res.Price)
	assert.Equal(t, extract.SourceRegex, res.Source)
	assert.Equal(t, 1, renderer.calls)
}

func TestOrchestratorRendersWhenStaticFetchFails(t *testing.T) {
	t.Parallel()

	static := &scriptedFetcher{
		pages: []Page{{}},
		errs:  []error{&scrape.HTTPStatusError{StatusCode: 403, URL: "https://example.com/p"}},
	}
	renderer := &fakeRenderer{page: Page{Body: []byte(offerHTML), StatusCode: 200, Rendered: true}}
	o := newTestOrchestrator(static, renderer, 0)

	res, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.NoError(t, err)
	assert.Equal(t, 42.50, res.Price)
	assert.True(t, res.Rendered())
}

func TestOrchestratorNoPriceAnywhere(t *testing.T) {
	t.Parallel()

	empty := `<html><body><p>stokta yok</p></body></html>`
	static := &scriptedFetcher{pages: []Page{{Body: []byte(empty), StatusCode: 200}}, errs: []error{nil}}
	renderer := &fakeRenderer{page: Page{Body: []byte(empty), StatusCode: 200}}
	o := newTestOrchestrator(static, renderer, 0)

	_, err := o.FetchPrice(context.Background(), "https://example.com/p", true)
	require.ErrorIs(t, err, scrape.ErrNoPriceFound)
}
