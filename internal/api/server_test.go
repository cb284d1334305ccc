package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/scrape"
)

type stubService struct {
	fetchResult scrape.PriceResult
	fetchErr    error
	enqueueID   string
	enqueueErr  error

	lastURL         string
	lastAllowRender bool
}

func (s *stubService) FetchPrice(_ context.Context, url string, allowRenderFallback bool) (scrape.PriceResult, error) {
	s.lastURL = url
	s.lastAllowRender = allowRenderFallback
	return s.fetchResult, s.fetchErr
}

func (s *stubService) EnqueueScrape(_ context.Context, url, _, _, _ string) (string, error) {
	s.lastURL = url
	return s.enqueueID, s.enqueueErr
}

func doRequest(t *testing.T, svc *stubService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(svc, zap.NewNop())
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, &stubService{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestFetchPriceOK(t *testing.T) {
	t.Parallel()

	svc := &stubService{fetchResult: scrape.PriceResult{Price: 42.5, Currency: "TRY", Source: "structured_offer", Confidence: 0.75}}
	rec := doRequest(t, svc, http.MethodPost, "/v1/prices/fetch", `{"url":"https://migros.com.tr/urun/1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var result scrape.PriceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 42.5, result.Price)
	assert.Equal(t, "TRY", result.Currency)
	assert.True(t, svc.lastAllowRender, "render fallback defaults to on")
}

func TestFetchPriceDisablesRenderFallback(t *testing.T) {
	t.Parallel()

	svc := &stubService{fetchResult: scrape.PriceResult{Price: 1}}
	rec := doRequest(t, svc, http.MethodPost, "/v1/prices/fetch", `{"url":"https://x.com/p","allow_render_fallback":false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.lastAllowRender)
}

func TestFetchPriceErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation errors are 400", scrape.NewValidationError("bad url"), http.StatusBadRequest},
		{"no price is 422", scrape.ErrNoPriceFound, http.StatusUnprocessableEntity},
		{"upstream failures are 502", errors.New("connection refused"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubService{fetchErr: tt.err}
			rec := doRequest(t, svc, http.MethodPost, "/v1/prices/fetch", `{"url":"https://x.com/p"}`)
			assert.Equal(t, tt.wantCode, rec.Code)

			var payload map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestFetchPriceRejectsBadJSON(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, &stubService{}, http.MethodPost, "/v1/prices/fetch", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueScrapeAccepted(t *testing.T) {
	t.Parallel()

	svc := &stubService{enqueueID: "msg-123"}
	rec := doRequest(t, svc, http.MethodPost, "/v1/scrapes", `{"url":"https://a101.com.tr/urun/1","competitor_id":"comp-1"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "msg-123", resp.MessageID)
}

func TestEnqueueScrapeValidationError(t *testing.T) {
	t.Parallel()

	svc := &stubService{enqueueErr: scrape.NewValidationError("domain not allowlisted")}
	rec := doRequest(t, svc, http.MethodPost, "/v1/scrapes", `{"url":"https://forbidden.example/p"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, &stubService{}, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
