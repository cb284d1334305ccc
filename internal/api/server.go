// Package api exposes the two synchronous entry points of the pipeline:
// immediate price fetch and fire-and-forget scrape enqueue.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/metrics"
	"github.com/rivaleye/pricewatch/internal/scrape"
)

// PriceService is the facade surface the handlers call.
type PriceService interface {
	FetchPrice(ctx context.Context, url string, allowRenderFallback bool) (scrape.PriceResult, error)
	EnqueueScrape(ctx context.Context, url, competitorID, productID, requestedBy string) (string, error)
}

// Server wires the HTTP handlers to the scrape facade.
type Server struct {
	router chi.Router
	svc    PriceService
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc PriceService, logger *zap.Logger) *Server {
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/prices/fetch", s.fetchPrice)
		r.Post("/scrapes", s.enqueueScrape)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fetchPriceRequest struct {
	URL         string `json:"url"`
	AllowRender *bool  `json:"allow_render_fallback,omitempty"`
}

func (s *Server) fetchPrice(w http.ResponseWriter, r *http.Request) {
	var req fetchPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	allowRender := true
	if req.AllowRender != nil {
		allowRender = *req.AllowRender
	}

	result, err := s.svc.FetchPrice(r.Context(), req.URL, allowRender)
	if err != nil {
		s.writeFetchError(w, req.URL, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeFetchError maps pipeline errors onto HTTP classes: bad input is the
// caller's problem, an empty page is unprocessable, everything else is an
// upstream failure.
func (s *Server) writeFetchError(w http.ResponseWriter, url string, err error) {
	var vErr *scrape.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, scrape.ErrNoPriceFound):
		writeError(w, http.StatusUnprocessableEntity, "no price extractable from page")
	default:
		s.logger.Error("fetch price failed", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream fetch failed")
	}
}

type enqueueRequest struct {
	URL          string `json:"url"`
	CompetitorID string `json:"competitor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

type enqueueResponse struct {
	MessageID string `json:"message_id"`
}

func (s *Server) enqueueScrape(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = "api"
	}

	id, err := s.svc.EnqueueScrape(r.Context(), req.URL, req.CompetitorID, req.ProductID, requestedBy)
	if err != nil {
		var vErr *scrape.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("enqueue scrape failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{MessageID: id})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
