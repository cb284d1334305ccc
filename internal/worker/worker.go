// Package worker drives the scrape pipeline off the durable queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rivaleye/pricewatch/internal/metrics"
	"github.com/rivaleye/pricewatch/internal/queue"
	"github.com/rivaleye/pricewatch/internal/scrape"
)

// Config controls worker retry and routing behavior.
type Config struct {
	Topic       string // main topic, used for retry republish
	DLQTopic    string
	MaxRetries  int
	BackoffBase time.Duration
	MaxBackoff  time.Duration
}

// Worker consumes scrape jobs and runs each through the pipeline. Every
// delivery ends in exactly one of: ack after success, ack after scheduling
// a retry republish, or ack after dead-lettering. Each attempt writes one
// audit record.
type Worker struct {
	consumer    queue.Consumer
	publisher   queue.Publisher
	fetcher     scrape.PriceFetcher
	competitors scrape.CompetitorStore
	audit       scrape.AuditStore
	clock       scrape.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker.
func New(
	consumer queue.Consumer,
	publisher queue.Publisher,
	fetcher scrape.PriceFetcher,
	competitors scrape.CompetitorStore,
	audit scrape.AuditStore,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Worker{
		consumer:    consumer,
		publisher:   publisher,
		fetcher:     fetcher,
		competitors: competitors,
		audit:       audit,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks consuming deliveries until the context finishes. The consumer
// drains in-flight handlers before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting",
		zap.String("topic", w.cfg.Topic),
		zap.Int("max_retries", w.cfg.MaxRetries),
	)
	if err := w.consumer.Receive(ctx, w.handle); err != nil && ctx.Err() == nil {
		return fmt.Errorf("consume: %w", err)
	}
	return nil
}

// handle processes one delivery end to end. No error escapes: every failure
// path audits and either retries or dead-letters.
func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	start := w.clock.Now()
	retryCount := attributeInt(d.Attributes, queue.AttrRetryCount)
	attempt := retryCount + 1

	var req scrape.Request
	if err := json.Unmarshal(d.Body, &req); err != nil || req.URL == "" {
		if err == nil {
			err = errors.New("payload missing url")
		}
		w.logger.Warn("dropping unparseable payload", zap.Error(err))
		w.writeAudit(ctx, scrape.Execution{
			Status:       scrape.StatusInvalidPayload,
			ErrorClass:   "invalid_payload",
			ErrorMessage: err.Error(),
			Attempt:      attempt,
			LatencyMS:    w.sinceMS(start),
		})
		d.Ack()
		return
	}
	if req.Domain == "" {
		if domain, err := scrape.ExtractDomain(req.URL); err == nil {
			req.Domain = domain
		}
	}

	result, err := w.process(ctx, &req)
	if err == nil {
		w.writeAudit(ctx, w.successExecution(req, result, attempt, w.sinceMS(start)))
		w.logger.Info("scrape succeeded",
			zap.String("url", req.URL),
			zap.Float64("price", result.Price),
			zap.String("source", result.Source),
			zap.Int("attempt", attempt),
		)
		d.Ack()
		return
	}

	w.handleFailure(ctx, d, req, err, retryCount, start)
}

// process resolves the optional competitor, fetches the price, and persists
// the snapshot and history on success.
func (w *Worker) process(ctx context.Context, req *scrape.Request) (scrape.PriceResult, error) {
	var competitor *scrape.Competitor
	if req.CompetitorID != "" {
		c, err := w.competitors.GetByID(ctx, req.CompetitorID)
		switch {
		case err == nil:
			competitor = &c
			if req.ProductID == "" {
				req.ProductID = c.ProductID
			}
		case errors.Is(err, scrape.ErrCompetitorNotFound):
			w.logger.Warn("competitor not found, scraping without snapshot",
				zap.String("competitor_id", req.CompetitorID))
		default:
			return scrape.PriceResult{}, fmt.Errorf("resolve competitor: %w", err)
		}
	}

	result, err := w.fetcher.FetchPrice(ctx, req.URL, true)
	if err != nil {
		return scrape.PriceResult{}, err
	}

	if competitor != nil {
		if _, err := w.competitors.UpdatePriceSnapshot(ctx, *competitor, result.Price, result.Currency, result.Source, result.Confidence); err != nil {
			return scrape.PriceResult{}, fmt.Errorf("update snapshot: %w", err)
		}
	}
	if req.ProductID != "" {
		entry := scrape.PriceHistoryEntry{
			ProductID:    req.ProductID,
			CompetitorID: req.CompetitorID,
			SourceURL:    req.URL,
			Price:        result.Price,
			Currency:     result.Currency,
			Source:       result.Source,
			Confidence:   result.Confidence,
			CapturedAt:   w.clock.Now().UTC(),
		}
		if _, err := w.competitors.RecordPriceHistory(ctx, entry); err != nil {
			return scrape.PriceResult{}, fmt.Errorf("record price history: %w", err)
		}
	}
	return result, nil
}

// handleFailure classifies the error and picks the terminal transition:
// retry republish while transient budget remains, dead-letter otherwise.
// When shutdown interrupts the backoff or the outbound publish, the
// delivery is left unacked so the broker redelivers it.
func (w *Worker) handleFailure(ctx context.Context, d queue.Delivery, req scrape.Request, procErr error, retryCount int, start time.Time) {
	severity, class := scrape.Classify(procErr)
	attempt := retryCount + 1

	if severity == scrape.Transient && retryCount < w.cfg.MaxRetries {
		// The backoff blocks only this handler; other in-flight
		// messages keep moving.
		if err := w.sleepBackoff(ctx, retryCount); err != nil {
			w.logger.Warn("backoff interrupted, leaving delivery for redelivery",
				zap.String("url", req.URL), zap.Error(err))
			return
		}
		if err := w.republish(ctx, d, procErr); err != nil {
			w.logger.Error("retry republish failed, dead-lettering instead",
				zap.String("url", req.URL), zap.Error(err))
			if dlErr := w.deadLetter(ctx, req, class, procErr, attempt); dlErr != nil {
				w.logger.Error("dead letter failed, leaving delivery for redelivery",
					zap.String("url", req.URL), zap.Error(dlErr))
				return
			}
			w.writeAudit(ctx, w.failureExecution(req, scrape.StatusFailedTransient, class, procErr, attempt, w.sinceMS(start)))
			d.Ack()
			return
		}
		w.logger.Info("scrape retry scheduled",
			zap.String("url", req.URL),
			zap.String("error_class", class),
			zap.Int("retry_count", retryCount+1),
		)
		w.writeAudit(ctx, w.failureExecution(req, scrape.StatusRetryScheduled, class, procErr, attempt, w.sinceMS(start)))
		d.Ack()
		return
	}

	status := scrape.StatusFailedPermanent
	if severity == scrape.Transient {
		status = scrape.StatusFailedTransient
	}
	if err := w.deadLetter(ctx, req, class, procErr, attempt); err != nil {
		w.logger.Error("dead letter failed, leaving delivery for redelivery",
			zap.String("url", req.URL), zap.Error(err))
		return
	}
	w.logger.Warn("scrape dead-lettered",
		zap.String("url", req.URL),
		zap.String("status", string(status)),
		zap.String("error_class", class),
		zap.Int("attempt", attempt),
	)
	w.writeAudit(ctx, w.failureExecution(req, status, class, procErr, attempt, w.sinceMS(start)))
	d.Ack()
}

// republish puts a fresh copy of the job at the back of the main queue with
// the retry counter bumped, instead of leaning on broker redelivery.
func (w *Worker) republish(ctx context.Context, d queue.Delivery, procErr error) error {
	retryCount := attributeInt(d.Attributes, queue.AttrRetryCount)
	attrs := make(map[string]string, len(d.Attributes)+1)
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	attrs[queue.AttrRetryCount] = strconv.Itoa(retryCount + 1)
	attrs[queue.AttrLastError] = procErr.Error()

	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, queue.Message{Body: d.Body, Attributes: attrs}); err != nil {
		return fmt.Errorf("republish: %w", err)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, req scrape.Request, class string, procErr error, attempt int) error {
	envelope := scrape.DeadLetter{
		Payload: req,
		Failure: scrape.Failure{
			ErrorClass:   class,
			ErrorMessage: procErr.Error(),
			Attempt:      attempt,
			FailedAt:     w.clock.Now().UTC(),
		},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.DLQTopic, queue.Message{Body: body}); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) sleepBackoff(ctx context.Context, retryCount int) error {
	delay := time.Duration(float64(w.cfg.BackoffBase) * math.Pow(2, float64(retryCount)))
	if delay > w.cfg.MaxBackoff {
		delay = w.cfg.MaxBackoff
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (w *Worker) successExecution(req scrape.Request, result scrape.PriceResult, attempt int, latencyMS int64) scrape.Execution {
	price := result.Price
	return scrape.Execution{
		URL:            req.URL,
		Domain:         req.Domain,
		CompetitorID:   req.CompetitorID,
		ProductID:      req.ProductID,
		Status:         scrape.StatusSuccess,
		Source:         result.Source,
		Confidence:     result.Confidence,
		Price:          &price,
		Currency:       result.Currency,
		UsedPlaywright: result.Rendered(),
		Attempt:        attempt,
		LatencyMS:      latencyMS,
	}
}

func (w *Worker) failureExecution(req scrape.Request, status scrape.Status, class string, procErr error, attempt int, latencyMS int64) scrape.Execution {
	return scrape.Execution{
		URL:          req.URL,
		Domain:       req.Domain,
		CompetitorID: req.CompetitorID,
		ProductID:    req.ProductID,
		Status:       status,
		ErrorClass:   class,
		ErrorMessage: procErr.Error(),
		Attempt:      attempt,
		LatencyMS:    latencyMS,
	}
}

// writeAudit persists the attempt record; audit failures are logged, never
// fatal to the handler.
func (w *Worker) writeAudit(ctx context.Context, exec scrape.Execution) {
	exec.CreatedAt = w.clock.Now().UTC()
	metrics.RecordExecution(string(exec.Status), exec.Domain, time.Duration(exec.LatencyMS)*time.Millisecond)
	if err := w.audit.RecordExecution(ctx, exec); err != nil {
		w.logger.Error("audit write failed",
			zap.String("url", exec.URL),
			zap.String("status", string(exec.Status)),
			zap.Error(err),
		)
	}
}

func (w *Worker) sinceMS(start time.Time) int64 {
	return w.clock.Now().Sub(start).Milliseconds()
}

func attributeInt(attrs map[string]string, key string) int {
	if attrs == nil {
		return 0
	}
	n, err := strconv.Atoi(attrs[key])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
