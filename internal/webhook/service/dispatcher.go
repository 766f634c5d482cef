package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/taxverify/internal/observability/metrics"
	"github.com/smallbiznis/taxverify/internal/observability/tracing"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/internal/webhook/domain"
	"github.com/smallbiznis/taxverify/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobName = "webhook_dispatch"

var ErrInvalidConfig = errors.New("invalid webhook dispatcher config")

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Config Config       `optional:"true"`
	Client *http.Client `name:"webhook_http_client" optional:"true"`
}

// Dispatcher owns the webhook outbox: rows are enqueued inside ingestion
// transactions and delivered by a background loop.
type Dispatcher struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	cfg    Config
	client *http.Client
	wake   chan struct{}
}

func New(p Params) (*Dispatcher, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	client := p.Client
	if client == nil {
		client = tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Timeout})
	}
	return &Dispatcher{
		db:     p.DB,
		log:    logger.WithActor(p.Log.Named("webhook.dispatcher"), "system", "webhook_dispatcher"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		cfg:    cfg,
		client: client,
		wake:   make(chan struct{}, 1),
	}, nil
}

func (d *Dispatcher) Enqueue(ctx context.Context, tx *gorm.DB, req domain.Enqueue) (bool, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal webhook payload: %w", err)
	}
	_, cid := correlation.EnsureCorrelationID(ctx)
	now := d.clock.Now()
	row := &domain.Delivery{
		ID:            d.genID.Generate(),
		RequestID:     req.RequestID,
		Year:          req.Year,
		URL:           req.URL,
		Payload:       body,
		Status:        domain.StatusPending,
		MaxAttempts:   d.cfg.MaxAttempts,
		NextAttemptAt: now,
		CorrelationID: cid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := d.repo.Insert(ctx, tx, row)
	if err != nil {
		return false, err
	}
	if !inserted {
		logger.WithContext(ctx, d.log).Info("webhook already queued",
			zap.String("request_id", req.RequestID),
			zap.Int("year", req.Year),
		)
	}
	return inserted, nil
}

// Notify wakes the loop without blocking; extra signals collapse into one.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) LatestDelivery(ctx context.Context, requestID string) (*trdomain.WebhookStatus, error) {
	row, err := d.repo.LatestForRequest(ctx, d.db, requestID)
	if err != nil || row == nil {
		return nil, err
	}
	return &trdomain.WebhookStatus{
		Status:      string(row.Status),
		Attempts:    row.Attempts,
		LastError:   row.LastError,
		DeliveredAt: row.DeliveredAt,
	}, nil
}

// RunOnce claims one batch of due deliveries and attempts them concurrently.
func (d *Dispatcher) RunOnce(parent context.Context) error {
	start := d.clock.Now()
	workerMetrics := obsmetrics.Worker()
	workerMetrics.IncJobRun(jobName)

	// Every attempt is bounded by the client timeout, so the batch finishes
	// well inside the claim lease.
	ctx, cancel := context.WithTimeout(parent, d.cfg.Timeout+5*time.Second)
	defer cancel()

	err := d.dispatch(ctx)
	workerMetrics.ObserveJobDuration(jobName, d.clock.Now().Sub(start))
	if backlog, countErr := d.repo.CountBacklog(parent, d.db); countErr == nil {
		workerMetrics.SetBacklog(backlog)
	}
	if err == nil {
		return nil
	}

	workerMetrics.IncJobError(jobName, err)
	if errors.Is(err, context.DeadlineExceeded) {
		workerMetrics.IncJobTimeout(jobName)
		d.log.Warn("webhook dispatch timed out", zap.Duration("timeout", d.cfg.Timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", jobName, err)
}

func (d *Dispatcher) dispatch(ctx context.Context) error {
	now := d.clock.Now()
	rows, err := d.repo.ClaimDue(ctx, d.db, now, now.Add(-d.cfg.ClaimLease), d.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, row := range rows {
		wg.Add(1)
		go func(row *domain.Delivery) {
			defer wg.Done()
			if err := d.attempt(ctx, row); err != nil {
				mu.Lock()
				errs = errors.Join(errs, err)
				mu.Unlock()
			}
		}(row)
	}
	wg.Wait()
	return errs
}

// attempt sends one delivery and records the outcome. Only bookkeeping
// failures are returned; delivery failures live on the row.
func (d *Dispatcher) attempt(ctx context.Context, row *domain.Delivery) error {
	ctx = correlation.ContextWithCorrelationID(ctx, row.CorrelationID)
	log := d.log.With(
		zap.String("request_id", row.RequestID),
		zap.Int("year", row.Year),
		zap.String("correlation_id", row.CorrelationID),
	)

	start := d.clock.Now()
	attempts := row.Attempts + 1
	statusCode, sendErr := Deliver(ctx, d.client, row.URL, row.Payload, d.cfg.UserAgent)
	finished := d.clock.Now()
	elapsed := finished.Sub(start)

	if sendErr == nil {
		log.Info("webhook delivered", zap.Int("attempts", attempts), zap.Int("status_code", statusCode))
		obsmetrics.Worker().ObserveDelivery(obsmetrics.DeliveryOutcomeDelivered, elapsed)
		return d.repo.MarkDelivered(ctx, d.db, row.ID, attempts, statusCode, finished)
	}

	var code *int
	if statusCode > 0 {
		code = &statusCode
	}
	maxAttempts := row.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.cfg.MaxAttempts
	}

	if errors.Is(sendErr, domain.ErrInvalidURL) || attempts >= maxAttempts {
		log.Warn("webhook delivery failed", zap.Int("attempts", attempts), zap.Error(sendErr))
		obsmetrics.Worker().ObserveDelivery(obsmetrics.DeliveryOutcomeFailed, elapsed)
		return d.repo.MarkFailed(ctx, d.db, row.ID, attempts, sendErr.Error(), code, finished)
	}

	next := finished.Add(d.retryDelay(attempts))
	log.Warn("webhook delivery will retry",
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(sendErr),
	)
	obsmetrics.Worker().ObserveDelivery(obsmetrics.DeliveryOutcomeRetry, elapsed)
	return d.repo.MarkRetry(ctx, d.db, row.ID, attempts, sendErr.Error(), code, next, finished)
}

// retryDelay is the exponential delay after the given number of attempts.
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     d.cfg.RetryInitial,
		RandomizationFactor: d.cfg.RetryJitter,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         d.cfg.RetryMax,
	}
	var delay time.Duration
	for i := 0; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	if delay <= 0 {
		delay = d.cfg.RetryInitial
	}
	return delay
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	nextRun := d.clock.Now().Add(d.cfg.PollInterval)
	workerMetrics := obsmetrics.Worker()

	for {
		if runLag := d.clock.Now().Sub(nextRun); runLag > 0 {
			workerMetrics.ObserveRunLoopLag(runLag)
		}
		if err := d.RunOnce(ctx); err != nil {
			d.log.Warn("webhook dispatch failed", zap.Error(err))
		}
		nextRun = d.clock.Now().Add(d.cfg.PollInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}
