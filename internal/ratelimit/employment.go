package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/taxverify/internal/config"
	"go.uber.org/zap"
)

const (
	keyEmploymentCredential = "employment:credential:%s"
	keyIngest               = "ingest:%s:%d"
)

// ErrLockHeld is returned when another upload holds the ingest lock.
var ErrLockHeld = errors.New("ingest_in_progress")

// EmploymentLimiter throttles employment API calls per credential environment.
type EmploymentLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewEmploymentLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*EmploymentLimiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limiting requires REDIS_ADDR")
	}
	if cfg.RateLimit.EmploymentRate <= 0 || cfg.RateLimit.EmploymentBurst <= 0 {
		return nil, errors.New("employment rate limit must be positive")
	}
	log.Info("employment rate limit enabled",
		zap.Float64("rate", cfg.RateLimit.EmploymentRate),
		zap.Int("burst", cfg.RateLimit.EmploymentBurst),
	)
	return &EmploymentLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.EmploymentRate,
		burst:  cfg.RateLimit.EmploymentBurst,
	}, nil
}

func (l *EmploymentLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for the credential environment. A disabled limiter always allows.
func (l *EmploymentLimiter) Allow(ctx context.Context, environment string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyEmploymentCredential, strings.TrimSpace(environment))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// IngestLocker serialises concurrent uploads for one request and year.
type IngestLocker struct {
	locker *Locker
	ttl    time.Duration
}

func NewIngestLocker(cfg config.Config, client *redis.Client) *IngestLocker {
	if client == nil {
		return nil
	}
	ttl := time.Duration(cfg.RateLimit.IngestLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &IngestLocker{locker: NewLocker(client), ttl: ttl}
}

// Lock takes ingest:<request_id>:<year>. Without redis it is a no-op.
// The returned release func is always safe to call.
func (l *IngestLocker) Lock(ctx context.Context, requestID string, year int) (func(), error) {
	if l == nil || l.locker == nil {
		return func() {}, nil
	}
	key := IngestLockKey(requestID, year)
	token, ok, err := l.locker.TryLock(ctx, key, l.ttl)
	if err != nil {
		return func() {}, err
	}
	if !ok {
		return func() {}, ErrLockHeld
	}
	return func() {
		_ = l.locker.Release(context.WithoutCancel(ctx), key, token)
	}, nil
}

func IngestLockKey(requestID string, year int) string {
	return fmt.Sprintf(keyIngest, strings.TrimSpace(requestID), year)
}

// RetryAfterSeconds renders a Retry-After header value, at least one second.
func RetryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
