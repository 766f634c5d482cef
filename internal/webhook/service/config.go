package service

import (
	"time"

	"github.com/smallbiznis/taxverify/internal/config"
)

// Config controls delivery timeouts, retries and polling.
type Config struct {
	Timeout      time.Duration
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int
	ClaimLease   time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	RetryJitter  float64
	UserAgent    string
}

func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxAttempts:  5,
		PollInterval: 5 * time.Second,
		BatchSize:    20,
		ClaimLease:   2 * time.Minute,
		RetryInitial: 30 * time.Second,
		RetryMax:     30 * time.Minute,
		RetryJitter:  0.2,
		UserAgent:    "taxverify-webhook",
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Timeout:      time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
		MaxAttempts:  cfg.Webhook.MaxAttempts,
		PollInterval: time.Duration(cfg.Webhook.PollIntervalSeconds) * time.Second,
		BatchSize:    cfg.Webhook.BatchSize,
		UserAgent:    "taxverify-webhook/" + cfg.AppVersion,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = defaults.ClaimLease
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = defaults.RetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = defaults.RetryMax
	}
	if c.RetryJitter < 0 {
		c.RetryJitter = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}
	return c
}
