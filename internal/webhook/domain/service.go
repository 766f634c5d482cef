package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Enqueue describes a delivery to persist inside the caller's transaction.
type Enqueue struct {
	RequestID string
	Year      int
	URL       string
	Payload   Payload
}

type Repository interface {
	// Insert writes the row unless (request_id, year) already has one.
	Insert(ctx context.Context, db *gorm.DB, d *Delivery) (bool, error)
	// ClaimDue moves due pending rows, and sending rows whose claim is older
	// than staleBefore, to sending. Each row is claimed by exactly one caller.
	ClaimDue(ctx context.Context, db *gorm.DB, now, staleBefore time.Time, limit int) ([]*Delivery, error)
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts, statusCode int, at time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, statusCode *int, next, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, statusCode *int, at time.Time) error
	LatestForRequest(ctx context.Context, db *gorm.DB, requestID string) (*Delivery, error)
	CountBacklog(ctx context.Context, db *gorm.DB) (int64, error)
}

// Outbox is what ingestion needs: a transactional enqueue and a wake-up.
type Outbox interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req Enqueue) (bool, error)
	Notify()
}

var ErrInvalidURL = errors.New("invalid_webhook_url")

// DeliveryError is a failed attempt. It is logged and recorded on the row, never returned to API callers.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("webhook responded %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "webhook delivery failed"
}

func (e *DeliveryError) Unwrap() error { return e.Err }
