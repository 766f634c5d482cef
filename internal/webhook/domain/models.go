package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Delivery is one outbox row: a completion payload owed to a client webhook.
type Delivery struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	RequestID      string         `gorm:"column:request_id;type:varchar(64);not null;uniqueIndex:ux_webhook_deliveries_request_year,priority:1"`
	Year           int            `gorm:"not null;uniqueIndex:ux_webhook_deliveries_request_year,priority:2"`
	URL            string         `gorm:"column:url;type:text;not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	Status         Status         `gorm:"type:varchar(16);not null;index:ix_webhook_deliveries_due,priority:1"`
	Attempts       int            `gorm:"not null;default:0"`
	MaxAttempts    int            `gorm:"not null"`
	LastError      *string        `gorm:"type:text"`
	LastStatusCode *int
	NextAttemptAt  time.Time  `gorm:"not null;index:ix_webhook_deliveries_due,priority:2"`
	CorrelationID  string     `gorm:"column:correlation_id;type:varchar(64)"`
	ClaimedAt      *time.Time `gorm:"column:claimed_at"`
	DeliveredAt    *time.Time `gorm:"column:delivered_at"`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (Delivery) TableName() string { return "webhook_deliveries" }
