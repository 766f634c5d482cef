package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending8821Submission Status = "pending_8821_submission"
	StatusTranscriptReceived    Status = "transcript_received"
)

const DefaultEmployerName = "Not specified"

// VerificationRequest is one taxpayer's transcript verification.
type VerificationRequest struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	RequestID    string          `gorm:"column:request_id;type:varchar(64);not null;uniqueIndex"`
	SSN          string          `gorm:"column:ssn;type:varchar(32);not null"`
	FirstName    string          `gorm:"type:varchar(255);not null"`
	LastName     string          `gorm:"type:varchar(255);not null"`
	Email        string          `gorm:"type:varchar(255);not null"`
	EmployerName string          `gorm:"type:varchar(255);not null"`
	WebhookURL   *string         `gorm:"column:webhook_url;type:text"`
	Status       Status          `gorm:"type:varchar(64);not null;index"`
	Cost         decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Client       string          `gorm:"type:varchar(64);not null"`
	IncomeData   datatypes.JSON  `gorm:"column:income_data"`
	CreatedAt    time.Time       `gorm:"not null;index"`
	UpdatedAt    time.Time       `gorm:"not null"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
}

func (VerificationRequest) TableName() string { return "transcript_requests" }

func (r VerificationRequest) FullName() string {
	return r.FirstName + " " + r.LastName
}
