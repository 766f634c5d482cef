package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPendingIRSCall Status = "pending_irs_call"
	StatusCompleted      Status = "completed"
)

// EmploymentRequest is filled in by the IRS call process once intake has stored it.
type EmploymentRequest struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	RequestID      string         `gorm:"column:request_id;type:varchar(64);not null;uniqueIndex"`
	SSN            string         `gorm:"column:ssn;type:varchar(32);not null"`
	FirstName      string         `gorm:"type:varchar(255);not null"`
	LastName       string         `gorm:"type:varchar(255);not null"`
	EmployerName   string         `gorm:"type:varchar(255);not null"`
	Status         Status         `gorm:"type:varchar(64);not null;index"`
	EmploymentData datatypes.JSON `gorm:"column:employment_data"`
	EmployerCount  int            `gorm:"not null;default:0"`
	MultiEmployer  bool           `gorm:"not null;default:false"`
	TaxYears       datatypes.JSON `gorm:"column:tax_years"`
	RetrievedAt    *time.Time     `gorm:"column:retrieved_at"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (EmploymentRequest) TableName() string { return "employment_requests" }
