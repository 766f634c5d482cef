package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIRequest is one call against the employment API, allowed or not.
type APIRequest struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	CredentialEnv *string      `gorm:"column:credential_env;type:varchar(16)"`
	Action        string       `gorm:"type:varchar(64);not null"`
	RequestID     *string      `gorm:"column:request_id;type:varchar(64);index"`
	StatusCode    int          `gorm:"not null"`
	IPAddress     *string      `gorm:"column:ip_address;type:varchar(64)"`
	UserAgent     *string      `gorm:"column:user_agent;type:text"`
	CorrelationID *string      `gorm:"column:correlation_id;type:varchar(64)"`
	CreatedAt     time.Time    `gorm:"not null;index"`
}

func (APIRequest) TableName() string { return "api_requests" }
