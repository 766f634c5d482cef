package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindStructured Kind = "structured"
	KindOpaque     Kind = "opaque"
)

const (
	ParsedStatusParsed = "parsed"
	ParsedStatusStored = "stored"

	TransactionStatusBilled = "billed"
)

// ParsedTranscript is the latest artifact received for a request and year.
type ParsedTranscript struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	RequestID   string         `gorm:"column:request_id;type:varchar(64);not null;uniqueIndex:ux_parsed_transcripts_request_year,priority:1"`
	Year        int            `gorm:"not null;uniqueIndex:ux_parsed_transcripts_request_year,priority:2"`
	Kind        Kind           `gorm:"type:varchar(16);not null"`
	Content     datatypes.JSON `gorm:"not null"`
	ContentType string         `gorm:"type:varchar(128);not null"`
	FileName    string         `gorm:"type:varchar(512)"`
	FileSize    int64          `gorm:"not null;default:0"`
	StorageKey  *string        `gorm:"type:text"`
	Status      string         `gorm:"type:varchar(16);not null"`
	ExpertID    *string        `gorm:"type:varchar(64)"`
	ExpertName  *string        `gorm:"type:varchar(255)"`
	ParsedAt    time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

func (ParsedTranscript) TableName() string { return "parsed_transcripts" }

// Transaction is the billing record for one ingested year.
type Transaction struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	RequestID string          `gorm:"column:request_id;type:varchar(64);not null;uniqueIndex:ux_transactions_request_year,priority:1"`
	Year      int             `gorm:"not null;uniqueIndex:ux_transactions_request_year,priority:2"`
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Status    string          `gorm:"type:varchar(16);not null"`
	Client    string          `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// UploadActivity is appended for every upload, duplicates included.
type UploadActivity struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	RequestID  string       `gorm:"column:request_id;type:varchar(64);not null;index"`
	ExpertID   *string      `gorm:"type:varchar(64);index"`
	ExpertName *string      `gorm:"type:varchar(255)"`
	Year       int          `gorm:"not null"`
	FileName   string       `gorm:"type:varchar(512)"`
	FileSize   int64        `gorm:"not null;default:0"`
	FileKind   string       `gorm:"type:varchar(128)"`
	Duplicate  bool         `gorm:"not null;default:false"`
	CreatedAt  time.Time    `gorm:"not null;index"`
}

func (UploadActivity) TableName() string { return "upload_activity" }
