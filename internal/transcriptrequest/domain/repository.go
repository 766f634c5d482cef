package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *VerificationRequest) error
	FindByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*VerificationRequest, error)
	// FindFirstMatch returns the newest request whose tin, first name or last name
	// contains the given fragments, case-insensitively.
	FindFirstMatch(ctx context.Context, db *gorm.DB, tinFragment, nameFragment string) (*VerificationRequest, error)
	// MarkTranscriptReceived advances a pending request. income is written only while
	// income_data is NULL and completed_at only while it is NULL. It reports whether
	// the status moved.
	MarkTranscriptReceived(ctx context.Context, db *gorm.DB, requestID string, income datatypes.JSON, at time.Time) (bool, error)
}
