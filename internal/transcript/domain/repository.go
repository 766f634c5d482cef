package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// UpsertParsed replaces the content stored for (request_id, year) and keeps parsed_at.
	UpsertParsed(ctx context.Context, db *gorm.DB, t *ParsedTranscript) error
	// InsertTransaction reports false when (request_id, year) was already billed.
	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) (bool, error)
	InsertActivity(ctx context.Context, db *gorm.DB, a *UploadActivity) error
	ListTransactions(ctx context.Context, db *gorm.DB, requestID string) ([]*Transaction, error)
	ListActivityByExpert(ctx context.Context, db *gorm.DB, expertID string) ([]*UploadActivity, error)
}
