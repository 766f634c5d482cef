package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// UpsertByEmail inserts e, or refreshes the profile fields of the expert
	// already holding e.Email. expert_id and created_at never change.
	UpsertByEmail(ctx context.Context, db *gorm.DB, e *Expert) error
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Expert, error)
}
