package repository

import (
	"context"

	"github.com/smallbiznis/taxverify/internal/transcript/domain"
	"github.com/smallbiznis/taxverify/pkg/db/option"
	"github.com/smallbiznis/taxverify/pkg/repository"
	"gorm.io/gorm"
)

var requestYear = []string{"request_id", "year"}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertParsed(ctx context.Context, db *gorm.DB, t *domain.ParsedTranscript) error {
	return repository.ProvideStore[domain.ParsedTranscript](db).Upsert(ctx, t, requestYear, []string{
		"kind", "content", "content_type", "file_name", "file_size",
		"storage_key", "status", "expert_id", "expert_name", "updated_at",
	})
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) (bool, error) {
	return repository.ProvideStore[domain.Transaction](db).CreateIgnoringConflict(ctx, tx, requestYear...)
}

func (r *repo) InsertActivity(ctx context.Context, db *gorm.DB, a *domain.UploadActivity) error {
	return repository.ProvideStore[domain.UploadActivity](db).Create(ctx, a)
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, requestID string) ([]*domain.Transaction, error) {
	return repository.ProvideStore[domain.Transaction](db).Find(ctx,
		&domain.Transaction{RequestID: requestID},
		option.WithOrder("year asc, created_at asc"),
	)
}

func (r *repo) ListActivityByExpert(ctx context.Context, db *gorm.DB, expertID string) ([]*domain.UploadActivity, error) {
	return repository.ProvideStore[domain.UploadActivity](db).Find(ctx,
		&domain.UploadActivity{},
		option.WithWhere("expert_id = ?", expertID),
		option.WithOrder("created_at desc, id desc"),
	)
}
