package repository

import (
	"context"

	"github.com/smallbiznis/taxverify/internal/expert/domain"
	"github.com/smallbiznis/taxverify/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertByEmail(ctx context.Context, db *gorm.DB, e *domain.Expert) error {
	return repository.ProvideStore[domain.Expert](db).Upsert(ctx, e,
		[]string{"email"},
		[]string{"name", "team", "team_slug", "status", "last_login_at", "updated_at"},
	)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Expert, error) {
	return repository.ProvideStore[domain.Expert](db).FindOne(ctx, &domain.Expert{Email: email})
}
