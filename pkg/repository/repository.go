package repository

import (
	"context"

	"github.com/smallbiznis/taxverify/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a generic record store over one gorm model.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	CreateIgnoringConflict(ctx context.Context, resource *T, columns ...string) (bool, error)
	Upsert(ctx context.Context, resource *T, conflict []string, updates []string) error
	Update(ctx context.Context, resourceID string, resource any) error
	UpdateWhere(ctx context.Context, updates map[string]any, opts ...option.QueryOption) (int64, error)
	Delete(ctx context.Context, resourceID string) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
	BatchCreate(ctx context.Context, resources []*T) error
}

func conflictColumns(names []string) []clause.Column {
	cols := make([]clause.Column, 0, len(names))
	for _, name := range names {
		cols = append(cols, clause.Column{Name: name})
	}
	return cols
}
