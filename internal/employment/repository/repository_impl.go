package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/taxverify/internal/employment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.EmploymentRequest) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *repo) FindByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*domain.EmploymentRequest, error) {
	var req domain.EmploymentRequest
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Take(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
