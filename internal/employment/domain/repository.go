package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *EmploymentRequest) error
	FindByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*EmploymentRequest, error)
}
