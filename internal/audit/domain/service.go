package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Entry describes an API call to record. Empty strings are stored as NULL.
type Entry struct {
	CredentialEnv string
	Action        string
	RequestID     string
	StatusCode    int
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *APIRequest) error
}

var ErrInvalidAction = errors.New("invalid_action")
