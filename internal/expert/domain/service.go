package domain

import (
	"context"
	"time"
)

type LoginRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
	Team  string `json:"team" validate:"required"`
}

type LoginResponse struct {
	Success bool       `json:"success"`
	Expert  ExpertView `json:"expert"`
}

type ExpertView struct {
	ExpertID    string    `json:"expert_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Team        string    `json:"team"`
	TeamSlug    string    `json:"team_slug"`
	Status      string    `json:"status"`
	LastLoginAt time.Time `json:"last_login_at"`
}

type Upload struct {
	RequestID  string    `json:"request_id"`
	Year       int       `json:"year"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	FileKind   string    `json:"file_kind"`
	Duplicate  bool      `json:"duplicate"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type ActivityResponse struct {
	ExpertID     string   `json:"expert_id"`
	Uploads      []Upload `json:"uploads"`
	TotalUploads int      `json:"total_uploads"`
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Activity(ctx context.Context, expertID string) (*ActivityResponse, error)
}
