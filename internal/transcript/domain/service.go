package domain

import (
	"context"
	"errors"
)

// IngestRequest is one multipart upload. File holds the raw part bytes.
type IngestRequest struct {
	RequestID   string `form:"requestId" validate:"required"`
	Year        string `form:"year" validate:"required"`
	File        []byte `form:"file" validate:"required"`
	FileName    string `form:"-"`
	ContentType string `form:"-"`
	ExpertID    string `form:"expert_id"`
	ExpertName  string `form:"expert_name"`
}

type IngestResponse struct {
	Message     string `json:"message"`
	RequestID   string `json:"request_id"`
	Year        int    `json:"year"`
	Kind        Kind   `json:"kind"`
	WebhookSent bool   `json:"webhook_sent"`
	Duplicate   bool   `json:"duplicate"`
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error)
}

// ArtifactStore keeps a copy of the raw upload. It is optional.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

var ErrInvalidYear = errors.New("invalid_year")
