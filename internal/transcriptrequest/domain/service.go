package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type CreateRequest struct {
	SSN          string `json:"ssn" validate:"required"`
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	Email        string `json:"email" validate:"required"`
	EmployerName string `json:"employer_name"`
	WebhookURL   string `json:"webhook_url"`
}

type Taxpayer struct {
	Name        string `json:"name"`
	SSNLastFour string `json:"ssn_last_four"`
}

type CreateResponse struct {
	RequestID           string   `json:"request_id"`
	Status              Status   `json:"status"`
	Message             string   `json:"message"`
	Taxpayer            Taxpayer `json:"taxpayer"`
	EstimatedCompletion string   `json:"estimated_completion"`
	Cost                string   `json:"cost"`
}

// WebhookStatus is the latest outbound delivery for a request.
type WebhookStatus struct {
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

type StatusResponse struct {
	RequestID   string          `json:"request_id"`
	Status      Status          `json:"status"`
	Taxpayer    Taxpayer        `json:"taxpayer"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	IncomeData  json.RawMessage `json:"income_data"`
	Webhook     *WebhookStatus  `json:"webhook,omitempty"`
}

type LookupRequest struct {
	TIN  string `json:"tin"`
	Name string `json:"name"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	GetStatus(ctx context.Context, requestID string) (*StatusResponse, error)
	Lookup(ctx context.Context, req LookupRequest) (*StatusResponse, error)
}

// DeliveryLookup reports the newest webhook delivery for a request, or nil.
type DeliveryLookup interface {
	LatestDelivery(ctx context.Context, requestID string) (*WebhookStatus, error)
}

var ErrNotFound = errors.New("request_not_found")
