package domain

import (
	"context"
	"errors"
	"time"
)

type Employee struct {
	SSN          string `json:"ssn" validate:"required"`
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	EmployerName string `json:"employer_name"`
}

type VerifyRequest struct {
	Employee Employee `json:"employee" validate:"required"`
	TaxYears []int    `json:"tax_years"`
}

type EmployeeSummary struct {
	Name         string `json:"name"`
	SSNLastFour  string `json:"ssn_last_four"`
	EmployerName string `json:"employer_name"`
}

type VerifyResponse struct {
	RequestID string          `json:"request_id"`
	Status    Status          `json:"status"`
	Message   string          `json:"message"`
	Employee  EmployeeSummary `json:"employee"`
	TaxYears  []int           `json:"tax_years"`
}

type EmploymentSummary struct {
	EmployerCount     int   `json:"employer_count"`
	MultiEmployer     bool  `json:"multi_employer"`
	EmploymentHistory []any `json:"employment_history"`
	TotalIncome       any   `json:"total_income"`
}

// StatusResponse never carries the taxpayer's name or tax id.
type StatusResponse struct {
	RequestID         string             `json:"request_id"`
	Status            Status             `json:"status"`
	EmploymentSummary *EmploymentSummary `json:"employment_summary,omitempty"`
	RetrievedAt       *time.Time         `json:"retrieved_at,omitempty"`
	Message           string             `json:"message,omitempty"`
	TaxYears          []int              `json:"tax_years,omitempty"`
}

type Service interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	Status(ctx context.Context, requestID string) (*StatusResponse, error)
}

var (
	ErrNotFound        = errors.New("employment_request_not_found")
	ErrInvalidTaxYears = errors.New("invalid_tax_years")
)
