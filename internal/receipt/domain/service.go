package domain

import "context"

// Receipt is the data printed on a billing receipt.
type Receipt struct {
	RequestID   string
	IssuedAt    string
	Client      string
	Taxpayer    string
	SSNLastFour string
	Email       string
	Status      string
	Items       []Item
	Total       string
}

type Item struct {
	Description string
	Date        string
	Status      string
	Amount      string
}

type Service interface {
	// Render returns the receipt PDF for a verification request.
	Render(ctx context.Context, requestID string) ([]byte, error)
}
