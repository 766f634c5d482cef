package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxverify/internal/redact"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
)

const (
	PayloadStatusCompleted = "completed"
	BillingStatusBilled    = "billed"
)

type Payload struct {
	RequestID          string             `json:"request_id"`
	Status             string             `json:"status"`
	Timestamp          time.Time          `json:"timestamp"`
	Taxpayer           trdomain.Taxpayer  `json:"taxpayer"`
	IncomeVerification IncomeVerification `json:"income_verification"`
	Billing            Billing            `json:"billing"`
}

type IncomeVerification struct {
	YearsProcessed        []string       `json:"years_processed"`
	IncomeByYear          map[string]any `json:"income_by_year"`
	Employers             []any          `json:"employers"`
	FormsFound            []any          `json:"forms_found"`
	MultiEmployerDetected bool           `json:"multi_employer_detected"`
}

type Billing struct {
	Amount          json.Number `json:"amount"`
	AmountFormatted string      `json:"amount_formatted"`
	Status          string      `json:"status"`
	TransactionDate time.Time   `json:"transaction_date"`
}

// BuildPayload renders the completion payload for a request. document is the
// structured transcript, or nil when only opaque artifacts were received.
func BuildPayload(req trdomain.VerificationRequest, document map[string]any, amount decimal.Decimal, at time.Time) Payload {
	metadata, _ := document["metadata"].(map[string]any)

	incomeByYear, _ := document["income_by_year"].(map[string]any)
	if incomeByYear == nil {
		incomeByYear = map[string]any{}
	}
	years := make([]string, 0, len(incomeByYear))
	for year := range incomeByYear {
		years = append(years, year)
	}
	sort.Strings(years)

	employers := firstList(document["employers"], metadata["employers"])
	forms := firstList(document["forms_found"], metadata["forms_found"])

	multi := len(employers) > 1
	if flag, ok := metadata["multi_employer_detected"].(bool); ok {
		multi = flag
	}

	return Payload{
		RequestID: req.RequestID,
		Status:    PayloadStatusCompleted,
		Timestamp: at,
		Taxpayer: trdomain.Taxpayer{
			Name:        req.FullName(),
			SSNLastFour: redact.LastFour(req.SSN),
		},
		IncomeVerification: IncomeVerification{
			YearsProcessed:        years,
			IncomeByYear:          incomeByYear,
			Employers:             employers,
			FormsFound:            forms,
			MultiEmployerDetected: multi,
		},
		Billing: Billing{
			Amount:          json.Number(amount.StringFixed(2)),
			AmountFormatted: "$" + amount.StringFixed(2),
			Status:          BillingStatusBilled,
			TransactionDate: at,
		},
	}
}

func firstList(candidates ...any) []any {
	for _, c := range candidates {
		if list, ok := c.([]any); ok {
			return list
		}
	}
	return []any{}
}
