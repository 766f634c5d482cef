package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	"github.com/smallbiznis/taxverify/internal/receipt/domain"
	"github.com/smallbiznis/taxverify/internal/redact"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Requests    trdomain.Repository
	Transcripts transcriptdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	requests    trdomain.Repository
	transcripts transcriptdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("receipt.service"),
		clock:       p.Clock,
		requests:    p.Requests,
		transcripts: p.Transcripts,
	}
}

func (s *Service) Render(ctx context.Context, requestID string) ([]byte, error) {
	receipt, err := s.build(ctx, requestID)
	if err != nil {
		return nil, err
	}
	doc, err := renderPDF(*receipt)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	logger.FromContext(ctx).Debug("receipt rendered",
		zap.String("verification_request_id", receipt.RequestID),
		zap.Int("items", len(receipt.Items)),
		zap.Int("bytes", len(doc)),
	)
	return doc, nil
}

func (s *Service) build(ctx context.Context, requestID string) (*domain.Receipt, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, trdomain.ErrNotFound
	}
	record, err := s.requests.FindByRequestID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, trdomain.ErrNotFound
	}

	txs, err := s.transcripts.ListTransactions(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	items := make([]domain.Item, 0, len(txs))
	for _, tx := range txs {
		total = total.Add(tx.Amount)
		items = append(items, domain.Item{
			Description: fmt.Sprintf("Income verification, tax year %d", tx.Year),
			Date:        tx.CreatedAt.UTC().Format(dateLayout),
			Status:      tx.Status,
			Amount:      formatAmount(tx.Amount),
		})
	}

	return &domain.Receipt{
		RequestID:   record.RequestID,
		IssuedAt:    s.clock.Now().UTC().Format(time.RFC1123),
		Client:      record.Client,
		Taxpayer:    record.FullName(),
		SSNLastFour: redact.LastFour(record.SSN),
		Email:       record.Email,
		Status:      string(record.Status),
		Items:       items,
		Total:       formatAmount(total),
	}, nil
}

func formatAmount(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
