package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	"github.com/smallbiznis/taxverify/internal/observability/metrics"
	"github.com/smallbiznis/taxverify/internal/redact"
	"github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	createdMessage      = "8821 form submitted. Our team will request IRS transcripts within 24 hours."
	estimatedCompletion = "1-2 business days"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Deliveries domain.DeliveryLookup `optional:"true"`
	Metrics    *metrics.Metrics      `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	deliveries domain.DeliveryLookup
	metrics    *metrics.Metrics
	cost       decimal.Decimal
	client     string
}

func New(p Params) (domain.Service, error) {
	cost, err := decimal.NewFromString(strings.TrimSpace(p.Cfg.Billing.Amount))
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_AMOUNT %q: %w", p.Cfg.Billing.Amount, err)
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("transcriptrequest.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		deliveries: p.Deliveries,
		metrics:    p.Metrics,
		cost:       cost,
		client:     p.Cfg.Billing.Client,
	}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CreateResponse, error) {
	req.SSN = strings.TrimSpace(req.SSN)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	employer := strings.TrimSpace(req.EmployerName)
	if employer == "" {
		employer = domain.DefaultEmployerName
	}
	var webhookURL *string
	if u := strings.TrimSpace(req.WebhookURL); u != "" {
		webhookURL = &u
	}

	now := s.clock.Now()
	requestID, err := newRequestID(now.UnixMilli())
	if err != nil {
		return nil, err
	}

	record := domain.VerificationRequest{
		ID:           s.genID.Generate(),
		RequestID:    requestID,
		SSN:          req.SSN,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		EmployerName: employer,
		WebhookURL:   webhookURL,
		Status:       domain.StatusPending8821Submission,
		Cost:         s.cost,
		Client:       s.client,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		return nil, err
	}

	s.metrics.RecordRequestCreated(ctx)
	logger.FromContext(ctx).Info("verification request created",
		zap.String("verification_request_id", requestID),
		zap.Bool("has_webhook", webhookURL != nil),
	)

	return &domain.CreateResponse{
		RequestID:           requestID,
		Status:              record.Status,
		Message:             createdMessage,
		Taxpayer:            taxpayerOf(record),
		EstimatedCompletion: estimatedCompletion,
		Cost:                "$" + s.cost.StringFixed(2),
	}, nil
}

func (s *Service) GetStatus(ctx context.Context, requestID string) (*domain.StatusResponse, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, domain.ErrNotFound
	}
	record, err := s.repo.FindByRequestID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return s.snapshot(ctx, record)
}

func (s *Service) Lookup(ctx context.Context, req domain.LookupRequest) (*domain.StatusResponse, error) {
	tin := strings.TrimSpace(req.TIN)
	name := strings.TrimSpace(req.Name)
	if tin == "" && name == "" {
		return nil, &validation.MissingFieldsError{
			Required: []string{"tin", "name"},
			Missing:  []string{"tin", "name"},
		}
	}

	record, err := s.repo.FindFirstMatch(ctx, s.db, tin, name)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return s.snapshot(ctx, record)
}

func (s *Service) snapshot(ctx context.Context, record *domain.VerificationRequest) (*domain.StatusResponse, error) {
	resp := &domain.StatusResponse{
		RequestID:   record.RequestID,
		Status:      record.Status,
		Taxpayer:    taxpayerOf(*record),
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
	}
	if len(record.IncomeData) > 0 && string(record.IncomeData) != "null" {
		resp.IncomeData = json.RawMessage(record.IncomeData)
	}

	if s.deliveries != nil && record.WebhookURL != nil {
		delivery, err := s.deliveries.LatestDelivery(ctx, record.RequestID)
		if err != nil {
			// Delivery state is informational; the snapshot still renders.
			s.log.Warn("failed to load webhook delivery",
				zap.String("verification_request_id", record.RequestID),
				zap.Error(err),
			)
		} else {
			resp.Webhook = delivery
		}
	}
	return resp, nil
}

func taxpayerOf(record domain.VerificationRequest) domain.Taxpayer {
	return domain.Taxpayer{
		Name:        record.FullName(),
		SSNLastFour: redact.LastFour(record.SSN),
	}
}

// newRequestID renders TR_<unix millis>_<8 hex chars>.
func newRequestID(millis int64) (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return fmt.Sprintf("TR_%d_%s", millis, hex.EncodeToString(buf[:])), nil
}
