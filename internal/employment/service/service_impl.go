package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/employment/domain"
	obscontext "github.com/smallbiznis/taxverify/internal/observability/context"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	"github.com/smallbiznis/taxverify/internal/observability/metrics"
	"github.com/smallbiznis/taxverify/internal/redact"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	requestIDPrefix = "EMP_"
	queuedMessage   = "Employment verification request received. IRS call will be scheduled within 24 hours."
	pendingMessage  = "IRS call pending. Employment data will be available within 24 hours."
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("employment.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResponse, error) {
	emp := req.Employee
	emp.SSN = strings.TrimSpace(emp.SSN)
	emp.FirstName = strings.TrimSpace(emp.FirstName)
	emp.LastName = strings.TrimSpace(emp.LastName)
	emp.EmployerName = strings.TrimSpace(emp.EmployerName)
	req.Employee = emp
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if emp.EmployerName == "" {
		emp.EmployerName = trdomain.DefaultEmployerName
	}

	now := s.clock.Now()
	years := req.TaxYears
	if len(years) == 0 {
		years = []int{now.Year() - 1, now.Year() - 2}
	}
	for _, y := range years {
		if y < 1900 || y > now.Year() {
			return nil, domain.ErrInvalidTaxYears
		}
	}
	encodedYears, err := json.Marshal(years)
	if err != nil {
		return nil, err
	}

	record := domain.EmploymentRequest{
		ID:           s.genID.Generate(),
		RequestID:    requestIDPrefix + ulid.Make().String(),
		SSN:          emp.SSN,
		FirstName:    emp.FirstName,
		LastName:     emp.LastName,
		EmployerName: emp.EmployerName,
		Status:       domain.StatusPendingIRSCall,
		TaxYears:     datatypes.JSON(encodedYears),
		CreatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("employment verification queued",
		zap.String("employment_request_id", record.RequestID),
		zap.Ints("tax_years", years),
	)

	return &domain.VerifyResponse{
		RequestID: record.RequestID,
		Status:    record.Status,
		Message:   queuedMessage,
		Employee: domain.EmployeeSummary{
			Name:         emp.FirstName + " " + emp.LastName,
			SSNLastFour:  redact.LastFour(emp.SSN),
			EmployerName: emp.EmployerName,
		},
		TaxYears: years,
	}, nil
}

func (s *Service) Status(ctx context.Context, requestID string) (*domain.StatusResponse, error) {
	_, environment := obscontext.ActorFromContext(ctx)

	requestID = strings.TrimSpace(requestID)
	record, err := s.repo.FindByRequestID(ctx, s.db, requestID)
	if err != nil {
		s.metrics.RecordEmploymentLookup(ctx, environment, "error")
		return nil, err
	}
	if record == nil {
		s.metrics.RecordEmploymentLookup(ctx, environment, "not_found")
		return nil, domain.ErrNotFound
	}
	s.metrics.RecordEmploymentLookup(ctx, environment, string(record.Status))

	resp := &domain.StatusResponse{
		RequestID: record.RequestID,
		Status:    record.Status,
	}
	switch record.Status {
	case domain.StatusCompleted:
		resp.EmploymentSummary = s.summarize(ctx, record)
		resp.RetrievedAt = record.RetrievedAt
	case domain.StatusPendingIRSCall:
		resp.Message = pendingMessage
		resp.TaxYears = taxYears(record.TaxYears)
	}
	return resp, nil
}

// summarize projects the stored employment data. Taxpayer identity fields are
// stripped from the history before it leaves the service.
func (s *Service) summarize(ctx context.Context, record *domain.EmploymentRequest) *domain.EmploymentSummary {
	summary := &domain.EmploymentSummary{
		EmployerCount:     record.EmployerCount,
		MultiEmployer:     record.MultiEmployer,
		EmploymentHistory: []any{},
	}
	if len(record.EmploymentData) == 0 {
		return summary
	}

	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(record.EmploymentData))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		logger.FromContext(ctx).Warn("employment data unreadable",
			zap.String("employment_request_id", record.RequestID),
			zap.Error(err),
		)
		return summary
	}
	if history, ok := redact.StripPII(data["employment_history"]).([]any); ok {
		summary.EmploymentHistory = history
	}
	summary.TotalIncome = data["total_income"]
	return summary
}

func taxYears(raw datatypes.JSON) []int {
	if len(raw) == 0 {
		return []int{}
	}
	var years []int
	if err := json.Unmarshal(raw, &years); err != nil {
		return []int{}
	}
	return years
}
