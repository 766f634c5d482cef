package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	"github.com/smallbiznis/taxverify/internal/observability/metrics"
	"github.com/smallbiznis/taxverify/internal/ratelimit"
	"github.com/smallbiznis/taxverify/internal/transcript/domain"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/internal/usagereport"
	webhookdomain "github.com/smallbiznis/taxverify/internal/webhook/domain"
	"github.com/smallbiznis/taxverify/pkg/telemetry"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const uploadedMessage = "Transcript uploaded successfully"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      domain.Repository
	Requests  trdomain.Repository
	Policy    *config.PolicyHolder    `optional:"true"`
	Outbox    webhookdomain.Outbox    `optional:"true"`
	Locker    *ratelimit.IngestLocker `optional:"true"`
	Store     domain.ArtifactStore    `optional:"true"`
	Metrics   *metrics.Metrics        `optional:"true"`
	Telemetry *telemetry.Metrics      `optional:"true"`
	Usage     *usagereport.Reporter   `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	requests  trdomain.Repository
	policy    *config.PolicyHolder
	fallback  string
	outbox    webhookdomain.Outbox
	locker    *ratelimit.IngestLocker
	store     domain.ArtifactStore
	metrics   *metrics.Metrics
	telemetry *telemetry.Metrics
	usage     *usagereport.Reporter
	amount    decimal.Decimal
	client    string
}

func New(p Params) (domain.Service, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(p.Cfg.Billing.Amount))
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_AMOUNT %q: %w", p.Cfg.Billing.Amount, err)
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("transcript.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		requests:  p.Requests,
		policy:    p.Policy,
		fallback:  p.Cfg.Ingest.ArtifactPolicy,
		outbox:    p.Outbox,
		locker:    p.Locker,
		store:     p.Store,
		metrics:   p.Metrics,
		telemetry: p.Telemetry,
		usage:     p.Usage,
		amount:    amount,
		client:    p.Cfg.Billing.Client,
	}, nil
}

// artifactPolicy prefers the hot-reloaded policy file over the env default.
func (s *Service) artifactPolicy() string {
	if s.policy != nil {
		return s.policy.Get().ArtifactPolicy
	}
	return config.NormalizeArtifactPolicy(s.fallback)
}

type ingestion struct {
	year        int
	kind        domain.Kind
	contentType string
	content     []byte
	document    map[string]any
	storageKey  *string
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResponse, error) {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Year = strings.TrimSpace(req.Year)
	if len(req.File) == 0 {
		req.File = nil
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	year, err := strconv.Atoi(req.Year)
	if err != nil || year < 1900 || year > 9999 {
		return nil, domain.ErrInvalidYear
	}

	record, err := s.requests.FindByRequestID(ctx, s.db, req.RequestID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, trdomain.ErrNotFound
	}

	release, err := s.locker.Lock(ctx, req.RequestID, year)
	if err != nil {
		return nil, err
	}
	defer release()

	in, err := s.prepare(req, year)
	if err != nil {
		return nil, err
	}
	in.storageKey = s.storeArtifact(ctx, req, in)

	log := logger.FromContext(ctx).With(
		zap.String("verification_request_id", req.RequestID),
		zap.Int("year", year),
		zap.String("kind", string(in.kind)),
	)

	var billed, enqueued bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		billed, enqueued, err = s.persist(ctx, tx, record, req, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	duplicate := !billed
	if enqueued {
		s.outbox.Notify()
	}
	s.metrics.RecordTranscriptIngested(ctx, string(in.kind), duplicate)
	s.telemetry.ObserveUpload(string(in.kind), int64(len(req.File)))
	s.usage.RecordUpload(string(in.kind), duplicate)
	if billed {
		s.telemetry.ObserveBilled(s.client, s.amount.InexactFloat64())
		s.usage.RecordBilled(s.client, s.amount.InexactFloat64())
	}
	log.Info("transcript ingested",
		zap.Bool("duplicate", duplicate),
		zap.Bool("webhook_enqueued", enqueued),
	)

	return &domain.IngestResponse{
		Message:     uploadedMessage,
		RequestID:   req.RequestID,
		Year:        year,
		Kind:        in.kind,
		WebhookSent: enqueued,
		Duplicate:   duplicate,
	}, nil
}

func (s *Service) prepare(req domain.IngestRequest, year int) (*ingestion, error) {
	artifact := domain.Artifact{FileName: req.FileName, DeclaredType: req.ContentType, Data: req.File}
	kind, contentType, err := domain.Classify(artifact)
	if err != nil {
		return nil, err
	}

	in := &ingestion{year: year, kind: kind, contentType: contentType}
	switch kind {
	case domain.KindStructured:
		doc, err := domain.ParseStructured(req.File, s.artifactPolicy())
		if err != nil {
			return nil, err
		}
		in.document = doc
		in.content, err = json.Marshal(doc)
		if err != nil {
			return nil, err
		}
	default:
		in.content, err = json.Marshal(domain.OpaqueContent(artifact, contentType, s.clock.Now()))
		if err != nil {
			return nil, err
		}
	}
	return in, nil
}

// storeArtifact copies the raw upload to object storage. A failed copy only
// costs the storage key.
func (s *Service) storeArtifact(ctx context.Context, req domain.IngestRequest, in *ingestion) *string {
	if s.store == nil {
		return nil
	}
	name := path.Base(strings.ReplaceAll(req.FileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "artifact"
	}
	key := fmt.Sprintf("transcripts/%s/%d/%s", req.RequestID, in.year, name)
	if err := s.store.Put(ctx, key, in.contentType, req.File); err != nil {
		logger.FromContext(ctx).Warn("artifact copy failed",
			zap.String("verification_request_id", req.RequestID),
			zap.Int("year", in.year),
			zap.Error(err),
		)
		return nil
	}
	return &key
}

// persist runs inside the ingestion transaction. It reports whether the year
// was billed by this call and whether a webhook delivery was queued.
func (s *Service) persist(ctx context.Context, tx *gorm.DB, record *trdomain.VerificationRequest, req domain.IngestRequest, in *ingestion) (bool, bool, error) {
	now := s.clock.Now()
	expertID := optional(req.ExpertID)
	expertName := optional(req.ExpertName)

	status := domain.ParsedStatusParsed
	if in.kind == domain.KindOpaque {
		status = domain.ParsedStatusStored
	}
	if err := s.repo.UpsertParsed(ctx, tx, &domain.ParsedTranscript{
		ID:          s.genID.Generate(),
		RequestID:   req.RequestID,
		Year:        in.year,
		Kind:        in.kind,
		Content:     datatypes.JSON(in.content),
		ContentType: in.contentType,
		FileName:    req.FileName,
		FileSize:    int64(len(req.File)),
		StorageKey:  in.storageKey,
		Status:      status,
		ExpertID:    expertID,
		ExpertName:  expertName,
		ParsedAt:    now,
		UpdatedAt:   now,
	}); err != nil {
		return false, false, err
	}

	var income datatypes.JSON
	if in.kind == domain.KindStructured {
		income = datatypes.JSON(in.content)
	}
	if _, err := s.requests.MarkTranscriptReceived(ctx, tx, req.RequestID, income, now); err != nil {
		return false, false, err
	}

	billed, err := s.repo.InsertTransaction(ctx, tx, &domain.Transaction{
		ID:        s.genID.Generate(),
		RequestID: req.RequestID,
		Year:      in.year,
		Amount:    s.amount,
		Status:    domain.TransactionStatusBilled,
		Client:    s.client,
		CreatedAt: now,
	})
	if err != nil {
		return false, false, err
	}

	if err := s.repo.InsertActivity(ctx, tx, &domain.UploadActivity{
		ID:         s.genID.Generate(),
		RequestID:  req.RequestID,
		ExpertID:   expertID,
		ExpertName: expertName,
		Year:       in.year,
		FileName:   req.FileName,
		FileSize:   int64(len(req.File)),
		FileKind:   in.contentType,
		Duplicate:  !billed,
		CreatedAt:  now,
	}); err != nil {
		return false, false, err
	}

	if !billed || s.outbox == nil || record.WebhookURL == nil || strings.TrimSpace(*record.WebhookURL) == "" {
		return billed, false, nil
	}

	payload := webhookdomain.BuildPayload(*record, webhookDocument(in.document, record.IncomeData), s.amount, now)
	enqueued, err := s.outbox.Enqueue(ctx, tx, webhookdomain.Enqueue{
		RequestID: req.RequestID,
		Year:      in.year,
		URL:       strings.TrimSpace(*record.WebhookURL),
		Payload:   payload,
	})
	if err != nil {
		return false, false, err
	}
	return billed, enqueued, nil
}

// webhookDocument picks the income document for the payload: this upload if it
// was structured, else whatever the request already holds.
func webhookDocument(current map[string]any, stored datatypes.JSON) map[string]any {
	if current != nil {
		return current
	}
	if len(stored) == 0 {
		return nil
	}
	decoded, err := domain.DecodeDocument(stored)
	if err != nil {
		return nil
	}
	doc, _ := decoded.(map[string]any)
	return doc
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
