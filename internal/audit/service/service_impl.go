package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taxverify/internal/audit/domain"
	"github.com/smallbiznis/taxverify/internal/clock"
	obscontext "github.com/smallbiznis/taxverify/internal/observability/context"
	"github.com/smallbiznis/taxverify/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	row := auditdomain.APIRequest{
		ID:            s.genID.Generate(),
		CredentialEnv: normalize(entry.CredentialEnv),
		Action:        action,
		RequestID:     normalize(entry.RequestID),
		StatusCode:    entry.StatusCode,
		IPAddress:     normalize(obscontext.IPAddressFromContext(ctx)),
		UserAgent:     normalize(obscontext.UserAgentFromContext(ctx)),
		CorrelationID: normalize(correlation.ExtractCorrelationID(ctx)),
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write api request audit", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
