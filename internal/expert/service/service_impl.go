package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/expert/domain"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const expertIDPrefix = "EXP_"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Transcripts transcriptdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	transcripts transcriptdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("expert.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		transcripts: p.Transcripts,
	}
}

// Login records an expert session. The first login for an email mints the
// expert id; later logins keep it and overwrite the profile.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Team = strings.TrimSpace(req.Team)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var expert *domain.Expert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertByEmail(ctx, tx, &domain.Expert{
			ID:          s.genID.Generate(),
			ExpertID:    expertIDPrefix + ulid.Make().String(),
			Email:       req.Email,
			Name:        req.Name,
			Team:        req.Team,
			TeamSlug:    slug.Make(req.Team),
			Status:      domain.StatusActive,
			LastLoginAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		found, err := s.repo.FindByEmail(ctx, tx, req.Email)
		if err != nil {
			return err
		}
		if found == nil {
			return errors.New("expert missing after upsert")
		}
		expert = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithActor(logger.FromContext(ctx), "expert", expert.ExpertID).Info("expert login",
		zap.String("team_slug", expert.TeamSlug),
	)

	return &domain.LoginResponse{
		Success: true,
		Expert: domain.ExpertView{
			ExpertID:    expert.ExpertID,
			Name:        expert.Name,
			Email:       expert.Email,
			Team:        expert.Team,
			TeamSlug:    expert.TeamSlug,
			Status:      expert.Status,
			LastLoginAt: expert.LastLoginAt,
		},
	}, nil
}

// Activity lists uploads attributed to expertID, newest first. An id with no
// uploads yields an empty list.
func (s *Service) Activity(ctx context.Context, expertID string) (*domain.ActivityResponse, error) {
	expertID = strings.TrimSpace(expertID)
	rows, err := s.transcripts.ListActivityByExpert(ctx, s.db, expertID)
	if err != nil {
		return nil, err
	}

	uploads := make([]domain.Upload, 0, len(rows))
	for _, row := range rows {
		uploads = append(uploads, domain.Upload{
			RequestID:  row.RequestID,
			Year:       row.Year,
			FileName:   row.FileName,
			FileSize:   row.FileSize,
			FileKind:   row.FileKind,
			Duplicate:  row.Duplicate,
			UploadedAt: row.CreatedAt,
		})
	}
	return &domain.ActivityResponse{
		ExpertID:     expertID,
		Uploads:      uploads,
		TotalUploads: len(uploads),
	}, nil
}
