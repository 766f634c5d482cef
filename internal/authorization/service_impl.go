package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/taxverify/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const ObjectEmployment = "employment"

const (
	ActionEmploymentRead   = "employment.read"
	ActionEmploymentVerify = "employment.verify"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies stored through the gorm adapter. Defaults are
// seeded only into an empty casbin_rule table, so edited grants survive restarts.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, environment string, action string) error {
	environment = strings.ToLower(strings.TrimSpace(environment))
	switch environment {
	case config.CredentialEnvLive, config.CredentialEnvSandbox:
	default:
		return ErrInvalidActor
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(environment), ObjectEmployment, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("credential_env", environment),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func subject(environment string) string {
	return fmt.Sprintf("credential:%s", environment)
}

func role(environment string) string {
	return fmt.Sprintf("role:%s", environment)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	existing, err := enforcer.GetPolicy()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	policies := [][]string{
		{role(config.CredentialEnvLive), ObjectEmployment, ActionEmploymentRead},
		{role(config.CredentialEnvLive), ObjectEmployment, ActionEmploymentVerify},

		{role(config.CredentialEnvSandbox), ObjectEmployment, ActionEmploymentRead},
		{role(config.CredentialEnvSandbox), ObjectEmployment, ActionEmploymentVerify},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	for _, env := range []string{config.CredentialEnvLive, config.CredentialEnvSandbox} {
		has, err := enforcer.HasGroupingPolicy(subject(env), role(env))
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(subject(env), role(env)); err != nil {
			return err
		}
	}
	return nil
}
