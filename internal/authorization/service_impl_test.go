package authorization

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer}), db
}

func TestAuthorizeSeededGrants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, env := range []string{"live", "sandbox"} {
		for _, action := range []string{ActionEmploymentRead, ActionEmploymentVerify} {
			if err := svc.Authorize(ctx, env, action); err != nil {
				t.Fatalf("%s %s: %v", env, action, err)
			}
		}
	}
	if err := svc.Authorize(ctx, "live", "employment.delete"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthorizeRejectsUnknownActor(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Authorize(context.Background(), "staging", ActionEmploymentRead); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected invalid actor, got %v", err)
	}
}

func TestSeedKeepsEditedPolicies(t *testing.T) {
	_, db := newTestService(t)

	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("reload enforcer: %v", err)
	}
	if _, err := enforcer.RemovePolicy(role("sandbox"), ObjectEmployment, ActionEmploymentVerify); err != nil {
		t.Fatalf("remove policy: %v", err)
	}

	reloaded, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("reload enforcer: %v", err)
	}
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: reloaded})
	if err := svc.Authorize(context.Background(), "sandbox", ActionEmploymentVerify); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected revoked grant to stay revoked, got %v", err)
	}
	if err := svc.Authorize(context.Background(), "sandbox", ActionEmploymentRead); err != nil {
		t.Fatalf("read should remain: %v", err)
	}
}
