package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/taxverify/internal/audit/domain"
	"github.com/smallbiznis/taxverify/internal/audit/repository"
	"github.com/smallbiznis/taxverify/internal/clock"
	obscontext "github.com/smallbiznis/taxverify/internal/observability/context"
	"github.com/smallbiznis/taxverify/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAudit(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.APIRequest{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}), db
}

func TestRecordCapturesRequestContext(t *testing.T) {
	svc, db := setupAudit(t)

	ctx := obscontext.WithIPAddress(context.Background(), "10.0.0.7")
	ctx = obscontext.WithUserAgent(ctx, "curl/8.0")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-9")

	if err := svc.Record(ctx, domain.Entry{
		CredentialEnv: "live",
		Action:        "employment.read",
		RequestID:     "EMP_1",
		StatusCode:    200,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var row domain.APIRequest
	if err := db.Take(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.CredentialEnv == nil || *row.CredentialEnv != "live" {
		t.Fatalf("unexpected credential env %v", row.CredentialEnv)
	}
	if row.IPAddress == nil || *row.IPAddress != "10.0.0.7" {
		t.Fatalf("unexpected ip %v", row.IPAddress)
	}
	if row.UserAgent == nil || *row.UserAgent != "curl/8.0" {
		t.Fatalf("unexpected user agent %v", row.UserAgent)
	}
	if row.CorrelationID == nil || *row.CorrelationID != "corr-9" {
		t.Fatalf("unexpected correlation id %v", row.CorrelationID)
	}
	if row.StatusCode != 200 {
		t.Fatalf("unexpected status %d", row.StatusCode)
	}
}

func TestRecordUnauthenticatedCallStoresNulls(t *testing.T) {
	svc, db := setupAudit(t)

	if err := svc.Record(context.Background(), domain.Entry{Action: "employment.read", StatusCode: 401}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var row domain.APIRequest
	if err := db.Take(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.CredentialEnv != nil || row.RequestID != nil || row.IPAddress != nil {
		t.Fatalf("expected NULL columns, got %+v", row)
	}
}

func TestRecordRequiresAction(t *testing.T) {
	svc, _ := setupAudit(t)

	err := svc.Record(context.Background(), domain.Entry{Action: " "})
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}
