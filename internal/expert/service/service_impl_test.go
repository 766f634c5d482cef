package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/expert/domain"
	"github.com/smallbiznis/taxverify/internal/expert/repository"
	"github.com/smallbiznis/taxverify/internal/migration"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	transcriptrepository "github.com/smallbiznis/taxverify/internal/transcript/repository"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		Transcripts: transcriptrepository.Provide(),
	})
	return svc, db, fake, node
}

func TestLoginKeepsExpertIDAcrossLogins(t *testing.T) {
	svc, db, fake, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, domain.LoginRequest{Name: "Pat Expert", Email: "Pat@Example.com", Team: "Income Review"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if !first.Success || !strings.HasPrefix(first.Expert.ExpertID, "EXP_") {
		t.Fatalf("unexpected first login %+v", first)
	}
	if first.Expert.Email != "pat@example.com" {
		t.Fatalf("expected lowercased email, got %s", first.Expert.Email)
	}
	if first.Expert.TeamSlug != "income-review" {
		t.Fatalf("expected team slug, got %s", first.Expert.TeamSlug)
	}
	if first.Expert.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", first.Expert.Status)
	}

	fake.Advance(2 * time.Hour)
	second, err := svc.Login(ctx, domain.LoginRequest{Name: "Pat Q. Expert", Email: "pat@example.com", Team: "Escalations"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.Expert.ExpertID != first.Expert.ExpertID {
		t.Fatalf("expert id changed: %s -> %s", first.Expert.ExpertID, second.Expert.ExpertID)
	}
	if second.Expert.Name != "Pat Q. Expert" || second.Expert.TeamSlug != "escalations" {
		t.Fatalf("profile not refreshed: %+v", second.Expert)
	}
	if !second.Expert.LastLoginAt.After(first.Expert.LastLoginAt) {
		t.Fatalf("last_login_at did not move: %v -> %v", first.Expert.LastLoginAt, second.Expert.LastLoginAt)
	}

	var count int64
	if err := db.Model(&domain.Expert{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one expert row, got %d", count)
	}
}

func TestLoginRequiresFields(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Login(context.Background(), domain.LoginRequest{Name: "Pat", Email: "  "})
	var missing *validation.MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldsError, got %v", err)
	}
	if strings.Join(missing.Missing, ",") != "email,team" {
		t.Fatalf("unexpected missing fields %v", missing.Missing)
	}
}

func TestActivityNewestFirst(t *testing.T) {
	svc, db, fake, node := setupService(t)
	ctx := context.Background()

	expertID := "EXP_01"
	for i, year := range []int{2021, 2022, 2023} {
		at := fake.Now().Add(time.Duration(i) * time.Minute)
		if err := db.Create(&transcriptdomain.UploadActivity{
			ID:        node.Generate(),
			RequestID: "TR_1_aaaa",
			ExpertID:  &expertID,
			Year:      year,
			FileName:  fmt.Sprintf("%d.json", year),
			FileKind:  transcriptdomain.ContentTypeJSON,
			Duplicate: year == 2023,
			CreatedAt: at,
		}).Error; err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}

	resp, err := svc.Activity(ctx, expertID)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if resp.TotalUploads != 3 || len(resp.Uploads) != 3 {
		t.Fatalf("expected 3 uploads, got %+v", resp)
	}
	if resp.Uploads[0].Year != 2023 || !resp.Uploads[0].Duplicate {
		t.Fatalf("expected newest upload first, got %+v", resp.Uploads[0])
	}

	empty, err := svc.Activity(ctx, "EXP_unknown")
	if err != nil {
		t.Fatalf("activity unknown: %v", err)
	}
	if empty.Uploads == nil || empty.TotalUploads != 0 {
		t.Fatalf("expected empty non-nil list, got %+v", empty)
	}
}
