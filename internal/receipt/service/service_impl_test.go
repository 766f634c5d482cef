package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/migration"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	transcriptrepository "github.com/smallbiznis/taxverify/internal/transcript/repository"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	trrepository "github.com/smallbiznis/taxverify/internal/transcriptrequest/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupReceipts(t *testing.T) (*Service, *gorm.DB, *snowflake.Node, time.Time) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clock.NewFakeClock(now),
		Requests:    trrepository.Provide(),
		Transcripts: transcriptrepository.Provide(),
	}).(*Service)
	return svc, db, node, now
}

func seedBilledRequest(t *testing.T, db *gorm.DB, node *snowflake.Node, now time.Time, years ...int) {
	t.Helper()
	if err := db.Create(&trdomain.VerificationRequest{
		ID:           node.Generate(),
		RequestID:    "TR_1_rcpt",
		SSN:          "123-45-6789",
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "jane@example.com",
		EmployerName: trdomain.DefaultEmployerName,
		Status:       trdomain.StatusTranscriptReceived,
		Cost:         decimal.RequireFromString("59.98"),
		Client:       "employer_com",
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	for _, year := range years {
		if err := db.Create(&transcriptdomain.Transaction{
			ID:        node.Generate(),
			RequestID: "TR_1_rcpt",
			Year:      year,
			Amount:    decimal.RequireFromString("59.98"),
			Status:    transcriptdomain.TransactionStatusBilled,
			Client:    "employer_com",
			CreatedAt: now,
		}).Error; err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}
}

func TestBuildSumsTransactions(t *testing.T) {
	svc, db, node, now := setupReceipts(t)
	seedBilledRequest(t, db, node, now, 2022, 2023)

	receipt, err := svc.build(context.Background(), "TR_1_rcpt")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(receipt.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(receipt.Items))
	}
	if receipt.Total != "$119.96" {
		t.Fatalf("unexpected total %s", receipt.Total)
	}
	if receipt.SSNLastFour != "6789" || receipt.Taxpayer != "Jane Doe" {
		t.Fatalf("unexpected taxpayer fields %+v", receipt)
	}
	if receipt.Items[0].Amount != "$59.98" || receipt.Items[0].Date != "2026-03-01" {
		t.Fatalf("unexpected item %+v", receipt.Items[0])
	}
}

func TestRenderProducesPDF(t *testing.T) {
	svc, db, node, now := setupReceipts(t)
	seedBilledRequest(t, db, node, now, 2023)

	doc, err := svc.Render(context.Background(), "TR_1_rcpt")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatalf("expected a PDF document")
	}
}

func TestRenderUnknownRequest(t *testing.T) {
	svc, _, _, _ := setupReceipts(t)

	if _, err := svc.Render(context.Background(), "TR_missing"); !errors.Is(err, trdomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
