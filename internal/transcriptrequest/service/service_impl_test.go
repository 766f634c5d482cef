package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/migration"
	"github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/internal/transcriptrequest/repository"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubDeliveries struct {
	status *domain.WebhookStatus
	err    error
}

func (s stubDeliveries) LatestDelivery(context.Context, string) (*domain.WebhookStatus, error) {
	return s.status, s.err
}

func setupService(t *testing.T, deliveries domain.DeliveryLookup) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg: config.Config{
			Billing: config.BillingConfig{Amount: "59.98", Client: "employer_com"},
		},
		Repo:       repository.Provide(),
		Deliveries: deliveries,
	})
	require.NoError(t, err)
	return svc, db, fake
}

func createRequest(t *testing.T, svc domain.Service, req domain.CreateRequest) *domain.CreateResponse {
	t.Helper()
	resp, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func TestCreate(t *testing.T) {
	svc, db, _ := setupService(t, nil)

	resp := createRequest(t, svc, domain.CreateRequest{
		SSN:       "123-45-6789",
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
	})
	assert.Regexp(t, regexp.MustCompile(`^TR_\d+_[0-9a-f]{8}$`), resp.RequestID)
	assert.Equal(t, domain.StatusPending8821Submission, resp.Status)
	assert.Equal(t, "$59.98", resp.Cost)
	assert.Equal(t, "1-2 business days", resp.EstimatedCompletion)
	assert.Equal(t, domain.Taxpayer{Name: "Jane Doe", SSNLastFour: "6789"}, resp.Taxpayer)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "123-45")

	var row domain.VerificationRequest
	require.NoError(t, db.Where("request_id = ?", resp.RequestID).Take(&row).Error)
	assert.Equal(t, domain.DefaultEmployerName, row.EmployerName)
	assert.Nil(t, row.WebhookURL)
	assert.Equal(t, "employer_com", row.Client)
	assert.Equal(t, "59.98", row.Cost.StringFixed(2))
}

func TestCreateMissingFields(t *testing.T) {
	svc, _, _ := setupService(t, nil)

	_, err := svc.Create(context.Background(), domain.CreateRequest{FirstName: "Jane", LastName: " "})
	var missing *validation.MissingFieldsError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, []string{"ssn", "last_name", "email"}, missing.Missing)
	assert.Equal(t, []string{"ssn", "first_name", "last_name", "email"}, missing.Required)
}

func TestGetStatus(t *testing.T) {
	failed := "webhook responded 500"
	svc, db, _ := setupService(t, stubDeliveries{status: &domain.WebhookStatus{Status: "pending", Attempts: 1, LastError: &failed}})
	ctx := context.Background()

	created := createRequest(t, svc, domain.CreateRequest{
		SSN:        "123456789",
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@example.com",
		WebhookURL: "https://hooks.example.com/x",
	})

	status, err := svc.GetStatus(ctx, created.RequestID)
	require.NoError(t, err)
	assert.Nil(t, status.IncomeData)
	assert.Nil(t, status.CompletedAt)
	require.NotNil(t, status.Webhook)
	assert.Equal(t, 1, status.Webhook.Attempts)

	require.NoError(t, db.Model(&domain.VerificationRequest{}).
		Where("request_id = ?", created.RequestID).
		Update("income_data", datatypes.JSON(`{"income_by_year":{"2023":{}}}`)).Error)
	status, err = svc.GetStatus(ctx, created.RequestID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"income_by_year":{"2023":{}}}`, string(status.IncomeData))

	_, err = svc.GetStatus(ctx, "TR_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetStatusIgnoresDeliveryLookupFailure(t *testing.T) {
	svc, _, _ := setupService(t, stubDeliveries{err: errors.New("db gone")})

	created := createRequest(t, svc, domain.CreateRequest{
		SSN: "123456789", FirstName: "Jane", LastName: "Doe", Email: "j@example.com", WebhookURL: "https://x.example.com",
	})
	status, err := svc.GetStatus(context.Background(), created.RequestID)
	require.NoError(t, err)
	assert.Nil(t, status.Webhook)
}

func TestLookupReturnsNewestMatch(t *testing.T) {
	svc, _, fake := setupService(t, nil)
	ctx := context.Background()

	older := createRequest(t, svc, domain.CreateRequest{SSN: "111-22-3333", FirstName: "Jane", LastName: "Smith", Email: "a@example.com"})
	fake.Advance(time.Minute)
	newer := createRequest(t, svc, domain.CreateRequest{SSN: "444-55-6666", FirstName: "Janet", LastName: "Doe", Email: "b@example.com"})

	got, err := svc.Lookup(ctx, domain.LookupRequest{Name: "JAN"})
	require.NoError(t, err)
	assert.Equal(t, newer.RequestID, got.RequestID)

	got, err = svc.Lookup(ctx, domain.LookupRequest{TIN: "22-33"})
	require.NoError(t, err)
	assert.Equal(t, older.RequestID, got.RequestID)

	got, err = svc.Lookup(ctx, domain.LookupRequest{Name: "smith"})
	require.NoError(t, err)
	assert.Equal(t, older.RequestID, got.RequestID)

	// wildcards in the fragment are literal
	_, err = svc.Lookup(ctx, domain.LookupRequest{Name: "%"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Lookup(ctx, domain.LookupRequest{TIN: "999"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Lookup(ctx, domain.LookupRequest{TIN: " ", Name: ""})
	var missing *validation.MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "tin,name", strings.Join(missing.Missing, ","))
}

func TestCreateIdenticalInputGetsDistinctIDs(t *testing.T) {
	svc, db, _ := setupService(t, nil)

	req := domain.CreateRequest{SSN: "123456789", FirstName: "Jane", LastName: "Doe", Email: "j@x.com"}
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		resp := createRequest(t, svc, req)
		assert.False(t, seen[resp.RequestID], "request id %s reused", resp.RequestID)
		seen[resp.RequestID] = true
	}

	var n int64
	require.NoError(t, db.Model(&domain.VerificationRequest{}).Count(&n).Error)
	assert.EqualValues(t, 5, n)
}

func TestLookupNormalizesFragments(t *testing.T) {
	svc, _, fake := setupService(t, nil)
	ctx := context.Background()

	jane := createRequest(t, svc, domain.CreateRequest{SSN: "123456789", FirstName: "Jane", LastName: "Doe", Email: "j@x.com"})
	fake.Advance(time.Minute)
	createRequest(t, svc, domain.CreateRequest{SSN: "987-65-4321", FirstName: "Janet", LastName: "Roe", Email: "r@x.com"})

	got, err := svc.Lookup(ctx, domain.LookupRequest{Name: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, jane.RequestID, got.RequestID)

	got, err = svc.Lookup(ctx, domain.LookupRequest{Name: "doe  jane"})
	require.NoError(t, err)
	assert.Equal(t, jane.RequestID, got.RequestID)

	got, err = svc.Lookup(ctx, domain.LookupRequest{TIN: "123-45"})
	require.NoError(t, err)
	assert.Equal(t, jane.RequestID, got.RequestID)

	got, err = svc.Lookup(ctx, domain.LookupRequest{TIN: "654321"})
	require.NoError(t, err)
	assert.Equal(t, "Janet Roe", got.Taxpayer.Name)

	// every word has to match
	_, err = svc.Lookup(ctx, domain.LookupRequest{Name: "Jane Smith"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
