package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/employment/domain"
	"github.com/smallbiznis/taxverify/internal/employment/repository"
	"github.com/smallbiznis/taxverify/internal/migration"
	obscontext "github.com/smallbiznis/taxverify/internal/observability/context"
	"github.com/smallbiznis/taxverify/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
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

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, db, node, fake
}

func TestVerifyQueuesRequest(t *testing.T) {
	svc, db, _, _ := setupService(t)

	resp, err := svc.Verify(context.Background(), domain.VerifyRequest{
		Employee: domain.Employee{SSN: "123-45-6789", FirstName: "Jane", LastName: "Doe"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.RequestID, "EMP_"))
	assert.Equal(t, domain.StatusPendingIRSCall, resp.Status)
	assert.Equal(t, []int{2025, 2024}, resp.TaxYears)
	assert.Equal(t, domain.EmployeeSummary{Name: "Jane Doe", SSNLastFour: "6789", EmployerName: "Not specified"}, resp.Employee)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "123-45")

	var row domain.EmploymentRequest
	require.NoError(t, db.Where("request_id = ?", resp.RequestID).Take(&row).Error)
	assert.JSONEq(t, `[2025,2024]`, string(row.TaxYears))
}

func TestVerifyValidation(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Verify(ctx, domain.VerifyRequest{Employee: domain.Employee{FirstName: "Jane"}})
	var missing *validation.MissingFieldsError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, []string{"employee.ssn", "employee.last_name"}, missing.Missing)

	_, err = svc.Verify(ctx, domain.VerifyRequest{
		Employee: domain.Employee{SSN: "1", FirstName: "Jane", LastName: "Doe"},
		TaxYears: []int{2027},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxYears)
}

func TestStatusPending(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := obscontext.WithActor(context.Background(), "credential", "sandbox")

	queued, err := svc.Verify(ctx, domain.VerifyRequest{
		Employee: domain.Employee{SSN: "123456789", FirstName: "Jane", LastName: "Doe"},
		TaxYears: []int{2023},
	})
	require.NoError(t, err)

	status, err := svc.Status(ctx, queued.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingIRSCall, status.Status)
	assert.Equal(t, "IRS call pending. Employment data will be available within 24 hours.", status.Message)
	assert.Equal(t, []int{2023}, status.TaxYears)
	assert.Nil(t, status.EmploymentSummary)
}

func TestStatusCompletedStripsPII(t *testing.T) {
	svc, db, node, fake := setupService(t)
	retrieved := fake.Now()

	data := `{
		"employment_history": [
			{"employer": "Acme", "wages": 50000, "ssn": "123-45-6789", "first_name": "Jane"},
			{"employer": "Globex", "wages": 10000}
		],
		"total_income": 60000
	}`
	require.NoError(t, db.Create(&domain.EmploymentRequest{
		ID:             node.Generate(),
		RequestID:      "EMP_done",
		SSN:            "123-45-6789",
		FirstName:      "Jane",
		LastName:       "Doe",
		EmployerName:   "Acme",
		Status:         domain.StatusCompleted,
		EmploymentData: datatypes.JSON(data),
		EmployerCount:  2,
		MultiEmployer:  true,
		RetrievedAt:    &retrieved,
		CreatedAt:      retrieved,
	}).Error)

	status, err := svc.Status(context.Background(), "EMP_done")
	require.NoError(t, err)
	require.NotNil(t, status.EmploymentSummary)
	assert.Equal(t, 2, status.EmploymentSummary.EmployerCount)
	assert.True(t, status.EmploymentSummary.MultiEmployer)
	assert.Len(t, status.EmploymentSummary.EmploymentHistory, 2)
	assert.Equal(t, json.Number("60000"), status.EmploymentSummary.TotalIncome)
	require.NotNil(t, status.RetrievedAt)
	assert.Empty(t, status.Message)

	body, err := json.Marshal(status)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "123-45-6789")
	assert.NotContains(t, string(body), "Jane")
}

func TestStatusUnknown(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Status(context.Background(), "EMP_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
