package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/webhook/domain"
	"github.com/smallbiznis/taxverify/internal/webhook/repository"
	"github.com/smallbiznis/taxverify/pkg/telemetry/correlation"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDispatcher(t *testing.T, cfg Config) (*Dispatcher, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Delivery{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	d, err := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Repo:   repository.Provide(),
		Config: cfg,
		Client: &http.Client{Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	return d, db, fake
}

func enqueue(t *testing.T, d *Dispatcher, db *gorm.DB, url string) {
	t.Helper()
	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-1")
	inserted, err := d.Enqueue(ctx, db, domain.Enqueue{
		RequestID: "TR_1_abcd",
		Year:      2024,
		URL:       url,
		Payload:   domain.Payload{RequestID: "TR_1_abcd", Status: domain.PayloadStatusCompleted},
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func loadDelivery(t *testing.T, db *gorm.DB) domain.Delivery {
	t.Helper()
	var row domain.Delivery
	require.NoError(t, db.Where("request_id = ?", "TR_1_abcd").Take(&row).Error)
	return row
}

func TestRunOnceDelivers(t *testing.T) {
	var gotAgent, gotCorrelation string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotCorrelation = r.Header.Get(correlation.Header)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, db, _ := setupDispatcher(t, Config{UserAgent: "taxverify-webhook/test"})
	enqueue(t, d, db, srv.URL)

	require.NoError(t, d.RunOnce(context.Background()))

	row := loadDelivery(t, db)
	require.Equal(t, domain.StatusDelivered, row.Status)
	require.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.DeliveredAt)
	require.Nil(t, row.LastError)
	require.Equal(t, "taxverify-webhook/test", gotAgent)
	require.Equal(t, "corr-1", gotCorrelation)
	require.Equal(t, "TR_1_abcd", gotBody["request_id"])
	require.Equal(t, "completed", gotBody["status"])
}

func TestRunOnceSchedulesRetryOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, db, fake := setupDispatcher(t, Config{MaxAttempts: 3, RetryInitial: time.Minute, RetryJitter: 0})
	enqueue(t, d, db, srv.URL)

	require.NoError(t, d.RunOnce(context.Background()))

	row := loadDelivery(t, db)
	require.Equal(t, domain.StatusPending, row.Status)
	require.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LastStatusCode)
	require.Equal(t, http.StatusInternalServerError, *row.LastStatusCode)
	require.NotNil(t, row.LastError)
	require.True(t, row.NextAttemptAt.After(fake.Now()))

	// Not due yet: nothing is claimed.
	require.NoError(t, d.RunOnce(context.Background()))
	require.Equal(t, 1, loadDelivery(t, db).Attempts)
}

func TestRunOnceFailsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d, db, fake := setupDispatcher(t, Config{MaxAttempts: 2, RetryInitial: time.Second, RetryMax: time.Second})
	enqueue(t, d, db, srv.URL)

	require.NoError(t, d.RunOnce(context.Background()))
	fake.Advance(time.Hour)
	require.NoError(t, d.RunOnce(context.Background()))
	fake.Advance(time.Hour)
	require.NoError(t, d.RunOnce(context.Background()))

	row := loadDelivery(t, db)
	require.Equal(t, domain.StatusFailed, row.Status)
	require.Equal(t, 2, row.Attempts)
	require.EqualValues(t, 2, calls.Load())
}

func TestRunOnceSingleAttemptFailsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, db, _ := setupDispatcher(t, Config{MaxAttempts: 1})
	enqueue(t, d, db, srv.URL)

	require.NoError(t, d.RunOnce(context.Background()))
	row := loadDelivery(t, db)
	require.Equal(t, domain.StatusFailed, row.Status)
	require.Equal(t, 1, row.Attempts)
}

func TestInvalidURLIsPermanent(t *testing.T) {
	d, db, _ := setupDispatcher(t, Config{MaxAttempts: 5})
	enqueue(t, d, db, "ftp://example.com/hook")

	require.NoError(t, d.RunOnce(context.Background()))
	row := loadDelivery(t, db)
	require.Equal(t, domain.StatusFailed, row.Status)
	require.NotNil(t, row.LastError)
	require.Equal(t, domain.ErrInvalidURL.Error(), *row.LastError)
}

func TestEnqueueIgnoresDuplicate(t *testing.T) {
	d, db, _ := setupDispatcher(t, Config{})
	enqueue(t, d, db, "https://example.com/hook")

	inserted, err := d.Enqueue(context.Background(), db, domain.Enqueue{
		RequestID: "TR_1_abcd",
		Year:      2024,
		URL:       "https://example.com/other",
	})
	require.NoError(t, err)
	require.False(t, inserted)

	var count int64
	require.NoError(t, db.Model(&domain.Delivery{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestStaleClaimIsReclaimed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, db, fake := setupDispatcher(t, Config{})
	enqueue(t, d, db, srv.URL)

	now := fake.Now()
	rows, err := d.repo.ClaimDue(context.Background(), db, now, now.Add(-d.cfg.ClaimLease), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// A live claim is not picked up again.
	require.NoError(t, d.RunOnce(context.Background()))
	require.Equal(t, domain.StatusSending, loadDelivery(t, db).Status)

	fake.Advance(d.cfg.ClaimLease + time.Second)
	require.NoError(t, d.RunOnce(context.Background()))
	require.Equal(t, domain.StatusDelivered, loadDelivery(t, db).Status)
}

func TestLatestDelivery(t *testing.T) {
	d, db, _ := setupDispatcher(t, Config{})

	status, err := d.LatestDelivery(context.Background(), "TR_1_abcd")
	require.NoError(t, err)
	require.Nil(t, status)

	enqueue(t, d, db, "https://example.com/hook")
	status, err = d.LatestDelivery(context.Background(), "TR_1_abcd")
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Equal(t, "pending", status.Status)
	require.Equal(t, 0, status.Attempts)
}

func TestNotifyDoesNotBlock(t *testing.T) {
	d, _, _ := setupDispatcher(t, Config{})
	d.Notify()
	d.Notify()
	require.Len(t, d.wake, 1)
}

func TestRetryDelayGrows(t *testing.T) {
	d, _, _ := setupDispatcher(t, Config{RetryInitial: time.Second, RetryMax: time.Minute})
	d.cfg.RetryJitter = 0
	require.Equal(t, time.Second, d.retryDelay(1))
	require.Greater(t, d.retryDelay(3), d.retryDelay(2))
	require.LessOrEqual(t, d.retryDelay(30), time.Minute)
}
