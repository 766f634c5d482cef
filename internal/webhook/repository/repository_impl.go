package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxverify/internal/webhook/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *domain.Delivery) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}, {Name: "year"}},
			DoNothing: true,
		}).
		Create(d)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

const dueCondition = "(status = ? AND next_attempt_at <= ?) OR (status = ? AND claimed_at < ?)"

func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now, staleBefore time.Time, limit int) ([]*domain.Delivery, error) {
	var candidates []*domain.Delivery
	err := db.WithContext(ctx).
		Where(dueCondition, domain.StatusPending, now, domain.StatusSending, staleBefore).
		Order("next_attempt_at asc, id asc").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*domain.Delivery, 0, len(candidates))
	for _, d := range candidates {
		res := db.WithContext(ctx).
			Model(&domain.Delivery{}).
			Where("id = ?", d.ID).
			Where(dueCondition, domain.StatusPending, now, domain.StatusSending, staleBefore).
			Updates(map[string]any{
				"status":     domain.StatusSending,
				"claimed_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		d.Status = domain.StatusSending
		d.ClaimedAt = &now
		claimed = append(claimed, d)
	}
	return claimed, nil
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts, statusCode int, at time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":           domain.StatusDelivered,
		"attempts":         attempts,
		"last_error":       nil,
		"last_status_code": statusCode,
		"delivered_at":     at,
		"claimed_at":       nil,
		"updated_at":       at,
	})
}

func (r *repo) MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, statusCode *int, next, at time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":           domain.StatusPending,
		"attempts":         attempts,
		"last_error":       lastErr,
		"last_status_code": statusCode,
		"next_attempt_at":  next,
		"claimed_at":       nil,
		"updated_at":       at,
	})
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, statusCode *int, at time.Time) error {
	return r.finish(ctx, db, id, map[string]any{
		"status":           domain.StatusFailed,
		"attempts":         attempts,
		"last_error":       lastErr,
		"last_status_code": statusCode,
		"claimed_at":       nil,
		"updated_at":       at,
	})
}

// finish only touches rows still owned by a sender.
func (r *repo) finish(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("id = ? AND status = ?", id, domain.StatusSending).
		Updates(updates).Error
}

func (r *repo) LatestForRequest(ctx context.Context, db *gorm.DB, requestID string) (*domain.Delivery, error) {
	var d domain.Delivery
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at desc, id desc").
		Take(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *repo) CountBacklog(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusSending}).
		Count(&count).Error
	return count, err
}
