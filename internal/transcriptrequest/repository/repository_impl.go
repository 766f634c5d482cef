package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.VerificationRequest) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *repo) FindByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Take(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// FindFirstMatch returns the newest request whose tax id contains tinFragment
// or whose name matches every word of nameFragment. Tax ids compare on digits
// only, and each name word may hit either the first or the last name.
func (r *repo) FindFirstMatch(ctx context.Context, db *gorm.DB, tinFragment, nameFragment string) (*domain.VerificationRequest, error) {
	var (
		clauses []string
		args    []any
	)
	if tin := strings.TrimSpace(tinFragment); tin != "" {
		if digits := digitsOnly(tin); digits != "" {
			clauses = append(clauses, "REPLACE(REPLACE(ssn, '-', ''), ' ', '') LIKE ? ESCAPE '!'")
			args = append(args, likePattern(digits))
		} else {
			clauses = append(clauses, "LOWER(ssn) LIKE ? ESCAPE '!'")
			args = append(args, likePattern(tin))
		}
	}
	if words := strings.Fields(nameFragment); len(words) > 0 {
		parts := make([]string, 0, len(words))
		for _, word := range words {
			pattern := likePattern(word)
			parts = append(parts, "(LOWER(first_name) LIKE ? ESCAPE '!' OR LOWER(last_name) LIKE ? ESCAPE '!')")
			args = append(args, pattern, pattern)
		}
		clauses = append(clauses, "("+strings.Join(parts, " AND ")+")")
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	var req domain.VerificationRequest
	err := db.WithContext(ctx).
		Where(strings.Join(clauses, " OR "), args...).
		Order("created_at desc, id desc").
		Take(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *repo) MarkTranscriptReceived(ctx context.Context, db *gorm.DB, requestID string, income datatypes.JSON, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.VerificationRequest{}).
		Where("request_id = ? AND status = ?", requestID, domain.StatusPending8821Submission).
		Updates(map[string]any{
			"status":     domain.StatusTranscriptReceived,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	moved := res.RowsAffected > 0

	updates := map[string]any{
		"completed_at": gorm.Expr("COALESCE(completed_at, ?)", at),
		"updated_at":   at,
	}
	if len(income) > 0 {
		updates["income_data"] = gorm.Expr("COALESCE(income_data, ?)", income)
	}
	err := db.WithContext(ctx).
		Model(&domain.VerificationRequest{}).
		Where("request_id = ?", requestID).
		Updates(updates).Error
	if err != nil {
		return false, err
	}
	return moved, nil
}

func digitsOnly(v string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, v)
}

func likePattern(fragment string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + replacer.Replace(strings.ToLower(fragment)) + "%"
}
