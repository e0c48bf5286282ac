package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

// CreateChallenge inserts c as a new PENDING challenge. An empty ID is
// replaced with a random UUID.
func CreateChallenge(ctx context.Context, db *gorm.DB, c *domain.OtpChallenge) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = domain.ChallengePending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	return db.WithContext(ctx).Create(c).Error
}

// GetChallenge fetches a challenge by ID, or ErrNotFound.
func GetChallenge(ctx context.Context, db *gorm.DB, id string) (*domain.OtpChallenge, error) {
	var c domain.OtpChallenge
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// pendingFor scopes a query to PENDING challenges for phone, narrowed to one
// request when approvalID is set.
func pendingFor(db *gorm.DB, phone, approvalID string) *gorm.DB {
	q := db.Where("phone = ? AND status = ?", phone, domain.ChallengePending)
	if approvalID != "" {
		q = q.Where("approval_id = ?", approvalID)
	}
	return q
}

// LatestPendingChallenge returns the most recently created PENDING challenge
// for phone, or ErrNotFound. An empty approvalID searches across all
// requests.
func LatestPendingChallenge(ctx context.Context, db *gorm.DB, phone, approvalID string) (*domain.OtpChallenge, error) {
	var c domain.OtpChallenge
	err := pendingFor(db.WithContext(ctx), phone, approvalID).
		Order("created_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveChallengeVersioned writes status and attempt counter if the stored
// version still equals c.Version, advancing it on success. A stale row yields
// ErrConflict.
func SaveChallengeVersioned(ctx context.Context, db *gorm.DB, c *domain.OtpChallenge) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.OtpChallenge{}).
		Where("id = ? AND version = ?", c.ID, c.Version).
		Updates(map[string]any{
			"status":           c.Status,
			"invalid_attempts": c.InvalidAttempts,
			"version":          c.Version + 1,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}

// SupersedePending marks every other PENDING challenge for phone as EXPIRED
// and bumps their versions so in-flight saves against them conflict. A
// non-empty approvalID limits the sweep to that request. It returns the
// number of rows changed.
func SupersedePending(ctx context.Context, db *gorm.DB, phone, approvalID, keepID string) (int64, error) {
	res := pendingFor(db.WithContext(ctx).Model(&domain.OtpChallenge{}), phone, approvalID).
		Where("id <> ?", keepID).
		Updates(map[string]any{
			"status":     domain.ChallengeExpired,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// CountChallenges returns the number of challenges issued for approvalID.
func CountChallenges(ctx context.Context, db *gorm.DB, approvalID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.OtpChallenge{}).
		Where("approval_id = ?", approvalID).
		Count(&total).Error
	return total, err
}

// ListChallengesPage returns a page of challenges for approvalID, oldest first.
func ListChallengesPage(ctx context.Context, db *gorm.DB, approvalID string, offset, limit int) ([]domain.OtpChallenge, error) {
	var out []domain.OtpChallenge
	err := db.WithContext(ctx).
		Where("approval_id = ?", approvalID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
