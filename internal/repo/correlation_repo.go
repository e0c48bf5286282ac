package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

// CorrelationTable is the SQL-backed message id -> approval id map.
// Expired rows read as missing and are deleted on access.
type CorrelationTable struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

func (t *CorrelationTable) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

// Put records messageID -> approvalID, replacing any previous mapping.
func (t *CorrelationTable) Put(ctx context.Context, messageID, approvalID string) error {
	now := t.now()
	row := &domain.MessageCorrelation{
		MessageID:  messageID,
		ApprovalID: approvalID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(t.TTL),
	}
	return t.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"approval_id", "created_at", "expires_at"}),
		}).
		Create(row).Error
}

// Get returns the approval id for messageID, or ErrNotFound.
func (t *CorrelationTable) Get(ctx context.Context, messageID string) (string, error) {
	var row domain.MessageCorrelation
	err := t.DB.WithContext(ctx).Where("message_id = ?", messageID).First(&row).Error
	if err != nil {
		return "", err
	}
	if t.now().After(row.ExpiresAt) {
		_ = t.Delete(ctx, messageID)
		return "", ErrNotFound
	}
	return row.ApprovalID, nil
}

// Delete removes messageID. Deleting a missing key is not an error.
func (t *CorrelationTable) Delete(ctx context.Context, messageID string) error {
	err := t.DB.WithContext(ctx).Where("message_id = ?", messageID).Delete(&domain.MessageCorrelation{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
