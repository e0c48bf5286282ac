package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

// ResendTable is the SQL-backed store of single-use resend tokens. Get
// returns expired links as-is; the caller decides and deletes.
type ResendTable struct {
	DB *gorm.DB
}

// Put stores link.
func (t *ResendTable) Put(ctx context.Context, link *domain.ResendLink) error {
	return t.DB.WithContext(ctx).Create(link).Error
}

// Get returns the link for token, or ErrNotFound.
func (t *ResendTable) Get(ctx context.Context, token string) (*domain.ResendLink, error) {
	var l domain.ResendLink
	if err := t.DB.WithContext(ctx).Where("token = ?", token).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// Delete removes token and reports whether a row was removed, so two
// concurrent consumers cannot both claim the same link.
func (t *ResendTable) Delete(ctx context.Context, token string) (bool, error) {
	res := t.DB.WithContext(ctx).Where("token = ?", token).Delete(&domain.ResendLink{})
	return res.RowsAffected > 0, res.Error
}
