// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ApprovalRequest aggregate.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - A missing request yields ErrNotFound (gorm.ErrRecordNotFound).
//   - A versioned save against a stale row yields ErrConflict.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateApproval inserts a. An empty ID is replaced with a random UUID, the
// decision defaults to PENDING and the version starts at 0.
func CreateApproval(ctx context.Context, db *gorm.DB, a *domain.ApprovalRequest) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Decision == "" {
		a.Decision = domain.DecisionPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	a.Version = 0
	return db.WithContext(ctx).Create(a).Error
}

// GetApproval fetches a request by ID, or ErrNotFound.
func GetApproval(ctx context.Context, db *gorm.DB, id string) (*domain.ApprovalRequest, error) {
	var a domain.ApprovalRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveApprovalVersioned writes the mutable fields of a (decision, comment)
// only if the stored version still equals a.Version. On success a.Version is
// advanced; otherwise ErrConflict is returned and a is left untouched.
func SaveApprovalVersioned(ctx context.Context, db *gorm.DB, a *domain.ApprovalRequest) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.ApprovalRequest{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		Updates(map[string]any{
			"decision":   a.Decision,
			"comment":    a.Comment,
			"version":    a.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	a.Version++
	a.UpdatedAt = now
	return nil
}

// ListApprovalsPage returns a page of requests, newest first. An empty
// requester lists all.
func ListApprovalsPage(ctx context.Context, db *gorm.DB, requester string, offset, limit int) ([]domain.ApprovalRequest, error) {
	var out []domain.ApprovalRequest
	q := db.WithContext(ctx)
	if requester != "" {
		q = q.Where("requester = ?", requester)
	}
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountApprovals returns the number of requests, optionally by requester.
func CountApprovals(ctx context.Context, db *gorm.DB, requester string) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.ApprovalRequest{})
	if requester != "" {
		q = q.Where("requester = ?", requester)
	}
	err := q.Count(&total).Error
	return total, err
}
