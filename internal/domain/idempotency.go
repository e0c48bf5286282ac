package domain

import "time"

// Idempotency records the resource produced by a previously processed
// request, keyed by (client, scope, key). A replay with the same key returns
// the original resource instead of re-running side effects such as sending
// OTP codes.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	Client     string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_client_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_client_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_client_scope_key,priority:3"`
	ResourceID string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
