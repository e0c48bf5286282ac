// Package domain defines the persistence models for approval requests, their
// per-approver OTP challenges, and the lookup tables that tie inbound WhatsApp
// replies back to a request. These types are mapped with GORM and form the
// core data layer of the approval gateway.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Decision is the outcome recorded on an approval request.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
	DecisionDeferred Decision = "DEFERRED"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionRejected, DecisionDeferred:
		return true
	}
	return false
}

// ChallengeStatus is the lifecycle state of an OTP challenge. A challenge
// leaves PENDING exactly once and never returns to it.
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "PENDING"
	ChallengeApproved ChallengeStatus = "APPROVED"
	ChallengeExpired  ChallengeStatus = "EXPIRED"
	ChallengeDenied   ChallengeStatus = "DENIED"
)

// PhoneList is an ordered list of approver phone numbers stored as a JSON
// array in a single text column.
type PhoneList []string

// Contains reports whether phone is listed.
func (p PhoneList) Contains(phone string) bool {
	for _, v := range p {
		if v == phone {
			return true
		}
	}
	return false
}

// Unique returns the list without duplicates, preserving first occurrence.
func (p PhoneList) Unique() PhoneList {
	seen := make(map[string]struct{}, len(p))
	out := make(PhoneList, 0, len(p))
	for _, v := range p {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Value implements driver.Valuer.
func (p PhoneList) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *PhoneList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("phone list: unsupported column type")
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// ApprovalRequest is the aggregate root: one request for a decision on a
// business object, addressed to a list of approvers.
//
// Fields:
//   - ID: UUID primary key, immutable.
//   - ObjectType / ObjectID / Origin: what is being approved and where it came from.
//   - Payload / Metadata: opaque JSON text supplied by the requester.
//   - Approvers: E.164 phone numbers allowed to decide.
//   - Decision: PENDING until a decision button is pressed; last write wins.
//   - Version: optimistic concurrency counter, bumped on every update.
type ApprovalRequest struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ObjectType  string    `json:"object_type"  gorm:"type:varchar(128);not null"`
	ObjectID    string    `json:"object_id"    gorm:"type:varchar(128);not null;index:idx_approval_object"`
	Origin      string    `json:"origin"       gorm:"type:varchar(128)"`
	Payload     string    `json:"payload"      gorm:"type:text"`
	Metadata    string    `json:"metadata"     gorm:"type:text"`
	Requester   string    `json:"requester"    gorm:"type:varchar(128);not null"`
	Approvers   PhoneList `json:"approvers"    gorm:"type:text;not null"`
	Comment     string    `json:"comment"      gorm:"type:text"`
	CallbackURL string    `json:"callback_url" gorm:"type:varchar(512)"`
	Decision    Decision  `json:"decision"     gorm:"type:varchar(16);not null;default:'PENDING'"`
	Version     int64     `json:"version"      gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for ApprovalRequest.
func (ApprovalRequest) TableName() string { return "approval_requests" }

// OtpChallenge is one code sent to one approver for one request. It is owned
// by its request through ApprovalID only; nothing cascades.
type OtpChallenge struct {
	ID              string          `json:"id"               gorm:"type:char(36);primaryKey"`
	ApprovalID      string          `json:"approval_id"      gorm:"type:char(36);not null;index"`
	Phone           string          `json:"phone"            gorm:"type:varchar(32);not null;index:idx_challenge_phone_status,priority:1"`
	VerificationRef string          `json:"verification_ref" gorm:"type:varchar(128)"`
	Status          ChallengeStatus `json:"status"           gorm:"type:varchar(16);not null;index:idx_challenge_phone_status,priority:2"`
	InvalidAttempts int             `json:"invalid_attempts" gorm:"not null;default:0"`
	CreatedAt       time.Time       `json:"created_at"       gorm:"index:idx_challenge_phone_status,priority:3"`
	ExpiresAt       time.Time       `json:"expires_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"version"          gorm:"not null;default:0"`
}

// TableName returns the database table name for OtpChallenge.
func (OtpChallenge) TableName() string { return "otp_challenges" }

// Expired reports whether the challenge window has passed at now.
func (c *OtpChallenge) Expired(now time.Time) bool { return now.After(c.ExpiresAt) }

// MessageCorrelation maps an outbound provider message id to the approval it
// was sent for. Rows are advisory and may be pruned after ExpiresAt.
type MessageCorrelation struct {
	MessageID  string `gorm:"type:varchar(255);primaryKey"`
	ApprovalID string `gorm:"type:char(36);not null"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

// TableName returns the database table name for MessageCorrelation.
func (MessageCorrelation) TableName() string { return "message_correlations" }

// ResendLink is a single-use token carried by a "resend code" button.
type ResendLink struct {
	Token      string `gorm:"type:char(36);primaryKey"`
	ApprovalID string `gorm:"type:char(36);not null"`
	Phone      string `gorm:"type:varchar(32);not null"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

// TableName returns the database table name for ResendLink.
func (ResendLink) TableName() string { return "resend_links" }

// Expired reports whether the link can no longer be used at now.
func (l *ResendLink) Expired(now time.Time) bool { return now.After(l.ExpiresAt) }
