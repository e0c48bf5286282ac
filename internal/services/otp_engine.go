// Package services – OTPEngine
//
// OTPEngine owns the lifecycle of per-approver one-time-code challenges. It
// asks the provider for a code, persists the challenge, and on each reply
// decides between approved, retry, expired and locked out. Status changes go
// through a versioned compare-and-swap so concurrent replies cannot both
// consume the same challenge.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/observability"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/sysutil"
)

// OTPProvider sends and checks one-time codes by phone number.
type OTPProvider interface {
	// SendCode sends a fresh code to phone and returns the provider reference.
	SendCode(ctx context.Context, phone string) (string, error)
	// CheckCode reports whether code is currently valid for phone.
	CheckCode(ctx context.Context, phone, code, ref string) (bool, error)
}

// Outcome is the result of checking a code.
type Outcome int

const (
	OutcomeNoActiveChallenge Outcome = iota
	OutcomeExpired
	OutcomeApproved
	OutcomeInvalidRetry
	OutcomeLockedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExpired:
		return "expired"
	case OutcomeApproved:
		return "approved"
	case OutcomeInvalidRetry:
		return "invalid"
	case OutcomeLockedOut:
		return "locked_out"
	default:
		return "no_active_challenge"
	}
}

// VerifyResult carries the outcome plus the rows it concerned. Remaining is
// only meaningful for OutcomeInvalidRetry.
type VerifyResult struct {
	Outcome   Outcome
	Remaining int
	Challenge *domain.OtpChallenge
	Approval  *domain.ApprovalRequest
}

// OTPEngine issues and verifies challenges.
type OTPEngine struct {
	DB       *gorm.DB
	Provider OTPProvider

	// Expiry is the challenge window.
	Expiry time.Duration
	// MaxAttempts is the number of wrong codes tolerated; the next one denies.
	MaxAttempts int

	Now func() time.Time
}

// NewOTPEngine constructs an engine with the default window (5m) and limit (3)
// when zero values are passed.
func NewOTPEngine(db *gorm.DB, p OTPProvider, expiry time.Duration, maxAttempts int) *OTPEngine {
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &OTPEngine{DB: db, Provider: p, Expiry: expiry, MaxAttempts: maxAttempts}
}

func (e *OTPEngine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// IssueChallenge sends a code to phone for request a and records a PENDING
// challenge. The caller is responsible for checking that phone is an
// approver. Older pending challenges are left as they are; the provider has
// already replaced their code. Nothing is persisted when the provider fails.
func (e *OTPEngine) IssueChallenge(ctx context.Context, a *domain.ApprovalRequest, phone string) (*domain.OtpChallenge, error) {
	ctx, span := otel.Tracer("services/OTPEngine").Start(ctx, "IssueChallenge",
		trace.WithAttributes(attribute.String("approval.id", a.ID)),
	)
	defer span.End()

	ref, err := e.Provider.SendCode(ctx, phone)
	if err != nil {
		observability.OTPChallengesIssued.WithLabelValues("provider_error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("%w: send code: %v", ErrProvider, err)
	}

	now := e.now()
	c := &domain.OtpChallenge{
		ApprovalID:      a.ID,
		Phone:           phone,
		VerificationRef: ref,
		Status:          domain.ChallengePending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.Expiry),
	}
	if err := repo.CreateChallenge(ctx, e.DB, c); err != nil {
		observability.OTPChallengesIssued.WithLabelValues("store_error").Inc()
		return nil, err
	}
	observability.OTPChallengesIssued.WithLabelValues("ok").Inc()
	log.Ctx(ctx).Info().
		Str("approval_id", a.ID).
		Str("challenge_id", c.ID).
		Str("phone", sysutil.MaskPhone(phone)).
		Msg("otp challenge issued")
	return c, nil
}

var errNotPending = errors.New("challenge no longer pending")

// Verify checks code against the newest pending challenge for phone, across
// all requests. Domain outcomes are reported in the result; the error is
// reserved for ErrInvalidRequest, ErrApprovalNotFound, ErrForbiddenApprover,
// ErrProvider, ErrConflict and storage failures.
func (e *OTPEngine) Verify(ctx context.Context, phone, code string) (*VerifyResult, error) {
	return e.VerifyFor(ctx, "", phone, code)
}

// VerifyFor is Verify restricted to the challenges of one request. Pending
// challenges for the same phone on other requests are left untouched.
func (e *OTPEngine) VerifyFor(ctx context.Context, approvalID, phone, code string) (*VerifyResult, error) {
	ctx, span := otel.Tracer("services/OTPEngine").Start(ctx, "Verify")
	defer span.End()
	if approvalID != "" {
		span.SetAttributes(attribute.String("approval.id", approvalID))
	}

	res, err := e.verify(ctx, approvalID, phone, code)
	if err == nil {
		span.SetAttributes(attribute.String("otp.outcome", res.Outcome.String()))
		observability.OTPVerifications.WithLabelValues(res.Outcome.String()).Inc()
	} else {
		span.RecordError(err)
	}
	return res, err
}

func (e *OTPEngine) verify(ctx context.Context, approvalID, phone, code string) (*VerifyResult, error) {
	if phone == "" || strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: phone and code are required", ErrInvalidRequest)
	}
	c, err := repo.LatestPendingChallenge(ctx, e.DB, phone, approvalID)
	if errors.Is(err, repo.ErrNotFound) {
		return &VerifyResult{Outcome: OutcomeNoActiveChallenge}, nil
	}
	if err != nil {
		return nil, err
	}

	a, err := repo.GetApproval(ctx, e.DB, c.ApprovalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrApprovalNotFound
	}
	if err != nil {
		return nil, err
	}
	if !a.Approvers.Contains(phone) {
		return nil, ErrForbiddenApprover
	}
	res := &VerifyResult{Challenge: c, Approval: a}

	if c.Expired(e.now()) {
		updated, err := e.transition(ctx, c.ID, func(c *domain.OtpChallenge) error {
			c.Status = domain.ChallengeExpired
			return nil
		})
		return e.settle(res, updated, err, OutcomeExpired)
	}

	valid, err := e.Provider.CheckCode(ctx, phone, code, c.VerificationRef)
	if err != nil {
		return nil, fmt.Errorf("%w: check code: %v", ErrProvider, err)
	}

	if valid {
		updated, err := e.transition(ctx, c.ID, func(c *domain.OtpChallenge) error {
			c.Status = domain.ChallengeApproved
			return nil
		})
		res, err = e.settle(res, updated, err, OutcomeApproved)
		if err == nil && res.Outcome == OutcomeApproved {
			if n, serr := repo.SupersedePending(ctx, e.DB, phone, approvalID, c.ID); serr != nil {
				log.Ctx(ctx).Warn().Err(serr).Str("challenge_id", c.ID).Msg("supersede pending challenges")
			} else if n > 0 {
				log.Ctx(ctx).Debug().Int64("superseded", n).Str("challenge_id", c.ID).Msg("older challenges expired")
			}
		}
		return res, err
	}

	outcome := OutcomeInvalidRetry
	updated, err := e.transition(ctx, c.ID, func(c *domain.OtpChallenge) error {
		c.InvalidAttempts++
		if c.InvalidAttempts > e.MaxAttempts {
			c.Status = domain.ChallengeDenied
			outcome = OutcomeLockedOut
		} else {
			outcome = OutcomeInvalidRetry
		}
		return nil
	})
	res, err = e.settle(res, updated, err, outcome)
	if err == nil && res.Outcome == OutcomeInvalidRetry {
		res.Remaining = e.MaxAttempts - updated.InvalidAttempts
	}
	return res, err
}

// transition applies mutate to a still-pending challenge with one retry on
// version conflict.
func (e *OTPEngine) transition(ctx context.Context, id string, mutate func(*domain.OtpChallenge) error) (*domain.OtpChallenge, error) {
	return repo.CompareAndSwap(ctx, 1,
		func(ctx context.Context) (*domain.OtpChallenge, error) { return repo.GetChallenge(ctx, e.DB, id) },
		func(c *domain.OtpChallenge) error {
			if c.Status != domain.ChallengePending {
				return errNotPending
			}
			return mutate(c)
		},
		func(ctx context.Context, c *domain.OtpChallenge) error {
			return repo.SaveChallengeVersioned(ctx, e.DB, c)
		},
	)
}

// settle maps a transition result onto the verify result. A challenge that a
// concurrent reply already moved out of PENDING reads as no active challenge.
func (e *OTPEngine) settle(res *VerifyResult, updated *domain.OtpChallenge, err error, outcome Outcome) (*VerifyResult, error) {
	switch {
	case errors.Is(err, errNotPending):
		res.Outcome = OutcomeNoActiveChallenge
		return res, nil
	case errors.Is(err, repo.ErrConflict):
		return nil, ErrConflict
	case err != nil:
		return nil, err
	}
	res.Challenge = updated
	res.Outcome = outcome
	return res, nil
}
