// Package services – Router
//
// Router applies inbound WhatsApp events to the approval state machine.
// Button clicks either redeem a resend link or record a decision; text
// replies are OTP codes handed to the engine. Events from the same phone are
// processed one at a time under a per-phone lock.
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

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/sysutil"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ChallengeEngine issues and verifies challenges.
type ChallengeEngine interface {
	ChallengeIssuer
	Verify(ctx context.Context, phone, code string) (*VerifyResult, error)
	VerifyFor(ctx context.Context, approvalID, phone, code string) (*VerifyResult, error)
}

// ApprovalStore is the part of ApprovalService the router needs.
type ApprovalStore interface {
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	UpdateDecision(ctx context.Context, id string, d domain.Decision) (*domain.ApprovalRequest, error)
}

// Prompter sends the follow-up messages of the verification flow.
type Prompter interface {
	SendDecisionPrompt(ctx context.Context, a *domain.ApprovalRequest, phone string) (string, error)
	SendResendPrompt(ctx context.Context, a *domain.ApprovalRequest, phone string) (*domain.ResendLink, error)
	SendTryAgain(ctx context.Context, phone string) error
}

// ReplyStatus names what an event did.
type ReplyStatus string

const (
	StatusIgnored           ReplyStatus = "ignored"
	StatusOtpResent         ReplyStatus = "otp_resent"
	StatusLinkExpired       ReplyStatus = "link_expired"
	StatusDecisionApplied   ReplyStatus = "decision_applied"
	StatusVerified          ReplyStatus = "verified"
	StatusInvalidCode       ReplyStatus = "invalid_code"
	StatusExpired           ReplyStatus = "expired"
	StatusLockedOut         ReplyStatus = "locked_out"
	StatusNoActiveChallenge ReplyStatus = "no_active_challenge"
	StatusRejected          ReplyStatus = "rejected"
)

// Reply describes the effect of one event. Remaining is set only for
// invalid_code, where zero means the next wrong code locks the approver out.
type Reply struct {
	Status     ReplyStatus     `json:"status"`
	ApprovalID string          `json:"approval_id,omitempty"`
	Decision   domain.Decision `json:"decision,omitempty"`
	Remaining  *int            `json:"remaining_attempts,omitempty"`
	MessageID  string          `json:"message_id,omitempty"`
}

// IsOutcome reports whether err is a verification outcome rather than a
// failure to process the event.
func IsOutcome(err error) bool {
	for _, target := range []error{
		ErrNoActiveChallenge, ErrChallengeExpired, ErrAttemptsExceeded,
		ErrInvalidCode, ErrLinkExpired, ErrForbiddenApprover, ErrApprovalNotFound,
		ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Router applies webhook events.
type Router struct {
	Engine       ChallengeEngine
	Approvals    ApprovalStore
	Prompts      Prompter
	Correlations CorrelationStore
	Links        ResendStore
	// Callback is told about applied decisions. Optional.
	Callback DecisionCallback
	Locks    Locker

	Now func() time.Time
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Router) lock(ctx context.Context, phone string) (func(), error) {
	if r.Locks == nil || phone == "" {
		return func() {}, nil
	}
	return r.Locks.Lock(ctx, "phone:"+phone)
}

// HandleWebhook classifies p and handles each message in order. Outcome
// errors are folded into the replies; the returned error is the first
// failure that should make the sender redeliver.
func (r *Router) HandleWebhook(ctx context.Context, p *whatsapp.WebhookPayload) ([]Reply, error) {
	events, err := ClassifyWebhook(p)
	if err != nil {
		return nil, err
	}
	replies := make([]Reply, 0, len(events))
	var first error
	for _, ev := range events {
		rep, err := r.Handle(ctx, ev)
		if err != nil && !IsOutcome(err) {
			log.Ctx(ctx).Error().Err(err).Str("phone", sysutil.MaskPhone(ev.sender())).Msg("webhook event failed")
			if first == nil {
				first = err
			}
			continue
		}
		if rep != nil {
			replies = append(replies, *rep)
		}
	}
	return replies, first
}

// Handle applies one event. Verification outcomes come back as a Reply plus
// one of the outcome errors (see IsOutcome); any other error means the event
// was not fully processed.
func (r *Router) Handle(ctx context.Context, ev Event) (*Reply, error) {
	ctx, span := otel.Tracer("services/Router").Start(ctx, "Handle",
		trace.WithAttributes(attribute.String("event.kind", fmt.Sprintf("%T", ev))),
	)
	defer span.End()

	if e, ok := ev.(TextEvent); ok {
		if err := checkCodeReply(e.From, e.Body); err != nil {
			log.Ctx(ctx).Info().Str("phone", sysutil.MaskPhone(e.From)).Msg("blank code reply rejected")
			span.SetAttributes(attribute.String("reply.status", string(StatusRejected)))
			return &Reply{Status: StatusRejected}, err
		}
	}

	unlock, err := r.lock(ctx, ev.sender())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var rep *Reply
	switch e := ev.(type) {
	case ButtonEvent:
		rep, err = r.handleButton(ctx, e)
	case TextEvent:
		rep, err = r.verify(ctx, "", e.From, e.Body)
	default:
		log.Ctx(ctx).Debug().Str("kind", fmt.Sprintf("%T", ev)).Msg("unrecognized webhook event ignored")
		rep = &Reply{Status: StatusIgnored}
	}
	if rep != nil {
		span.SetAttributes(attribute.String("reply.status", string(rep.Status)))
	}
	if err != nil && !IsOutcome(err) {
		span.RecordError(err)
	}
	return rep, err
}

// VerifyCode is the HTTP path for submitting a code: the request must exist
// and list phone as an approver before the engine is consulted. Only
// challenges issued for approvalID are considered.
func (r *Router) VerifyCode(ctx context.Context, approvalID, phone, code string) (*Reply, error) {
	phone = NormalizePhone(phone)
	code = strings.TrimSpace(code)
	if err := checkCodeReply(phone, code); err != nil {
		return nil, err
	}
	a, err := r.Approvals.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if !a.Approvers.Contains(phone) {
		return nil, ErrForbiddenApprover
	}

	unlock, err := r.lock(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.verify(ctx, a.ID, phone, code)
}

// checkCodeReply rejects a code submission that names no sender or carries
// no code. Nothing is verified or counted against the challenge.
func checkCodeReply(phone, code string) error {
	switch {
	case strings.TrimSpace(phone) == "":
		return fmt.Errorf("%w: phone is required", ErrInvalidRequest)
	case strings.TrimSpace(code) == "":
		return fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	return nil
}

func (r *Router) handleButton(ctx context.Context, e ButtonEvent) (*Reply, error) {
	token, isResend := strings.CutPrefix(e.Payload, ResendPayloadPrefix)
	if token != "" {
		link, err := r.Links.Get(ctx, token)
		switch {
		case err == nil:
			return r.redeem(ctx, e, link)
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		case isResend:
			log.Ctx(ctx).Info().Str("phone", sysutil.MaskPhone(e.From)).Msg("unknown resend token")
			return &Reply{Status: StatusLinkExpired}, ErrLinkExpired
		}
	}

	d, approvalID, ok := ParseDecisionPayload(e.Payload)
	if !ok {
		log.Ctx(ctx).Debug().Str("payload", e.Payload).Msg("unrecognized button payload ignored")
		return &Reply{Status: StatusIgnored}, nil
	}
	return r.decide(ctx, e, d, approvalID)
}

// redeem consumes a resend link by issuing a fresh challenge to its recipient.
// Only the number the link was sent to may redeem it.
func (r *Router) redeem(ctx context.Context, e ButtonEvent, link *domain.ResendLink) (*Reply, error) {
	if link.Expired(r.now()) {
		if _, err := r.Links.Delete(ctx, link.Token); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("delete expired resend link")
		}
		return &Reply{Status: StatusLinkExpired, ApprovalID: link.ApprovalID}, ErrLinkExpired
	}
	if link.Phone != e.From {
		log.Ctx(ctx).Warn().
			Str("approval_id", link.ApprovalID).
			Str("phone", sysutil.MaskPhone(e.From)).
			Msg("resend link pressed by another number; refused")
		return &Reply{Status: StatusIgnored, ApprovalID: link.ApprovalID}, ErrForbiddenApprover
	}

	a, err := r.Approvals.Get(ctx, link.ApprovalID)
	if err != nil {
		return nil, err
	}
	c, err := r.Engine.IssueChallenge(ctx, a, link.Phone)
	if err != nil {
		return nil, err
	}
	if gone, err := r.Links.Delete(ctx, link.Token); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("delete redeemed resend link")
	} else if !gone {
		log.Ctx(ctx).Info().Str("challenge_id", c.ID).Msg("resend link already consumed concurrently")
	}
	return &Reply{Status: StatusOtpResent, ApprovalID: a.ID}, nil
}

// decide records d on approvalID. The correlation of the replied-to message
// only cross-checks the payload; a missing entry does not block the decision.
func (r *Router) decide(ctx context.Context, e ButtonEvent, d domain.Decision, approvalID string) (*Reply, error) {
	if e.ContextID != "" && r.Correlations != nil {
		corr, err := r.Correlations.Get(ctx, e.ContextID)
		switch {
		case err == nil && corr != approvalID:
			log.Ctx(ctx).Warn().
				Str("approval_id", approvalID).
				Str("correlated_id", corr).
				Msg("decision payload does not match correlated request; ignored")
			return &Reply{Status: StatusIgnored}, nil
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			log.Ctx(ctx).Warn().Err(err).Str("context_id", e.ContextID).Msg("correlation lookup failed")
		}
	}

	a, err := r.Approvals.Get(ctx, approvalID)
	if errors.Is(err, ErrApprovalNotFound) {
		log.Ctx(ctx).Info().Str("approval_id", approvalID).Msg("decision for unknown approval ignored")
		return &Reply{Status: StatusIgnored}, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.Approvers.Contains(e.From) {
		return nil, ErrForbiddenApprover
	}

	updated, err := r.Approvals.UpdateDecision(ctx, approvalID, d)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return &Reply{Status: StatusIgnored}, nil
	}
	log.Ctx(ctx).Info().
		Str("approval_id", updated.ID).
		Str("decision", string(d)).
		Str("phone", sysutil.MaskPhone(e.From)).
		Msg("decision applied")
	if r.Callback != nil {
		r.Callback.Notify(ctx, updated)
	}
	return &Reply{Status: StatusDecisionApplied, ApprovalID: updated.ID, Decision: d}, nil
}

// verify runs the engine for (phone, code) and sends the matching follow-up.
// A non-empty approvalID restricts the lookup to that request's challenges.
func (r *Router) verify(ctx context.Context, approvalID, phone, code string) (*Reply, error) {
	var (
		res *VerifyResult
		err error
	)
	if approvalID != "" {
		res, err = r.Engine.VerifyFor(ctx, approvalID, phone, code)
	} else {
		res, err = r.Engine.Verify(ctx, phone, code)
	}
	if err != nil {
		return nil, err
	}

	rep := &Reply{}
	if res.Approval != nil {
		rep.ApprovalID = res.Approval.ID
	}

	switch res.Outcome {
	case OutcomeApproved:
		id, err := r.Prompts.SendDecisionPrompt(ctx, res.Approval, phone)
		if err != nil {
			// the challenge is spent; a resend lets the approver verify again
			r.offerResend(ctx, res.Approval, phone)
			return nil, fmt.Errorf("%w: decision prompt: %v", ErrProvider, err)
		}
		rep.Status = StatusVerified
		rep.MessageID = id
		return rep, nil

	case OutcomeInvalidRetry:
		if err := r.Prompts.SendTryAgain(ctx, phone); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("phone", sysutil.MaskPhone(phone)).Msg("try-again prompt not sent")
		}
		rep.Status = StatusInvalidCode
		remaining := res.Remaining
		rep.Remaining = &remaining
		return rep, ErrInvalidCode

	case OutcomeExpired:
		r.offerResend(ctx, res.Approval, phone)
		rep.Status = StatusExpired
		return rep, ErrChallengeExpired

	case OutcomeLockedOut:
		r.offerResend(ctx, res.Approval, phone)
		rep.Status = StatusLockedOut
		return rep, ErrAttemptsExceeded

	default:
		rep.Status = StatusNoActiveChallenge
		return rep, ErrNoActiveChallenge
	}
}

func (r *Router) offerResend(ctx context.Context, a *domain.ApprovalRequest, phone string) {
	if _, err := r.Prompts.SendResendPrompt(ctx, a, phone); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("approval_id", a.ID).Str("phone", sysutil.MaskPhone(phone)).Msg("resend prompt not sent")
	}
}
