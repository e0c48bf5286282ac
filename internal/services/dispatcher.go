// Package services – Dispatcher
//
// Dispatcher formats and sends the WhatsApp templates the approval flow uses:
// the code announcement, the decision prompt, the resend prompt and the
// try-again prompt. The decision prompt's message id is recorded in the
// correlation store so button replies can be traced back to their request.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-approval-gateway/internal/config"
	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/observability"
	"github.com/tbourn/go-approval-gateway/internal/sysutil"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

// MessageSender sends one template message.
type MessageSender interface {
	SendTemplate(ctx context.Context, to, name string, components []whatsapp.Component) (*whatsapp.SendResponse, error)
}

// CorrelationStore maps outbound message ids to approval ids. Get returns
// repo.ErrNotFound for unknown or expired ids.
type CorrelationStore interface {
	Put(ctx context.Context, messageID, approvalID string) error
	Get(ctx context.Context, messageID string) (string, error)
	Delete(ctx context.Context, messageID string) error
}

// ResendStore holds single-use resend tokens. Get returns repo.ErrNotFound
// for unknown tokens and expired links as stored. Delete reports whether
// this call removed the token.
type ResendStore interface {
	Put(ctx context.Context, link *domain.ResendLink) error
	Get(ctx context.Context, token string) (*domain.ResendLink, error)
	Delete(ctx context.Context, token string) (bool, error)
}

// ResendPayloadPrefix marks resend buttons in quick-reply payloads.
const ResendPayloadPrefix = "RESENDOTP_"

// Dispatcher sends approval flow messages.
type Dispatcher struct {
	Sender       MessageSender
	Correlations CorrelationStore
	Links        ResendStore
	Templates    config.WhatsAppTemplates
	// LinkTTL is the lifetime of resend tokens.
	LinkTTL time.Duration

	Now func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(s MessageSender, corr CorrelationStore, links ResendStore, tpl config.WhatsAppTemplates, linkTTL time.Duration) *Dispatcher {
	if linkTTL <= 0 {
		linkTTL = 5 * time.Minute
	}
	return &Dispatcher{Sender: s, Correlations: corr, Links: links, Templates: tpl, LinkTTL: linkTTL}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) send(ctx context.Context, to, name string, comps []whatsapp.Component) (*whatsapp.SendResponse, error) {
	ctx, span := otel.Tracer("services/Dispatcher").Start(ctx, "send",
		trace.WithAttributes(attribute.String("whatsapp.template", name)),
	)
	defer span.End()

	resp, err := d.Sender.SendTemplate(ctx, to, name, comps)
	observability.Dispatches.WithLabelValues(name, observability.Result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

// SendOtpNotice tells phone a code for a is on its way.
func (d *Dispatcher) SendOtpNotice(ctx context.Context, a *domain.ApprovalRequest, phone string) error {
	_, err := d.send(ctx, phone, d.Templates.OTP, nil)
	return err
}

// SendDecisionPrompt sends the approve/reject/defer prompt for a to phone
// and correlates the returned message id with a. A response without a
// message id leaves nothing to correlate and is not an error.
func (d *Dispatcher) SendDecisionPrompt(ctx context.Context, a *domain.ApprovalRequest, phone string) (string, error) {
	comps := []whatsapp.Component{
		whatsapp.Header(a.Origin),
		whatsapp.Body(a.ObjectType, a.ObjectID, a.Requester),
		whatsapp.QuickReply(0, DecisionPayload(domain.DecisionApproved, a.ID)),
		whatsapp.QuickReply(1, DecisionPayload(domain.DecisionRejected, a.ID)),
		whatsapp.QuickReply(2, DecisionPayload(domain.DecisionDeferred, a.ID)),
	}
	resp, err := d.send(ctx, phone, d.Templates.Approval, comps)
	if err != nil {
		return "", err
	}
	id := resp.MessageID()
	if id == "" {
		log.Ctx(ctx).Warn().Str("approval_id", a.ID).Msg("decision prompt returned no message id")
		return "", nil
	}
	if err := d.Correlations.Put(ctx, id, a.ID); err != nil {
		return id, err
	}
	return id, nil
}

// SendResendPrompt stores a fresh single-use link for (a, phone) and sends the
// button that redeems it.
func (d *Dispatcher) SendResendPrompt(ctx context.Context, a *domain.ApprovalRequest, phone string) (*domain.ResendLink, error) {
	now := d.now()
	link := &domain.ResendLink{
		Token:      uuid.NewString(),
		ApprovalID: a.ID,
		Phone:      phone,
		CreatedAt:  now,
		ExpiresAt:  now.Add(d.LinkTTL),
	}
	if err := d.Links.Put(ctx, link); err != nil {
		return nil, err
	}
	comps := []whatsapp.Component{whatsapp.QuickReply(0, ResendPayloadPrefix+link.Token)}
	if _, err := d.send(ctx, phone, d.Templates.Resend, comps); err != nil {
		if _, derr := d.Links.Delete(ctx, link.Token); derr != nil {
			log.Ctx(ctx).Warn().Err(derr).Str("phone", sysutil.MaskPhone(phone)).Msg("drop unsent resend link")
		}
		return nil, err
	}
	return link, nil
}

// SendTryAgain asks phone to retype its code.
func (d *Dispatcher) SendTryAgain(ctx context.Context, phone string) error {
	_, err := d.send(ctx, phone, d.Templates.Retry, nil)
	return err
}
