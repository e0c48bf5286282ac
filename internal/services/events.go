package services

import (
	"strings"

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

// Event is an inbound webhook message, classified once at the boundary.
// The concrete types are ButtonEvent, TextEvent and UnrecognizedEvent.
type Event interface {
	sender() string
}

// ButtonEvent is a quick-reply click. ContextID references the outbound
// message the button belonged to and may be empty.
type ButtonEvent struct {
	MessageID string
	From      string
	Payload   string
	ContextID string
}

// TextEvent is a free-text reply, expected to carry an OTP.
type TextEvent struct {
	MessageID string
	From      string
	Body      string
}

// UnrecognizedEvent is anything else (images, reactions, locations...).
type UnrecognizedEvent struct {
	MessageID string
	From      string
	Type      string
}

func (e ButtonEvent) sender() string       { return e.From }
func (e TextEvent) sender() string         { return e.From }
func (e UnrecognizedEvent) sender() string { return e.From }

// NormalizePhone trims p and prefixes '+' when missing. WhatsApp reports
// senders without the leading '+'.
func NormalizePhone(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "+") {
		return p
	}
	return "+" + p
}

// ClassifyMessage maps one inbound message onto the event union.
func ClassifyMessage(m whatsapp.InboundMessage) Event {
	from := NormalizePhone(m.From)
	ctxID := ""
	if m.Context != nil {
		ctxID = m.Context.ID
	}
	switch m.Type {
	case "button":
		if m.Button != nil {
			return ButtonEvent{MessageID: m.ID, From: from, Payload: strings.TrimSpace(m.Button.Payload), ContextID: ctxID}
		}
	case "interactive":
		if m.Interactive != nil && m.Interactive.ButtonReply != nil {
			return ButtonEvent{MessageID: m.ID, From: from, Payload: strings.TrimSpace(m.Interactive.ButtonReply.ID), ContextID: ctxID}
		}
	case "text":
		if m.Text != nil {
			return TextEvent{MessageID: m.ID, From: from, Body: strings.TrimSpace(m.Text.Body)}
		}
	}
	return UnrecognizedEvent{MessageID: m.ID, From: from, Type: m.Type}
}

// ClassifyWebhook returns the events carried by p. A payload with no entries
// is rejected; entries without messages (delivery statuses) yield none.
func ClassifyWebhook(p *whatsapp.WebhookPayload) ([]Event, error) {
	if p == nil || len(p.Entry) == 0 {
		return nil, ErrInvalidPayload
	}
	msgs := p.Messages()
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ClassifyMessage(m))
	}
	return out, nil
}

// Decision button payloads are "<ACTION>_<approvalId>".
var decisionActions = map[string]domain.Decision{
	"APPROVE": domain.DecisionApproved,
	"REJECT":  domain.DecisionRejected,
	"DEFER":   domain.DecisionDeferred,
	"ATTENTE": domain.DecisionDeferred, // legacy templates
}

// ParseDecisionPayload splits a decision button payload. ok is false when the
// payload is not a known action followed by a non-empty approval id.
func ParseDecisionPayload(payload string) (decision domain.Decision, approvalID string, ok bool) {
	action, id, found := strings.Cut(payload, "_")
	if !found || id == "" {
		return "", "", false
	}
	d, known := decisionActions[strings.ToUpper(action)]
	if !known {
		return "", "", false
	}
	return d, id, true
}

// DecisionPayload renders the button payload for decision d on approvalID.
func DecisionPayload(d domain.Decision, approvalID string) string {
	switch d {
	case domain.DecisionApproved:
		return "APPROVE_" + approvalID
	case domain.DecisionRejected:
		return "REJECT_" + approvalID
	default:
		return "DEFER_" + approvalID
	}
}
