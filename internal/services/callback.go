package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

// DecisionCallback is told about every applied decision.
type DecisionCallback interface {
	Notify(ctx context.Context, a *domain.ApprovalRequest)
}

// callbackBody is what the requester's callback URL receives.
type callbackBody struct {
	ApprovalID string          `json:"approval_id"`
	ObjectType string          `json:"object_type"`
	ObjectID   string          `json:"object_id"`
	Decision   domain.Decision `json:"decision"`
	Comment    string          `json:"comment,omitempty"`
	DecidedAt  time.Time       `json:"decided_at"`
}

// HTTPCallback POSTs decisions to the request's CallbackURL in the
// background. Failures are logged and never retried.
type HTTPCallback struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPCallback returns a callback notifier with the given per-call timeout.
func NewHTTPCallback(timeout time.Duration) *HTTPCallback {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCallback{Client: &http.Client{Timeout: timeout}, Timeout: timeout}
}

// Notify returns immediately; requests without a callback URL are skipped.
func (h *HTTPCallback) Notify(ctx context.Context, a *domain.ApprovalRequest) {
	if a == nil || a.CallbackURL == "" {
		return
	}
	snapshot := *a
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := h.post(ctx, &snapshot); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("approval_id", snapshot.ID).Msg("decision callback failed")
		}
	}()
}

func (h *HTTPCallback) post(ctx context.Context, a *domain.ApprovalRequest) error {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	ctx, span := otel.Tracer("services/HTTPCallback").Start(ctx, "post")
	defer span.End()

	body, err := json.Marshal(callbackBody{
		ApprovalID: a.ID,
		ObjectType: a.ObjectType,
		ObjectID:   a.ObjectID,
		Decision:   a.Decision,
		Comment:    a.Comment,
		DecidedAt:  a.UpdatedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback %s: %s", a.CallbackURL, resp.Status)
	}
	return nil
}
