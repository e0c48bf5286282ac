package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	xlanguage "golang.org/x/text/language"
)

// ErrNotConfigured is returned when no API URL was configured.
var ErrNotConfigured = errors.New("whatsapp: api url not configured")

// Client posts template messages to the Cloud API messages endpoint.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	lang       string
}

// NewClient builds a client for the messages endpoint apiURL.
func NewClient(apiURL, token string, lang xlanguage.Tag, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		token:      token,
		lang:       templateLanguage(lang),
	}
}

// templateLanguage renders a BCP 47 tag the way Meta names template
// languages ("en", "pt_BR").
func templateLanguage(tag xlanguage.Tag) string {
	if tag == xlanguage.Und {
		return "en"
	}
	return strings.ReplaceAll(tag.String(), "-", "_")
}

// SendTemplate sends template name to one recipient and returns the parsed
// response. A 2xx response without a message id is not an error; callers
// simply have nothing to correlate.
func (c *Client) SendTemplate(ctx context.Context, to, name string, components []Component) (*SendResponse, error) {
	ctx, span := otel.Tracer("whatsapp/Client").Start(ctx, "SendTemplate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("whatsapp.template", name)),
	)
	defer span.End()

	if c.apiURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: template{
			Name:       name,
			Language:   language{Code: c.lang},
			Components: components,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("whatsapp send %s: %w", name, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		msg := resp.Status
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s (code %d)", resp.Status, ae.Error.Message, ae.Error.Code)
		}
		span.SetStatus(codes.Error, msg)
		return nil, fmt.Errorf("whatsapp send %s: %s", name, msg)
	}

	var out SendResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("whatsapp send %s: decode response: %w", name, err)
		}
	}
	if id := out.MessageID(); id != "" {
		span.SetAttributes(attribute.String("whatsapp.message_id", id))
	}
	return &out, nil
}
