// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. Approval traffic
// carries approver phone numbers, one-time codes and webhook secrets, so the
// logger never records bodies and scrubs what it does record:
//
//   - phone numbers keep their last four digits (+*******4567)
//   - e-mail addresses and secret query parameters are replaced
//   - Authorization, Cookie and webhook signature headers are masked
//
// It also builds the request-scoped logger (request_id, method, route) and
// attaches it to the Gin context and the request context.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-approval-gateway/internal/sysutil"
)

// maxQueryLogLength caps the number of bytes of the scrubbed query logged.
const maxQueryLogLength = 2048

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names whose values become "[REDACTED]".
	// Matching is case-insensitive.
	MaskHeaders []string
	// SecretParams are extra query parameters whose values become "[REDACTED]".
	SecretParams []string
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// E.164 with or without '+', as Meta and Twilio render them.
	phoneRE = regexp.MustCompile(`\+?\b\d{8,15}\b`)
)

// redactText masks phones and e-mails inside free text.
func redactText(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllStringFunc(s, func(m string) string {
		if !strings.HasPrefix(m, "+") {
			m = "+" + m
		}
		return sysutil.MaskPhone(m)
	})
}

// redactQuery masks secret parameters entirely and scrubs the rest.
func redactQuery(raw string, secrets map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return redactText(raw)
	}
	for k, vv := range q {
		_, secret := secrets[strings.ToLower(k)]
		for i := range vv {
			if secret {
				vv[i] = "[REDACTED]"
			} else {
				vv[i] = redactText(vv[i])
			}
		}
	}
	return q.Encode()
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed, at INFO, WARN for 4xx, and ERROR for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":                       {},
		"cookie":                              {},
		"set-cookie":                          {},
		"x-hub-signature":                     {},
		"x-hub-signature-256":                 {},
		"x-twilio-signature":                  {},
		strings.ToLower(HeaderIdempotencyKey): {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}
	secretParams := map[string]struct{}{
		"hub.verify_token": {},
		"hub.challenge":    {},
		"code":             {},
	}
	for _, p := range opts.SecretParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			secretParams[p] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery, secretParams), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactText(strings.Join(vv, ", "))
		}

		reqID := RequestIDFrom(c)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		l := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		attachLogger(c, l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", redactText(c.Errors.String()))
		}
		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
