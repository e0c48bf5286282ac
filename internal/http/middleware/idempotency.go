// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on mutating requests and
// detects replays. A replay is identified by (client, scope, key): the
// requester that sent it, the route it targets, and the key itself. When a
// previous result exists the request is marked so the handler can serve it
// and the rate limiter can let it through.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderRequester identifies the calling system when no upstream
	// authentication has set one.
	HeaderRequester = "X-Requester-ID"
)

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
	ctxKeyRequester  = "requester"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, _ := c.Get(ctxKeyIdemKey)
	s := asString(v)
	return s, s != ""
}

// IsReplay reports whether IdempotencyValidator found a stored result.
func IsReplay(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyIdemReplay)
	b, _ := v.(bool)
	return b
}

// Requester returns the calling identity: a value set by upstream auth under
// "requester", else the X-Requester-ID header, else "anonymous".
func Requester(c *gin.Context) string {
	v, _ := c.Get(ctxKeyRequester)
	if s := asString(v); s != "" {
		return s
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderRequester)); h != "" {
			return h
		}
	}
	return "anonymous"
}

// IdempotencyScope renders the scope of a request; by default the method and
// the matched route, e.g. "POST /api/v1/approvals".
func IdempotencyScope(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Methods lists the methods keys are honored on. Empty means POST only.
	Methods []string
}

// IdempotencyLookup reports whether a still-valid result exists for
// (client, scope, key) at now. Lookup errors never block the request.
type IdempotencyLookup func(ctx context.Context, client, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the header when present, stashes the key,
// and marks replays found by lookup. Invalid keys get a 400; requests with
// other methods pass through untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	methods := map[string]struct{}{}
	for _, m := range opts.Methods {
		methods[strings.ToUpper(m)] = struct{}{}
	}
	if len(methods) == 0 {
		methods[http.MethodPost] = struct{}{}
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if _, ok := methods[c.Request.Method]; !ok || key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			exists, err := lookup(c.Request.Context(), Requester(c), IdempotencyScope(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
