package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRequester(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := Requester(c); got != "anonymous" {
		t.Fatalf("fallback = %q", got)
	}
	c.Request.Header.Set(HeaderRequester, " erp ")
	if got := Requester(c); got != "erp" {
		t.Fatalf("header = %q", got)
	}
	c.Set(ctxKeyRequester, "sso-user")
	if got := Requester(c); got != "sso-user" {
		t.Fatalf("context = %q", got)
	}
}

func newIdemRouter(lookup IdempotencyLookup, seen *struct {
	key    string
	replay bool
}) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{MaxLen: 16}, lookup))
	h := func(c *gin.Context) {
		seen.key, _ = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		c.Status(http.StatusNoContent)
	}
	r.POST("/approvals", h)
	r.GET("/approvals", h)
	return r
}

func TestIdempotencyValidator_ValidationAndMethods(t *testing.T) {
	var seen struct {
		key    string
		replay bool
	}
	r := newIdemRouter(nil, &seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/approvals", nil)
	req.Header.Set(HeaderIdempotencyKey, "has space")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
		t.Fatalf("pattern: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/approvals", nil)
	req.Header.Set(HeaderIdempotencyKey, strings.Repeat("k", 17))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("length: %d", w.Code)
	}

	// GET ignores the header entirely
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/approvals", nil)
	req.Header.Set(HeaderIdempotencyKey, "has space")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || seen.key != "" {
		t.Fatalf("GET: %d key=%q", w.Code, seen.key)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/approvals", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || seen.key != "k-1" || seen.replay {
		t.Fatalf("valid: %d %+v", w.Code, seen)
	}
}

func TestIdempotencyValidator_LookupScopesByRequesterAndRoute(t *testing.T) {
	var seen struct {
		key    string
		replay bool
	}
	var gotClient, gotScope string
	lookup := func(_ context.Context, client, scope, key string, _ time.Time) (bool, error) {
		gotClient, gotScope = client, scope
		if key == "boom" {
			return false, errors.New("db down")
		}
		return key == "seen", nil
	}
	r := newIdemRouter(lookup, &seen)

	req := httptest.NewRequest(http.MethodPost, "/approvals", nil)
	req.Header.Set(HeaderIdempotencyKey, "seen")
	req.Header.Set(HeaderRequester, "erp")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if !seen.replay {
		t.Fatalf("expected replay")
	}
	if gotClient != "erp" || gotScope != "POST /approvals" {
		t.Fatalf("lookup args: %q %q", gotClient, gotScope)
	}

	w := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/approvals", nil)
	req.Header.Set(HeaderIdempotencyKey, "boom")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || seen.replay {
		t.Fatalf("lookup errors must not block: %d replay=%v", w.Code, seen.replay)
	}
}
