package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

func TestHTTPCallback_PostsDecision(t *testing.T) {
	got := make(chan callbackBody, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var b callbackBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		got <- b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cb := NewHTTPCallback(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cb.Notify(ctx, &domain.ApprovalRequest{ID: "a1", ObjectType: "invoice", Decision: domain.DecisionApproved, CallbackURL: srv.URL})
	// the post outlives the caller's context
	cancel()

	select {
	case b := <-got:
		assert.Equal(t, "a1", b.ApprovalID)
		assert.Equal(t, domain.DecisionApproved, b.Decision)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not received")
	}
}

func TestHTTPCallback_Post_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPCallback(0).post(context.Background(), &domain.ApprovalRequest{ID: "a1", CallbackURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPCallback_SkipsWithoutURL(t *testing.T) {
	cb := NewHTTPCallback(time.Second)
	cb.Notify(context.Background(), &domain.ApprovalRequest{ID: "a1"})
	cb.Notify(context.Background(), nil)
}
