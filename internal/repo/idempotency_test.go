package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

func TestGetIdempotency_EmptyKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	if _, err := GetIdempotency(context.Background(), db, "alice", "approvals", "  ", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAndGetIdempotency(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "alice", "approvals", "k1", "a1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.ExpiresAt.Sub(rec.CreatedAt) != time.Hour {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "alice", "approvals", "k1", time.Now().UTC())
	if err != nil || got.ResourceID != "a1" || got.Status != 201 {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}

	// Another client with the same key is a different record.
	if _, err := GetIdempotency(ctx, db, "bob", "approvals", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other client, got %v", err)
	}
}

func TestCreateIdempotency_Duplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	if _, err := CreateIdempotency(ctx, db, "alice", "approvals", "k1", "a1", 201, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "alice", "approvals", "k1", "a2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetIdempotency_ExpiredIsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	if _, err := CreateIdempotency(ctx, db, "alice", "approvals", "k1", "a1", 201, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "alice", "approvals", "k1", time.Now().UTC().Add(2*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	for _, msg := range []string{
		"UNIQUE constraint failed: idempotency.client",
		`ERROR: duplicate key value violates unique constraint "ux_client_scope_key" (SQLSTATE 23505)`,
	} {
		if !isUniqueViolation(errors.New(msg)) {
			t.Fatalf("expected %q to be a unique violation", msg)
		}
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("unexpected unique violation")
	}
}
