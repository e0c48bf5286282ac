package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-approval-gateway/internal/domain"
)

func newChallenge(id, approvalID, phone string, created time.Time) *domain.OtpChallenge {
	return &domain.OtpChallenge{
		ID: id, ApprovalID: approvalID, Phone: phone, VerificationRef: "VE" + id,
		CreatedAt: created, ExpiresAt: created.Add(5 * time.Minute),
	}
}

func TestLatestPendingChallenge_PicksNewestAcrossRequests(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []*domain.OtpChallenge{
		newChallenge("old", "a1", "+1", base),
		newChallenge("new", "a2", "+1", base.Add(time.Minute)),
		newChallenge("other-phone", "a1", "+2", base.Add(2*time.Minute)),
	} {
		if err := CreateChallenge(ctx, db, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := LatestPendingChallenge(ctx, db, "+1", "")
	if err != nil {
		t.Fatalf("LatestPendingChallenge: %v", err)
	}
	if got.ID != "new" || got.Status != domain.ChallengePending {
		t.Fatalf("got %+v", got)
	}

	if _, err := LatestPendingChallenge(ctx, db, "+9", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown phone, got %v", err)
	}
}

func TestLatestPendingChallenge_SkipsTerminalRows(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	c := newChallenge("c1", "a1", "+1", base)
	if err := CreateChallenge(ctx, db, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Status = domain.ChallengeApproved
	if err := SaveChallengeVersioned(ctx, db, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LatestPendingChallenge(ctx, db, "+1", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("approved challenge must not be selected, got %v", err)
	}
}

func TestLatestPendingChallenge_ScopedToRequest(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []*domain.OtpChallenge{
		newChallenge("a1-old", "a1", "+1", base),
		newChallenge("a2-new", "a2", "+1", base.Add(time.Minute)),
	} {
		if err := CreateChallenge(ctx, db, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := LatestPendingChallenge(ctx, db, "+1", "a1")
	if err != nil {
		t.Fatalf("LatestPendingChallenge: %v", err)
	}
	if got.ID != "a1-old" {
		t.Fatalf("scoped lookup picked %s, want a1-old", got.ID)
	}
	if _, err := LatestPendingChallenge(ctx, db, "+1", "a3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for request without challenges, got %v", err)
	}
}

func TestSaveChallengeVersioned_Conflict(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()

	c := newChallenge("c1", "a1", "+1", time.Now().UTC())
	if err := CreateChallenge(ctx, db, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, _ := GetChallenge(ctx, db, "c1")

	c.InvalidAttempts = 1
	if err := SaveChallengeVersioned(ctx, db, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	stale.InvalidAttempts = 1
	if err := SaveChallengeVersioned(ctx, db, stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSupersedePending_ExpiresOthersOnly(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []*domain.OtpChallenge{
		newChallenge("keep", "a1", "+1", base.Add(time.Minute)),
		newChallenge("older", "a1", "+1", base),
		newChallenge("elsewhere", "a2", "+1", base),
		newChallenge("other", "a1", "+2", base),
	} {
		if err := CreateChallenge(ctx, db, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := SupersedePending(ctx, db, "+1", "", "keep")
	if err != nil || n != 2 {
		t.Fatalf("SupersedePending = %d, %v; want 2", n, err)
	}
	for id, want := range map[string]domain.ChallengeStatus{
		"keep": domain.ChallengePending, "older": domain.ChallengeExpired,
		"elsewhere": domain.ChallengeExpired, "other": domain.ChallengePending,
	} {
		got, _ := GetChallenge(ctx, db, id)
		if got.Status != want {
			t.Fatalf("%s status = %s, want %s", id, got.Status, want)
		}
	}
	older, _ := GetChallenge(ctx, db, "older")
	if older.Version != 1 {
		t.Fatalf("superseded row version = %d, want 1", older.Version)
	}
}

func TestSupersedePending_ScopedToRequest(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, c := range []*domain.OtpChallenge{
		newChallenge("keep", "a1", "+1", base.Add(time.Minute)),
		newChallenge("older", "a1", "+1", base),
		newChallenge("elsewhere", "a2", "+1", base),
	} {
		if err := CreateChallenge(ctx, db, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := SupersedePending(ctx, db, "+1", "a1", "keep")
	if err != nil || n != 1 {
		t.Fatalf("SupersedePending = %d, %v; want 1", n, err)
	}
	if got, _ := GetChallenge(ctx, db, "older"); got.Status != domain.ChallengeExpired {
		t.Fatalf("older status = %s, want EXPIRED", got.Status)
	}
	if got, _ := GetChallenge(ctx, db, "elsewhere"); got.Status != domain.ChallengePending {
		t.Fatalf("elsewhere status = %s, want PENDING", got.Status)
	}
}

func TestListAndCountChallenges(t *testing.T) {
	db := newTestDB(t, &domain.OtpChallenge{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"c0", "c1", "c2"} {
		if err := CreateChallenge(ctx, db, newChallenge(id, "a1", "+1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if n, err := CountChallenges(ctx, db, "a1"); err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
	page, err := ListChallengesPage(ctx, db, "a1", 1, 1)
	if err != nil || len(page) != 1 || page[0].ID != "c1" {
		t.Fatalf("page = %+v, %v", page, err)
	}
}
