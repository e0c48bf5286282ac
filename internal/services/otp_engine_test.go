package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/observability"
	"github.com/tbourn/go-approval-gateway/internal/repo"
)

const phoneA = "+15551230001"

func newEngine(t *testing.T) (*OTPEngine, *fakeProvider, *testClock, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	p := newFakeProvider()
	clk := newClock()
	e := NewOTPEngine(db, p, 5*time.Minute, 3)
	e.Now = clk.Now
	return e, p, clk, db
}

func TestNewOTPEngine_Defaults(t *testing.T) {
	e := NewOTPEngine(nil, nil, 0, 0)
	assert.Equal(t, 5*time.Minute, e.Expiry)
	assert.Equal(t, 3, e.MaxAttempts)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "approved", OutcomeApproved.String())
	assert.Equal(t, "invalid", OutcomeInvalidRetry.String())
	assert.Equal(t, "expired", OutcomeExpired.String())
	assert.Equal(t, "locked_out", OutcomeLockedOut.String())
	assert.Equal(t, "no_active_challenge", OutcomeNoActiveChallenge.String())
}

func TestIssueChallenge_PersistsPending(t *testing.T) {
	e, p, clk, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)

	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, c.Status)
	assert.Equal(t, a.ID, c.ApprovalID)
	assert.Equal(t, "VE0001", c.VerificationRef)
	assert.Equal(t, 0, c.InvalidAttempts)
	assert.True(t, c.ExpiresAt.Equal(clk.Now().Add(5*time.Minute)))
	assert.Equal(t, 1, p.sends)

	got, err := repo.GetChallenge(ctx, db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, got.Status)
}

func TestIssueChallenge_ProviderError_NoRow(t *testing.T) {
	e, p, _, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	p.sendErr[phoneA] = errBoom
	before := testutil.ToFloat64(observability.OTPChallengesIssued.WithLabelValues("provider_error"))

	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.ErrorIs(t, err, ErrProvider)
	assert.Nil(t, c)

	n, err := repo.CountChallenges(ctx, db, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.OTPChallengesIssued.WithLabelValues("provider_error")))
}

func TestVerify_CorrectCode_Approves(t *testing.T) {
	e, p, _, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)

	res, err := e.Verify(ctx, phoneA, p.code(phoneA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, a.ID, res.Approval.ID)
	assert.Equal(t, domain.ChallengeApproved, res.Challenge.Status)

	got, err := repo.GetChallenge(ctx, db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeApproved, got.Status)
	assert.Equal(t, int64(1), got.Version)

	// a redelivered reply finds nothing pending
	res, err = e.Verify(ctx, phoneA, p.code(phoneA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveChallenge, res.Outcome)
	assert.Equal(t, 1, p.checks)
}

func TestVerify_NoChallenge(t *testing.T) {
	e, p, _, _ := newEngine(t)
	before := testutil.ToFloat64(observability.OTPVerifications.WithLabelValues("no_active_challenge"))

	res, err := e.Verify(context.Background(), phoneA, "123456")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveChallenge, res.Outcome)
	assert.Zero(t, p.checks)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.OTPVerifications.WithLabelValues("no_active_challenge")))
}

func TestVerify_WrongCodes_ThenLockedOut(t *testing.T) {
	e, p, _, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)

	for want := 2; want >= 0; want-- {
		res, err := e.Verify(ctx, phoneA, "000000")
		require.NoError(t, err)
		require.Equal(t, OutcomeInvalidRetry, res.Outcome)
		assert.Equal(t, want, res.Remaining)
	}

	res, err := e.Verify(ctx, phoneA, "000000")
	require.NoError(t, err)
	assert.Equal(t, OutcomeLockedOut, res.Outcome)

	got, err := repo.GetChallenge(ctx, db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeDenied, got.Status)
	assert.Equal(t, 4, got.InvalidAttempts)

	// the right code no longer helps
	res, err = e.Verify(ctx, phoneA, p.code(phoneA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveChallenge, res.Outcome)
	assert.Equal(t, 4, p.checks)
}

func TestVerify_Expired_SkipsProvider(t *testing.T) {
	e, p, clk, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)

	clk.Advance(5*time.Minute + time.Second)
	res, err := e.Verify(ctx, phoneA, p.code(phoneA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Zero(t, p.checks)

	got, err := repo.GetChallenge(ctx, db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeExpired, got.Status)
}

func TestVerify_ExactlyAtExpiry_StillValid(t *testing.T) {
	e, p, clk, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	_, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	res, err := e.Verify(ctx, phoneA, p.code(phoneA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, res.Outcome)
}

func TestVerify_LatestWins_SupersedesOlder(t *testing.T) {
	e, p, clk, db := newEngine(t)
	ctx := context.Background()
	a1 := seedApproval(t, db, phoneA)
	a2 := seedApproval(t, db, phoneA)

	old, err := e.IssueChallenge(ctx, a1, phoneA)
	require.NoError(t, err)
	clk.Advance(time.Second)
	latest, err := e.IssueChallenge(ctx, a2, phoneA)
	require.NoError(t, err)

	// issuing does not touch the older row
	got, err := repo.GetChallenge(ctx, db, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, got.Status)

	res, err := e.Verify(ctx, phoneA, p.code(phoneA))
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, latest.ID, res.Challenge.ID)
	assert.Equal(t, a2.ID, res.Approval.ID)

	got, err = repo.GetChallenge(ctx, db, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeExpired, got.Status)
}

func TestVerifyFor_LeavesOtherRequestsPending(t *testing.T) {
	e, p, clk, db := newEngine(t)
	ctx := context.Background()
	a1 := seedApproval(t, db, phoneA)
	a2 := seedApproval(t, db, phoneA)

	first, err := e.IssueChallenge(ctx, a1, phoneA)
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, err := e.IssueChallenge(ctx, a2, phoneA)
	require.NoError(t, err)

	res, err := e.VerifyFor(ctx, a1.ID, phoneA, p.code(phoneA))
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, first.ID, res.Challenge.ID)
	assert.Equal(t, a1.ID, res.Approval.ID)

	got, err := repo.GetChallenge(ctx, db, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, got.Status)

	// nothing left for a1
	res, err = e.VerifyFor(ctx, a1.ID, phoneA, p.code(phoneA))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveChallenge, res.Outcome)
}

func TestVerify_BlankCodeRejected(t *testing.T) {
	e, p, _, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)

	for _, code := range []string{"", "   "} {
		res, err := e.Verify(ctx, phoneA, code)
		require.ErrorIs(t, err, ErrInvalidRequest)
		assert.Nil(t, res)
	}
	assert.Zero(t, p.checks)

	got, err := repo.GetChallenge(ctx, db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, got.Status)
	assert.Zero(t, got.InvalidAttempts)
}

func TestVerify_PhoneNotApprover(t *testing.T) {
	e, p, _, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, "+15559990000")
	_, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)

	res, err := e.Verify(ctx, phoneA, p.code(phoneA))
	require.ErrorIs(t, err, ErrForbiddenApprover)
	assert.Nil(t, res)
	assert.Zero(t, p.checks)
}

func TestVerify_OwningApprovalMissing(t *testing.T) {
	e, _, clk, db := newEngine(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateChallenge(ctx, db, &domain.OtpChallenge{
		ApprovalID: "missing",
		Phone:      phoneA,
		CreatedAt:  clk.Now(),
		ExpiresAt:  clk.Now().Add(time.Minute),
	}))

	_, err := e.Verify(ctx, phoneA, "123456")
	require.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestVerify_ProviderCheckError(t *testing.T) {
	e, p, _, db := newEngine(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)
	c, err := e.IssueChallenge(ctx, a, phoneA)
	require.NoError(t, err)
	p.checkErr = errBoom

	_, err = e.Verify(ctx, phoneA, "123456")
	require.ErrorIs(t, err, ErrProvider)

	got, err := repo.GetChallenge(ctx, db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengePending, got.Status)
	assert.Zero(t, got.InvalidAttempts)
}

func TestSettle_MapsTransitionErrors(t *testing.T) {
	e := &OTPEngine{}

	res, err := e.settle(&VerifyResult{}, nil, errNotPending, OutcomeApproved)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActiveChallenge, res.Outcome)

	_, err = e.settle(&VerifyResult{}, nil, repo.ErrConflict, OutcomeApproved)
	require.ErrorIs(t, err, ErrConflict)

	_, err = e.settle(&VerifyResult{}, nil, errBoom, OutcomeApproved)
	require.ErrorIs(t, err, errBoom)
}
