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

func newDispatcher(t *testing.T) (*Dispatcher, *fakeSender, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	s := newFakeSender()
	d := NewDispatcher(s, &repo.CorrelationTable{DB: db, TTL: time.Hour}, &repo.ResendTable{DB: db}, testTemplates, 0)
	return d, s, db
}

func TestSendDecisionPrompt_RecordsCorrelation(t *testing.T) {
	d, s, db := newDispatcher(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)

	id, err := d.SendDecisionPrompt(ctx, a, phoneA)
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)

	got, err := d.Correlations.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got)

	msgs := s.byTemplate("generic_approval")
	require.Len(t, msgs, 1)
	assert.Equal(t, phoneA, msgs[0].To)
	comps := msgs[0].Components
	require.Len(t, comps, 5)
	assert.Equal(t, "erp", comps[0].Parameters[0].Text)
	assert.Equal(t, []string{"invoice", "INV-42", "alice"}, []string{
		comps[1].Parameters[0].Text, comps[1].Parameters[1].Text, comps[1].Parameters[2].Text,
	})
	assert.Equal(t, "APPROVE_"+a.ID, comps[2].Parameters[0].Payload)
	assert.Equal(t, "REJECT_"+a.ID, comps[3].Parameters[0].Payload)
	assert.Equal(t, "DEFER_"+a.ID, comps[4].Parameters[0].Payload)
	assert.Equal(t, "2", comps[4].Index)
}

func TestSendDecisionPrompt_NoMessageID(t *testing.T) {
	d, s, db := newDispatcher(t)
	s.noMsgID = true
	a := seedApproval(t, db, phoneA)

	id, err := d.SendDecisionPrompt(context.Background(), a, phoneA)
	require.NoError(t, err)
	assert.Empty(t, id)

	var n int64
	require.NoError(t, db.Model(&domain.MessageCorrelation{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSendDecisionPrompt_SendError(t *testing.T) {
	d, s, db := newDispatcher(t)
	s.failOn["generic_approval"] = errBoom
	a := seedApproval(t, db, phoneA)
	before := testutil.ToFloat64(observability.Dispatches.WithLabelValues("generic_approval", "error"))

	_, err := d.SendDecisionPrompt(context.Background(), a, phoneA)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.Dispatches.WithLabelValues("generic_approval", "error")))
}

func TestSendResendPrompt_StoresLink(t *testing.T) {
	d, s, db := newDispatcher(t)
	clk := newClock()
	d.Now = clk.Now
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)

	link, err := d.SendResendPrompt(ctx, a, phoneA)
	require.NoError(t, err)
	assert.Equal(t, a.ID, link.ApprovalID)
	assert.Equal(t, phoneA, link.Phone)
	assert.True(t, link.ExpiresAt.Equal(clk.Now().Add(5*time.Minute)))

	stored, err := d.Links.Get(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, link.ApprovalID, stored.ApprovalID)

	msgs := s.byTemplate("renvoieotp")
	require.Len(t, msgs, 1)
	assert.Equal(t, ResendPayloadPrefix+link.Token, msgs[0].Components[0].Parameters[0].Payload)
}

func TestSendResendPrompt_SendErrorDropsLink(t *testing.T) {
	d, s, db := newDispatcher(t)
	s.failOn["renvoieotp"] = errBoom
	a := seedApproval(t, db, phoneA)

	_, err := d.SendResendPrompt(context.Background(), a, phoneA)
	require.ErrorIs(t, err, errBoom)

	var n int64
	require.NoError(t, db.Model(&domain.ResendLink{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSendOtpNoticeAndTryAgain(t *testing.T) {
	d, s, db := newDispatcher(t)
	ctx := context.Background()
	a := seedApproval(t, db, phoneA)

	require.NoError(t, d.SendOtpNotice(ctx, a, phoneA))
	require.NoError(t, d.SendTryAgain(ctx, phoneA))
	assert.Len(t, s.byTemplate("envoieotp"), 1)
	assert.Len(t, s.byTemplate("retry"), 1)
}
