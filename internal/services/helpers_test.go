package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-approval-gateway/internal/config"
	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeProvider behaves like Verify: a new code replaces the previous one.
type fakeProvider struct {
	mu       sync.Mutex
	codes    map[string]string
	seq      int
	sendErr  map[string]error
	checkErr error
	sends    int
	checks   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{codes: map[string]string{}, sendErr: map[string]error{}}
}

func (p *fakeProvider) SendCode(_ context.Context, phone string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sendErr[phone]; err != nil {
		return "", err
	}
	p.seq++
	p.sends++
	p.codes[phone] = fmt.Sprintf("%06d", p.seq)
	return fmt.Sprintf("VE%04d", p.seq), nil
}

func (p *fakeProvider) CheckCode(_ context.Context, phone, code, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	if p.checkErr != nil {
		return false, p.checkErr
	}
	return p.codes[phone] == code, nil
}

func (p *fakeProvider) code(phone string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codes[phone]
}

type sentMessage struct {
	To         string
	Template   string
	Components []whatsapp.Component
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	seq     int
	failOn  map[string]error
	noMsgID bool
}

func newFakeSender() *fakeSender { return &fakeSender{failOn: map[string]error{}} }

func (s *fakeSender) SendTemplate(_ context.Context, to, name string, comps []whatsapp.Component) (*whatsapp.SendResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[name]; err != nil {
		return nil, err
	}
	s.sent = append(s.sent, sentMessage{To: to, Template: name, Components: comps})
	resp := &whatsapp.SendResponse{MessagingProduct: "whatsapp"}
	if !s.noMsgID {
		s.seq++
		resp.Messages = append(resp.Messages, struct {
			ID string `json:"id"`
		}{ID: fmt.Sprintf("wamid.%d", s.seq)})
	}
	return resp, nil
}

func (s *fakeSender) byTemplate(name string) []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMessage
	for _, m := range s.sent {
		if m.Template == name {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var testTemplates = config.WhatsAppTemplates{
	Approval: "generic_approval",
	OTP:      "envoieotp",
	Resend:   "renvoieotp",
	Retry:    "retry",
}

var errBoom = errors.New("boom")

func seedApproval(t *testing.T, db *gorm.DB, approvers ...string) *domain.ApprovalRequest {
	t.Helper()
	a := &domain.ApprovalRequest{
		ObjectType: "invoice",
		ObjectID:   "INV-42",
		Origin:     "erp",
		Requester:  "alice",
		Approvers:  domain.PhoneList(approvers),
	}
	require.NoError(t, repo.CreateApproval(context.Background(), db, a))
	return a
}
