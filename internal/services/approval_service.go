// Package services – ApprovalService
//
// ApprovalService is the approval request store plus the submission flow:
// it validates and persists a request, then fans out one OTP challenge per
// distinct approver. Decision and comment updates use optimistic versioning
// with a single retry.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/observability"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/sysutil"
	"github.com/tbourn/go-approval-gateway/internal/utils"
)

// ChallengeIssuer issues an OTP challenge to one approver.
type ChallengeIssuer interface {
	IssueChallenge(ctx context.Context, a *domain.ApprovalRequest, phone string) (*domain.OtpChallenge, error)
}

// OtpNotifier announces an incoming code to an approver.
type OtpNotifier interface {
	SendOtpNotice(ctx context.Context, a *domain.ApprovalRequest, phone string) error
}

// SubmitInput is a new approval request as received from a requester.
type SubmitInput struct {
	ObjectType  string   `validate:"required,max=128"`
	ObjectID    string   `validate:"required,max=128"`
	Origin      string   `validate:"max=128"`
	Payload     string   `validate:"omitempty,json"`
	Metadata    string   `validate:"omitempty,json"`
	Requester   string   `validate:"required,max=128"`
	Approvers   []string `validate:"required,min=1,dive,required,e164"`
	Comment     string
	CallbackURL string `validate:"omitempty,url,max=512"`
}

// IssueFailure records an approver whose challenge could not be issued.
type IssueFailure struct {
	Phone string
	Err   error
}

// SubmitResult is the persisted request plus the issuance outcome per approver.
type SubmitResult struct {
	Approval *domain.ApprovalRequest
	Issued   []*domain.OtpChallenge
	Failed   []IssueFailure
}

// ApprovalService provides approval request operations.
type ApprovalService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Engine issues challenges on submission. Nil disables issuance.
	Engine ChallengeIssuer
	// Notifier sends the code announcement before each issuance. Optional.
	Notifier OtpNotifier
	// Parallelism bounds concurrent issuances per submission.
	Parallelism int
}

// NewApprovalService constructs an ApprovalService.
func NewApprovalService(db *gorm.DB, engine ChallengeIssuer, notifier OtpNotifier, parallelism int) *ApprovalService {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &ApprovalService{DB: db, Engine: engine, Notifier: notifier, Parallelism: parallelism}
}

var validate = validator.New()

// validateInput checks in and flattens validator errors into one message.
func validateInput(in SubmitInput) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Create validates in and persists it as a PENDING request. Approvers keep
// their order; duplicates are stored as given.
func (s *ApprovalService) Create(ctx context.Context, in SubmitInput) (*domain.ApprovalRequest, error) {
	in.ObjectType = strings.TrimSpace(in.ObjectType)
	in.ObjectID = strings.TrimSpace(in.ObjectID)
	in.Requester = strings.TrimSpace(in.Requester)
	for i, p := range in.Approvers {
		in.Approvers[i] = strings.TrimSpace(p)
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	a := &domain.ApprovalRequest{
		ObjectType:  in.ObjectType,
		ObjectID:    in.ObjectID,
		Origin:      in.Origin,
		Payload:     in.Payload,
		Metadata:    in.Metadata,
		Requester:   in.Requester,
		Approvers:   domain.PhoneList(in.Approvers),
		Comment:     in.Comment,
		CallbackURL: in.CallbackURL,
		Decision:    domain.DecisionPending,
	}
	if err := repo.CreateApproval(ctx, s.DB, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Submit creates the request and issues one challenge per distinct approver,
// concurrently. Individual issuance failures are reported in the result and
// do not fail the submission.
func (s *ApprovalService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ctx, span := otel.Tracer("services/ApprovalService").Start(ctx, "Submit",
		trace.WithAttributes(attribute.Int("approvers", len(in.Approvers))),
	)
	defer span.End()

	a, err := s.Create(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res := &SubmitResult{Approval: a}
	if s.Engine == nil {
		return res, nil
	}

	phones := a.Approvers.Unique()
	issued := make([]*domain.OtpChallenge, len(phones))
	var (
		mu     sync.Mutex
		failed []IssueFailure
	)

	var g errgroup.Group
	g.SetLimit(s.Parallelism)
	for i, phone := range phones {
		g.Go(func() error {
			if s.Notifier != nil {
				if err := s.Notifier.SendOtpNotice(ctx, a, phone); err != nil {
					log.Ctx(ctx).Warn().Err(err).Str("approval_id", a.ID).Str("phone", sysutil.MaskPhone(phone)).Msg("otp notice not sent")
				}
			}
			c, err := s.Engine.IssueChallenge(ctx, a, phone)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Str("approval_id", a.ID).Str("phone", sysutil.MaskPhone(phone)).Msg("issue challenge")
				mu.Lock()
				failed = append(failed, IssueFailure{Phone: phone, Err: err})
				mu.Unlock()
				return nil
			}
			issued[i] = c
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range issued {
		if c != nil {
			res.Issued = append(res.Issued, c)
		}
	}
	res.Failed = failed
	span.SetAttributes(attribute.Int("issued", len(res.Issued)), attribute.Int("failed", len(failed)))
	return res, nil
}

// Get returns the request with id, or ErrApprovalNotFound.
func (s *ApprovalService) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	a, err := repo.GetApproval(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrApprovalNotFound
	}
	return a, err
}

// UpdateDecision records d on request id, regardless of the current decision.
// An unknown id is a silent no-op and returns (nil, nil).
func (s *ApprovalService) UpdateDecision(ctx context.Context, id string, d domain.Decision) (*domain.ApprovalRequest, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidRequest, d)
	}
	a, err := s.update(ctx, id, func(a *domain.ApprovalRequest) { a.Decision = d })
	if errors.Is(err, repo.ErrNotFound) {
		log.Ctx(ctx).Info().Str("approval_id", id).Msg("decision for unknown approval ignored")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	observability.Decisions.WithLabelValues(string(d)).Inc()
	return a, nil
}

// AppendComment overwrites the comment on request id.
func (s *ApprovalService) AppendComment(ctx context.Context, id, text string) (*domain.ApprovalRequest, error) {
	a, err := s.update(ctx, id, func(a *domain.ApprovalRequest) { a.Comment = text })
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrApprovalNotFound
	}
	return a, err
}

func (s *ApprovalService) update(ctx context.Context, id string, mutate func(*domain.ApprovalRequest)) (*domain.ApprovalRequest, error) {
	a, err := repo.CompareAndSwap(ctx, 1,
		func(ctx context.Context) (*domain.ApprovalRequest, error) { return repo.GetApproval(ctx, s.DB, id) },
		func(a *domain.ApprovalRequest) error { mutate(a); return nil },
		func(ctx context.Context, a *domain.ApprovalRequest) error {
			return repo.SaveApprovalVersioned(ctx, s.DB, a)
		},
	)
	if errors.Is(err, repo.ErrConflict) {
		return nil, ErrConflict
	}
	return a, err
}

// ListPage returns a page of requests, newest first, and the total count.
// An empty requester lists all.
func (s *ApprovalService) ListPage(ctx context.Context, requester string, page, pageSize int) ([]domain.ApprovalRequest, int64, error) {
	w := utils.NewWindow(page, pageSize)
	total, err := repo.CountApprovals(ctx, s.DB, requester)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ApprovalRequest{}, 0, nil
	}
	items, err := repo.ListApprovalsPage(ctx, s.DB, requester, w.Offset(), w.Size)
	return items, total, err
}

// ListChallengesPage returns a page of challenges for approvalID, oldest
// first, and the total count. ErrApprovalNotFound if the request is unknown.
func (s *ApprovalService) ListChallengesPage(ctx context.Context, approvalID string, page, pageSize int) ([]domain.OtpChallenge, int64, error) {
	if _, err := s.Get(ctx, approvalID); err != nil {
		return nil, 0, err
	}
	w := utils.NewWindow(page, pageSize)
	total, err := repo.CountChallenges(ctx, s.DB, approvalID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.OtpChallenge{}, 0, nil
	}
	items, err := repo.ListChallengesPage(ctx, s.DB, approvalID, w.Offset(), w.Size)
	return items, total, err
}
