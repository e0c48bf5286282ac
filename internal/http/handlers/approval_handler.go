// Approval HTTP handlers.
//
// This file exposes REST endpoints for approval requests:
//   - POST /approvals                   (submit; issues one OTP challenge per approver)
//   - GET  /approvals                   (list, paginated, newest first)
//   - GET  /approvals/{id}              (fetch one, weak ETag from version)
//   - PUT  /approvals/{id}/comment      (overwrite the comment)
//   - GET  /approvals/{id}/challenges   (list challenges, ETag from challenge stats)
//   - POST /approvals/{id}/verify       (submit an approver's code)
//
// Handlers are transport-thin: they bind input, call application services,
// and translate results and outcome errors into HTTP responses.
//
// Idempotency:
// If the requester supplies an Idempotency-Key header and a previous
// submission with the same (requester, route, key) exists, the handler
// returns the recorded approval and sets `Idempotency-Replayed: true`
// instead of issuing new codes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-approval-gateway/internal/domain"
	"github.com/tbourn/go-approval-gateway/internal/http/middleware"
	"github.com/tbourn/go-approval-gateway/internal/repo"
	"github.com/tbourn/go-approval-gateway/internal/services"
	"github.com/tbourn/go-approval-gateway/internal/sysutil"
	"github.com/tbourn/go-approval-gateway/internal/utils"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

//
// Service contracts (context-aware)
//

// ApprovalService defines approval request operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ApprovalService interface {
	// Submit persists a request and issues a challenge per distinct approver.
	Submit(ctx context.Context, in services.SubmitInput) (*services.SubmitResult, error)
	// Get returns a request by id.
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	// AppendComment overwrites the comment of a request.
	AppendComment(ctx context.Context, id, text string) (*domain.ApprovalRequest, error)
	// ListPage returns a page of requests and the total count.
	ListPage(ctx context.Context, requester string, page, pageSize int) ([]domain.ApprovalRequest, int64, error)
	// ListChallengesPage returns a page of challenges for a request and the total count.
	ListChallengesPage(ctx context.Context, approvalID string, page, pageSize int) ([]domain.OtpChallenge, int64, error)
}

// WebhookRouter applies inbound approver replies.
type WebhookRouter interface {
	// HandleWebhook applies every message of a webhook delivery.
	HandleWebhook(ctx context.Context, p *whatsapp.WebhookPayload) ([]services.Reply, error)
	// VerifyCode checks a code submitted over HTTP for (approval, phone).
	VerifyCode(ctx context.Context, approvalID, phone, code string) (*services.Reply, error)
}

//
// Handler wiring
//

// Options carries handler settings that do not belong to a service.
type Options struct {
	// VerifyToken is the shared secret of the webhook subscription handshake.
	VerifyToken string
	// IdempotencyTTL is how long a submission key is remembered. Defaults to 24h.
	IdempotencyTTL time.Duration
}

// Handlers groups HTTP endpoints for approvals and the messaging webhook.
type Handlers struct {
	approvals ApprovalService
	webhook   WebhookRouter
	opts      Options
}

// New constructs and returns a Handlers instance bound to the given services.
func New(approvals ApprovalService, webhook WebhookRouter, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{approvals: approvals, webhook: webhook, opts: opts}
}

// db returns the GORM handle of the concrete approval service, or nil when
// the service is a test double. Conditional responses and idempotency are
// skipped without it.
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.approvals.(*services.ApprovalService); ok {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// SubmitApprovalRequest is the JSON payload for submitting an approval request.
type SubmitApprovalRequest struct {
	// ObjectType names the kind of business object, e.g. "invoice".
	ObjectType string `json:"object_type" binding:"required" example:"invoice"`
	// ObjectID identifies the object within its type.
	ObjectID string `json:"object_id" binding:"required" example:"INV-2024-0042"`
	// Origin names the submitting system; shown in the decision prompt header.
	Origin string `json:"origin" example:"erp"`
	// Payload is opaque JSON kept with the request.
	Payload json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
	// Metadata is opaque JSON kept with the request.
	Metadata json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
	// Approvers are E.164 phone numbers allowed to decide.
	Approvers []string `json:"approvers" binding:"required,min=1" example:"+15551230001"`
	// Comment is free text shown with the request.
	Comment string `json:"comment" example:"Q3 supplier invoice"`
	// CallbackURL receives the decision once an approver applies one.
	CallbackURL string `json:"callback_url" example:"https://erp.example.com/hooks/approvals"`
}

// IssuedChallenge is one code sent on submission.
type IssuedChallenge struct {
	ChallengeID string    `json:"challenge_id"`
	Phone       string    `json:"phone" example:"+*******0001"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FailedIssue is an approver whose code could not be sent.
type FailedIssue struct {
	Phone string `json:"phone" example:"+*******0002"`
	Error string `json:"error"`
}

// SubmitApprovalResponse is returned for a created (or replayed) request.
type SubmitApprovalResponse struct {
	ID       string            `json:"id" example:"6f1c1c8e-9a53-4b53-9d1e-2f0c1f5d1a10"`
	Decision domain.Decision   `json:"decision" example:"PENDING"`
	Issued   []IssuedChallenge `json:"issued,omitempty"`
	Failed   []FailedIssue     `json:"failed,omitempty"`
}

// UpdateCommentRequest is the JSON payload for replacing a request comment.
type UpdateCommentRequest struct {
	Comment string `json:"comment" binding:"max=2000" example:"Approved by phone, see ticket 1182"`
}

// VerifyCodeRequest is the JSON payload for submitting a code over HTTP.
type VerifyCodeRequest struct {
	Phone string `json:"phone" binding:"required" example:"+15551230001"`
	Code  string `json:"code" binding:"required" example:"123456"`
}

// VerifyCodeResponse reports a verification outcome.
type VerifyCodeResponse struct {
	Status     services.ReplyStatus `json:"status" example:"verified"`
	ApprovalID string               `json:"approval_id,omitempty"`
	Remaining  *int                 `json:"remaining_attempts,omitempty"`
	MessageID  string               `json:"message_id,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListApprovalsResponse wraps a page of requests and pagination information.
type ListApprovalsResponse struct {
	Approvals  []domain.ApprovalRequest `json:"approvals"`
	Pagination Pagination               `json:"pagination"`
}

// ListChallengesResponse wraps a page of challenges and pagination information.
type ListChallengesResponse struct {
	Challenges []domain.OtpChallenge `json:"challenges"`
	Pagination Pagination            `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	w := utils.ParseWindow(c.Query("page"), c.Query("page_size"))
	return w.Page, w.Size
}

func newPagination(page, pageSize int, total int64) Pagination {
	w := utils.Window{Page: page, Size: pageSize}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: w.Pages(total),
		HasNext:    w.HasNext(total),
	}
}

// notModified sets etag and reports whether If-None-Match already matches,
// in which case a 304 has been written.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func toSubmitResponse(res *services.SubmitResult) SubmitApprovalResponse {
	out := SubmitApprovalResponse{ID: res.Approval.ID, Decision: res.Approval.Decision}
	for _, ch := range res.Issued {
		out.Issued = append(out.Issued, IssuedChallenge{
			ChallengeID: ch.ID,
			Phone:       sysutil.MaskPhone(ch.Phone),
			ExpiresAt:   ch.ExpiresAt,
		})
	}
	for _, f := range res.Failed {
		msg := "issue failed"
		if errors.Is(f.Err, services.ErrProvider) {
			msg = "provider rejected the phone number"
		}
		out.Failed = append(out.Failed, FailedIssue{Phone: sysutil.MaskPhone(f.Phone), Error: msg})
	}
	return out
}

//
// Handlers
//

// SubmitApproval godoc
// @ID          submitApproval
// @Summary     Submit an approval request
// @Description Persists the request and sends a one-time code to every distinct approver.
// @Description Approvers whose code could not be sent are listed under `failed`.
// @Description Supports idempotency via the Idempotency-Key header (same key → same request, no new codes).
// @Tags        Approvals
// @Accept      json
// @Produce     json
//
// @Param       X-Requester-ID   header  string  false "Calling system"  example(erp)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SubmitApprovalRequest  true  "Approval request"
//
// @Success     201  {object}  handlers.SubmitApprovalResponse  "Created"
// @Success     200  {object}  handlers.SubmitApprovalResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse           "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse           "Internal error"
// @Router      /approvals [post]
func (h *Handlers) SubmitApproval(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "object_type, object_id and approvers are required")
		return
	}

	requester := middleware.Requester(c)
	scope := middleware.IdempotencyScope(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	db := h.db()

	// Idempotency (replay path).
	if idemKey != "" && db != nil {
		if rec, err := repo.GetIdempotency(ctx, db, requester, scope, idemKey, time.Now().UTC()); err == nil {
			if prev, err := h.approvals.Get(ctx, rec.ResourceID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, SubmitApprovalResponse{ID: prev.ID, Decision: prev.Decision})
				return
			}
		}
	}

	res, err := h.approvals.Submit(ctx, services.SubmitInput{
		ObjectType:  req.ObjectType,
		ObjectID:    req.ObjectID,
		Origin:      strings.TrimSpace(req.Origin),
		Payload:     string(req.Payload),
		Metadata:    string(req.Metadata),
		Requester:   requester,
		Approvers:   req.Approvers,
		Comment:     req.Comment,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
	})
	if err != nil {
		failService(c, err, ErrCodeSubmitFailed)
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && db != nil {
		if _, err := repo.CreateIdempotency(ctx, db, requester, scope, idemKey, res.Approval.ID, http.StatusCreated, h.opts.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Str("approval_id", res.Approval.ID).Msg("idempotency record not stored")
		}
	}

	c.Header("Location", c.FullPath()+"/"+res.Approval.ID)
	ok(c, http.StatusCreated, toSubmitResponse(res))
}

// ListApprovals godoc
// @ID          listApprovals
// @Summary     List approval requests (paginated)
// @Description Returns a page of requests, newest first, optionally filtered by requester.
// @Tags        Approvals
// @Produce     json
//
// @Param       requester  query  string  false "Only requests from this requester"  example(erp)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListApprovalsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /approvals [get]
func (h *Handlers) ListApprovals(c *gin.Context) {
	page, pageSize := clampPagination(c)
	requester := strings.TrimSpace(c.Query("requester"))

	items, total, err := h.approvals.ListPage(c.Request.Context(), requester, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListApprovalsResponse{
		Approvals:  items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetApproval godoc
// @ID          getApproval
// @Summary     Get an approval request
// @Description Returns one request. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Approvals
// @Produce     json
//
// @Param       id             path    string  true  "Approval ID (UUID)"           format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"approval:abc:3\")
//
// @Success     200  {object} domain.ApprovalRequest
// @Header      200  {string} ETag "Weak ETag for current version"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Approval not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /approvals/{id} [get]
func (h *Handlers) GetApproval(c *gin.Context) {
	a, err := h.approvals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	if notModified(c, fmt.Sprintf(`W/"approval:%s:%d"`, a.ID, a.Version)) {
		return
	}
	ok(c, http.StatusOK, a)
}

// UpdateComment godoc
// @ID          updateApprovalComment
// @Summary     Replace the comment of an approval request
// @Tags        Approvals
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Approval ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateCommentRequest  true  "New comment"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Approval not found"
// @Failure     409  {object} handlers.ErrorResponse "Concurrent update"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /approvals/{id}/comment [put]
func (h *Handlers) UpdateComment(c *gin.Context) {
	var req UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "comment must be at most 2000 characters")
		return
	}
	if _, err := h.approvals.AppendComment(c.Request.Context(), c.Param("id"), req.Comment); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// ListChallenges godoc
// @ID          listApprovalChallenges
// @Summary     List OTP challenges of an approval request
// @Description Returns a page of challenges, oldest first. Supports weak ETag via If-None-Match.
// @Tags        Approvals
// @Produce     json
//
// @Param       id             path    string  true  "Approval ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChallengesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Approval not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /approvals/{id}/challenges [get]
func (h *Handlers) ListChallenges(c *gin.Context) {
	ctx := c.Request.Context()
	approvalID := c.Param("id")

	// ETag pre-check (best effort).
	if db := h.db(); db != nil {
		count, maxTS, err := repo.ChallengeStats(ctx, db, approvalID)
		if err == nil && count > 0 {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			if notModified(c, fmt.Sprintf(`W/"challenges:%s:%d:%d"`, approvalID, count, ts)) {
				return
			}
		}
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.approvals.ListChallengesPage(ctx, approvalID, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListChallengesResponse{
		Challenges: items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// VerifyCode godoc
// @ID          verifyApprovalCode
// @Summary     Submit an approver's one-time code
// @Description Checks the code against the approver's latest pending challenge. On success the
// @Description decision prompt is sent to the approver over WhatsApp.
// @Tags        Approvals
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Approval ID (UUID)"  format(uuid)
// @Param       body  body  handlers.VerifyCodeRequest  true  "Phone and code"
//
// @Success     200  {object} handlers.VerifyCodeResponse "Verified"
// @Failure     400  {object} handlers.ErrorResponse "Not an approver, no active challenge or wrong code"
// @Failure     403  {object} handlers.ErrorResponse "Too many invalid attempts"
// @Failure     404  {object} handlers.ErrorResponse "Approval not found"
// @Failure     409  {object} handlers.ErrorResponse "Concurrent update"
// @Failure     410  {object} handlers.ErrorResponse "Challenge expired"
// @Failure     502  {object} handlers.ErrorResponse "Provider error"
// @Router      /approvals/{id}/verify [post]
func (h *Handlers) VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone and code are required")
		return
	}

	rep, err := h.webhook.VerifyCode(c.Request.Context(), c.Param("id"), req.Phone, req.Code)
	if errors.Is(err, services.ErrInvalidCode) && rep != nil {
		failDetails(c, http.StatusBadRequest, ErrCodeInvalidCode, "invalid code",
			map[string]any{"remaining_attempts": rep.Remaining})
		return
	}
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, VerifyCodeResponse{
		Status:     rep.Status,
		ApprovalID: rep.ApprovalID,
		Remaining:  rep.Remaining,
		MessageID:  rep.MessageID,
	})
}
