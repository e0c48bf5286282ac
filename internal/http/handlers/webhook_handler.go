// Webhook HTTP handlers.
//
// This file exposes the endpoints Meta calls for the WhatsApp business number:
//   - GET  /webhook   (subscription handshake)
//   - POST /webhook   (inbound messages: codes and button clicks)
//
// Verification outcomes (wrong code, expired challenge, stale link...) are
// normal traffic and are acknowledged with 200 so Meta does not redeliver.
// Only processing failures answer 5xx.
package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-approval-gateway/internal/services"
	"github.com/tbourn/go-approval-gateway/internal/whatsapp"
)

// WebhookResponse lists the effect of every message in a delivery.
type WebhookResponse struct {
	Replies []services.Reply `json:"replies"`
}

// VerifyWebhook godoc
// @ID          verifyWebhook
// @Summary     Webhook subscription handshake
// @Description Echoes hub.challenge when hub.mode is "subscribe" and hub.verify_token matches.
// @Tags        Webhook
// @Produce     plain
//
// @Param       hub.mode          query  string  true  "Must be subscribe"
// @Param       hub.verify_token  query  string  true  "Configured verify token"
// @Param       hub.challenge     query  string  true  "Value to echo"
//
// @Success     200  {string} string "The challenge"
// @Failure     403  {object} handlers.ErrorResponse "Token mismatch"
// @Router      /webhook [get]
func (h *Handlers) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.opts.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.opts.VerifyToken)) != 1 {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive inbound WhatsApp messages
// @Description Applies every message in the delivery in order: text messages are treated as
// @Description one-time codes, quick-reply buttons as decisions or resend requests.
// @Tags        Webhook
// @Accept      json
// @Produce     json
//
// @Param       X-Hub-Signature-256  header  string  false "HMAC-SHA256 of the body with the app secret"
// @Param       body                 body    whatsapp.WebhookPayload  true  "Webhook delivery"
//
// @Success     200  {object} handlers.WebhookResponse
// @Failure     400  {object} handlers.ErrorResponse "Malformed payload"
// @Failure     401  {object} handlers.ErrorResponse "Bad signature"
// @Failure     500  {object} handlers.ErrorResponse "Processing failed; Meta retries"
// @Failure     502  {object} handlers.ErrorResponse "Provider error; Meta retries"
// @Router      /webhook [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	var p whatsapp.WebhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid webhook payload")
		return
	}

	replies, err := h.webhook.HandleWebhook(c.Request.Context(), &p)
	switch {
	case errors.Is(err, services.ErrInvalidPayload):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "webhook payload has no entries")
		return
	case errors.Is(err, services.ErrProvider):
		fail(c, http.StatusBadGateway, ErrCodeProvider, "upstream provider unavailable")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeWebhookFailed, err.Error())
		return
	}
	if replies == nil {
		replies = []services.Reply{}
	}
	ok(c, http.StatusOK, WebhookResponse{Replies: replies})
}
