package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/ricirt/missedmail/internal/api/middleware"
	"github.com/ricirt/missedmail/internal/service"
)

// DigestHandler sends a digest immediately, bypassing the batch window.
// Operators use it to check what a user would receive.
type DigestHandler struct {
	svc    *service.MissedMessageService
	logger *zap.Logger
}

func NewDigestHandler(svc *service.MissedMessageService, logger *zap.Logger) *DigestHandler {
	return &DigestHandler{svc: svc, logger: logger}
}

type digestResponse struct {
	Sent     bool    `json:"sent"`
	Subject  string  `json:"subject,omitempty"`
	From     string  `json:"from,omitempty"`
	ReplyTo  string  `json:"reply_to,omitempty"`
	Messages []int64 `json:"message_ids,omitempty"`
}

// Send handles POST /api/v1/digests
//
// @Summary     Send a missed-message digest now
// @Tags        digests
// @Accept      json
// @Produce     json
// @Param       body  body      domain.NotificationRequest  true  "User and message ids"
// @Success     200   {object}  digestResponse
// @Failure     404   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/digests [post]
func (h *DigestHandler) Send(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email, err := h.svc.SendNow(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("send digest failed",
			zap.Int64("user_id", req.UserID), zap.Error(err))
		mapError(w, err)
		return
	}
	if email == nil {
		respondJSON(w, http.StatusOK, digestResponse{Sent: false})
		return
	}
	respondJSON(w, http.StatusOK, digestResponse{
		Sent:     true,
		Subject:  email.Subject,
		From:     email.From,
		ReplyTo:  email.ReplyTo,
		Messages: email.MessageIDs,
	})
}
