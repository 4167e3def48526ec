package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/ricirt/missedmail/internal/api/middleware"
	"github.com/ricirt/missedmail/internal/service"
)

// ReplyAddressHandler is called by the inbound email gateway to find out
// where a reply to a digest should be posted.
type ReplyAddressHandler struct {
	svc    *service.MissedMessageService
	logger *zap.Logger
}

func NewReplyAddressHandler(svc *service.MissedMessageService, logger *zap.Logger) *ReplyAddressHandler {
	return &ReplyAddressHandler{svc: svc, logger: logger}
}

// Redeem handles POST /api/v1/reply-addresses/{token}/redeem
//
// The token may be bare, carry the "mm" prefix, or be the full address.
// A token can be redeemed once.
//
// @Summary     Resolve a reply address to its conversation
// @Tags        reply-addresses
// @Produce     json
// @Param       token  path      string  true  "Reply token or address"
// @Success     200    {object}  replyaddress.Target
// @Failure     404    {object}  map[string]string
// @Router      /api/v1/reply-addresses/{token}/redeem [post]
func (h *ReplyAddressHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	target, err := h.svc.RedeemReplyAddress(r.Context(), token)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Info("reply address rejected", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, target)
}
