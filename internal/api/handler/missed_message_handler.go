package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/ricirt/missedmail/internal/api/middleware"
	"github.com/ricirt/missedmail/internal/service"
)

// MissedMessageHandler accepts missed-message events from the chat server.
type MissedMessageHandler struct {
	svc    *service.MissedMessageService
	logger *zap.Logger
}

func NewMissedMessageHandler(svc *service.MissedMessageService, logger *zap.Logger) *MissedMessageHandler {
	return &MissedMessageHandler{svc: svc, logger: logger}
}

type enqueueResponse struct {
	Queued int `json:"queued"`
}

// Enqueue handles POST /api/v1/missed-messages
//
// @Summary     Queue missed messages for the next digest
// @Tags        missed-messages
// @Accept      json
// @Produce     json
// @Param       body  body      domain.NotificationRequest  true  "User and message ids"
// @Success     202   {object}  enqueueResponse
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/missed-messages [post]
func (h *MissedMessageHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("enqueue missed messages failed",
			zap.Int64("user_id", req.UserID), zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, enqueueResponse{Queued: n})
}
