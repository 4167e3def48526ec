package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ricirt/missedmail/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrReplyTokenExpired):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrNoMessages),
		errors.Is(err, domain.ErrTooManyMessages),
		errors.Is(err, domain.ErrInvalidMessageID):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeRequest(r *http.Request) (domain.NotificationRequest, error) {
	var req domain.NotificationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	return req, err
}
