package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beeftrace/internal/domain"
	"beeftrace/internal/ledger"
	"beeftrace/internal/lifecycle"
	"beeftrace/pkg/platform/sentinel"
)

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		writeJSON(w, http.StatusUnauthorized, response{Error: "missing " + actorHeader + " header"})
		return "", false
	}
	return actor, true
}

func (h *Handler) entityID(w http.ResponseWriter, r *http.Request, param string) (domain.EntityID, bool) {
	id, err := domain.ParseEntityID(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid " + param + ": " + err.Error()})
		return 0, false
	}
	return id, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role, actor string) bool {
	ok, err := h.roles.HasRole(r.Context(), role, actor)
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, response{Error: "actor lacks role " + role})
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func (h *Handler) writeStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, response{Success: status < http.StatusBadRequest, Data: data})
}

// writeError maps service errors onto HTTP statuses. Ledger rejections and
// local pre-flight failures both surface as 422 so callers see one contract
// regardless of which layer refused the transition.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorPayload(w, r, err, nil)
}

func (h *Handler) writeErrorPayload(w http.ResponseWriter, r *http.Request, err error, data any) {
	status := http.StatusInternalServerError
	var verr *lifecycle.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, ledger.ErrRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, sentinel.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sentinel.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrUnreachable):
		status = http.StatusBadGateway
	case errors.Is(err, sentinel.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, response{Error: err.Error(), Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already written; an encode failure here has
	// nowhere to go.
	_ = json.NewEncoder(w).Encode(body)
}
