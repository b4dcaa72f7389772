package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/session"
)

type sessionHandler struct {
	store  *session.Store
	logger log.Logger
}

// turnDTO is the wire shape of one conversation turn.
type turnDTO struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// list handles GET /api/sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	ids := h.store.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids}, h.logger)
}

// history handles GET /api/sessions/{id}/history.
func (h *sessionHandler) history(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns := h.store.Snapshot(id)
	if turns == nil {
		writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
		return
	}

	out := make([]turnDTO, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnDTO{Role: string(t.Role), Content: t.Content, Timestamp: t.Timestamp})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "turns": out}, h.logger)
}

// clear handles DELETE /api/sessions/{id}.
func (h *sessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Clear(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("failed to clear session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear session", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
