package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskvoice/internal/domain"
	"taskvoice/internal/kv"
)

type sessionHandler struct {
	session Session
}

// Status handles GET /api/status
func (h *sessionHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Turns handles GET /api/turns
func (h *sessionHandler) Turns(w http.ResponseWriter, _ *http.Request) {
	turns := h.session.Turns()
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// Start handles POST /api/session/start
func (h *sessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// End handles POST /api/session/end
func (h *sessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.session.End(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *sessionHandler) Abort(w http.ResponseWriter, _ *http.Request) {
	if err := h.session.Abort(); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Edit handles POST /api/session/edit and returns the text to edit.
func (h *sessionHandler) Edit(w http.ResponseWriter, _ *http.Request) {
	text, err := h.session.EnterEdit()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (h *sessionHandler) Cancel(w http.ResponseWriter, _ *http.Request) {
	if err := h.session.Cancel(); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

type submitRequest struct {
	Text string `json:"text"`
}

// Submit handles POST /api/session/submit with the edited text.
func (h *sessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.session.SubmitEdit(req.Text); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

type threadHandler struct {
	conversations Conversations
}

// List handles GET /api/threads
func (h *threadHandler) List(w http.ResponseWriter, r *http.Request) {
	threads, err := h.conversations.List(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if threads == nil {
		threads = []domain.Thread{}
	}
	current, err := h.conversations.CurrentID(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threads": threads,
		"current": current,
	})
}

// New handles POST /api/threads. The thread itself is created lazily by the
// next recorded turn.
func (h *threadHandler) New(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.New(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *threadHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Clear(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/threads/{id}/select
func (h *threadHandler) Select(w http.ResponseWriter, r *http.Request) {
	thread, err := h.conversations.Select(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// Delete handles DELETE /api/threads/{id}
func (h *threadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.conversations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type usageHandler struct {
	usage Usage
}

// Get handles GET /api/usage. 204 means no telemetry has been seen yet.
func (h *usageHandler) Get(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := h.usage.Snapshot()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *usageHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.usage.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type prefsHandler struct {
	prefs          Preferences
	lockoutDefault bool
}

type lockoutPref struct {
	Enabled *bool `json:"enabled"`
}

// GetLockout handles GET /api/prefs/lockout
func (h *prefsHandler) GetLockout(w http.ResponseWriter, r *http.Request) {
	enabled, err := kv.LockoutEnabled(r.Context(), h.prefs, h.lockoutDefault)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

// SetLockout handles PUT /api/prefs/lockout. The change applies on restart.
func (h *prefsHandler) SetLockout(w http.ResponseWriter, r *http.Request) {
	var req lockoutPref
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := kv.SetLockoutEnabled(r.Context(), h.prefs, *req.Enabled); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}
