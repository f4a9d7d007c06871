package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nota/internal/session"
)

// SessionHandler exposes editing sessions over HTTP.
type SessionHandler struct {
	reg *session.Registry
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(reg *session.Registry) *SessionHandler {
	return &SessionHandler{reg: reg}
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (string, *session.Controller, bool) {
	id := chi.URLParam(r, "id")
	ctrl, err := h.reg.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return "", nil, false
	}
	return id, ctrl, true
}

func (h *SessionHandler) writeState(w http.ResponseWriter, id string, ctrl *session.Controller) {
	writeJSON(w, http.StatusOK, SessionResponse{ID: id, State: ctrl.State()})
}

// Create handles POST /api/sessions.
//
//	@Summary		Start an editing session, empty or on an existing note
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	false	"Note to open"
//	@Success		201		{object}	SessionResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, ctrl, err := h.reg.Create(r.Context(), req.NoteID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: id, State: ctrl.State()})
}

// Get handles GET /api/sessions/{id}.
//
//	@Summary		Get session state
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeState(w, id, ctrl)
}

// Close handles DELETE /api/sessions/{id}.
//
//	@Summary		Close a session, cancelling its running operations
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Session closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditDraft handles PATCH /api/sessions/{id}/draft.
//
//	@Summary		Edit the draft title, body or raw tags
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		session.Patch	true	"Fields to change"
//	@Success		200		{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/draft [patch]
func (h *SessionHandler) EditDraft(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var p session.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	ctrl.Edit(p)
	h.writeState(w, id, ctrl)
}

// SelectView handles PUT /api/sessions/{id}/view.
//
//	@Summary		Switch between editor, preview and summary
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session id"
//	@Param			body	body		ViewRequest	true	"Target view"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/view [put]
func (h *SessionHandler) SelectView(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req ViewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := ctrl.SelectView(req.View); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeState(w, id, ctrl)
}

// Save handles POST /api/sessions/{id}/save.
//
//	@Summary		Validate and persist the draft
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SaveResponse
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/save [post]
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	n, err := ctrl.Save(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Note: *n, State: ctrl.State()})
}

// Summarize handles POST /api/sessions/{id}/summarize.
//
//	@Summary		Summarize the draft body
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SummaryResponse
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/summarize [post]
func (h *SessionHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	text, err := ctrl.Summarize(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st := ctrl.State()
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: text, State: &st})
}

// CancelSummarize handles DELETE /api/sessions/{id}/summarize.
//
//	@Summary		Cancel a running summarize
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	CancelResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/summarize [delete]
func (h *SessionHandler) CancelSummarize(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Canceled: ctrl.CancelSummarize()})
}

// Enhance handles POST /api/sessions/{id}/enhance. Clients accepting
// text/event-stream receive "fragment" events followed by "done"; others get
// the finished text as JSON.
//
//	@Summary		Rewrite the draft body, streaming fragments
//	@Tags			sessions
//	@Accept			json
//	@Produce		json,text/event-stream
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		EnhanceRequest	false	"Instructions"
//	@Success		200		{object}	EnhanceResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/enhance [post]
func (h *SessionHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req EnhanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if !wantsEventStream(r) {
		text, err := ctrl.Enhance(r.Context(), req.Instructions)
		if err != nil {
			writeError(w, r, err)
			return
		}
		st := ctrl.State()
		writeJSON(w, http.StatusOK, EnhanceResponse{Enhanced: text, State: &st})
		return
	}

	es := &eventStream{w: w}
	text, err := ctrl.EnhanceStream(r.Context(), req.Instructions, es.fragment)
	es.finish(r, EnhanceResponse{Enhanced: text}, err)
}

// CancelEnhance handles DELETE /api/sessions/{id}/enhance.
//
//	@Summary		Cancel a running enhance
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	CancelResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/enhance [delete]
func (h *SessionHandler) CancelEnhance(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Canceled: ctrl.CancelEnhance()})
}

// ApplyEnhancement handles POST /api/sessions/{id}/enhance/apply.
//
//	@Summary		Replace the draft body with the pending enhancement
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/enhance/apply [post]
func (h *SessionHandler) ApplyEnhancement(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := ctrl.ApplyEnhancement(); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeState(w, id, ctrl)
}

// DiscardEnhancement handles POST /api/sessions/{id}/enhance/discard.
//
//	@Summary		Drop the pending enhancement
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/enhance/discard [post]
func (h *SessionHandler) DiscardEnhancement(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	ctrl.DiscardEnhancement()
	h.writeState(w, id, ctrl)
}
