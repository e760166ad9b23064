package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-inventory/internal/auth"
	"github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/session"
	"github.com/pesio-ai/be-inventory/internal/workflow"
)

// SessionStore holds the live dialog sessions
type SessionStore interface {
	Create(flow string) (*workflow.Session, error)
	Get(id string) (*workflow.Session, bool)
	Touch(s *workflow.Session)
	Delete(id string) bool
}

// Dialog-specific error codes
const (
	codeDialogBusy    = "DIALOG_BUSY"
	codeDialogClosed  = "DIALOG_CLOSED"
	codeInvalidStep   = "INVALID_STEP"
	codeScopeRequired = "SCOPE_REQUIRED"
)

// DialogHandler drives dialog sessions over HTTP. Every response carries the
// session's full view.
type DialogHandler struct {
	store SessionStore
	log   zerolog.Logger
}

// NewDialogHandler creates a dialog handler
func NewDialogHandler(store SessionStore, log zerolog.Logger) *DialogHandler {
	return &DialogHandler{
		store: store,
		log:   log.With().Str("handler", "dialog").Logger(),
	}
}

// Register mounts the routes on mux
func (h *DialogHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/dialogs", h.Open)
	mux.HandleFunc("GET /api/v1/dialogs/{id}", h.View)
	mux.HandleFunc("DELETE /api/v1/dialogs/{id}", h.Close)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/scope", h.SetScope)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/search", h.Search)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/target", h.SelectTarget)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/reason", h.SetReason)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/payload", h.SetPayload)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/submit", h.Submit)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/decline", h.Decline)
	mux.HandleFunc("POST /api/v1/dialogs/{id}/confirm", h.Confirm)
}

// Open creates a session for a flow
func (h *DialogHandler) Open(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Flow string `json:"flow"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Flow == "" {
		badRequest(w, "flow is required")
		return
	}

	sess, err := h.store.Create(body.Flow)
	if err != nil {
		h.writeDialogError(w, err)
		return
	}

	h.log.Info().
		Str("session_id", sess.ID()).
		Str("flow", body.Flow).
		Str("actor", auth.FromContext(r.Context()).Actor).
		Msg("Dialog opened")

	h.respond(w, r, http.StatusCreated, sess)
}

// View returns the session view. ?wait=1 first lets pending lookups settle.
func (h *DialogHandler) View(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, sess)
}

// Close discards the session
func (h *DialogHandler) Close(w http.ResponseWriter, r *http.Request) {
	if !h.store.Delete(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: string(errors.ErrCodeNotFound), Message: "dialog not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetScope selects the parent entity
func (h *DialogHandler) SetScope(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	h.apply(w, r, &body, func(s *workflow.Session) error { return s.SetScope(body.ID) })
}

// Search updates the search text
func (h *DialogHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	h.apply(w, r, &body, func(s *workflow.Session) error { return s.SetSearchText(body.Text) })
}

// SelectTarget selects a target. An empty id clears it.
func (h *DialogHandler) SelectTarget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	h.apply(w, r, &body, func(s *workflow.Session) error { return s.SelectTarget(body.ID) })
}

// SetReason stores the justification
func (h *DialogHandler) SetReason(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	h.apply(w, r, &body, func(s *workflow.Session) error { return s.SetReason(body.Reason) })
}

// SetPayload stores the edit payload
func (h *DialogHandler) SetPayload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	h.apply(w, r, &body, func(s *workflow.Session) error { return s.SetPayload(body.Fields) })
}

// Submit moves to confirmation
func (h *DialogHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, nil, func(s *workflow.Session) error { return s.Submit() })
}

// Decline leaves confirmation without committing
func (h *DialogHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, nil, func(s *workflow.Session) error { return s.Decline(r.Context()) })
}

// Confirm commits the dialog with the caller's capabilities and returns once
// the commit has completed
func (h *DialogHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	caps := auth.FromContext(r.Context())
	h.apply(w, r, nil, func(s *workflow.Session) error { return s.Confirm(r.Context(), caps) })
}

// ── helpers ───────────────────────────────────────────────────────────────────

// apply decodes body when given, runs fn against the session and responds
// with the resulting view
func (h *DialogHandler) apply(w http.ResponseWriter, r *http.Request, body interface{}, fn func(*workflow.Session) error) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if body != nil {
		if err := decodeJSON(r, body); err != nil {
			badRequest(w, "Invalid request body")
			return
		}
	}
	if err := fn(sess); err != nil {
		h.writeDialogError(w, err)
		return
	}
	h.store.Touch(sess)
	h.respond(w, r, http.StatusOK, sess)
}

func (h *DialogHandler) session(w http.ResponseWriter, r *http.Request) (*workflow.Session, bool) {
	sess, ok := h.store.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: string(errors.ErrCodeNotFound), Message: "dialog not found"})
		return nil, false
	}
	return sess, true
}

func (h *DialogHandler) respond(w http.ResponseWriter, r *http.Request, status int, sess *workflow.Session) {
	if r.URL.Query().Get("wait") == "1" {
		if err := sess.Wait(r.Context()); err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID()).Msg("Wait interrupted")
		}
	}
	writeJSON(w, status, sess.View())
}

// writeDialogError maps workflow errors to client errors
func (h *DialogHandler) writeDialogError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusBadRequest
		code   = string(errors.ErrCodeInvalidInput)
	)
	switch {
	case stderrors.Is(err, workflow.ErrBusy):
		status, code = http.StatusConflict, codeDialogBusy
	case stderrors.Is(err, workflow.ErrClosed):
		status, code = http.StatusConflict, codeDialogClosed
	case stderrors.Is(err, workflow.ErrInvalidTransition):
		status, code = http.StatusConflict, codeInvalidStep
	case stderrors.Is(err, workflow.ErrScopeRequired):
		code = codeScopeRequired
	case stderrors.Is(err, session.ErrUnknownFlow):
		status, code = http.StatusNotFound, string(errors.ErrCodeNotFound)
	case stderrors.Is(err, workflow.ErrUnknownOption), stderrors.Is(err, workflow.ErrUnknownReason):
	default:
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}
