package handler

import (
	"encoding/json"
	"net/http"

	"github.com/freeeve/dirty-laundry/internal/auth"
	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/service"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc *service.SessionService
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// sessionCode reads and normalizes the {code} path value. An unusable code
// can never name a session, so it is answered with 404.
func sessionCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code, ok := service.NormalizeCode(r.PathValue("code"))
	if !ok {
		writeError(w, http.StatusNotFound, service.ErrSessionNotFound.Error())
		return "", false
	}
	return code, true
}

// requestPhase validates the phase named in a request body.
func requestPhase(w http.ResponseWriter, p cabin.Phase) bool {
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "unknown phase")
		return false
	}
	return true
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sess, err := h.svc.CreateSession(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Public())
}

// GetSession handles GET /api/v1/sessions/{code}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.GetSession(r.Context(), code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// JoinSession handles POST /api/v1/sessions/{code}/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	p, err := h.svc.JoinSession(r.Context(), code, userID, req.DisplayName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetPlayer handles GET /api/v1/sessions/{code}/me
func (h *SessionHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetPlayer(r.Context(), code, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Submit handles POST /api/v1/sessions/{code}/submissions
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		Phase   cabin.Phase     `json:"phase"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requestPhase(w, req.Phase) {
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	p, err := h.svc.SubmitAction(r.Context(), code, userID, req.Phase, req.Payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Vote handles POST /api/v1/sessions/{code}/votes
func (h *SessionHandler) Vote(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		Phase  cabin.Phase     `json:"phase"`
		Field  cabin.VoteField `json:"field"`
		Target string          `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requestPhase(w, req.Phase) {
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	ballot, accepted, err := h.svc.CastVote(r.Context(), code, userID, req.Phase, req.Field, req.Target)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ballot": ballot, "accepted": accepted})
}

// Ready handles POST /api/v1/sessions/{code}/ready
func (h *SessionHandler) Ready(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		Phase cabin.Phase `json:"phase"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !requestPhase(w, req.Phase) {
		return
	}

	p, err := h.svc.MarkReady(r.Context(), code, auth.UserIDFromContext(r.Context()), req.Phase)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SendRumor handles POST /api/v1/sessions/{code}/rumors
func (h *SessionHandler) SendRumor(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		Card        int    `json:"card"`
		Text        string `json:"text"`
		RecipientID string `json:"recipient_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	p, err := h.svc.SendRumor(r.Context(), code, userID, req.Card, req.Text, req.RecipientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListMessages handles GET /api/v1/sessions/{code}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	messages, err := h.svc.ListMessages(r.Context(), code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// PostMessage handles POST /api/v1/sessions/{code}/messages
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.svc.PostMessage(r.Context(), code, auth.UserIDFromContext(r.Context()), req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Advance handles POST /api/v1/sessions/{code}/advance
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	var req struct {
		Forced bool `json:"forced"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess, err := h.svc.AdvancePhase(r.Context(), code, auth.UserIDFromContext(r.Context()), req.Forced)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Public())
}

// Restart handles POST /api/v1/sessions/{code}/restart
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.RestartSession(r.Context(), code, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Public())
}

// ListResults handles GET /api/v1/sessions/{code}/results
func (h *SessionHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	results, err := h.svc.ListResults(r.Context(), code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []model.GameResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// MessageHistory handles GET /api/v1/sessions/{code}/messages/history
func (h *SessionHandler) MessageHistory(w http.ResponseWriter, r *http.Request) {
	code, ok := sessionCode(w, r)
	if !ok {
		return
	}
	messages, err := h.svc.MessageHistory(r.Context(), code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
