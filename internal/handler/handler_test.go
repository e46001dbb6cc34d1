package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/dirty-laundry/internal/auth"
	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/repository/memory"
	"github.com/freeeve/dirty-laundry/internal/service"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// --- Test wiring ---

type handlerEnv struct {
	svc   *service.SessionService
	users *memory.UserRepo
	h     *SessionHandler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	store := memory.NewStore()
	rounds := service.NewRoundController(store, memory.NewClock(), NewHub(), cabin.NewSeededDealer(3), nil)
	svc := service.NewSessionService(store, rounds, NewHub())
	svc.SetMessageRepo(memory.NewMessageRepo())
	svc.SetResultRepo(memory.NewResultRepo())
	return &handlerEnv{svc: svc, users: memory.NewUserRepo(), h: NewSessionHandler(svc)}
}

// lobby creates a session hosted by "host" with players p1..pn.
func (e *handlerEnv) lobby(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	sess, err := e.svc.CreateSession(ctx, "host")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("p%d", i)
		if _, err := e.svc.JoinSession(ctx, sess.Code, id, "Player "+id); err != nil {
			t.Fatalf("JoinSession %s: %v", id, err)
		}
	}
	return sess.Code
}

func reqWithUserID(method, path string, body string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	ctx := auth.SetUserIDForTest(req.Context(), userID)
	return req.WithContext(ctx)
}

func sessionReq(method, code, suffix, body, userID string) *http.Request {
	req := reqWithUserID(method, "/sessions/"+code+suffix, body, userID)
	req.SetPathValue("code", code)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

// --- Session Handler Tests ---

func TestCreateSession(t *testing.T) {
	e := newHandlerEnv(t)

	rec := httptest.NewRecorder()
	e.h.CreateSession(rec, reqWithUserID(http.MethodPost, "/sessions", "", "host"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sess model.Session
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if len(sess.Code) != service.CodeLength {
		t.Errorf("expected %d-character code, got %q", service.CodeLength, sess.Code)
	}
	if sess.Phase != cabin.PhaseLobby {
		t.Errorf("expected lobby, got %s", sess.Phase)
	}
	if sess.HostID != "host" {
		t.Errorf("expected host, got %s", sess.HostID)
	}
}

func TestGetSessionNormalizesCode(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 1)

	rec := httptest.NewRecorder()
	e.h.GetSession(rec, sessionReq(http.MethodGet, strings.ToLower(code), "", "", "p1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sess model.Session
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess.Code != code {
		t.Errorf("expected %s, got %s", code, sess.Code)
	}
	if len(sess.Roster) != 1 {
		t.Errorf("expected 1 player in roster, got %d", len(sess.Roster))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	e := newHandlerEnv(t)

	for _, code := range []string{"ZZZZ", "bad!", ""} {
		rec := httptest.NewRecorder()
		e.h.GetSession(rec, sessionReq(http.MethodGet, code, "", "", "p1"))
		if rec.Code != http.StatusNotFound {
			t.Errorf("code %q: expected 404, got %d", code, rec.Code)
		}
	}
}

func TestJoinSession(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 0)

	rec := httptest.NewRecorder()
	e.h.JoinSession(rec, sessionReq(http.MethodPost, code, "/join", `{"display_name":"Alice"}`, "alice"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p model.PlayerRecord
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.ID != "alice" || p.DisplayName != "Alice" {
		t.Errorf("unexpected player: %+v", p)
	}
}

func TestJoinSessionInvalidName(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 0)

	rec := httptest.NewRecorder()
	e.h.JoinSession(rec, sessionReq(http.MethodPost, code, "/join", `{"display_name":"   "}`, "alice"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestJoinSessionInvalidJSON(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 0)

	rec := httptest.NewRecorder()
	e.h.JoinSession(rec, sessionReq(http.MethodPost, code, "/join", "not json", "alice"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestJoinSessionAfterStart(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)
	if _, err := e.svc.AdvancePhase(context.Background(), code, "host", false); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := httptest.NewRecorder()
	e.h.JoinSession(rec, sessionReq(http.MethodPost, code, "/join", `{"display_name":"Late"}`, "late"))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestGetPlayerNotInSession(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 1)

	rec := httptest.NewRecorder()
	e.h.GetPlayer(rec, sessionReq(http.MethodGet, code, "/me", "", "stranger"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAdvanceRules(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 2)

	rec := httptest.NewRecorder()
	e.h.Advance(rec, sessionReq(http.MethodPost, code, "/advance", "", "p1"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-host advance: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.h.Advance(rec, sessionReq(http.MethodPost, code, "/advance", "", "host"))
	if rec.Code != http.StatusConflict {
		t.Errorf("two-player start: expected 409, got %d", rec.Code)
	}

	if _, err := e.svc.JoinSession(context.Background(), code, "p3", "Player p3"); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	rec = httptest.NewRecorder()
	e.h.Advance(rec, sessionReq(http.MethodPost, code, "/advance", "", "host"))
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sess model.Session
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess.Phase != cabin.PhaseBrainstorm {
		t.Errorf("expected brainstorm, got %s", sess.Phase)
	}
	if sess.MurdererID != "" {
		t.Error("murderer leaked in advance response")
	}

	rec = httptest.NewRecorder()
	e.h.Advance(rec, sessionReq(http.MethodPost, code, "/advance", `{"forced":false}`, "host"))
	if rec.Code != http.StatusConflict {
		t.Errorf("incomplete phase: expected 409, got %d", rec.Code)
	}
}

func TestSubmitWeapon(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)
	e.svc.AdvancePhase(context.Background(), code, "host", false)

	rec := httptest.NewRecorder()
	body := `{"phase":"brainstorm","payload":{"weapon":"Candlestick"}}`
	e.h.Submit(rec, sessionReq(http.MethodPost, code, "/submissions", body, "p1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p model.PlayerRecord
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Submissions.Weapon != "Candlestick" {
		t.Errorf("expected Candlestick, got %q", p.Submissions.Weapon)
	}
	if !p.Done[cabin.PhaseBrainstorm] {
		t.Error("expected brainstorm marked done")
	}
}

func TestSubmitErrors(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)
	e.svc.AdvancePhase(context.Background(), code, "host", false)

	tests := []struct {
		name   string
		body   string
		userID string
		want   int
	}{
		{"stale phase", `{"phase":"lobby","payload":{}}`, "p1", http.StatusConflict},
		{"unknown phase", `{"phase":"nap","payload":{}}`, "p1", http.StatusBadRequest},
		{"empty weapon", `{"phase":"brainstorm","payload":{"weapon":""}}`, "p1", http.StatusBadRequest},
		{"missing payload", `{"phase":"brainstorm"}`, "p1", http.StatusBadRequest},
		{"stranger", `{"phase":"brainstorm","payload":{"weapon":"Rope"}}`, "stranger", http.StatusForbidden},
		{"bad json", `{`, "p1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.h.Submit(rec, sessionReq(http.MethodPost, code, "/submissions", tt.body, tt.userID))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReadyRejectsActionPhase(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)
	e.svc.AdvancePhase(context.Background(), code, "host", false)

	rec := httptest.NewRecorder()
	e.h.Ready(rec, sessionReq(http.MethodPost, code, "/ready", `{"phase":"brainstorm"}`, "p1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestVoteStaleAndWrongField(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)
	ctx := context.Background()
	e.svc.AdvancePhase(ctx, code, "host", false)
	e.svc.AdvancePhase(ctx, code, "host", true) // suspectVote

	rec := httptest.NewRecorder()
	e.h.Vote(rec, sessionReq(http.MethodPost, code, "/votes", `{"phase":"brainstorm","field":"suspect","target":"p2"}`, "p1"))
	if rec.Code != http.StatusConflict {
		t.Errorf("stale vote: expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.h.Vote(rec, sessionReq(http.MethodPost, code, "/votes", `{"phase":"suspectVote","field":"sketch","target":"p2"}`, "p1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("wrong field: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.h.Vote(rec, sessionReq(http.MethodPost, code, "/votes", `{"phase":"suspectVote","field":"suspect","target":"p2"}`, "p1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("vote: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Ballot   cabin.Ballot `json:"ballot"`
		Accepted bool         `json:"accepted"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Accepted || resp.Ballot.Suspect != "p2" {
		t.Errorf("unexpected vote response: %+v", resp)
	}

	rec = httptest.NewRecorder()
	e.h.Vote(rec, sessionReq(http.MethodPost, code, "/votes", `{"phase":"suspectVote","field":"suspect","target":"p3"}`, "p1"))
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.Accepted || resp.Ballot.Suspect != "p2" {
		t.Errorf("repeat vote should be a no-op, got %d %+v", rec.Code, resp)
	}
}

func TestPostMessageOutsideDiscussion(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)

	rec := httptest.NewRecorder()
	e.h.PostMessage(rec, sessionReq(http.MethodPost, code, "/messages", `{"text":"hello"}`, "p1"))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != service.ErrNotDiscussion.Error() {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestListMessagesEmpty(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 1)

	rec := httptest.NewRecorder()
	e.h.ListMessages(rec, sessionReq(http.MethodGet, code, "/messages", "", "p1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := strings.TrimSpace(rec.Body.String())
	if body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestListResultsEmpty(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 1)

	rec := httptest.NewRecorder()
	e.h.ListResults(rec, sessionReq(http.MethodGet, code, "/results", "", "p1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := strings.TrimSpace(rec.Body.String())
	if body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestRestartNotHost(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 3)

	rec := httptest.NewRecorder()
	e.h.Restart(rec, sessionReq(http.MethodPost, code, "/restart", "", "p2"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestStatusForUnknownError(t *testing.T) {
	status, msg := statusFor(fmt.Errorf("redis: connection refused"))
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	if msg != "internal error" {
		t.Errorf("internal detail leaked: %q", msg)
	}

	status, _ = statusFor(fmt.Errorf("load session: %w", service.ErrSessionNotFound))
	if status != http.StatusNotFound {
		t.Errorf("wrapped not-found: expected 404, got %d", status)
	}
}

// --- QR Handler Tests ---

func TestServeQR(t *testing.T) {
	e := newHandlerEnv(t)
	code := e.lobby(t, 0)
	h := NewQRHandler(e.svc, "https://cabin.example.com/")

	rec := httptest.NewRecorder()
	h.ServeQR(rec, sessionReq(http.MethodGet, code, "/qr", "", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}
}

func TestServeQRUnknownSession(t *testing.T) {
	e := newHandlerEnv(t)
	h := NewQRHandler(e.svc, "")

	rec := httptest.NewRecorder()
	h.ServeQR(rec, sessionReq(http.MethodGet, "ZZZZ", "/qr", "", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestJoinURL(t *testing.T) {
	e := newHandlerEnv(t)

	h := NewQRHandler(e.svc, "https://cabin.example.com/")
	req := httptest.NewRequest(http.MethodGet, "/sessions/ABCD/qr", nil)
	if got := h.JoinURL(req, "ABCD"); got != "https://cabin.example.com/join/ABCD" {
		t.Errorf("unexpected join url %s", got)
	}

	h = NewQRHandler(e.svc, "")
	req = httptest.NewRequest(http.MethodGet, "http://party.local:8009/sessions/ABCD/qr", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := h.JoinURL(req, "ABCD"); got != "https://party.local:8009/join/ABCD" {
		t.Errorf("unexpected derived join url %s", got)
	}
}

// --- User Handler Tests ---

func TestGetMe(t *testing.T) {
	e := newHandlerEnv(t)
	u, _ := e.users.Upsert(context.Background(), "anonymous", "anon-1", "Alice", "")
	h := NewUserHandler(e.users)

	rec := httptest.NewRecorder()
	h.GetMe(rec, reqWithUserID(http.MethodGet, "/users/me", "", u.ID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got model.User
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.DisplayName != "Alice" {
		t.Errorf("expected Alice, got %s", got.DisplayName)
	}
}

func TestGetMeNotFound(t *testing.T) {
	h := NewUserHandler(memory.NewUserRepo())

	rec := httptest.NewRecorder()
	h.GetMe(rec, reqWithUserID(http.MethodGet, "/users/me", "", "nonexistent"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- Auth Handler Tests ---

func TestAnonymousLogin(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	repo := memory.NewUserRepo()
	h := NewAuthHandler(nil, jwtMgr, repo, false)

	req := httptest.NewRequest(http.MethodPost, "/auth/anonymous", strings.NewReader(`{"display_name":"Bob"}`))
	rec := httptest.NewRecorder()
	h.Anonymous(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	json.Unmarshal(rec.Body.Bytes(), &tokens)
	claims, err := jwtMgr.ValidateToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	u, _ := repo.FindByID(context.Background(), claims.UserID)
	if u == nil || u.DisplayName != "Bob" {
		t.Errorf("expected stored user Bob, got %+v", u)
	}
}

func TestGoogleLoginNotConfigured(t *testing.T) {
	h := NewAuthHandler(nil, auth.NewJWTManager("test-secret"), memory.NewUserRepo(), false)

	rec := httptest.NewRecorder()
	h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDevLoginDisabled(t *testing.T) {
	h := NewAuthHandler(nil, auth.NewJWTManager("test-secret"), memory.NewUserRepo(), false)

	rec := httptest.NewRecorder()
	h.DevLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/dev?name=alice", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDevLoginReusesUser(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(nil, jwtMgr, memory.NewUserRepo(), true)

	ids := make([]string, 2)
	for i := range ids {
		rec := httptest.NewRecorder()
		h.DevLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/dev?name=alice", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var tokens auth.TokenPair
		json.Unmarshal(rec.Body.Bytes(), &tokens)
		ids[i] = tokens.UserID
	}
	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("expected the same user twice, got %v", ids)
	}
}

func TestRefreshTokenValid(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(nil, jwtMgr, memory.NewUserRepo(), false)

	refresh, _ := jwtMgr.GenerateRefreshToken("user-1")
	body := fmt.Sprintf(`{"refresh_token":"%s"}`, refresh)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	json.Unmarshal(rec.Body.Bytes(), &tokens)
	if tokens.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(nil, jwtMgr, memory.NewUserRepo(), false)

	access, _ := jwtMgr.GenerateAccessToken("user-1")
	body := fmt.Sprintf(`{"refresh_token":"%s"}`, access)
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshTokenBadBody(t *testing.T) {
	h := NewAuthHandler(nil, auth.NewJWTManager("test-secret"), memory.NewUserRepo(), false)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
