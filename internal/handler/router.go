package handler

import (
	"net/http"

	"github.com/freeeve/dirty-laundry/internal/auth"
)

// Router collects the handlers served under one mux.
type Router struct {
	JWT      *auth.JWTManager
	Auth     *AuthHandler
	Users    *UserHandler
	Sessions *SessionHandler
	QR       *QRHandler
	WS       *WSHandler
}

// Handler builds the route table. Global middleware is applied by the
// caller.
func (rt Router) Handler() http.Handler {
	mux := http.NewServeMux()
	authMw := auth.Middleware(rt.JWT)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/anonymous", rt.Auth.Anonymous)
	mux.HandleFunc("GET /auth/google/login", rt.Auth.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", rt.Auth.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", rt.Auth.RefreshToken)
	mux.HandleFunc("GET /auth/dev", rt.Auth.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", rt.Users.GetMe)
	api.HandleFunc("POST /sessions", rt.Sessions.CreateSession)
	api.HandleFunc("GET /sessions/{code}", rt.Sessions.GetSession)
	api.HandleFunc("POST /sessions/{code}/join", rt.Sessions.JoinSession)
	api.HandleFunc("GET /sessions/{code}/me", rt.Sessions.GetPlayer)
	api.HandleFunc("POST /sessions/{code}/submissions", rt.Sessions.Submit)
	api.HandleFunc("POST /sessions/{code}/votes", rt.Sessions.Vote)
	api.HandleFunc("POST /sessions/{code}/ready", rt.Sessions.Ready)
	api.HandleFunc("POST /sessions/{code}/rumors", rt.Sessions.SendRumor)
	api.HandleFunc("GET /sessions/{code}/messages", rt.Sessions.ListMessages)
	api.HandleFunc("GET /sessions/{code}/messages/history", rt.Sessions.MessageHistory)
	api.HandleFunc("POST /sessions/{code}/messages", rt.Sessions.PostMessage)
	api.HandleFunc("POST /sessions/{code}/advance", rt.Sessions.Advance)
	api.HandleFunc("POST /sessions/{code}/restart", rt.Sessions.Restart)
	api.HandleFunc("GET /sessions/{code}/results", rt.Sessions.ListResults)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// The shared screen shows the QR code before anyone has signed in.
	mux.HandleFunc("GET /api/v1/sessions/{code}/qr", rt.QR.ServeQR)

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", rt.WS.ServeWS)

	return mux
}
