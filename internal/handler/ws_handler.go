package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/auth"
	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/internal/service"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub    *Hub
	jwtMgr *auth.JWTManager
	svc    *service.SessionService
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, svc *service.SessionService) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, svc: svc}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (browsers can't set headers on upgrade).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		writeError(w, http.StatusUnauthorized, "missing token parameter")
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newWSConn(conn, claims.UserID, sendBufSize)
	h.hub.Register(client)
	h.hub.SendTo(client, WSEvent{Type: "connected", Data: map[string]any{}})

	// Subscriptions outlive the upgrade request, so they hang off their own
	// context that ends with the read pump.
	ctx, cancel := context.WithCancel(context.Background())

	go h.writePump(client)
	go h.readPump(ctx, cancel, client)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(ctx context.Context, cancel context.CancelFunc, c *WSConn) {
	defer func() {
		cancel()
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.handleClientMessage(ctx, c, msg)
	}
}

// handleClientMessage applies one subscribe/unsubscribe request.
func (h *WSHandler) handleClientMessage(ctx context.Context, c *WSConn, msg ClientMessage) {
	code, ok := service.NormalizeCode(msg.SessionCode)
	if !ok {
		h.hub.SendTo(c, WSEvent{Type: EventError, SessionCode: msg.SessionCode, Data: map[string]string{"error": "invalid session code"}})
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		cancel, err := h.svc.SubscribeSession(ctx, code, func(sess *model.Session) {
			h.hub.SendTo(c, WSEvent{Type: EventSessionUpdated, SessionCode: code, Data: sess})
		})
		if err != nil {
			h.sendError(c, code, err)
			return
		}
		h.hub.Subscribe(c, code)
		c.track("session:"+code, cancel)
		if sess, err := h.svc.GetSession(ctx, code); err == nil {
			h.hub.SendTo(c, WSEvent{Type: EventSessionUpdated, SessionCode: code, Data: sess})
		}
	case ActionSubscribePlayer:
		cancel, err := h.svc.SubscribePlayer(ctx, code, c.userID, func(p *model.PlayerRecord) {
			h.hub.SendTo(c, WSEvent{Type: EventPlayerUpdated, SessionCode: code, Data: p})
		})
		if err != nil {
			h.sendError(c, code, err)
			return
		}
		c.track("player:"+code, cancel)
		if p, err := h.svc.GetPlayer(ctx, code, c.userID); err == nil {
			h.hub.SendTo(c, WSEvent{Type: EventPlayerUpdated, SessionCode: code, Data: p})
		}
	case ActionUnsubscribe:
		h.hub.Unsubscribe(c, code)
		c.untrack("session:" + code)
		c.untrack("player:" + code)
	}
}

func (h *WSHandler) sendError(c *WSConn, code string, err error) {
	_, msg := statusFor(err)
	h.hub.SendTo(c, WSEvent{Type: EventError, SessionCode: code, Data: map[string]string{"error": msg}})
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
