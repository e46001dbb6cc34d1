package bot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// WSEvent mirrors handler.WSEvent for client-side deserialization.
type WSEvent struct {
	Type        string          `json:"type"`
	SessionCode string          `json:"session_code"`
	Data        json.RawMessage `json:"data"`
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client is an HTTP+WebSocket client for a single bot seat.
type Client struct {
	name     string
	baseURL  string
	token    string
	userID   string
	wsConn   *websocket.Conn
	events   chan WSEvent
	httpC    *http.Client
	mu       sync.Mutex
	closedWS bool
}

// NewClient creates a new bot client targeting the given server URL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 256),
		httpC:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the bot name.
func (c *Client) Name() string { return c.name }

// UserID returns the bot's user ID after login.
func (c *Client) UserID() string { return c.userID }

// Login signs in anonymously under the bot's name.
func (c *Client) Login() error {
	var tokens struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(http.MethodPost, "/auth/anonymous", map[string]string{"display_name": c.name}, &tokens); err != nil {
		return fmt.Errorf("anonymous login: %w", err)
	}
	c.token = tokens.AccessToken
	c.userID = tokens.UserID
	log.Debug().Str("bot", c.name).Str("userId", c.userID).Msg("Bot logged in")
	return nil
}

// CreateSession opens a new lobby hosted by this client.
func (c *Client) CreateSession() (*model.Session, error) {
	var sess model.Session
	if err := c.do(http.MethodPost, "/api/v1/sessions", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// JoinSession joins code under the bot's name.
func (c *Client) JoinSession(code string) (*model.PlayerRecord, error) {
	var p model.PlayerRecord
	err := c.do(http.MethodPost, sessionPath(code, "/join"), map[string]string{"display_name": c.name}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSession fetches the shared session view.
func (c *Client) GetSession(code string) (*model.Session, error) {
	var sess model.Session
	if err := c.do(http.MethodGet, sessionPath(code, ""), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetPlayer fetches the bot's own record.
func (c *Client) GetPlayer(code string) (*model.PlayerRecord, error) {
	var p model.PlayerRecord
	if err := c.do(http.MethodGet, sessionPath(code, "/me"), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Submit sends the phase action payload.
func (c *Client) Submit(code string, phase cabin.Phase, payload any) error {
	body := map[string]any{"phase": phase, "payload": payload}
	return c.do(http.MethodPost, sessionPath(code, "/submissions"), body, nil)
}

// Vote casts one ballot field.
func (c *Client) Vote(code string, phase cabin.Phase, field cabin.VoteField, target string) error {
	body := map[string]any{"phase": phase, "field": field, "target": target}
	return c.do(http.MethodPost, sessionPath(code, "/votes"), body, nil)
}

// Ready marks a display phase as read.
func (c *Client) Ready(code string, phase cabin.Phase) error {
	return c.do(http.MethodPost, sessionPath(code, "/ready"), map[string]any{"phase": phase}, nil)
}

// SendRumor forwards a rumor card.
func (c *Client) SendRumor(code string, card int, text, recipientID string) error {
	body := map[string]any{"card": card, "text": text, "recipient_id": recipientID}
	return c.do(http.MethodPost, sessionPath(code, "/rumors"), body, nil)
}

// PostMessage writes a wiretap message.
func (c *Client) PostMessage(code, text string) error {
	return c.do(http.MethodPost, sessionPath(code, "/messages"), map[string]string{"text": text}, nil)
}

// Advance asks the server to move to the next phase (host only).
func (c *Client) Advance(code string, forced bool) error {
	return c.do(http.MethodPost, sessionPath(code, "/advance"), map[string]bool{"forced": forced}, nil)
}

// Results lists the archived games of code.
func (c *Client) Results(code string) ([]model.GameResult, error) {
	var results []model.GameResult
	if err := c.do(http.MethodGet, sessionPath(code, "/results"), nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS() error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// Subscribe sends a subscribe message for the given session.
func (c *Client) Subscribe(code string) error {
	msg := map[string]string{"action": "subscribe", "session_code": code}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsConn.WriteJSON(msg)
}

// Events returns the channel of incoming WebSocket events.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closedWS
			c.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("bot", c.name).Msg("WS read error")
			}
			return
		}
		// The server batches queued messages into one frame, one per line.
		for _, line := range bytes.Split(msg, []byte("\n")) {
			var event WSEvent
			if err := json.Unmarshal(line, &event); err != nil {
				continue
			}
			select {
			case c.events <- event:
			default:
				log.Debug().Str("bot", c.name).Str("type", event.Type).Msg("Dropping event, consumer behind")
			}
		}
	}
}

func sessionPath(code, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(code) + suffix
}

// do sends a JSON request and decodes the response into out when out is
// non-nil.
func (c *Client) do(method, path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
