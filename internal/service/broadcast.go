package service

// Broadcaster sends real-time events to clients watching a session.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastSessionEvent(code string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastSessionEvent(string, string, any) {}
