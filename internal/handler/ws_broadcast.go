package handler

// BroadcastSessionEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastSessionEvent(code string, eventType string, data any) {
	h.BroadcastToSession(code, WSEvent{
		Type:        eventType,
		SessionCode: code,
		Data:        data,
	})
}
