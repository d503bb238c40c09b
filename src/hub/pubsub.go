package hub

func (h *Hub) handleCommand(cmd Command) {
	h.mu.RLock()
	handler, ok := h.handlers[cmd.Action]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("action", cmd.Action).Msg("no handler")
		h.SendToClient(cmd.ClientID, Event{Type: EventError, Error: "unknown action: " + cmd.Action})
		return
	}
	if err := handler(cmd.ClientID, cmd); err != nil {
		h.logger.Error().Err(err).Str("action", cmd.Action).Msg("handler error")
		h.SendToClient(cmd.ClientID, Event{Type: EventError, Error: err.Error()})
	}
}

// SendToClient sends an event directly to a specific viewer.
func (h *Hub) SendToClient(clientID string, ev Event) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.deliver(ev)
}
