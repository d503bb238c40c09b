package service

import (
	"errors"
	"fmt"

	"github.com/HelloHaruSystem/haru-chat-web/src/hub"
	"github.com/rs/zerolog"
)

// ErrNotSent is returned to a viewer whose text could not be sent.
var ErrNotSent = errors.New("message not sent")

// Chat is the session operations viewers may trigger.
type Chat interface {
	SendMessage(content string) bool
	ClearMessages()
}

// Service binds viewer commands on a hub to a chat session.
type Service struct {
	hub    *hub.Hub
	chat   Chat
	logger zerolog.Logger
}

// New creates a service and registers its command handlers on h.
func New(h *hub.Hub, chat Chat, logger zerolog.Logger) *Service {
	s := &Service{hub: h, chat: chat, logger: logger.With().Str("component", "service").Logger()}
	h.RegisterHandler(hub.ActionSend, s.handleSend)
	h.RegisterHandler(hub.ActionClear, s.handleClear)
	h.OnConnection(func(id string) { s.logger.Debug().Str("client_id", id).Msg("viewer joined") })
	h.OnDisconnection(func(id string) { s.logger.Debug().Str("client_id", id).Msg("viewer left") })
	return s
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Viewers returns IDs of all connected viewers.
func (s *Service) Viewers() []string {
	return s.hub.ConnectedClients()
}

// ViewerInfo returns info for a connected viewer, or error.
func (s *Service) ViewerInfo(clientID string) (*hub.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("viewer %s not found", clientID)
	}
	return info, nil
}

func (s *Service) handleSend(clientID string, cmd hub.Command) error {
	if !s.chat.SendMessage(cmd.Content) {
		return ErrNotSent
	}
	s.logger.Debug().Str("client_id", clientID).Msg("viewer sent message")
	return nil
}

func (s *Service) handleClear(clientID string, _ hub.Command) error {
	s.chat.ClearMessages()
	s.logger.Debug().Str("client_id", clientID).Msg("viewer cleared history")
	return nil
}
