// Package hub fans session events out to browser viewers connected over
// WebSocket and routes the commands they send back.
package hub

import (
	"sync"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/session"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/rs/zerolog"
)

// Event types written to viewers.
const (
	EventHistory = "history"
	EventMessage = "message"
	EventStatus  = "status"
	EventError   = "error"
)

// Command actions accepted from viewers.
const (
	ActionSend  = "send"
	ActionClear = "clear"
)

// Event is one JSON frame written to a viewer.
type Event struct {
	Type     string          `json:"type"`
	Message  *types.Message  `json:"message,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`
	Status   types.Status    `json:"status,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Command is one JSON frame read from a viewer.
type Command struct {
	Action   string `json:"action"`
	Content  string `json:"content,omitempty"`
	ClientID string `json:"-"`
}

// ClientInfo describes a connected viewer.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Dropped     int       `json:"dropped"`
}

// Conn is the viewer socket. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// CommandHandler handles a viewer command. A returned error is sent back to
// that viewer only.
type CommandHandler func(clientID string, cmd Command) error

// Source is the session viewers watch. *session.Session implements it.
type Source interface {
	Subscribe(l session.Listener) bool
	Unsubscribe(l session.Listener) bool
	Messages() []types.Message
}

// Hub manages viewer connections.
type Hub struct {
	source  Source
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	incoming   chan Command

	handlers  map[string]CommandHandler
	onConnect []func(string)
	onDisconn []func(string)

	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

// New creates a hub over source.
func New(source Source, logger zerolog.Logger) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan Command, 256),
		handlers:   make(map[string]CommandHandler),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case cmd := <-h.incoming:
			h.handleCommand(cmd)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop halts the hub event loop and disconnects every viewer.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// route hands a command to the loop; false once the hub stopped.
func (h *Hub) route(cmd Command) bool {
	select {
	case h.incoming <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) addClient(c *Client) {
	c.deliver(Event{Type: EventHistory, Messages: h.source.Messages()})
	h.source.Subscribe(c)

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Info().Str("client_id", c.ID).Msg("viewer registered")

	for _, cb := range h.callbacks(true) {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.mu.Unlock()

	h.source.Unsubscribe(c)
	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("viewer unregistered")

	for _, cb := range h.callbacks(false) {
		cb(c.ID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		h.source.Unsubscribe(c)
		c.Close()
	}
}

func (h *Hub) callbacks(connect bool) []func(string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if connect {
		return append([]func(string){}, h.onConnect...)
	}
	return append([]func(string){}, h.onDisconn...)
}
