package types

import (
	"time"

	"github.com/fasthttp/websocket"
)

// Status is the lifecycle state of the chat connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Kind distinguishes user chat lines from server notices.
type Kind string

const (
	KindChat   Kind = "chat"
	KindSystem Kind = "system"
)

// Event tags system frames the connection manager reacts to.
type Event string

const (
	EventNone       Event = ""
	EventAuthOK     Event = "auth_ok"
	EventAuthFailed Event = "auth_failed"
	EventJoin       Event = "join"
	EventLeave      Event = "leave"
)

// SystemSender is the sender name given to every server notice.
const SystemSender = "System"

// Message is one chat line, either decoded from the wire or synthesized
// locally for the current user's own sends.
type Message struct {
	Kind            Kind      `json:"type"`
	Sender          string    `json:"sender"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	FromCurrentUser bool      `json:"isFromCurrentUser"`
	Event           Event     `json:"event,omitempty"`
}

// MessageHandler receives decoded and locally sent messages.
// Implementations must be comparable; pointer receivers are the norm.
type MessageHandler interface {
	HandleMessage(msg Message)
}

// StatusHandler receives connection status transitions.
type StatusHandler interface {
	HandleStatus(status Status)
}

// Conn abstracts a WebSocket connection for testability.
// *websocket.Conn from fasthttp/websocket satisfies it directly.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)
