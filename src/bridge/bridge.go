package bridge

import "github.com/HelloHaruSystem/haru-chat-web/src/session"

// Relay mirrors a chat session onto an external bus.
type Relay interface {
	// Start connects to the bus and begins relaying.
	Start() error

	// Stop shuts the relay down.
	Stop() error

	// Available reports whether the relay is connected and operational.
	Available() bool

	// Enqueue asks the other instances to send text.
	Enqueue(text string) error
}

// Source is the session a relay mirrors. *session.Session implements it.
type Source interface {
	Subscribe(l session.Listener) bool
	Unsubscribe(l session.Listener) bool
	SendMessage(content string) bool
}
