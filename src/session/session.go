// Package session adapts connection events into the state a chat UI renders:
// a bounded message log, the active users, the status and a display error.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/registry"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// ConnectFailedText is shown when a connection attempt fails.
	ConnectFailedText = "Unable to connect to chat server."
	// ClearedText replaces the log after ClearMessages.
	ClearedText = "Message history cleared."
	// DefaultHistoryLimit bounds the message log when no limit is set.
	DefaultHistoryLimit = 500
)

// ErrAuthRequired is returned by Connect when no credentials are available.
var ErrAuthRequired = errors.New("authentication required")

// Transport is the connection the session drives. *conn.Manager implements it.
type Transport interface {
	Connect(ctx context.Context, serverURL, username, token string) error
	Disconnect()
	SendMessage(content string) bool
	AddMessageHandler(h types.MessageHandler) bool
	RemoveMessageHandler(h types.MessageHandler) bool
	AddStatusHandler(h types.StatusHandler) bool
	RemoveStatusHandler(h types.StatusHandler) bool
	Status() types.Status
	ActiveUsers() []string
	LastError() error
}

// CredentialSource supplies the username and token used to connect.
type CredentialSource interface {
	Credentials() (username, token string)
}

// StaticCredentials is a fixed CredentialSource.
type StaticCredentials struct {
	Username string
	Token    string
}

// Credentials implements CredentialSource.
func (c StaticCredentials) Credentials() (string, string) { return c.Username, c.Token }

// Listener receives the session's own event stream.
type Listener interface {
	types.MessageHandler
	types.StatusHandler
}

// Session is the facade a UI talks to.
type Session struct {
	id        string
	transport Transport
	creds     CredentialSource
	serverURL string
	logger    zerolog.Logger
	listeners *registry.Registry
	now       func() time.Time

	mu       sync.Mutex
	limit    int
	messages []types.Message
	status   types.Status
	errText  string
	closed   bool
}

// New creates a session over t and subscribes to it.
func New(t Transport, creds CredentialSource, serverURL string, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	logger = logger.With().Str("component", "session").Str("session_id", id).Logger()
	s := &Session{
		id:        id,
		transport: t,
		creds:     creds,
		serverURL: serverURL,
		logger:    logger,
		listeners: registry.New(logger),
		now:       time.Now,
		limit:     DefaultHistoryLimit,
		status:    types.StatusDisconnected,
	}
	t.AddMessageHandler(s)
	t.AddStatusHandler(s)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// SetHistoryLimit bounds the message log; n <= 0 restores the default.
func (s *Session) SetHistoryLimit(n int) {
	if n <= 0 {
		n = DefaultHistoryLimit
	}
	s.mu.Lock()
	s.limit = n
	s.trimLocked()
	s.mu.Unlock()
}

// Close unsubscribes from the transport. The session keeps its state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.transport.RemoveMessageHandler(s)
	s.transport.RemoveStatusHandler(s)
}

// Connect connects with the credentials from the source.
func (s *Session) Connect(ctx context.Context) error {
	var username, token string
	if s.creds != nil {
		username, token = s.creds.Credentials()
	}
	if username == "" || token == "" {
		s.setErr(ConnectFailedText)
		return ErrAuthRequired
	}

	s.setErr("")
	if err := s.transport.Connect(ctx, s.serverURL, username, token); err != nil {
		s.logger.Error().Err(err).Str("user", username).Msg("connect failed")
		s.setErr(ConnectFailedText)
		return err
	}
	return nil
}

// Disconnect closes the connection and clears messages and users.
func (s *Session) Disconnect() {
	s.transport.Disconnect()
	s.mu.Lock()
	s.messages = nil
	s.errText = ""
	s.mu.Unlock()
}

// SendMessage sends content through the transport.
func (s *Session) SendMessage(content string) bool {
	return s.transport.SendMessage(content)
}

// ClearMessages replaces the log with a single system notice.
func (s *Session) ClearMessages() {
	notice := types.Message{
		Kind:      types.KindSystem,
		Sender:    types.SystemSender,
		Content:   ClearedText,
		Timestamp: s.now(),
	}
	s.mu.Lock()
	s.messages = []types.Message{notice}
	s.mu.Unlock()
	s.listeners.NotifyMessage(notice)
}

// Messages returns a copy of the message log, oldest first.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ActiveUsers returns the sorted active users.
func (s *Session) ActiveUsers() []string { return s.transport.ActiveUsers() }

// Status returns the latest status seen.
func (s *Session) Status() types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsConnected reports whether the status is connected.
func (s *Session) IsConnected() bool { return s.Status() == types.StatusConnected }

// Err returns the display error, empty when there is none.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errText
}

// Subscribe registers l for the session's events and replays the status.
func (s *Session) Subscribe(l Listener) bool {
	s.mu.Lock()
	added := s.listeners.AddMessageHandler(l)
	if s.listeners.AddStatusHandler(l) {
		added = true
		s.listeners.QueueReplay(l, s.status)
	}
	s.mu.Unlock()
	s.listeners.Flush()
	return added
}

// Unsubscribe removes l.
func (s *Session) Unsubscribe(l Listener) bool {
	m := s.listeners.RemoveMessageHandler(l)
	st := s.listeners.RemoveStatusHandler(l)
	return m || st
}

// HandleMessage implements types.MessageHandler.
func (s *Session) HandleMessage(msg types.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.trimLocked()
	s.mu.Unlock()
	s.listeners.NotifyMessage(msg)
}

// HandleStatus implements types.StatusHandler.
func (s *Session) HandleStatus(status types.Status) {
	s.mu.Lock()
	s.status = status
	switch status {
	case types.StatusConnected:
		s.errText = ""
	case types.StatusError:
		if s.errText == "" {
			s.errText = ConnectFailedText
		}
	}
	s.mu.Unlock()

	if status == types.StatusError {
		if err := s.transport.LastError(); err != nil {
			s.logger.Warn().Err(err).Msg("connection error")
		}
	}
	s.listeners.NotifyStatus(status)
}

func (s *Session) setErr(text string) {
	s.mu.Lock()
	s.errText = text
	s.mu.Unlock()
}

func (s *Session) trimLocked() {
	if over := len(s.messages) - s.limit; over > 0 {
		s.messages = append([]types.Message(nil), s.messages[over:]...)
	}
}
