// Package conn owns the chat server connection: it dials, authenticates,
// settles, reconnects, classifies inbound frames and fans them out.
package conn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/config"
	"github.com/HelloHaruSystem/haru-chat-web/src/dedup"
	"github.com/HelloHaruSystem/haru-chat-web/src/frame"
	"github.com/HelloHaruSystem/haru-chat-web/src/registry"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

type stopper interface {
	Stop() bool
}

func afterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// attempt tracks one dial-to-settle cycle for the caller waiting on it.
type attempt struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) resolve(err error) {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Manager is the single owner of the chat transport.
//
// Every connection gets a generation number; events carrying an older
// generation (reads from a replaced socket, stale timers) are dropped.
type Manager struct {
	cfg      config.ClientConfig
	dialer   Dialer
	logger   zerolog.Logger
	handlers *registry.Registry
	echoes   *dedup.Filter

	now      func() time.Time
	schedule func(time.Duration, func()) stopper

	mu        sync.Mutex
	writeMu   sync.Mutex
	status    types.Status
	lastErr   error
	conn      types.Conn
	gen       uint64
	pending   *attempt
	serverURL string
	username  string
	token     string
	attempts  int
	settle    stopper
	reconnect stopper
	users     []string
}

// New creates a disconnected manager.
func New(cfg *config.ClientConfig, dialer Dialer, logger zerolog.Logger) *Manager {
	if cfg == nil {
		cfg = config.DefaultClientConfig()
	}
	logger = logger.With().Str("component", "conn").Logger()
	return &Manager{
		cfg:      *cfg,
		dialer:   dialer,
		logger:   logger,
		handlers: registry.New(logger),
		echoes:   dedup.New(cfg.EchoWindow, cfg.EchoRetention),
		now:      time.Now,
		schedule: afterFunc,
		status:   types.StatusDisconnected,
	}
}

// Connect dials serverURL and authenticates as username. It returns once the
// attempt settles: nil when connected, an error otherwise. A context that
// ends while waiting for the settle returns ctx.Err() and leaves the attempt
// running.
func (m *Manager) Connect(ctx context.Context, serverURL, username, token string) error {
	username = strings.TrimSpace(username)
	token = strings.TrimSpace(token)
	if username == "" || token == "" {
		return ErrAuthRequired
	}

	m.mu.Lock()
	switch m.status {
	case types.StatusConnecting:
		m.mu.Unlock()
		return ErrConnectionInProgress
	case types.StatusConnected:
		m.mu.Unlock()
		m.logger.Debug().Msg("already connected")
		return nil
	}
	m.serverURL = serverURL
	m.username = username
	m.token = token
	m.attempts = 0
	m.stopTimer(&m.reconnect)
	a, gen := m.beginLocked()
	m.mu.Unlock()
	m.handlers.Flush()

	return m.open(ctx, gen, a)
}

// Disconnect closes the transport with a normal closure and cancels any
// pending reconnect. Safe to call in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimer(&m.reconnect)
	m.stopTimer(&m.settle)
	m.attempts = 0
	m.gen++
	c := m.conn
	m.conn = nil
	a := m.pending
	m.pending = nil
	m.users = nil
	m.lastErr = nil
	m.echoes.Reset()
	changed := m.setStatusLocked(types.StatusDisconnected)
	m.mu.Unlock()

	if c != nil {
		m.closeNormal(c)
	}
	if changed {
		m.logger.Info().Msg("disconnected")
	}
	m.handlers.Flush()
	a.resolve(ErrDisconnected)
}

// SendMessage transmits content and delivers it locally as the current
// user's message. It reports false for blank content, when not connected,
// or when the write fails.
func (m *Manager) SendMessage(content string) bool {
	text := strings.TrimSpace(content)
	if text == "" {
		return false
	}

	m.mu.Lock()
	if m.status != types.StatusConnected || m.conn == nil {
		m.mu.Unlock()
		return false
	}
	c := m.conn
	sender := m.username
	m.mu.Unlock()

	now := m.now()
	// recorded before the write so a fast echo still finds it
	m.echoes.Record(text, now)
	if err := m.write(c, frame.EncodeChat(text)); err != nil {
		m.logger.Error().Err(err).Msg("send failed")
		return false
	}

	m.handlers.NotifyMessage(types.Message{
		Kind:            types.KindChat,
		Sender:          sender,
		Content:         text,
		Timestamp:       now,
		FromCurrentUser: true,
	})
	return true
}

// AddMessageHandler registers h for message events.
func (m *Manager) AddMessageHandler(h types.MessageHandler) bool {
	return m.handlers.AddMessageHandler(h)
}

// RemoveMessageHandler unregisters h.
func (m *Manager) RemoveMessageHandler(h types.MessageHandler) bool {
	return m.handlers.RemoveMessageHandler(h)
}

// AddStatusHandler registers h and replays the current status to it.
// The replay runs before AddStatusHandler returns unless another goroutine
// is delivering events at that moment; it then runs as soon as the events
// queued before it have been delivered, and always ahead of later ones.
func (m *Manager) AddStatusHandler(h types.StatusHandler) bool {
	m.mu.Lock()
	added := m.handlers.AddStatusHandler(h)
	if added {
		m.handlers.QueueReplay(h, m.status)
	}
	m.mu.Unlock()
	m.handlers.Flush()
	return added
}

// RemoveStatusHandler unregisters h.
func (m *Manager) RemoveStatusHandler(h types.StatusHandler) bool {
	return m.handlers.RemoveStatusHandler(h)
}

// Status returns the current connection status.
func (m *Manager) Status() types.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether the status is connected.
func (m *Manager) IsConnected() bool {
	return m.Status() == types.StatusConnected
}

// LastError returns the error that ended the latest attempt, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ActiveUsers returns the sorted active-user list.
func (m *Manager) ActiveUsers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.users))
	copy(out, m.users)
	return out
}

// ReconnectAttempts returns the abnormal closures counted since the last
// successful connection.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// beginLocked starts a new attempt in the connecting state.
func (m *Manager) beginLocked() (*attempt, uint64) {
	m.gen++
	a := newAttempt()
	m.pending = a
	m.lastErr = nil
	m.setStatusLocked(types.StatusConnecting)
	return a, m.gen
}

// open dials, authenticates and waits for the attempt to settle.
func (m *Manager) open(ctx context.Context, gen uint64, a *attempt) error {
	m.mu.Lock()
	url, username, token := m.serverURL, m.username, m.token
	m.mu.Unlock()

	log := m.logger.With().Str("url", url).Uint64("gen", gen).Logger()
	log.Info().Msg("connecting")

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	c, err := m.dialer.Dial(dialCtx, url)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		if timedOut {
			err = fmt.Errorf("%w after %s: %v", ErrConnectionTimeout, m.cfg.ConnectTimeout, err)
		} else {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		log.Error().Err(err).Msg("connection attempt failed")
		m.fail(gen, err)
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.closeNormal(c)
		return ErrDisconnected
	}
	m.conn = c
	m.mu.Unlock()

	if err := m.write(c, frame.EncodeAuth(username, token)); err != nil {
		err = fmt.Errorf("%w: send auth: %w", ErrTransport, err)
		log.Error().Err(err).Msg("authentication frame not sent")
		_ = c.Close()
		m.fail(gen, err)
		return err
	}

	m.mu.Lock()
	if gen == m.gen && m.status == types.StatusConnecting {
		m.settle = m.schedule(m.cfg.SettleDelay, func() { m.settled(gen) })
	}
	m.mu.Unlock()

	go m.readLoop(gen, c)

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settled fires when the settle delay passes without a rejection.
func (m *Manager) settled(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.status != types.StatusConnecting {
		m.mu.Unlock()
		return
	}
	a := m.markConnectedLocked()
	m.mu.Unlock()

	m.handlers.Flush()
	a.resolve(nil)
}

func (m *Manager) markConnectedLocked() *attempt {
	m.stopTimer(&m.settle)
	m.attempts = 0
	m.lastErr = nil
	a := m.pending
	m.pending = nil
	if m.setStatusLocked(types.StatusConnected) {
		m.logger.Info().Str("user", m.username).Msg("connected")
	}
	return a
}

// fail moves the current attempt to the error state.
func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopTimer(&m.settle)
	m.conn = nil
	a := m.pending
	m.pending = nil
	m.lastErr = err
	m.setStatusLocked(types.StatusError)
	m.mu.Unlock()

	m.handlers.Flush()
	a.resolve(err)
}

// setStatusLocked queues a broadcast only when the status changes.
func (m *Manager) setStatusLocked(status types.Status) bool {
	if m.status == status {
		return false
	}
	m.status = status
	m.handlers.QueueStatus(status)
	return true
}

func (m *Manager) stopTimer(t *stopper) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (m *Manager) write(c types.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(m.now().Add(m.cfg.WriteTimeout))
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// closeNormal sends a normal-closure frame and releases the socket.
func (m *Manager) closeNormal(c types.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.WriteControl(websocket.CloseMessage, msg, m.now().Add(time.Second)); err != nil {
		m.logger.Debug().Err(err).Msg("close frame not sent")
	}
	_ = c.Close()
}
