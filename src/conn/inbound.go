package conn

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/frame"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/samber/lo"
)

// readLoop reads frames until the socket fails or closes.
func (m *Manager) readLoop(gen uint64, c types.Conn) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			m.handleClose(gen, c, err)
			return
		}
		m.handleFrame(gen, data)
	}
}

func (m *Manager) handleFrame(gen uint64, data []byte) {
	now := m.now()

	m.mu.Lock()
	if gen != m.gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	// failure markers only count as a rejection before the session settles
	var msg types.Message
	if m.status == types.StatusConnecting {
		msg = frame.DecodeHandshake(data, now)
	} else {
		msg = frame.Decode(data, now)
	}

	if msg.Kind == types.KindChat && msg.Sender == m.username {
		msg.FromCurrentUser = true
		if m.echoes.IsEcho(msg.Content, now) {
			m.mu.Unlock()
			m.logger.Debug().Str("content", msg.Content).Msg("echo suppressed")
			return
		}
	}

	var (
		resolved *attempt
		rejected types.Conn
	)
	switch msg.Event {
	case types.EventAuthOK:
		if m.status == types.StatusConnecting {
			resolved = m.markConnectedLocked()
		}
	case types.EventAuthFailed:
		if m.status == types.StatusConnecting {
			rejected = m.conn
			m.conn = nil
			m.gen++
			m.stopTimer(&m.settle)
			resolved = m.pending
			m.pending = nil
			m.lastErr = fmt.Errorf("%w: %s", ErrAuthRejected, msg.Content)
			m.setStatusLocked(types.StatusError)
		}
	case types.EventJoin:
		if name, ok := frame.JoinedUser(msg.Content); ok {
			m.addUserLocked(name)
		}
	case types.EventLeave:
		if name, ok := frame.LeftUser(msg.Content); ok {
			m.users = lo.Without(m.users, name)
		}
	}
	m.handlers.QueueMessage(msg)
	attemptErr := m.lastErr
	m.mu.Unlock()

	m.handlers.Flush()
	if rejected != nil {
		m.logger.Warn().Str("reason", msg.Content).Msg("authentication rejected")
		m.closeNormal(rejected)
		resolved.resolve(attemptErr)
		return
	}
	resolved.resolve(nil)
}

// handleClose applies the closure policy: a normal closure ends the session,
// anything else schedules a reconnect while attempts remain.
func (m *Manager) handleClose(gen uint64, c types.Conn, err error) {
	code := closeCode(err)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = c.Close()
		return
	}
	m.stopTimer(&m.settle)
	m.conn = nil
	m.users = nil
	a := m.pending
	m.pending = nil
	if a != nil {
		m.lastErr = fmt.Errorf("%w: closed with code %d before the session settled", ErrTransport, code)
	}
	m.setStatusLocked(types.StatusDisconnected)

	log := m.logger.With().Int("code", code).Uint64("gen", gen).Logger()
	if isNormalClosure(err) {
		log.Info().Msg("server closed the connection")
	} else if m.attempts < m.cfg.MaxReconnectAttempts {
		m.attempts++
		delay := m.cfg.ReconnectBaseDelay * time.Duration(m.attempts)
		m.reconnect = m.schedule(delay, func() { m.reconnectNow(gen) })
		log.Warn().Err(err).Int("attempt", m.attempts).Dur("delay", delay).Msg("connection lost, reconnect scheduled")
	} else {
		log.Warn().Err(err).Int("max_attempts", m.cfg.MaxReconnectAttempts).Msg("connection lost, reconnect attempts exhausted")
	}
	attemptErr := m.lastErr
	m.mu.Unlock()

	_ = c.Close()
	m.handlers.Flush()
	a.resolve(attemptErr)
}

// reconnectNow re-dials with the stored url and credentials unless the
// session moved on since the closure that scheduled it.
func (m *Manager) reconnectNow(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.status != types.StatusDisconnected {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	a, next := m.beginLocked()
	attempt := m.attempts
	m.mu.Unlock()
	m.handlers.Flush()

	m.logger.Info().Int("attempt", attempt).Msg("reconnecting")
	if err := m.open(context.Background(), next, a); err != nil {
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
	}
}

func (m *Manager) addUserLocked(name string) {
	if lo.Contains(m.users, name) {
		return
	}
	m.users = append(m.users, name)
	sort.Strings(m.users)
}
