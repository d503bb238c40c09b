// Package registry keeps the message and status subscribers of a chat
// connection and fans events out to them.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/rs/zerolog"
)

// ErrHandlerFailure marks a subscriber that panicked during delivery.
var ErrHandlerFailure = errors.New("handler failure")

// Registry delivers events to every registered handler. Deliveries are
// serialized: a notification raised while another one is running (from a
// handler or another goroutine) is queued and delivered after it.
type Registry struct {
	messages *Set[types.MessageHandler]
	statuses *Set[types.StatusHandler]
	logger   zerolog.Logger
	failures atomic.Int64

	mu       sync.Mutex
	queue    []func()
	draining bool
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		messages: NewSet[types.MessageHandler](),
		statuses: NewSet[types.StatusHandler](),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// AddMessageHandler registers h once.
func (r *Registry) AddMessageHandler(h types.MessageHandler) bool {
	ok := r.messages.Add(h)
	if !ok {
		r.logger.Debug().Msg("message handler not added")
	}
	return ok
}

// RemoveMessageHandler unregisters h.
func (r *Registry) RemoveMessageHandler(h types.MessageHandler) bool {
	return r.messages.Remove(h)
}

// AddStatusHandler registers h once.
func (r *Registry) AddStatusHandler(h types.StatusHandler) bool {
	ok := r.statuses.Add(h)
	if !ok {
		r.logger.Debug().Msg("status handler not added")
	}
	return ok
}

// RemoveStatusHandler unregisters h.
func (r *Registry) RemoveStatusHandler(h types.StatusHandler) bool {
	return r.statuses.Remove(h)
}

// MessageHandlers returns the registered message handlers.
func (r *Registry) MessageHandlers() []types.MessageHandler {
	return r.messages.Snapshot()
}

// StatusHandlers returns the registered status handlers.
func (r *Registry) StatusHandlers() []types.StatusHandler {
	return r.statuses.Snapshot()
}

// NotifyMessage delivers msg to every message handler.
func (r *Registry) NotifyMessage(msg types.Message) {
	r.QueueMessage(msg)
	r.Flush()
}

// NotifyStatus delivers status to every status handler.
func (r *Registry) NotifyStatus(status types.Status) {
	r.QueueStatus(status)
	r.Flush()
}

// Replay delivers status to a single handler, in order with other deliveries.
// When another goroutine is draining, the delivery is left to it.
func (r *Registry) Replay(h types.StatusHandler, status types.Status) {
	r.QueueReplay(h, status)
	r.Flush()
}

// QueueMessage schedules a message delivery without running it.
// Callers holding their own lock queue under it and Flush after releasing
// it, which keeps deliveries in lock order.
func (r *Registry) QueueMessage(msg types.Message) {
	r.enqueue(func() {
		for _, h := range r.messages.Snapshot() {
			r.invoke("message", func() { h.HandleMessage(msg) })
		}
	})
}

// QueueStatus schedules a status delivery without running it.
func (r *Registry) QueueStatus(status types.Status) {
	r.enqueue(func() {
		for _, h := range r.statuses.Snapshot() {
			r.invoke("status", func() { h.HandleStatus(status) })
		}
	})
}

// QueueReplay schedules a status delivery to h alone.
func (r *Registry) QueueReplay(h types.StatusHandler, status types.Status) {
	r.enqueue(func() {
		r.invoke("status", func() { h.HandleStatus(status) })
	})
}

// Flush runs queued deliveries unless another goroutine is already running
// them, in which case that goroutine picks them up.
func (r *Registry) Flush() {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	for len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		next()
		r.mu.Lock()
	}
	r.draining = false
	r.mu.Unlock()
}

// Failures returns how many handler invocations panicked.
func (r *Registry) Failures() int64 {
	return r.failures.Load()
}

func (r *Registry) enqueue(job func()) {
	r.mu.Lock()
	r.queue = append(r.queue, job)
	r.mu.Unlock()
}

func (r *Registry) invoke(class string, call func()) {
	defer func() {
		if p := recover(); p != nil {
			r.failures.Add(1)
			r.logger.Error().
				Err(fmt.Errorf("%w: %v", ErrHandlerFailure, p)).
				Str("class", class).
				Msg("handler panicked")
		}
	}()
	call()
}

type messageFunc struct {
	fn func(types.Message)
}

func (f *messageFunc) HandleMessage(msg types.Message) { f.fn(msg) }

// MessageFunc wraps fn in a handler with its own identity.
func MessageFunc(fn func(types.Message)) types.MessageHandler {
	return &messageFunc{fn: fn}
}

type statusFunc struct {
	fn func(types.Status)
}

func (f *statusFunc) HandleStatus(status types.Status) { f.fn(status) }

// StatusFunc wraps fn in a handler with its own identity.
func StatusFunc(fn func(types.Status)) types.StatusHandler {
	return &statusFunc{fn: fn}
}
