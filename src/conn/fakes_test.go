package conn

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/config"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

// fakeConn implements types.Conn for testing without a real WebSocket.
type fakeConn struct {
	mu        sync.Mutex
	written   []string
	controls  [][]byte
	writeErr  error
	frames    chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:  make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return websocket.TextMessage, data, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, data)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(frame string) {
	c.frames <- []byte(frame)
}

// serverClose simulates the server closing with code.
func (c *fakeConn) serverClose(code int) {
	c.readErr <- &websocket.CloseError{Code: code}
}

func (c *fakeConn) getWritten() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]string, len(c.written))
	copy(cp, c.written)
	return cp
}

func (c *fakeConn) getControls() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([][]byte, len(c.controls))
	copy(cp, c.controls)
	return cp
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out fakeConns. A non-nil gate holds every dial until it
// is closed or the dial context ends.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (types.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate, err := d.gate, d.err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeClock runs settle timers for real and records every other timer so
// reconnect delays can be asserted and fired by hand.
type fakeClock struct {
	settle time.Duration

	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (c *fakeClock) schedule(d time.Duration, fn func()) stopper {
	if d == c.settle {
		return time.AfterFunc(d, fn)
	}
	t := &fakeTimer{delay: d, fn: fn}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

func (c *fakeClock) lastTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// fireLast runs the newest recorded timer on its own goroutine, as a real
// timer would.
func (c *fakeClock) fireLast() {
	t := c.lastTimer()
	if t != nil {
		go t.fn()
	}
}

// recorder collects deliveries from the manager.
type recorder struct {
	mu       sync.Mutex
	messages []types.Message
	statuses []types.Status
}

func (r *recorder) HandleMessage(msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) HandleStatus(status types.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) getMessages() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]types.Message, len(r.messages))
	copy(cp, r.messages)
	return cp
}

func (r *recorder) getStatuses() []types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]types.Status, len(r.statuses))
	copy(cp, r.statuses)
	return cp
}

func testConfig() *config.ClientConfig {
	cfg := config.DefaultClientConfig()
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.ConnectTimeout = 100 * time.Millisecond
	return cfg
}

// newTestManager creates a manager on a fake dialer and clock.
func newTestManager(t *testing.T, cfg *config.ClientConfig, d *fakeDialer) (*Manager, *fakeClock) {
	t.Helper()
	m := New(cfg, d, zerolog.Nop())
	clock := &fakeClock{settle: cfg.SettleDelay}
	m.schedule = clock.schedule
	t.Cleanup(m.Disconnect)
	return m, clock
}

const (
	testURL   = "ws://chat.test/ws"
	testUser  = "alice"
	testToken = "tok-123"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond
