package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/session"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockSource records what the relay sends and subscribes.
type mockSource struct {
	mu        sync.Mutex
	sent      []string
	listeners []session.Listener
	refuse    bool
}

func (m *mockSource) Subscribe(l session.Listener) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
	return true
}

func (m *mockSource) Unsubscribe(session.Listener) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = nil
	return true
}

func (m *mockSource) SendMessage(content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return false
	}
	m.sent = append(m.sent, content)
	return true
}

func (m *mockSource) getSent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func outbox(t *testing.T, instance, typ, text string) []byte {
	t.Helper()
	data, err := json.Marshal(envelope{InstanceID: instance, Type: typ, Text: text})
	require.NoError(t, err)
	return data
}

func TestEnvelopeEncoding(t *testing.T) {
	msg := types.Message{
		Kind:      types.KindChat,
		Sender:    "bob",
		Content:   "hi",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(envelope{InstanceID: "node-1", Type: TypeMessage, Message: &msg})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "node-1", raw["instance_id"])
	assert.Equal(t, "message", raw["type"])
	assert.NotContains(t, raw, "status")
	inner := raw["message"].(map[string]any)
	assert.Equal(t, "chat", inner["type"])
	assert.Equal(t, "bob", inner["sender"])

	data, err = json.Marshal(envelope{InstanceID: "node-1", Type: TypeStatus, Status: types.StatusConnected})
	require.NoError(t, err)
	assert.JSONEq(t, `{"instance_id":"node-1","type":"status","status":"connected"}`, string(data))
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Empty(t, cfg.Addr)
	assert.False(t, cfg.Enabled())
	assert.Equal(t, "haruchat:", cfg.Prefix)
	assert.Equal(t, "haruchat:events", cfg.EventsChannel())
	assert.Equal(t, "haruchat:outbox", cfg.OutboxChannel())
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_CHAT_PREFIX", "test:chat:")

	cfg, err := RedisConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:chat:events", cfg.EventsChannel())
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := RedisConfigFromEnv()
	assert.Error(t, err)
}

func TestRelayNotAvailableBeforeStart(t *testing.T) {
	r := NewRedisRelay(DefaultRedisConfig(), &mockSource{}, zerolog.Nop())
	assert.False(t, r.Available())
	assert.ErrorIs(t, r.Enqueue("hi"), ErrNotStarted)
	assert.ErrorIs(t, r.Enqueue("   "), ErrEmptyText)

	// events are dropped, not buffered, while stopped
	r.HandleStatus(types.StatusConnected)
	assert.Empty(t, r.out)
}

func TestOutboxPayloadRoundTripsThroughOtherInstance(t *testing.T) {
	sender := NewRedisRelay(DefaultRedisConfig(), &mockSource{}, zerolog.Nop())
	data, err := sender.outboxPayload("  deploy done ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"instance_id":"`+sender.InstanceID()+`","type":"send","text":"deploy done"}`, string(data))

	// the sender ignores its own outbox entry, another instance sends it
	own := &mockSource{}
	sender.source = own
	sender.handleOutbox(data)
	assert.Empty(t, own.getSent())

	src := &mockSource{}
	other := NewRedisRelay(DefaultRedisConfig(), src, zerolog.Nop())
	other.handleOutbox(data)
	assert.Equal(t, []string{"deploy done"}, src.getSent())
}

func TestRelayInstanceIDUnique(t *testing.T) {
	r1 := NewRedisRelay(DefaultRedisConfig(), &mockSource{}, zerolog.Nop())
	r2 := NewRedisRelay(DefaultRedisConfig(), &mockSource{}, zerolog.Nop())
	assert.NotEqual(t, r1.InstanceID(), r2.InstanceID())
}

func TestRelayStartFailsWithoutRedis(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	src := &mockSource{}
	r := NewRedisRelay(cfg, src, zerolog.Nop())

	require.Error(t, r.Start())
	assert.False(t, r.Available())
	assert.Empty(t, src.listeners)
	require.NoError(t, r.Stop())
}

func TestHandleOutboxSendsForeignText(t *testing.T) {
	src := &mockSource{}
	r := NewRedisRelay(DefaultRedisConfig(), src, zerolog.Nop())

	r.handleOutbox(outbox(t, "other", TypeSend, "  hello  "))
	assert.Equal(t, []string{"hello"}, src.getSent())
}

func TestHandleOutboxSkipsOwnAndInvalid(t *testing.T) {
	src := &mockSource{}
	r := NewRedisRelay(DefaultRedisConfig(), src, zerolog.Nop())

	r.handleOutbox(outbox(t, r.InstanceID(), TypeSend, "mine"))
	r.handleOutbox(outbox(t, "other", TypeStatus, "not a send"))
	r.handleOutbox(outbox(t, "other", TypeSend, "   "))
	r.handleOutbox([]byte("{not json"))

	assert.Empty(t, src.getSent())
}

func TestHandleOutboxRefusedSend(t *testing.T) {
	src := &mockSource{refuse: true}
	r := NewRedisRelay(DefaultRedisConfig(), src, zerolog.Nop())

	r.handleOutbox(outbox(t, "other", TypeSend, "hello"))
	assert.Empty(t, src.getSent())
}

func TestHandleOutboxIsRateLimited(t *testing.T) {
	src := &mockSource{}
	r := NewRedisRelay(DefaultRedisConfig(), src, zerolog.Nop())
	r.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	r.handleOutbox(outbox(t, "other", TypeSend, "first"))

	done := make(chan struct{})
	go func() {
		r.handleOutbox(outbox(t, "other", TypeSend, "second"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second text should wait for the limiter")
	case <-time.After(50 * time.Millisecond):
	}

	// stopping the relay releases the waiter without sending
	r.cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	assert.Equal(t, []string{"first"}, src.getSent())
	_ = r.client.Close()
}

func TestPublishLoopStopsOnCancel(t *testing.T) {
	r := NewRedisRelay(DefaultRedisConfig(), &mockSource{}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r.wg.Add(1)
	go r.publishLoop()
	r.cancel()

	done := make(chan struct{})
	go func() { r.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("publish loop did not stop")
	}
	_ = r.client.Close()
}
