package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Envelope types.
const (
	TypeMessage = "message"
	TypeStatus  = "status"
	TypeSend    = "send"
)

const publishBuffer = 256

var (
	// ErrNotStarted is returned when publishing through a stopped relay.
	ErrNotStarted = errors.New("redis relay not started")
	// ErrEmptyText is returned when enqueueing blank text.
	ErrEmptyText = errors.New("relay text is empty")
)

// envelope wraps a payload with the originating instance ID so that an
// instance can skip its own traffic.
type envelope struct {
	InstanceID string         `json:"instance_id"`
	Type       string         `json:"type"`
	Message    *types.Message `json:"message,omitempty"`
	Status     types.Status   `json:"status,omitempty"`
	Text       string         `json:"text,omitempty"`
}

// RedisRelay publishes session events to Redis and sends texts that other
// instances post to the outbox channel.
type RedisRelay struct {
	client     *redis.Client
	cfg        RedisConfig
	instanceID string
	source     Source
	limiter    *rate.Limiter
	logger     zerolog.Logger

	out    chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisRelay creates a relay for source. Call Start to connect.
func NewRedisRelay(cfg *RedisConfig, source Source, logger zerolog.Logger) *RedisRelay {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	limit := rate.Limit(cfg.SendRate)
	if cfg.SendRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.SendBurst
	if burst < 1 {
		burst = 1
	}

	id := uuid.NewString()
	return &RedisRelay{
		client:     client,
		cfg:        *cfg,
		instanceID: id,
		source:     source,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With().Str("component", "redis-relay").Str("instance_id", id).Logger(),
		out:        make(chan envelope, publishBuffer),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this relay on the bus.
func (r *RedisRelay) InstanceID() string { return r.instanceID }

// Start pings Redis, subscribes to the outbox and to the session.
func (r *RedisRelay) Start() error {
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return err
	}

	channel := r.cfg.OutboxChannel()
	sub := r.client.Subscribe(r.ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(r.ctx); err != nil {
		_ = sub.Close()
		return err
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	r.wg.Add(2)
	go r.listen(sub)
	go r.publishLoop()
	r.source.Subscribe(r)

	r.logger.Info().
		Str("outbox", channel).
		Str("events", r.cfg.EventsChannel()).
		Msg("redis relay started")
	return nil
}

// Stop unsubscribes and closes the Redis connection.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	wasActive := r.active
	r.active = false
	r.mu.Unlock()

	if wasActive {
		r.source.Unsubscribe(r)
	}
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}

// Available reports whether the relay is running.
func (r *RedisRelay) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Enqueue posts text to the outbox for other instances to send.
func (r *RedisRelay) Enqueue(text string) error {
	data, err := r.outboxPayload(text)
	if err != nil {
		return err
	}
	if !r.Available() {
		return ErrNotStarted
	}
	return r.client.Publish(r.ctx, r.cfg.OutboxChannel(), data).Err()
}

func (r *RedisRelay) outboxPayload(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	return json.Marshal(envelope{InstanceID: r.instanceID, Type: TypeSend, Text: text})
}

// HandleMessage implements session.Listener.
func (r *RedisRelay) HandleMessage(msg types.Message) {
	r.queue(envelope{InstanceID: r.instanceID, Type: TypeMessage, Message: &msg})
}

// HandleStatus implements session.Listener.
func (r *RedisRelay) HandleStatus(status types.Status) {
	r.queue(envelope{InstanceID: r.instanceID, Type: TypeStatus, Status: status})
}

// queue hands env to the publisher without blocking session fan-out.
func (r *RedisRelay) queue(env envelope) {
	if !r.Available() {
		return
	}
	select {
	case r.out <- env:
	default:
		r.logger.Warn().Str("type", env.Type).Msg("publish buffer full, dropping event")
	}
}

func (r *RedisRelay) publishLoop() {
	defer r.wg.Done()
	channel := r.cfg.EventsChannel()
	for {
		select {
		case env := <-r.out:
			data, err := json.Marshal(env)
			if err != nil {
				r.logger.Error().Err(err).Msg("failed to encode event")
				continue
			}
			if err := r.client.Publish(r.ctx, channel, data).Err(); err != nil && r.ctx.Err() == nil {
				r.logger.Error().Err(err).Str("type", env.Type).Msg("failed to publish event")
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// listen reads the outbox subscription until the relay stops.
func (r *RedisRelay) listen(sub *redis.PubSub) {
	defer r.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleOutbox([]byte(msg.Payload))
		case <-r.ctx.Done():
			return
		}
	}
}

// handleOutbox sends texts posted by other instances, rate limited.
func (r *RedisRelay) handleOutbox(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode outbox envelope")
		return
	}
	if env.InstanceID == r.instanceID || env.Type != TypeSend {
		return
	}
	text := strings.TrimSpace(env.Text)
	if text == "" {
		return
	}

	if err := r.limiter.Wait(r.ctx); err != nil {
		return
	}
	if !r.source.SendMessage(text) {
		r.logger.Warn().Str("from_instance", env.InstanceID).Msg("outbox text not sent")
		return
	}
	r.logger.Debug().Str("from_instance", env.InstanceID).Msg("relayed outbox text")
}
