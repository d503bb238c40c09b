package bridge

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// RedisConfig holds connection settings for the Redis relay.
type RedisConfig struct {
	// Addr is the Redis address; empty disables the relay.
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_CHAT_PREFIX" envDefault:"haruchat:"`

	// SendRate and SendBurst limit how fast outbox texts reach the chat.
	SendRate  float64 `env:"REDIS_OUTBOX_RATE" envDefault:"5"`
	SendBurst int     `env:"REDIS_OUTBOX_BURST" envDefault:"10"`
}

// DefaultRedisConfig returns a disabled RedisConfig with default channels.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Prefix:    "haruchat:",
		SendRate:  5,
		SendBurst: 10,
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
func RedisConfigFromEnv() (*RedisConfig, error) {
	cfg := DefaultRedisConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse redis config: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c != nil && c.Addr != ""
}

// EventsChannel carries session events published by every instance.
func (c *RedisConfig) EventsChannel() string { return c.Prefix + "events" }

// OutboxChannel carries texts for instances to send.
func (c *RedisConfig) OutboxChannel() string { return c.Prefix + "outbox" }
