package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig holds chat client configuration.
type ClientConfig struct {
	ServerURL            string        `env:"CHAT_SERVER_URL" envDefault:"ws://localhost:8080/chat" json:"server_url"`
	AuthURL              string        `env:"CHAT_AUTH_URL" envDefault:"http://localhost:3000/api/auth" json:"auth_url"`
	Username             string        `env:"CHAT_USERNAME" json:"username"`
	Password             string        `env:"CHAT_PASSWORD" json:"-"`
	Token                string        `env:"CHAT_TOKEN" json:"-"`
	ConnectTimeout       time.Duration `env:"CHAT_CONNECT_TIMEOUT" envDefault:"10s" json:"connect_timeout"`
	SettleDelay          time.Duration `env:"CHAT_SETTLE_DELAY" envDefault:"300ms" json:"settle_delay"`
	ReconnectBaseDelay   time.Duration `env:"CHAT_RECONNECT_DELAY" envDefault:"1s" json:"reconnect_base_delay"`
	MaxReconnectAttempts int           `env:"CHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"5" json:"max_reconnect_attempts"`
	EchoWindow           time.Duration `env:"CHAT_ECHO_WINDOW" envDefault:"5s" json:"echo_window"`
	EchoRetention        time.Duration `env:"CHAT_ECHO_RETENTION" envDefault:"10s" json:"echo_retention"`
	WriteTimeout         time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"10s" json:"write_timeout"`
	HistoryLimit         int           `env:"CHAT_HISTORY_LIMIT" envDefault:"500" json:"history_limit"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info" json:"log_level"`
}

// APIConfig holds the local HTTP API configuration.
type APIConfig struct {
	Enabled         bool   `env:"CHAT_API_ENABLED" envDefault:"false" json:"enabled"`
	Addr            string `env:"CHAT_API_ADDR" envDefault:"127.0.0.1:7070" json:"addr"`
	ReadBufferSize  int    `env:"CHAT_API_READ_BUFFER" envDefault:"1024" json:"read_buffer_size"`
	WriteBufferSize int    `env:"CHAT_API_WRITE_BUFFER" envDefault:"1024" json:"write_buffer_size"`
}

// DefaultClientConfig returns the default chat client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:            "ws://localhost:8080/chat",
		AuthURL:              "http://localhost:3000/api/auth",
		ConnectTimeout:       10 * time.Second,
		SettleDelay:          300 * time.Millisecond,
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
		EchoWindow:           5 * time.Second,
		EchoRetention:        10 * time.Second,
		WriteTimeout:         10 * time.Second,
		HistoryLimit:         500,
		LogLevel:             "info",
	}
}

// DefaultAPIConfig returns the default local API configuration.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Addr:            "127.0.0.1:7070",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// ClientConfigFromEnv loads the client configuration from environment variables.
func ClientConfigFromEnv() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client env: %w", err)
	}
	if cfg.MaxReconnectAttempts < 0 {
		return nil, fmt.Errorf("invalid CHAT_MAX_RECONNECT_ATTEMPTS %d", cfg.MaxReconnectAttempts)
	}
	return cfg, nil
}

// APIConfigFromEnv loads the local API configuration from environment variables.
func APIConfigFromEnv() (*APIConfig, error) {
	cfg := &APIConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse api env: %w", err)
	}
	return cfg, nil
}
