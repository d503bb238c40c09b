package providers

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/HelloHaruSystem/haru-chat-web/config"
	"github.com/HelloHaruSystem/haru-chat-web/src/bridge"
	"github.com/HelloHaruSystem/haru-chat-web/src/conn"
	"github.com/HelloHaruSystem/haru-chat-web/src/hub"
	"github.com/HelloHaruSystem/haru-chat-web/src/service"
	"github.com/HelloHaruSystem/haru-chat-web/src/session"
	"github.com/rs/zerolog"
)

var (
	// ErrNotActive is returned by operations that need an activated app.
	ErrNotActive = errors.New("chat app not active")
	// ErrRelayUnavailable is returned by Broadcast when no relay is running.
	ErrRelayUnavailable = errors.New("redis relay not available")
)

// App wires the connection manager, the session, the viewer hub and the
// optional Redis relay.
type App struct {
	active   atomic.Bool
	cfg      *config.ClientConfig
	apiCfg   *config.APIConfig
	redisCfg *bridge.RedisConfig
	creds    session.CredentialSource
	logger   zerolog.Logger

	dialer  conn.Dialer
	manager *conn.Manager
	session *session.Session
	hub     *hub.Hub
	service *service.Service
	relay   bridge.Relay
}

// NewApp creates an inactive app. Nil configs fall back to defaults and a
// nil redisCfg disables the relay.
func NewApp(cfg *config.ClientConfig, apiCfg *config.APIConfig, redisCfg *bridge.RedisConfig,
	creds session.CredentialSource, logger zerolog.Logger) *App {
	if cfg == nil {
		cfg = config.DefaultClientConfig()
	}
	if apiCfg == nil {
		apiCfg = config.DefaultAPIConfig()
	}
	return &App{
		cfg:      cfg,
		apiCfg:   apiCfg,
		redisCfg: redisCfg,
		creds:    creds,
		logger:   logger,
	}
}

// ID identifies the app in logs.
func (a *App) ID() string { return "haru/chat" }

// IsActive reports whether Activate succeeded and Deactivate was not called.
func (a *App) IsActive() bool { return a.active.Load() }

// Activate builds the manager, session and hub and starts the hub loop.
func (a *App) Activate() error {
	if a.active.Load() {
		return nil
	}
	if a.dialer == nil {
		a.dialer = conn.NewWebsocketDialer(a.cfg.ConnectTimeout, nil)
	}
	a.manager = conn.New(a.cfg, a.dialer, a.logger)
	a.session = session.New(a.manager, a.creds, a.cfg.ServerURL, a.logger)
	a.session.SetHistoryLimit(a.cfg.HistoryLimit)
	a.hub = hub.New(a.session, a.logger)
	a.service = service.New(a.hub, a.session, a.logger)

	go a.hub.Run()

	// Attempt Redis relay connection (non-fatal if unavailable).
	a.initRelay()

	a.active.Store(true)
	a.logger.Info().Str("app", a.ID()).Str("session_id", a.session.ID()).Msg("chat app activated")
	return nil
}

// initRelay tries to start the Redis relay.
// If Redis is not configured or not reachable, the app runs standalone.
func (a *App) initRelay() {
	if !a.redisCfg.Enabled() {
		return
	}
	rr := bridge.NewRedisRelay(a.redisCfg, a.session, a.logger)
	if err := rr.Start(); err != nil {
		a.logger.Warn().Err(err).Msg("redis relay unavailable, running standalone")
		_ = rr.Stop()
		return
	}
	a.relay = rr
	a.logger.Info().Str("redis_addr", a.redisCfg.Addr).Msg("redis relay connected")
}

// Connect connects the session with the configured credentials.
func (a *App) Connect(ctx context.Context) error {
	if !a.IsActive() {
		return ErrNotActive
	}
	return a.session.Connect(ctx)
}

// Deactivate stops the relay and the hub and disconnects the session.
func (a *App) Deactivate() error {
	if !a.active.Swap(false) {
		return nil
	}
	if a.relay != nil {
		if err := a.relay.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("relay stop error")
		}
		a.relay = nil
	}
	a.hub.Stop()
	a.session.Disconnect()
	a.session.Close()
	a.logger.Info().Str("app", a.ID()).Msg("chat app deactivated")
	return nil
}

// Session returns the chat session. Nil before Activate.
func (a *App) Session() *session.Session { return a.session }

// Service returns the viewer service. Nil before Activate.
func (a *App) Service() *service.Service { return a.service }

// Broadcast asks the other relayed instances to send text.
func (a *App) Broadcast(text string) error {
	if !a.IsActive() {
		return ErrNotActive
	}
	if !a.RelayAvailable() {
		return ErrRelayUnavailable
	}
	return a.relay.Enqueue(text)
}

// RelayAvailable reports whether the Redis relay is running.
func (a *App) RelayAvailable() bool { return a.relay != nil && a.relay.Available() }
