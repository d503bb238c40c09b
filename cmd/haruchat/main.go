package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/config"
	"github.com/HelloHaruSystem/haru-chat-web/providers"
	"github.com/HelloHaruSystem/haru-chat-web/src/auth"
	"github.com/HelloHaruSystem/haru-chat-web/src/bridge"
	"github.com/HelloHaruSystem/haru-chat-web/src/session"
	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.ClientConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	apiCfg, err := config.APIConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load api configuration")
	}
	redisCfg, err := bridge.RedisConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load redis configuration")
	}

	creds, err := credentials(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("login failed")
	}

	app := providers.NewApp(cfg, apiCfg, redisCfg, creds, logger)
	if err := app.Activate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat")
	}
	defer func() { _ = app.Deactivate() }()

	if apiCfg.Enabled {
		srv := startAPI(app, apiCfg, logger)
		defer func() { _ = srv.Shutdown() }()
	}

	printer := &printer{}
	app.Session().Subscribe(printer)

	if err := app.Connect(ctx); err != nil {
		logger.Error().Err(err).Msg("could not connect, use /reconnect to retry")
	}

	repl(ctx, app)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

// credentials uses CHAT_TOKEN when set, otherwise logs in with the
// configured password.
func credentials(ctx context.Context, cfg *config.ClientConfig, logger zerolog.Logger) (session.CredentialSource, error) {
	if cfg.Token != "" {
		return session.StaticCredentials{Username: cfg.Username, Token: cfg.Token}, nil
	}
	if cfg.Username == "" || cfg.Password == "" {
		return session.StaticCredentials{}, nil
	}
	loginCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	return auth.NewClient(cfg.AuthURL, logger).Login(loginCtx, cfg.Username, cfg.Password)
}

func startAPI(app *providers.App, apiCfg *config.APIConfig, logger zerolog.Logger) *fasthttp.Server {
	srv := &fasthttp.Server{
		Name:    "haru-chat",
		Handler: app.Handler(app.NewFiberApp()),
	}
	go func() {
		logger.Info().Str("addr", apiCfg.Addr).Msg("local api listening")
		if err := srv.ListenAndServe(apiCfg.Addr); err != nil {
			logger.Error().Err(err).Msg("local api stopped")
		}
	}()
	return srv
}

func repl(ctx context.Context, app *providers.App) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			res, err := app.RunCommand(ctx, line)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			if res.Quit {
				return
			}
			if res.Handled {
				if res.Output != "" {
					fmt.Println(res.Output)
				}
				continue
			}
			if !app.Session().SendMessage(line) {
				fmt.Println("! not connected, message not sent")
			}
		}
	}
}

// printer renders session events on stdout.
type printer struct{}

func (*printer) HandleMessage(msg types.Message) {
	ts := msg.Timestamp.Format("15:04")
	switch {
	case msg.Kind == types.KindSystem:
		fmt.Printf("[%s] * %s\n", ts, msg.Content)
	case msg.FromCurrentUser:
		fmt.Printf("[%s] you: %s\n", ts, msg.Content)
	default:
		fmt.Printf("[%s] %s: %s\n", ts, msg.Sender, msg.Content)
	}
}

func (*printer) HandleStatus(status types.Status) {
	fmt.Printf("-- %s --\n", status)
}
