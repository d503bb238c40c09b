package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/HelloHaruSystem/haru-chat-web/src/bridge"
	"github.com/HelloHaruSystem/haru-chat-web/src/hub"
	"github.com/HelloHaruSystem/haru-chat-web/src/session"
	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// WSPath is where viewers open the live event stream.
const WSPath = "/ws"

type sendRequest struct {
	Content string `json:"content"`
}

// NewFiberApp creates a fiber app with the API mounted under /api.
func (a *App) NewFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{AppName: "haru-chat"})
	a.RegisterRoutes(app.Group("/api"))
	return app
}

// RegisterRoutes registers the local API routes via Fiber.
// The WebSocket upgrade uses FastHTTPHandler, registered at the server
// level since Fiber v3 does not expose *fasthttp.RequestCtx.
func (a *App) RegisterRoutes(group fiber.Router) {
	group.Get("/status", a.handleStatus)
	group.Get("/messages", a.handleMessages)
	group.Get("/users", a.handleUsers)
	group.Post("/messages", a.handleSend)
	group.Post("/connect", a.handleConnect)
	group.Post("/disconnect", a.handleDisconnect)
	group.Post("/clear", a.handleClear)
	group.Post("/relay", a.handleRelay)
}

func (a *App) handleStatus(c fiber.Ctx) error {
	if !a.IsActive() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNotActive.Error()})
	}
	s := a.session
	return c.JSON(fiber.Map{
		"status":     s.Status(),
		"connected":  s.IsConnected(),
		"users":      len(s.ActiveUsers()),
		"error":      s.Err(),
		"session_id": s.ID(),
		"viewers":    len(a.service.Viewers()),
		"relay":      a.RelayAvailable(),
		"endpoint":   WSPath,
	})
}

func (a *App) handleMessages(c fiber.Ctx) error {
	if !a.IsActive() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNotActive.Error()})
	}
	msgs := a.session.Messages()
	return c.JSON(fiber.Map{"messages": msgs, "count": len(msgs)})
}

func (a *App) handleUsers(c fiber.Ctx) error {
	if !a.IsActive() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNotActive.Error()})
	}
	users := a.session.ActiveUsers()
	return c.JSON(fiber.Map{"users": users, "count": len(users)})
}

func (a *App) handleSend(c fiber.Ctx) error {
	if !a.IsActive() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNotActive.Error()})
	}
	var req sendRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}
	if !a.session.SendMessage(req.Content) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"sent": false, "status": a.session.Status()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"sent": true})
}

func (a *App) handleConnect(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ConnectTimeout+a.cfg.SettleDelay)
	defer cancel()

	err := a.Connect(ctx)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"status": a.session.Status()})
	case errors.Is(err, ErrNotActive):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, session.ErrAuthRequired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": a.session.Err()})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  a.session.Err(),
			"detail": err.Error(),
			"status": a.session.Status(),
		})
	}
}

func (a *App) handleDisconnect(c fiber.Ctx) error {
	if !a.IsActive() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNotActive.Error()})
	}
	a.session.Disconnect()
	return c.JSON(fiber.Map{"status": a.session.Status()})
}

func (a *App) handleClear(c fiber.Ctx) error {
	if !a.IsActive() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": ErrNotActive.Error()})
	}
	a.session.ClearMessages()
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *App) handleRelay(c fiber.Ctx) error {
	var req sendRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	err := a.Broadcast(req.Content)
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
	case errors.Is(err, bridge.ErrEmptyText):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrRelayUnavailable), errors.Is(err, bridge.ErrNotStarted):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		a.logger.Error().Err(err).Msg("relay publish failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
}

// FastHTTPHandler returns a raw fasthttp handler for viewer WebSocket
// upgrades. Register it on the fasthttp server at WSPath.
func (a *App) FastHTTPHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  a.apiCfg.ReadBufferSize,
		WriteBufferSize: a.apiCfg.WriteBufferSize,
	}
	return func(ctx *fasthttp.RequestCtx) {
		if !a.IsActive() {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		clientID := uuid.New().String()
		h := a.hub
		err := upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
			client := hub.NewClient(clientID, ws, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			a.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// Handler serves the event stream at WSPath and everything else through app.
func (a *App) Handler(app *fiber.App) fasthttp.RequestHandler {
	api := app.Handler()
	ws := a.FastHTTPHandler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == WSPath {
			ws(ctx)
			return
		}
		api(ctx)
	}
}
