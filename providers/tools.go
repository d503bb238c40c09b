package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Command is a slash command available in the terminal client.
type Command struct {
	Name        string
	Description string
	Handler     func(ctx context.Context, args string) (string, error)
}

// CommandResult is the outcome of a terminal input line.
type CommandResult struct {
	Output  string
	Quit    bool
	Handled bool
}

// Commands returns the slash commands the terminal client understands.
func (a *App) Commands() []Command {
	return []Command{
		{Name: "/users", Description: "List users currently in the chat", Handler: a.cmdUsers},
		{Name: "/clear", Description: "Clear the message history", Handler: a.cmdClear},
		{Name: "/status", Description: "Show the connection status", Handler: a.cmdStatus},
		{Name: "/reconnect", Description: "Drop the connection and connect again", Handler: a.cmdReconnect},
		{Name: "/relay", Description: "Ask the other relayed clients to send a message", Handler: a.cmdRelay},
		{Name: "/quit", Description: "Disconnect and exit", Handler: nil},
		{Name: "/help", Description: "Show this help", Handler: a.cmdHelp},
	}
}

// RunCommand runs line when it is a slash command. Lines that are not
// commands come back with Handled false so the caller can send them.
func (a *App) RunCommand(ctx context.Context, line string) (CommandResult, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return CommandResult{}, nil
	}
	name, args, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)

	cmd, ok := lo.Find(a.Commands(), func(c Command) bool { return c.Name == name })
	if !ok {
		return CommandResult{Handled: true}, fmt.Errorf("unknown command %s, try /help", name)
	}
	if cmd.Name == "/quit" {
		return CommandResult{Handled: true, Quit: true}, nil
	}
	if !a.IsActive() {
		return CommandResult{Handled: true}, ErrNotActive
	}
	out, err := cmd.Handler(ctx, strings.TrimSpace(args))
	return CommandResult{Output: out, Handled: true}, err
}

func (a *App) cmdUsers(_ context.Context, _ string) (string, error) {
	users := a.session.ActiveUsers()
	if len(users) == 0 {
		return "No other users online.", nil
	}
	return fmt.Sprintf("Online (%d): %s", len(users), strings.Join(users, ", ")), nil
}

func (a *App) cmdClear(_ context.Context, _ string) (string, error) {
	a.session.ClearMessages()
	return "", nil
}

func (a *App) cmdStatus(_ context.Context, _ string) (string, error) {
	s := a.session
	out := fmt.Sprintf("Status: %s, users: %d", s.Status(), len(s.ActiveUsers()))
	if e := s.Err(); e != "" {
		out += ", error: " + e
	}
	if a.RelayAvailable() {
		out += ", relay: on"
	}
	return out, nil
}

func (a *App) cmdReconnect(ctx context.Context, _ string) (string, error) {
	a.manager.Disconnect()
	if err := a.session.Connect(ctx); err != nil {
		return "", err
	}
	return "Reconnected.", nil
}

func (a *App) cmdRelay(_ context.Context, args string) (string, error) {
	if err := a.Broadcast(args); err != nil {
		return "", err
	}
	return "Queued for relayed clients.", nil
}

func (a *App) cmdHelp(_ context.Context, _ string) (string, error) {
	lines := lo.Map(a.Commands(), func(c Command, _ int) string {
		return fmt.Sprintf("  %-11s %s", c.Name, c.Description)
	})
	return "Commands:\n" + strings.Join(lines, "\n"), nil
}
