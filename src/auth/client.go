// Package auth obtains chat tokens from the HTTP login endpoint.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a login request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

var (
	// ErrLoginFailed is returned when the server refuses the credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrInvalidRequest is returned when username or password is missing.
	ErrInvalidRequest = errors.New("invalid login request")
)

// Credentials is the result of a successful login.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

// Credentials returns the username and token, making Credentials usable as a
// session credential source.
func (c Credentials) Credentials() (string, string) { return c.Username, c.Token }

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

// Client talks to the auth endpoint.
type Client struct {
	url      string
	http     *fasthttp.Client
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewClient creates a client for authURL.
func NewClient(authURL string, logger zerolog.Logger) *Client {
	return &Client{
		url:      authURL,
		http:     &fasthttp.Client{Name: "haru-chat"},
		validate: validator.New(),
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Login exchanges a username and password for a token.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	body := loginRequest{Username: strings.TrimSpace(username), Password: password}
	if err := c.validate.Struct(body); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Credentials{}, fmt.Errorf("encode login request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return Credentials{}, fmt.Errorf("login request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	var out loginResponse
	status := resp.StatusCode()
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &out); err != nil && status < 300 {
			return Credentials{}, fmt.Errorf("decode login response: %w", err)
		}
	}

	if status < 200 || status >= 300 {
		reason := out.Error
		if reason == "" {
			reason = out.Message
		}
		if reason == "" {
			reason = fasthttp.StatusMessage(status)
		}
		c.logger.Warn().Int("status", status).Str("user", body.Username).Msg("login refused")
		return Credentials{}, fmt.Errorf("%w: %s", ErrLoginFailed, reason)
	}

	creds := Credentials{Username: out.Username, Token: out.Token}
	if creds.Username == "" {
		creds.Username = body.Username
	}
	if err := c.validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: response carried no token", ErrLoginFailed)
	}
	c.logger.Info().Str("user", creds.Username).Msg("logged in")
	return creds, nil
}
