package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/types"
	"github.com/fasthttp/websocket"
)

// Dialer opens a transport to the chat server.
type Dialer interface {
	Dial(ctx context.Context, url string) (types.Conn, error)
}

// WebsocketDialer dials the chat server with fasthttp/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer creates a dialer. header may be nil.
func NewWebsocketDialer(handshakeTimeout time.Duration, header http.Header) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header: header,
	}
}

// Dial performs the websocket handshake.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (types.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// closeCode extracts the close code carried by a read error. Errors that are
// not close frames count as abnormal closures.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// isNormalClosure reports whether err is a close frame with code 1000.
func isNormalClosure(err error) bool {
	return closeCode(err) == websocket.CloseNormalClosure
}
