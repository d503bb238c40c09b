package hub

import (
	"sync"
	"time"

	"github.com/HelloHaruSystem/haru-chat-web/src/types"
)

const sendBuffer = 256

// Client wraps one viewer's WebSocket and relays session events to it.
// It implements session.Listener and is subscribed while registered.
type Client struct {
	ID          string
	conn        Conn
	hub         *Hub
	Send        chan Event
	connectedAt time.Time
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
	dropped     int
}

// NewClient creates a new viewer wrapper.
func NewClient(id string, conn Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan Event, sendBuffer),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Dropped:     c.dropped,
	}
}

// HandleMessage queues a message event.
func (c *Client) HandleMessage(msg types.Message) {
	c.deliver(Event{Type: EventMessage, Message: &msg})
}

// HandleStatus queues a status event.
func (c *Client) HandleStatus(status types.Status) {
	c.deliver(Event{Type: EventStatus, Status: status})
}

// deliver never blocks the session; a full buffer drops the event.
func (c *Client) deliver(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- ev:
		return true
	default:
		c.dropped++
		return false
	}
}

// ReadPump reads commands from the WebSocket and routes them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		cmd.ClientID = c.ID
		if !c.hub.route(cmd) {
			return
		}
	}
}

// WritePump writes events from the send channel to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case ev, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
