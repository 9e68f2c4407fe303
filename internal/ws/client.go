package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"lobbyhub/backend/internal/hub"
	"lobbyhub/backend/internal/presence"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4 * 1024
	sendBufferSize = 256
)

// Frame is the only message clients send: a channel subscription change.
// Everything else flows server -> client.
type Frame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Client is one websocket connection for one authenticated user. It owns its
// hub send channel and the set of channels it is subscribed to, so a
// disconnect can tear everything down, presence included.
type Client struct {
	ID     uuid.UUID
	UserID uint

	conn     *websocket.Conn
	send     hub.Client
	hub      *hub.Hub
	presence presence.Tracker

	mu       sync.Mutex
	channels map[string]bool
}

func NewClient(h *hub.Hub, tracker presence.Tracker, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		conn:     conn,
		send:     make(hub.Client, sendBufferSize),
		hub:      h,
		presence: tracker,
		channels: make(map[string]bool),
	}
}

// ReadPump consumes subscription frames until the connection drops, then
// unsubscribes everywhere and clears presence.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.teardown(ctx)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: client %s read error: %v", c.ID, err)
			}
			return
		}

		switch frame.Action {
		case "subscribe":
			c.subscribe(ctx, frame.Channel)
		case "unsubscribe":
			c.unsubscribe(ctx, frame.Channel)
		default:
			c.ack("error", frame.Channel, "unknown action")
		}
	}
}

// WritePump drains the send channel onto the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) subscribe(ctx context.Context, channel string) {
	if err := c.hub.Subscribe(ctx, channel, c.UserID, c.send); err != nil {
		c.ack("subscription_error", channel, err.Error())
		return
	}

	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()

	if code, ok := hub.ParseLobbyChannel(channel); ok {
		if err := c.presence.Add(ctx, code, c.UserID); err != nil {
			log.Printf("ws: presence add failed for %s: %v", code, err)
		}
	}
	c.ack("subscription_succeeded", channel, "")
}

func (c *Client) unsubscribe(ctx context.Context, channel string) {
	c.mu.Lock()
	subscribed := c.channels[channel]
	delete(c.channels, channel)
	c.mu.Unlock()
	if !subscribed {
		return
	}

	c.hub.Unsubscribe(channel, c.send)
	if code, ok := hub.ParseLobbyChannel(channel); ok {
		if err := c.presence.Remove(ctx, code, c.UserID); err != nil {
			log.Printf("ws: presence remove failed for %s: %v", code, err)
		}
	}
}

func (c *Client) teardown(ctx context.Context) {
	c.mu.Lock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channels = make(map[string]bool)
	c.mu.Unlock()

	for _, channel := range channels {
		c.hub.Unsubscribe(channel, c.send)
		if code, ok := hub.ParseLobbyChannel(channel); ok {
			if err := c.presence.Remove(ctx, code, c.UserID); err != nil {
				log.Printf("ws: presence remove failed for %s: %v", code, err)
			}
		}
	}
	close(c.send)
}

func (c *Client) ack(event, channel, detail string) {
	payload := map[string]string{"event": event, "channel": channel}
	if detail != "" {
		payload["message"] = detail
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
