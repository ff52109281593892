package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Connection timing. Feed clients only ever send pongs and close frames.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client is one feed subscriber.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers conn with the hub. The backlog is queued ahead of
// any live broadcast.
func NewClient(hub *Hub, conn *websocket.Conn, backlog ...Message) *Client {
	c := &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer+len(backlog)),
	}
	for _, m := range backlog {
		c.send <- m
	}
	select {
	case hub.register <- c:
	case <-hub.stopped:
		close(c.send)
	}
	return c
}

// ID identifies the client in logs.
func (c *Client) ID() string { return c.id }

// Run serves the connection until either side closes it. It must be
// called from the websocket handler, which owns conn.
func (c *Client) Run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.write()
	}()

	c.read()

	select {
	case c.hub.unregister <- c:
	case <-c.hub.stopped:
	}
	c.conn.Close()
	<-writerDone
}

// read discards client frames; it exists to process pongs and notice
// disconnects.
func (c *Client) read() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.logger.Debug("feed client read ended", "client", c.id, "error", err)
			return
		}
	}
}

// write is the connection's only writer.
func (c *Client) write() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.conn.Close()
				return
			}
			kind := websocket.TextMessage
			if msg.Type == BinaryMessage {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.Data); err != nil {
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
