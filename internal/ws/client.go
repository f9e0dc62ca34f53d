package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client is one authenticated WebSocket connection
type Client struct {
	hub      *Hub
	engine   *Engine
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	userID   uint64
	nickname string
}

// NewClient creates a Client for a verified user
func NewClient(hub *Hub, engine *Engine, conn *websocket.Conn, userID uint64, nickname string) *Client {
	return &Client{
		hub:      hub,
		engine:   engine,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		userID:   userID,
		nickname: nickname,
	}
}

// enqueue hands a payload to the write pump without blocking the caller.
// A full buffer means a stalled client; the frame is dropped so one slow
// socket never holds up fan-out to the rest of the room.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		pkglogger.GetLogger().Warn().Uint64("user_id", c.userID).Msg("send buffer full, dropping frame")
	}
}

// ReadPump reads inbound events and dispatches them to the engine one at a
// time, so events from this connection are handled in arrival order.
func (c *Client) ReadPump() {
	sess := &Session{UserID: c.userID, Nickname: c.nickname}
	defer func() {
		if c.hub.Unregister(c) {
			c.engine.HandleDisconnect(sess)
		}
		c.Close("")
		connectionsActive.Dec()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.engine.HandleEvent(sess, data)
	}
}

// WritePump sends queued payloads and keepalive pings to the socket
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close terminates the socket. Safe to call more than once; also used when
// a reconnect replaces this client.
func (c *Client) Close(reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(writeWait))
		c.conn.Close()
	})
}
