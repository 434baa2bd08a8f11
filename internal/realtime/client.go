package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	maxMessageSize = 4 * 1024

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a websocket subscriber
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
	once sync.Once
	log  zerolog.Logger
}

// ServeWS upgrades the request and attaches the connection to the hub
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Client{
		conn: conn,
		hub:  h,
		send: make(chan []byte, 16),
		log:  h.log,
	}
	go c.writePump()
	h.Register(c)
	go c.readPump()
}

func (c *Client) ID() string { return c.conn.RemoteAddr().String() }

// Close ends the write pump, which closes the connection
func (c *Client) Close() {
	c.once.Do(func() { close(c.send) })
}

// SendBytes queues b; false when the client is too slow
func (c *Client) SendBytes(b []byte) (ok bool) {
	defer func() {
		// send on a closed channel after Unregister
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Str("client", c.ID()).Msg("read failed")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			c.reply(Response{Type: "error", Message: "invalid JSON"})
			continue
		}
		c.reply(c.hub.Handle(c, req))
	}
}

func (c *Client) reply(r Response) {
	if b, err := json.Marshal(r); err == nil {
		c.SendBytes(b)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
