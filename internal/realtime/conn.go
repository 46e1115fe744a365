package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var ErrConnClosed = fmt.Errorf("connection closed")

// Conn wraps one live websocket connection. It owns the two pump
// goroutines and a buffered outbound channel; everything else about the
// connection (identity, rooms) lives in the registry.
type Conn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// Identity pinned by the upgrade token, before the in-band
	// handshake runs. Empty when the upgrade carried no token.
	tokenUserID string

	authed     int32
	authedUser atomic.Value
	closed     int32
	done       chan struct{}

	authTimer *time.Timer
	timerMu   sync.Mutex

	wg sync.WaitGroup
}

func newConn(hub *Hub, ws *websocket.Conn, tokenUserID string) *Conn {
	return &Conn{
		id:          uuid.New().String(),
		hub:         hub,
		ws:          ws,
		send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		tokenUserID: tokenUserID,
	}
}

func (c *Conn) ID() string { return c.id }

// Enqueue hands a frame to the write pump. Never blocks: a full buffer
// means the peer is too slow and the connection is dropped. The send
// channel is never closed, so concurrent callers racing a teardown at
// worst leave a frame in the buffer.
func (c *Conn) Enqueue(frame []byte) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		slog.Warn("Send buffer full, dropping connection", "connID", c.id)
		c.close()
		return ErrConnClosed
	}
}

func (c *Conn) isAuthed() bool {
	return atomic.LoadInt32(&c.authed) == 1
}

func (c *Conn) markAuthed(userID string) {
	c.authedUser.Store(userID)
	atomic.StoreInt32(&c.authed, 1)
	c.disarmAuthDeadline()
}

// boundUserID returns the authenticated identity, falling back to the
// token identity while the handshake is still in flight.
func (c *Conn) boundUserID() string {
	if v, ok := c.authedUser.Load().(string); ok && v != "" {
		return v
	}
	return c.tokenUserID
}

// armAuthDeadline closes the connection if the in-band handshake does
// not complete in time. The handshake must fail, not hang.
func (c *Conn) armAuthDeadline(d time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	c.authTimer = time.AfterFunc(d, func() {
		if c.isAuthed() {
			return
		}
		slog.Info("Closing connection: authentication deadline exceeded", "connID", c.id)
		c.close()
	})
}

func (c *Conn) disarmAuthDeadline() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
}

func (c *Conn) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Conn) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.disarmAuthDeadline()
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	}
}

func (c *Conn) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request", "connID", c.id)
		case <-c.hub.ctx.Done():
		}
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.registry.Touch(c.id)
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "connID", c.id, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "connID", c.id, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("Failed to unmarshal message", "connID", c.id, "error", err)
			c.hub.sendError(c, "INVALID_MESSAGE", "invalid message format")
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		msg.UserID = c.boundUserID()
		msg.Timestamp = time.Now().Unix()

		select {
		case c.hub.inbound <- &clientMessage{conn: c, msg: &msg}:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout handing message to hub", "connID", c.id)
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Conn) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				w.Close()
				return
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "connID", c.id, "error", err)
				return
			}
		}
	}
}
