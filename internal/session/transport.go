package session

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/gorilla/websocket"

	"taskquest/internal/realtime"
)

// Transport is one live bidirectional event channel. Implementations
// need not be safe for concurrent writers; the session serializes all
// writes on its run goroutine.
type Transport interface {
	ReadMessage() (*realtime.Message, error)
	WriteMessage(msg *realtime.Message) error
	Close() error
}

// Dialer opens transports. Swapped for an in-memory fake in tests.
type Dialer interface {
	Dial(ctx context.Context, rawURL, token string) (Transport, error)
}

// WebsocketDialer dials the server's websocket endpoint, passing the
// auth token as a query parameter the way the upgrade middleware
// expects it.
type WebsocketDialer struct{}

func (WebsocketDialer) Dial(ctx context.Context, rawURL, token string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{ws: ws}, nil
}

type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) ReadMessage() (*realtime.Message, error) {
	_, raw, err := t.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg realtime.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (t *wsTransport) WriteMessage(msg *realtime.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.ws.WriteMessage(websocket.TextMessage, raw)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}
