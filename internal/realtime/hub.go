package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventFeed receives a copy of every broadcast event for downstream
// consumers (achievements pipeline). Implementations must not block.
type EventFeed interface {
	Publish(msg *Message)
}

type clientMessage struct {
	conn *Conn
	msg  *Message
}

// Hub owns the registry, presence tracker and broadcaster and runs the
// serialization loop every connection funnels through. One hub per
// process; created at startup, torn down by Shutdown.
type Hub struct {
	registry    *Registry
	presence    *Tracker
	broadcaster *Broadcaster
	feed        EventFeed

	register   chan *Conn
	unregister chan *Conn
	inbound    chan *clientMessage

	authDeadline time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(presence *Tracker, feed EventFeed, authDeadline time.Duration) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	registry := NewRegistry()
	return &Hub{
		registry:     registry,
		presence:     presence,
		broadcaster:  NewBroadcaster(registry),
		feed:         feed,
		register:     make(chan *Conn),
		unregister:   make(chan *Conn),
		inbound:      make(chan *clientMessage),
		authDeadline: authDeadline,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Registry exposes the connection registry for read-side consumers.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence exposes the tracker for the presence query surface.
func (h *Hub) Presence() *Tracker { return h.presence }

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.registerConn(conn)

		case conn := <-h.unregister:
			h.unregisterConn(conn)

		case cm := <-h.inbound:
			h.handleMessage(cm.conn, cm.msg)

		case <-h.ctx.Done():
			slog.Info("Realtime hub shutting down")
			return
		}
	}
}

// Shutdown stops the run loop and drops every live connection.
func (h *Hub) Shutdown() {
	h.cancel()
	for _, conn := range h.registry.Connections() {
		userID, _, _ := h.registry.Unregister(conn.id)
		if userID != "" {
			h.presence.OnDisconnect(userID)
		}
		if c, ok := conn.sink.(*Conn); ok {
			c.close()
		}
	}
}

// NotifyRoom is the coupling point for the CRUD layer: after a
// successful mutation it pushes a business event into the team's live
// room. Broadcast-only, so it is safe to call from any goroutine.
func (h *Hub) NotifyRoom(roomID string, kind MessageType, payload map[string]any) {
	if !kind.IsEvent() {
		slog.Warn("Rejected room notification with non-event kind", "kind", kind, "roomID", roomID)
		return
	}
	event := NewRoomEvent(uuid.New().String(), kind, "", roomID, payload)
	h.broadcaster.Publish(roomID, event)
	if h.feed != nil {
		h.feed.Publish(event)
	}
}

func (h *Hub) registerConn(conn *Conn) {
	h.registry.Register(conn.id, conn)
	slog.Info("Connection registered", "connID", conn.id)

	// An opened transport that never authenticates is not kept around.
	if h.authDeadline > 0 {
		conn.armAuthDeadline(h.authDeadline)
	}
}

func (h *Hub) unregisterConn(conn *Conn) {
	userID, displayName, ok := h.registry.Unregister(conn.id)
	if !ok {
		return
	}
	slog.Info("Connection unregistered", "connID", conn.id, "userID", userID)

	// Unauthenticated connections vanish with no presence side effect.
	if userID == "" {
		return
	}
	if last := h.presence.OnDisconnect(userID); last {
		delta := NewPresenceDelta(uuid.New().String(), MessageTypeUserDisconnected, userID, displayName)
		h.broadcaster.PublishAll(delta, conn.id)
		if h.feed != nil {
			h.feed.Publish(delta)
		}
	}
}

func (h *Hub) handleMessage(conn *Conn, msg *Message) {
	if err := msg.Validate(); err != nil {
		h.sendError(conn, "INVALID_MESSAGE", err.Error())
		return
	}

	if msg.Type != MessageTypeAuth && !conn.isAuthed() {
		h.sendError(conn, "NOT_AUTHENTICATED", "authenticate first")
		return
	}

	switch msg.Type {
	case MessageTypeAuth:
		h.handleAuth(conn, msg)
	case MessageTypeJoinRoom:
		h.handleJoin(conn, msg)
	case MessageTypeLeaveRoom:
		h.handleLeave(conn, msg)
	case MessageTypePublish:
		h.handlePublish(conn, msg)
	case MessageTypeKeepAlive:
		h.registry.Touch(conn.id)
		h.sendKeepAliveAck(conn)
	default:
		h.sendError(conn, "UNSUPPORTED_TYPE", "unsupported message type: "+msg.Type.String())
	}
}

func (h *Hub) handleAuth(conn *Conn, msg *Message) {
	var data AuthData
	if err := msg.Bind(&data); err != nil || data.UserID == "" {
		h.sendAuthResult(conn, false, "user_id is required")
		return
	}
	userID, displayName := data.UserID, data.DisplayName
	// The upgrade token already pinned an identity; the in-band
	// handshake may not claim a different one.
	if bound := conn.boundUserID(); bound != "" && bound != userID {
		h.sendAuthResult(conn, false, "token identity mismatch")
		return
	}

	if err := h.registry.Authenticate(conn.id, userID, displayName); err != nil {
		h.sendAuthResult(conn, false, err.Error())
		return
	}
	conn.markAuthed(userID)

	first := h.presence.OnConnect(userID, displayName)
	slog.Info("Connection authenticated", "connID", conn.id, "userID", userID, "firstConnection", first)

	h.sendAuthResult(conn, true, "")
	h.sendSnapshot(conn)

	if first {
		delta := NewPresenceDelta(uuid.New().String(), MessageTypeUserConnected, userID, displayName)
		h.broadcaster.PublishAll(delta, conn.id)
		if h.feed != nil {
			h.feed.Publish(delta)
		}
	}
}

func (h *Hub) handleJoin(conn *Conn, msg *Message) {
	var data RoomData
	if err := msg.Bind(&data); err != nil || data.RoomID == "" {
		h.sendError(conn, "INVALID_ROOM", "room_id is required")
		return
	}
	if err := h.registry.JoinRoom(conn.id, data.RoomID); err != nil {
		h.sendError(conn, "JOIN_FAILED", err.Error())
		return
	}
	slog.Debug("Connection joined room", "connID", conn.id, "roomID", data.RoomID)
}

func (h *Hub) handleLeave(conn *Conn, msg *Message) {
	var data RoomData
	if err := msg.Bind(&data); err != nil || data.RoomID == "" {
		h.sendError(conn, "INVALID_ROOM", "room_id is required")
		return
	}
	if err := h.registry.LeaveRoom(conn.id, data.RoomID); err != nil {
		h.sendError(conn, "LEAVE_FAILED", err.Error())
		return
	}
	slog.Debug("Connection left room", "connID", conn.id, "roomID", data.RoomID)
}

func (h *Hub) handlePublish(conn *Conn, msg *Message) {
	var data PublishData
	if err := msg.Bind(&data); err != nil {
		h.sendError(conn, "INVALID_PUBLISH", "malformed publish payload")
		return
	}
	kind := MessageType(data.EventKind)
	if data.RoomID == "" || !kind.IsEvent() {
		h.sendError(conn, "INVALID_PUBLISH", "room_id and a valid event_kind are required")
		return
	}

	event := NewRoomEvent(uuid.New().String(), kind, conn.boundUserID(), data.RoomID, data.Payload)

	// The sender already rendered its own message optimistically.
	h.broadcaster.PublishExcept(data.RoomID, event, conn.id)
	if h.feed != nil {
		h.feed.Publish(event)
	}
}

func (h *Hub) sendSnapshot(conn *Conn) {
	records := h.presence.Snapshot()
	out := make([]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"user_id":      rec.UserID,
			"display_name": rec.DisplayName,
			"last_seen":    rec.LastSeen.Unix(),
		})
	}
	snapshot := NewMessage(uuid.New().String(), MessageTypePresenceSnapshot, "", map[string]any{
		"records": out,
	})
	if err := h.sendTo(conn, snapshot); err != nil {
		slog.Debug("Failed to send presence snapshot", "connID", conn.id, "error", err)
	}
}

func (h *Hub) sendAuthResult(conn *Conn, success bool, reason string) {
	if err := h.sendTo(conn, NewAuthResultMessage(uuid.New().String(), success, reason)); err != nil {
		slog.Debug("Failed to send auth result", "connID", conn.id, "error", err)
	}
}

func (h *Hub) sendKeepAliveAck(conn *Conn) {
	if err := h.sendTo(conn, NewMessage(uuid.New().String(), MessageTypeKeepAlive, "", nil)); err != nil {
		slog.Debug("Failed to echo keepalive", "connID", conn.id, "error", err)
	}
}

func (h *Hub) sendError(conn *Conn, code, detail string) {
	if err := h.sendTo(conn, NewErrorMessage(uuid.New().String(), conn.boundUserID(), code, detail)); err != nil {
		slog.Debug("Failed to send error frame", "connID", conn.id, "error", err)
	}
}

func (h *Hub) sendTo(conn *Conn, msg *Message) error {
	frame, err := msg.marshal()
	if err != nil {
		return err
	}
	return conn.Enqueue(frame)
}
