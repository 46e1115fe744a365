package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies every frame that crosses the wire, in both
// directions, using a custom enum type for better type safety.
type MessageType string

const (
	// Client -> server
	MessageTypeAuth      MessageType = "auth.login"
	MessageTypeJoinRoom  MessageType = "room.join"
	MessageTypeLeaveRoom MessageType = "room.leave"
	MessageTypePublish   MessageType = "room.publish"
	MessageTypeKeepAlive MessageType = "keepalive"

	// Server -> client
	MessageTypeAuthResult       MessageType = "auth.result"
	MessageTypePresenceSnapshot MessageType = "presence.snapshot"
	MessageTypeError            MessageType = "error"

	// Event kinds fanned out per room or globally
	MessageTypeUserConnected    MessageType = "user.connected"
	MessageTypeUserDisconnected MessageType = "user.disconnected"
	MessageTypeStatusUpdated    MessageType = "status.updated"
	MessageTypeTeamMessage      MessageType = "team.message"
	MessageTypeTaskUpdated      MessageType = "task.updated"
	MessageTypeTaskCompleted    MessageType = "task.completed"
	MessageTypeTeamInvitation   MessageType = "team.invitation"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a valid enum value.
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeAuth, MessageTypeJoinRoom, MessageTypeLeaveRoom,
		MessageTypePublish, MessageTypeKeepAlive, MessageTypeAuthResult,
		MessageTypePresenceSnapshot, MessageTypeError,
		MessageTypeUserConnected, MessageTypeUserDisconnected,
		MessageTypeStatusUpdated, MessageTypeTeamMessage,
		MessageTypeTaskUpdated, MessageTypeTaskCompleted,
		MessageTypeTeamInvitation:
		return true
	default:
		return false
	}
}

// IsEvent reports whether the type is one of the event kinds a client
// dispatcher can subscribe to. Control frames (auth, join, leave) are
// not events.
func (mt MessageType) IsEvent() bool {
	switch mt {
	case MessageTypeUserConnected, MessageTypeUserDisconnected,
		MessageTypeStatusUpdated, MessageTypeTeamMessage,
		MessageTypeTaskUpdated, MessageTypeTaskCompleted,
		MessageTypeTeamInvitation, MessageTypeKeepAlive:
		return true
	default:
		return false
	}
}

// Message is the envelope for every wire frame.
type Message struct {
	ID        string         `json:"id"`
	Type      MessageType    `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	UserID    string         `json:"user_id,omitempty"`
}

// Validate validates the message structure and type.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid message type: %s", m.Type)
	}
	if m.Data == nil {
		m.Data = make(map[string]any)
	}
	return nil
}

// RoomID returns the room the message targets, or "" for global frames.
func (m *Message) RoomID() string {
	room, _ := m.Data["room_id"].(string)
	return room
}

func (m *Message) marshal() ([]byte, error) {
	return json.Marshal(m)
}

// RoomForTeam builds the broadcast room key for a team. Rooms are
// created lazily on first join, one per team.
func RoomForTeam(teamID string) string {
	return "team-" + teamID
}

// Data payloads for the typed frames, decoded from the envelope's
// free-form map with Bind.

type AuthData struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type RoomData struct {
	RoomID string `json:"room_id"`
}

type PublishData struct {
	RoomID    string         `json:"room_id"`
	EventKind string         `json:"event_kind"`
	Payload   map[string]any `json:"payload"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Bind decodes the data map into a typed payload struct.
func (m *Message) Bind(out any) error {
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// NewMessage creates a new message with the specified type and data.
func NewMessage(id string, msgType MessageType, userID string, data map[string]any) *Message {
	if data == nil {
		data = make(map[string]any)
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}
}

// NewAuthResultMessage reports the outcome of an authentication
// handshake. reason is empty on success.
func NewAuthResultMessage(id string, success bool, reason string) *Message {
	data := map[string]any{"success": success}
	if reason != "" {
		data["reason"] = reason
	}
	return NewMessage(id, MessageTypeAuthResult, "", data)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(id, userID, code, message string) *Message {
	return NewMessage(id, MessageTypeError, userID, map[string]any{
		"code":    code,
		"message": message,
	})
}

// NewPresenceDelta builds the global user.connected / user.disconnected
// event for one user.
func NewPresenceDelta(id string, kind MessageType, userID, displayName string) *Message {
	return NewMessage(id, kind, userID, map[string]any{
		"user_id":      userID,
		"display_name": displayName,
	})
}

// NewRoomEvent builds a room-scoped event from an application payload.
func NewRoomEvent(id string, kind MessageType, userID, roomID string, payload map[string]any) *Message {
	data := map[string]any{"room_id": roomID}
	for k, v := range payload {
		data[k] = v
	}
	return NewMessage(id, kind, userID, data)
}
