package realtime

import (
	"encoding/json"
	"log/slog"
)

// Broadcaster fans messages out to room members. It reads membership
// snapshots from the registry and never mutates it, so delivery can
// proceed without holding the registry lock. Each recipient has a
// single outbound stream, which is what gives per-connection ordering;
// there is no ordering across rooms. Delivery is best-effort,
// at-most-once: a receiver whose buffer is full is dropped.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Publish delivers the message to every connection currently in the
// room. Publishing to an empty or unknown room is a no-op.
func (b *Broadcaster) Publish(roomID string, msg *Message) {
	b.publish(b.registry.ConnectionsIn(roomID), msg, "")
}

// PublishExcept is Publish minus one connection, used for echo
// suppression: a sender already rendered its own message locally.
func (b *Broadcaster) PublishExcept(roomID string, msg *Message, exceptConnID string) {
	b.publish(b.registry.ConnectionsIn(roomID), msg, exceptConnID)
}

// PublishAll delivers a global frame (presence deltas) to every live
// connection, minus the optional excluded one.
func (b *Broadcaster) PublishAll(msg *Message, exceptConnID string) {
	b.publish(b.registry.Connections(), msg, exceptConnID)
}

func (b *Broadcaster) publish(targets []*Connection, msg *Message, exceptConnID string) {
	if len(targets) == 0 {
		return
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal broadcast message", "type", msg.Type, "error", err)
		return
	}

	for _, conn := range targets {
		if conn.id == exceptConnID {
			continue
		}
		if err := conn.sink.Enqueue(frame); err != nil {
			slog.Debug("Dropped frame for slow or closed connection",
				"connID", conn.id, "type", msg.Type, "error", err)
		}
	}
}
