package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"taskquest/internal/models"
)

// fakeSink records every frame enqueued for one connection.
type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (s *fakeSink) Enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return ErrConnClosed
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) messages(t *testing.T) []*Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Message, 0, len(s.frames))
	for _, frame := range s.frames {
		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("bad frame %q: %v", frame, err)
		}
		out = append(out, &msg)
	}
	return out
}

// fakeDirectory records presence write-throughs.
type fakeDirectory struct {
	mu     sync.Mutex
	writes []directoryWrite
	online map[string]bool
	err    error
}

type directoryWrite struct {
	userID string
	online bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{online: make(map[string]bool)}
}

func (d *fakeDirectory) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.writes = append(d.writes, directoryWrite{userID: userID, online: online})
	if online {
		d.online[userID] = true
	} else {
		delete(d.online, userID)
	}
	return nil
}

func (d *fakeDirectory) ListOnline(ctx context.Context) ([]models.UserSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.UserSummary, 0, len(d.online))
	for id := range d.online {
		out = append(out, models.UserSummary{ID: id})
	}
	return out, nil
}

func (d *fakeDirectory) isOnline(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online[userID]
}

// waitFor polls until the condition holds or the deadline passes.
// Directory writes are dispatched asynchronously, so tests wait.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// newTestHub wires a hub whose handlers are invoked directly, without
// the run loop or real websockets.
func newTestHub() (*Hub, *fakeDirectory) {
	dir := newFakeDirectory()
	hub := NewHub(NewTracker(dir), nil, 0)
	return hub, dir
}

// newTestConn produces a transport-less connection attached to the hub.
func newTestConn(hub *Hub) *Conn {
	conn := newConn(hub, nil, "")
	hub.registerConn(conn)
	return conn
}

func authMsg(userID, displayName string) *Message {
	return NewMessage("m-auth", MessageTypeAuth, userID, map[string]any{
		"user_id":      userID,
		"display_name": displayName,
	})
}

func joinMsg(roomID string) *Message {
	return NewMessage("m-join", MessageTypeJoinRoom, "", map[string]any{"room_id": roomID})
}

func leaveMsg(roomID string) *Message {
	return NewMessage("m-leave", MessageTypeLeaveRoom, "", map[string]any{"room_id": roomID})
}

func publishMsg(roomID, kind string, payload map[string]any) *Message {
	return NewMessage("m-pub", MessageTypePublish, "", map[string]any{
		"room_id":    roomID,
		"event_kind": kind,
		"payload":    payload,
	})
}

// drain empties the connection's outbound buffer into parsed messages.
func drain(t *testing.T, conn *Conn) []*Message {
	t.Helper()
	var out []*Message
	for {
		select {
		case frame := <-conn.send:
			var msg Message
			if err := json.Unmarshal(frame, &msg); err != nil {
				t.Fatalf("bad frame %q: %v", frame, err)
			}
			out = append(out, &msg)
		default:
			return out
		}
	}
}
