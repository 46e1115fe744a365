package realtime

import (
	"sync"
	"testing"
	"time"
)

type fakeFeed struct {
	mu     sync.Mutex
	events []*Message
}

func (f *fakeFeed) Publish(msg *Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, msg)
}

func (f *fakeFeed) kinds() []MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MessageType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func countByType(msgs []*Message, t MessageType) int {
	n := 0
	for _, m := range msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func TestHubAuthenticateFlow(t *testing.T) {
	hub, dir := newTestHub()

	peer := newTestConn(hub)
	hub.handleMessage(peer, authMsg("u-peer", "Peer"))
	drain(t, peer)

	conn := newTestConn(hub)
	hub.handleMessage(conn, authMsg("u1", "Ada"))

	got := drain(t, conn)
	if len(got) < 2 {
		t.Fatalf("expected auth result and snapshot, got %d frames", len(got))
	}
	if got[0].Type != MessageTypeAuthResult {
		t.Fatalf("first frame is %s, want %s", got[0].Type, MessageTypeAuthResult)
	}
	if success, _ := got[0].Data["success"].(bool); !success {
		t.Fatalf("handshake rejected: %v", got[0].Data)
	}
	if got[1].Type != MessageTypePresenceSnapshot {
		t.Fatalf("second frame is %s, want %s", got[1].Type, MessageTypePresenceSnapshot)
	}
	records, _ := got[1].Data["records"].([]any)
	if len(records) != 2 {
		t.Errorf("snapshot lists %d users, want 2", len(records))
	}

	t.Run("PeerSeesDelta", func(t *testing.T) {
		peerGot := drain(t, peer)
		if countByType(peerGot, MessageTypeUserConnected) != 1 {
			t.Errorf("peer frames: %v", peerGot)
		}
	})

	t.Run("SecondTabEmitsNoDelta", func(t *testing.T) {
		tab := newTestConn(hub)
		hub.handleMessage(tab, authMsg("u1", "Ada"))
		if n := countByType(drain(t, peer), MessageTypeUserConnected); n != 0 {
			t.Errorf("second tab produced %d user.connected deltas", n)
		}
		if n := hub.Presence().ConnectionCount("u1"); n != 2 {
			t.Errorf("connection count = %d, want 2", n)
		}
	})

	waitFor(t, time.Second, func() bool { return dir.isOnline("u1") })
}

func TestHubRejectsDoubleAuth(t *testing.T) {
	hub, _ := newTestHub()
	conn := newTestConn(hub)

	hub.handleMessage(conn, authMsg("u1", "Ada"))
	drain(t, conn)

	hub.handleMessage(conn, authMsg("u2", "Eve"))
	got := drain(t, conn)
	if len(got) != 1 || got[0].Type != MessageTypeAuthResult {
		t.Fatalf("expected a single auth result, got %v", got)
	}
	if success, _ := got[0].Data["success"].(bool); success {
		t.Error("re-authentication succeeded; presence could double-count")
	}
	if n := hub.Presence().ConnectionCount("u1"); n != 1 {
		t.Errorf("connection count changed to %d", n)
	}
}

func TestHubRejectsUnauthenticatedTraffic(t *testing.T) {
	hub, _ := newTestHub()
	conn := newTestConn(hub)

	hub.handleMessage(conn, joinMsg("team-42"))
	got := drain(t, conn)
	if len(got) != 1 || got[0].Type != MessageTypeError {
		t.Fatalf("expected an error frame, got %v", got)
	}
	if len(hub.Registry().ConnectionsIn("team-42")) != 0 {
		t.Error("unauthenticated connection joined a room")
	}
}

func TestHubPublishScenario(t *testing.T) {
	hub, _ := newTestHub()
	feed := &fakeFeed{}
	hub.feed = feed

	sender := newTestConn(hub)
	receiver := newTestConn(hub)
	outsider := newTestConn(hub)
	hub.handleMessage(sender, authMsg("u1", "Ada"))
	hub.handleMessage(receiver, authMsg("u2", "Grace"))
	hub.handleMessage(outsider, authMsg("u3", "Linus"))
	hub.handleMessage(sender, joinMsg("team-42"))
	hub.handleMessage(receiver, joinMsg("team-42"))
	drain(t, sender)
	drain(t, receiver)
	drain(t, outsider)

	hub.handleMessage(sender, publishMsg("team-42", "team.message", map[string]any{"text": "hi"}))

	t.Run("ReceiverGetsExactlyOne", func(t *testing.T) {
		got := drain(t, receiver)
		if countByType(got, MessageTypeTeamMessage) != 1 {
			t.Fatalf("receiver frames: %v", got)
		}
		for _, m := range got {
			if m.Type == MessageTypeTeamMessage {
				if m.Data["text"] != "hi" || m.UserID != "u1" {
					t.Errorf("wrong event: %+v", m)
				}
			}
		}
	})

	t.Run("SenderEchoSuppressed", func(t *testing.T) {
		if n := countByType(drain(t, sender), MessageTypeTeamMessage); n != 0 {
			t.Errorf("sender received its own message %d times", n)
		}
	})

	t.Run("OutsiderGetsNothing", func(t *testing.T) {
		if n := countByType(drain(t, outsider), MessageTypeTeamMessage); n != 0 {
			t.Errorf("outsider received %d room events", n)
		}
	})

	t.Run("EventMirroredToFeed", func(t *testing.T) {
		found := false
		for _, k := range feed.kinds() {
			if k == MessageTypeTeamMessage {
				found = true
			}
		}
		if !found {
			t.Error("published event missing from the feed")
		}
	})
}

func TestHubDisconnectDelta(t *testing.T) {
	hub, dir := newTestHub()

	peer := newTestConn(hub)
	hub.handleMessage(peer, authMsg("u-peer", "Peer"))

	tab1 := newTestConn(hub)
	tab2 := newTestConn(hub)
	hub.handleMessage(tab1, authMsg("u1", "Ada"))
	hub.handleMessage(tab2, authMsg("u1", "Ada"))
	drain(t, peer)

	// One of two tabs closing must not flip the user offline.
	hub.unregisterConn(tab1)
	if n := countByType(drain(t, peer), MessageTypeUserDisconnected); n != 0 {
		t.Errorf("closing one tab emitted %d user.disconnected deltas", n)
	}
	time.Sleep(20 * time.Millisecond)
	waitFor(t, time.Second, func() bool { return dir.isOnline("u1") })

	hub.unregisterConn(tab2)
	if n := countByType(drain(t, peer), MessageTypeUserDisconnected); n != 1 {
		t.Errorf("closing the last tab emitted %d deltas, want 1", n)
	}
	waitFor(t, time.Second, func() bool { return !dir.isOnline("u1") })
}

func TestHubReconnectReplacesStaleMembership(t *testing.T) {
	hub, _ := newTestHub()

	stale := newTestConn(hub)
	hub.handleMessage(stale, authMsg("u1", "Ada"))
	hub.handleMessage(stale, joinMsg("team-42"))

	// Transport drop: server removes the old connection, then the
	// client reconnects and replays its membership.
	hub.unregisterConn(stale)

	fresh := newTestConn(hub)
	hub.handleMessage(fresh, authMsg("u1", "Ada"))
	hub.handleMessage(fresh, joinMsg("team-42"))

	members := hub.Registry().ConnectionsIn("team-42")
	if len(members) != 1 {
		t.Fatalf("expected exactly 1 member, got %d", len(members))
	}
	if members[0].ID() != fresh.ID() {
		t.Errorf("room lists %s, want the fresh connection %s", members[0].ID(), fresh.ID())
	}
}

func TestHubNotifyRoom(t *testing.T) {
	hub, _ := newTestHub()
	feed := &fakeFeed{}
	hub.feed = feed

	conn := newTestConn(hub)
	hub.handleMessage(conn, authMsg("u1", "Ada"))
	hub.handleMessage(conn, joinMsg(RoomForTeam("42")))
	drain(t, conn)

	hub.NotifyRoom(RoomForTeam("42"), MessageTypeTaskCompleted, map[string]any{"task_id": "t-9"})

	got := drain(t, conn)
	if countByType(got, MessageTypeTaskCompleted) != 1 {
		t.Fatalf("expected one task.completed event, got %v", got)
	}

	t.Run("NonEventKindRejected", func(t *testing.T) {
		hub.NotifyRoom(RoomForTeam("42"), MessageTypeAuth, nil)
		if n := len(drain(t, conn)); n != 0 {
			t.Errorf("control frame was broadcast %d times", n)
		}
	})
}

func TestHubKeepAliveEcho(t *testing.T) {
	hub, _ := newTestHub()
	conn := newTestConn(hub)
	hub.handleMessage(conn, authMsg("u1", "Ada"))
	drain(t, conn)

	before, ok := hub.Registry().LastActive(conn.id)
	if !ok {
		t.Fatal("connection not registered")
	}
	time.Sleep(2 * time.Millisecond)
	hub.handleMessage(conn, NewMessage("m-ka", MessageTypeKeepAlive, "u1", nil))

	got := drain(t, conn)
	if countByType(got, MessageTypeKeepAlive) != 1 {
		t.Fatalf("expected one keepalive echo, got %v", got)
	}
	after, _ := hub.Registry().LastActive(conn.id)
	if !after.After(before) {
		t.Error("keepalive did not advance lastActive")
	}
}

func TestHubJoinLeaveRoundTrip(t *testing.T) {
	hub, _ := newTestHub()
	conn := newTestConn(hub)
	hub.handleMessage(conn, authMsg("u1", "Ada"))

	hub.handleMessage(conn, joinMsg("team-42"))
	hub.handleMessage(conn, leaveMsg("team-42"))
	if n := len(hub.Registry().ConnectionsIn("team-42")); n != 0 {
		t.Errorf("membership not restored after join+leave, %d members", n)
	}
}
