package realtime

import "testing"

func TestMessageValidate(t *testing.T) {
	msg := NewMessage("m1", MessageTypeTeamMessage, "u1", nil)
	if err := msg.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	t.Run("MissingID", func(t *testing.T) {
		bad := NewMessage("", MessageTypeTeamMessage, "u1", nil)
		if err := bad.Validate(); err == nil {
			t.Error("message without ID validated")
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		bad := NewMessage("m2", MessageType("bogus"), "u1", nil)
		if err := bad.Validate(); err == nil {
			t.Error("unknown type validated")
		}
	})
}

func TestMessageTypeClasses(t *testing.T) {
	if MessageTypeAuth.IsEvent() {
		t.Error("auth.login classified as an event")
	}
	if !MessageTypeTaskCompleted.IsEvent() {
		t.Error("task.completed not classified as an event")
	}
	if !MessageTypeKeepAlive.IsEvent() {
		t.Error("keepalive not classified as an event")
	}
}

func TestMessageBind(t *testing.T) {
	msg := NewMessage("m1", MessageTypePublish, "u1", map[string]any{
		"room_id":    "team-7",
		"event_kind": "task.updated",
		"payload":    map[string]any{"task_id": "t-3"},
	})

	var data PublishData
	if err := msg.Bind(&data); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if data.RoomID != "team-7" || data.EventKind != "task.updated" {
		t.Errorf("Bind = %+v", data)
	}
	if data.Payload["task_id"] != "t-3" {
		t.Errorf("payload not carried: %+v", data.Payload)
	}

	t.Run("MissingFieldsZeroValued", func(t *testing.T) {
		var auth AuthData
		if err := NewMessage("m2", MessageTypeAuth, "", nil).Bind(&auth); err != nil {
			t.Fatalf("Bind: %v", err)
		}
		if auth.UserID != "" {
			t.Errorf("UserID = %q", auth.UserID)
		}
	})
}

func TestRoomForTeam(t *testing.T) {
	if got := RoomForTeam("42"); got != "team-42" {
		t.Errorf("RoomForTeam = %q", got)
	}
}
