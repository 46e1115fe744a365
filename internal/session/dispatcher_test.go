package session

import (
	"testing"

	"taskquest/internal/realtime"
)

func TestDispatcherRouting(t *testing.T) {
	d := NewDispatcher()

	var taskEvents, msgEvents []*realtime.Message
	d.On(realtime.MessageTypeTaskUpdated, func(m *realtime.Message) { taskEvents = append(taskEvents, m) })
	d.On(realtime.MessageTypeTeamMessage, func(m *realtime.Message) { msgEvents = append(msgEvents, m) })

	d.Dispatch(realtime.NewMessage("1", realtime.MessageTypeTaskUpdated, "u1", nil))
	d.Dispatch(realtime.NewMessage("2", realtime.MessageTypeTeamMessage, "u1", nil))
	d.Dispatch(realtime.NewMessage("3", realtime.MessageTypeTaskUpdated, "u1", nil))

	if len(taskEvents) != 2 || len(msgEvents) != 1 {
		t.Fatalf("routing wrong: %d task, %d message", len(taskEvents), len(msgEvents))
	}
	if taskEvents[0].ID != "1" || taskEvents[1].ID != "3" {
		t.Error("events dispatched out of order")
	}
}

func TestDispatcherLastRegistrationWins(t *testing.T) {
	d := NewDispatcher()

	first, second := 0, 0
	d.On(realtime.MessageTypeTeamMessage, func(*realtime.Message) { first++ })
	d.On(realtime.MessageTypeTeamMessage, func(*realtime.Message) { second++ })

	d.Dispatch(realtime.NewMessage("1", realtime.MessageTypeTeamMessage, "u1", nil))

	if first != 0 {
		t.Error("replaced handler was invoked")
	}
	if second != 1 {
		t.Errorf("current handler invoked %d times, want 1", second)
	}
}

func TestDispatcherOff(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	d.On(realtime.MessageTypeTeamMessage, func(*realtime.Message) { calls++ })
	d.Off(realtime.MessageTypeTeamMessage)
	d.Dispatch(realtime.NewMessage("1", realtime.MessageTypeTeamMessage, "u1", nil))

	if calls != 0 {
		t.Error("unregistered handler was invoked")
	}

	t.Run("OffWithoutHandlerIsNoop", func(t *testing.T) {
		d.Off(realtime.MessageTypeTaskUpdated)
	})
}

func TestDispatcherUnhandledEventIgnored(t *testing.T) {
	d := NewDispatcher()
	d.Dispatch(realtime.NewMessage("1", realtime.MessageTypeKeepAlive, "u1", nil))
}
