package session

import (
	"log/slog"

	"taskquest/internal/realtime"
)

// Handler consumes one incoming event.
type Handler func(msg *realtime.Message)

// Dispatcher fans incoming events out to at most one handler per event
// kind. It is driven by the session's read loop only, so handlers run
// single-threaded, in wire order.
type Dispatcher struct {
	handlers map[realtime.MessageType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[realtime.MessageType]Handler),
	}
}

// On registers the handler for an event kind. Registering again for the
// same kind replaces the previous handler.
func (d *Dispatcher) On(kind realtime.MessageType, h Handler) {
	d.handlers[kind] = h
}

// Off removes the handler for a kind. Removing a kind that has no
// handler is a no-op.
func (d *Dispatcher) Off(kind realtime.MessageType) {
	delete(d.handlers, kind)
}

// Dispatch routes one message to its handler, if any.
func (d *Dispatcher) Dispatch(msg *realtime.Message) {
	h, ok := d.handlers[msg.Type]
	if !ok {
		slog.Debug("No handler registered for event", "type", msg.Type)
		return
	}
	h(msg)
}
