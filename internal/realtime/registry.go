package realtime

import (
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnknownConnection    = fmt.Errorf("unknown connection")
	ErrAlreadyAuthenticated = fmt.Errorf("connection already authenticated")
)

// Sink is the outbound half of a live transport connection. The
// registry never touches the transport itself; it only hands frames to
// the sink.
type Sink interface {
	Enqueue(frame []byte) error
}

// Connection is the registry's record of one live transport connection.
// It is created unauthenticated on transport open and destroyed on
// transport close. All fields are guarded by the owning registry.
type Connection struct {
	id          string
	sink        Sink
	userID      string
	displayName string
	rooms       map[string]bool
	lastActive  time.Time
}

func (c *Connection) ID() string          { return c.id }
func (c *Connection) UserID() string      { return c.userID }
func (c *Connection) DisplayName() string { return c.displayName }

// Registry tracks every live connection, its authenticated identity and
// its room memberships. The forward map (connection -> rooms) and the
// reverse index (room -> connections) are mutated under one mutex so
// they can never disagree. Pure bookkeeping: no I/O, no logging.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
	rooms map[string]map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		rooms: make(map[string]map[string]*Connection),
	}
}

// Register allocates a record for a freshly opened, not yet
// authenticated connection.
func (r *Registry) Register(id string, sink Sink) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := &Connection{
		id:         id,
		sink:       sink,
		rooms:      make(map[string]bool),
		lastActive: time.Now(),
	}
	r.conns[id] = conn
	return conn
}

// Authenticate binds a user identity to the connection. A second call
// on the same connection fails with ErrAlreadyAuthenticated so presence
// can never be double-counted.
func (r *Registry) Authenticate(id, userID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.userID != "" {
		return ErrAlreadyAuthenticated
	}
	conn.userID = userID
	conn.displayName = displayName
	conn.lastActive = time.Now()
	return nil
}

// JoinRoom adds the connection to a room, creating the room lazily.
func (r *Registry) JoinRoom(id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	conn.rooms[roomID] = true
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*Connection)
	}
	r.rooms[roomID][id] = conn
	return nil
}

// LeaveRoom removes the connection from a room. Leaving a room the
// connection never joined is a no-op, not an error.
func (r *Registry) LeaveRoom(id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	delete(conn.rooms, roomID)
	r.dropMember(roomID, id)
	return nil
}

// Unregister removes the connection from every room it belonged to and
// from the registry. Safe to call for a connection that never
// authenticated; the returned userID is "" in that case.
func (r *Registry) Unregister(id string) (userID, displayName string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, found := r.conns[id]
	if !found {
		return "", "", false
	}
	for roomID := range conn.rooms {
		r.dropMember(roomID, id)
	}
	delete(r.conns, id)
	return conn.userID, conn.displayName, true
}

// dropMember removes one membership entry and garbage-collects the room
// once it is empty. Caller holds r.mu.
func (r *Registry) dropMember(roomID, id string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// ConnectionsIn returns a snapshot of the room's members at call time.
func (r *Registry) ConnectionsIn(roomID string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	out := make([]*Connection, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// Connections returns a snapshot of every live connection.
func (r *Registry) Connections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// Rooms returns a snapshot of the rooms the connection currently
// belongs to.
func (r *Registry) Rooms(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conn.rooms))
	for roomID := range conn.rooms {
		out = append(out, roomID)
	}
	return out
}

// UserConnectionCount reports how many registered connections carry the
// given authenticated identity.
func (r *Registry) UserConnectionCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, conn := range r.conns {
		if conn.userID == userID {
			n++
		}
	}
	return n
}

// Touch refreshes the connection's last-activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[id]; ok {
		conn.lastActive = time.Now()
	}
}

// LastActive returns the connection's last-activity timestamp.
func (r *Registry) LastActive(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return time.Time{}, false
	}
	return conn.lastActive, true
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
