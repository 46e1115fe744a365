package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"taskquest/internal/directory"
)

const directoryWriteTimeout = 5 * time.Second

// PresenceRecord describes one currently tracked user. A user is online
// iff ConnectionCount > 0; two tabs are two connections, one record.
type PresenceRecord struct {
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Online          bool      `json:"online"`
	LastSeen        time.Time `json:"last_seen"`
	ConnectionCount int       `json:"connection_count"`
}

type presenceEntry struct {
	displayName string
	connections int
	lastSeen    time.Time
}

// Tracker derives who is online from connection counts and mirrors
// transitions into the persistent UserDirectory. The directory is
// write-through only: Snapshot never touches it, and a failed write is
// logged rather than propagated so a slow store cannot stall broadcast.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry

	dir directory.UserDirectory
}

func NewTracker(dir directory.UserDirectory) *Tracker {
	return &Tracker{
		entries: make(map[string]*presenceEntry),
		dir:     dir,
	}
}

// OnConnect counts one more live connection for the user. It reports
// whether this was the 0 -> 1 transition, in which case the directory
// is marked online off the critical path and the caller should
// broadcast a user.connected delta.
func (t *Tracker) OnConnect(userID, displayName string) (first bool) {
	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		entry = &presenceEntry{}
		t.entries[userID] = entry
	}
	entry.displayName = displayName
	entry.connections++
	entry.lastSeen = time.Now()
	first = entry.connections == 1
	t.mu.Unlock()

	if first {
		t.writeThrough(userID, true, time.Now())
	}
	return first
}

// OnDisconnect counts one connection gone. It reports whether this was
// the 1 -> 0 transition; only then is the user marked offline and a
// user.disconnected delta due. Closing one of two tabs never flips a
// user offline.
func (t *Tracker) OnDisconnect(userID string) (last bool) {
	now := time.Now()

	t.mu.Lock()
	entry, ok := t.entries[userID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	entry.connections--
	entry.lastSeen = now
	last = entry.connections <= 0
	if last {
		delete(t.entries, userID)
	}
	t.mu.Unlock()

	if last {
		t.writeThrough(userID, false, now)
	}
	return last
}

// Snapshot returns every currently-online user from in-memory state.
// No directory round-trip; this is the hot presence-query path.
func (t *Tracker) Snapshot() []PresenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PresenceRecord, 0, len(t.entries))
	for userID, entry := range t.entries {
		out = append(out, PresenceRecord{
			UserID:          userID,
			DisplayName:     entry.displayName,
			Online:          true,
			LastSeen:        entry.lastSeen,
			ConnectionCount: entry.connections,
		})
	}
	return out
}

// ConnectionCount reports the live connection count for one user.
func (t *Tracker) ConnectionCount(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[userID]
	if !ok {
		return 0
	}
	return entry.connections
}

// Reconcile clears online flags a previous process left behind in the
// directory. Called once at startup, before any connection is accepted.
func (t *Tracker) Reconcile(ctx context.Context) error {
	stale, err := t.dir.ListOnline(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, u := range stale {
		if err := t.dir.SetOnline(ctx, u.ID, false, now); err != nil {
			slog.Warn("Failed to clear stale online flag", "userID", u.ID, "error", err)
		}
	}
	if len(stale) > 0 {
		slog.Info("Cleared stale presence flags", "count", len(stale))
	}
	return nil
}

// writeThrough dispatches the directory update on its own goroutine so
// a slow store never blocks the registry critical path.
func (t *Tracker) writeThrough(userID string, online bool, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), directoryWriteTimeout)
		defer cancel()

		if err := t.dir.SetOnline(ctx, userID, online, at); err != nil {
			slog.Error("Failed to write presence to directory",
				"userID", userID, "online", online, "error", err)
		}
	}()
}
