package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerMultiTab(t *testing.T) {
	dir := newFakeDirectory()
	tr := NewTracker(dir)

	if first := tr.OnConnect("u1", "Ada"); !first {
		t.Error("first connection should report the 0->1 transition")
	}
	if first := tr.OnConnect("u1", "Ada"); first {
		t.Error("second tab must not report a transition")
	}
	assert.Equal(t, 2, tr.ConnectionCount("u1"))

	// Closing one of two tabs keeps the user online.
	if last := tr.OnDisconnect("u1"); last {
		t.Error("disconnecting one of two tabs flipped the user offline")
	}
	assert.Equal(t, 1, tr.ConnectionCount("u1"))

	if last := tr.OnDisconnect("u1"); !last {
		t.Error("closing the last tab should report the 1->0 transition")
	}
	assert.Equal(t, 0, tr.ConnectionCount("u1"))
}

func TestTrackerWriteThrough(t *testing.T) {
	dir := newFakeDirectory()
	tr := NewTracker(dir)

	tr.OnConnect("u1", "Ada")
	waitFor(t, time.Second, func() bool { return dir.isOnline("u1") })

	tr.OnConnect("u1", "Ada")
	tr.OnDisconnect("u1")
	// Still one live connection: no offline write may appear.
	time.Sleep(20 * time.Millisecond)
	if !dir.isOnline("u1") {
		t.Fatal("directory flipped offline while a connection remained")
	}

	tr.OnDisconnect("u1")
	waitFor(t, time.Second, func() bool { return !dir.isOnline("u1") })
}

func TestTrackerDirectoryFailureIsNonFatal(t *testing.T) {
	dir := newFakeDirectory()
	dir.err = context.DeadlineExceeded
	tr := NewTracker(dir)

	// Presence still tracks in memory when the store is down.
	tr.OnConnect("u1", "Ada")
	assert.Equal(t, 1, tr.ConnectionCount("u1"))
	require.Len(t, tr.Snapshot(), 1)
}

func TestTrackerSnapshot(t *testing.T) {
	dir := newFakeDirectory()
	tr := NewTracker(dir)

	tr.OnConnect("u1", "Ada")
	tr.OnConnect("u2", "Grace")
	tr.OnConnect("u2", "Grace")

	records := tr.Snapshot()
	require.Len(t, records, 2)

	byUser := map[string]PresenceRecord{}
	for _, rec := range records {
		byUser[rec.UserID] = rec
	}
	assert.True(t, byUser["u1"].Online)
	assert.Equal(t, 1, byUser["u1"].ConnectionCount)
	assert.Equal(t, 2, byUser["u2"].ConnectionCount)
	assert.Equal(t, "Grace", byUser["u2"].DisplayName)

	tr.OnDisconnect("u1")
	require.Len(t, tr.Snapshot(), 1)
}

func TestTrackerReconcile(t *testing.T) {
	dir := newFakeDirectory()
	// A previous process crashed with u9 flagged online.
	dir.SetOnline(context.Background(), "u9", true, time.Now())

	tr := NewTracker(dir)
	require.NoError(t, tr.Reconcile(context.Background()))
	assert.False(t, dir.isOnline("u9"))
}
