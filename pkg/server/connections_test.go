package server

import (
	"sync"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegisterAndTouch(t *testing.T) {
	cm := NewConnectionManager(ConnectionConfig{Log: slog.Disabled})
	defer cm.Stop()

	rec := cm.Register("conn-1", "player-1", "alice")
	require.NotNil(t, rec)
	assert.True(t, rec.Online)

	before := cm.Record("conn-1").LastHeartbeat
	time.Sleep(5 * time.Millisecond)
	cm.Touch("conn-1")
	assert.True(t, cm.Record("conn-1").LastHeartbeat.After(before))

	cm.SetRoom("player-1", "room-1")
	assert.Equal(t, "room-1", cm.RecordForPlayer("player-1").RoomID)

	// Unknown ids are ignored, not created.
	cm.Touch("conn-x")
	cm.SetRoom("player-x", "room-1")
	assert.Nil(t, cm.Record("conn-x"))
	assert.Nil(t, cm.RecordForPlayer("player-x"))
}

func TestConnectionSweepFlagsStale(t *testing.T) {
	var mu sync.Mutex
	var stale []string
	cm := NewConnectionManager(ConnectionConfig{
		Log:              slog.Disabled,
		SweepInterval:    time.Hour, // drive sweeps manually
		HeartbeatTimeout: 50 * time.Millisecond,
		OnStale: func(connID string) {
			mu.Lock()
			stale = append(stale, connID)
			mu.Unlock()
		},
	})
	defer cm.Stop()

	cm.Register("conn-1", "player-1", "alice")
	cm.Register("conn-2", "player-2", "bob")
	cm.MarkDisconnected("conn-2") // offline connections are not swept

	cm.sweep(time.Now())
	mu.Lock()
	assert.Empty(t, stale)
	mu.Unlock()

	cm.sweep(time.Now().Add(time.Second))
	mu.Lock()
	require.Len(t, stale, 1)
	assert.Equal(t, "conn-1", stale[0])
	mu.Unlock()
}

func TestGraceExpiry(t *testing.T) {
	expired := make(chan string, 1)
	cm := NewConnectionManager(ConnectionConfig{
		Log:         slog.Disabled,
		GraceWindow: 20 * time.Millisecond,
		OnGraceExpired: func(playerID, roomID string) {
			expired <- playerID + "/" + roomID
		},
	})
	defer cm.Stop()

	cm.Register("conn-1", "player-1", "alice")
	cm.SetRoom("player-1", "room-1")
	cm.MarkDisconnected("conn-1")
	cm.StartGrace("player-1", "room-1")
	assert.True(t, cm.GraceActive("player-1"))

	select {
	case got := <-expired:
		assert.Equal(t, "player-1/room-1", got)
	case <-time.After(time.Second):
		t.Fatalf("grace window never expired")
	}
	assert.False(t, cm.GraceActive("player-1"))
	// The expired record is purged entirely.
	assert.Nil(t, cm.RecordForPlayer("player-1"))
}

func TestRebindCancelsGrace(t *testing.T) {
	expired := make(chan string, 1)
	cm := NewConnectionManager(ConnectionConfig{
		Log:         slog.Disabled,
		GraceWindow: 30 * time.Millisecond,
		OnGraceExpired: func(playerID, roomID string) {
			expired <- playerID
		},
	})
	defer cm.Stop()

	cm.Register("conn-1", "player-1", "alice")
	cm.SetRoom("player-1", "room-1")
	cm.MarkDisconnected("conn-1")
	cm.StartGrace("player-1", "room-1")

	rec, err := cm.Rebind("player-1", "conn-2")
	require.NoError(t, err)
	assert.Equal(t, "conn-2", rec.ConnID)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "room-1", rec.RoomID)
	assert.Equal(t, 1, rec.Reconnects)
	assert.True(t, rec.Online)
	assert.False(t, cm.GraceActive("player-1"))

	// The replaced connection id no longer resolves.
	assert.Nil(t, cm.Record("conn-1"))
	assert.Equal(t, rec, cm.Record("conn-2"))

	select {
	case <-expired:
		t.Fatalf("grace fired after a successful rebind")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestRebindRejectsLiveConnection(t *testing.T) {
	cm := NewConnectionManager(ConnectionConfig{Log: slog.Disabled})
	defer cm.Stop()

	cm.Register("conn-1", "player-1", "alice")

	// Identity takeover requires the prior connection to be confirmed
	// gone.
	_, err := cm.Rebind("player-1", "conn-2")
	assert.Error(t, err)
	assert.Equal(t, "conn-1", cm.RecordForPlayer("player-1").ConnID)

	_, err = cm.Rebind("ghost", "conn-3")
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	cm := NewConnectionManager(ConnectionConfig{Log: slog.Disabled})
	defer cm.Stop()

	cm.Register("conn-1", "player-1", "alice")
	cm.MarkDisconnected("conn-1")
	cm.StartGrace("player-1", "room-1")

	cm.Cleanup("conn-1")
	assert.Nil(t, cm.Record("conn-1"))
	assert.Nil(t, cm.RecordForPlayer("player-1"))
	assert.False(t, cm.GraceActive("player-1"))
}
