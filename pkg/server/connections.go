package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/heistparty/pkg/scheduler"
)

// ConnectionRecord tracks one live (or gracefully expiring) connection and
// its binding to a stable logical player id.
type ConnectionRecord struct {
	ConnID         string
	PlayerID       string
	Username       string
	RoomID         string
	ConnectedAt    time.Time
	LastHeartbeat  time.Time
	DisconnectedAt time.Time
	Reconnects     int
	Online         bool
}

// ConnectionConfig holds configuration for the connection lifecycle
// manager.
type ConnectionConfig struct {
	Log              slog.Logger
	SweepInterval    time.Duration // liveness sweep period
	HeartbeatTimeout time.Duration // max silence before a connection is stale
	GraceWindow      time.Duration // reconnection window for in-game players

	// OnStale is invoked for connections whose heartbeat lapsed; the
	// server tears the transport down.
	OnStale func(connID string)
	// OnGraceExpired is invoked when a disconnected player's grace window
	// runs out without a rejoin; the server performs the full leave.
	OnGraceExpired func(playerID, roomID string)
}

// ConnectionManager observes connection liveness and runs the grace/timeout
// policy for disconnects. It observes but never owns game state: rooms are
// only touched through the callbacks the server installs.
type ConnectionManager struct {
	log slog.Logger
	cfg ConnectionConfig

	mu       sync.Mutex
	records  map[string]*ConnectionRecord // by connection id
	byPlayer map[string]*ConnectionRecord // by logical player id

	sched    *scheduler.Scheduler
	quit     chan struct{}
	stopOnce sync.Once
}

// NewConnectionManager creates the manager and starts its liveness sweep.
func NewConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 90 * time.Second
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = 60 * time.Second
	}

	cm := &ConnectionManager{
		log:      cfg.Log,
		cfg:      cfg,
		records:  make(map[string]*ConnectionRecord),
		byPlayer: make(map[string]*ConnectionRecord),
		sched:    scheduler.New(),
		quit:     make(chan struct{}),
	}
	go cm.sweepLoop()
	return cm
}

// Stop halts the sweep and cancels all pending grace timers.
func (cm *ConnectionManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.quit)
		cm.sched.Stop()
	})
}

// sweepLoop periodically flags connections whose last heartbeat exceeds the
// timeout threshold.
func (cm *ConnectionManager) sweepLoop() {
	ticker := time.NewTicker(cm.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.quit:
			return
		case now := <-ticker.C:
			cm.sweep(now)
		}
	}
}

// sweep collects stale connections and hands them to OnStale outside the
// lock.
func (cm *ConnectionManager) sweep(now time.Time) {
	var stale []string
	cm.mu.Lock()
	for connID, rec := range cm.records {
		if rec.Online && now.Sub(rec.LastHeartbeat) > cm.cfg.HeartbeatTimeout {
			stale = append(stale, connID)
		}
	}
	cm.mu.Unlock()

	for _, connID := range stale {
		cm.log.Infof("connection %s stale, tearing down", connID)
		if cm.cfg.OnStale != nil {
			cm.cfg.OnStale(connID)
		}
	}
}

// Register creates the record for a freshly accepted connection.
func (cm *ConnectionManager) Register(connID, playerID, username string) *ConnectionRecord {
	now := time.Now()
	rec := &ConnectionRecord{
		ConnID:        connID,
		PlayerID:      playerID,
		Username:      username,
		ConnectedAt:   now,
		LastHeartbeat: now,
		Online:        true,
	}

	cm.mu.Lock()
	cm.records[connID] = rec
	cm.byPlayer[playerID] = rec
	cm.mu.Unlock()

	return rec
}

// Touch refreshes the heartbeat for any inbound activity.
func (cm *ConnectionManager) Touch(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if rec, ok := cm.records[connID]; ok {
		rec.LastHeartbeat = time.Now()
	}
}

// SetRoom records which room the connection's player currently occupies.
func (cm *ConnectionManager) SetRoom(playerID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if rec, ok := cm.byPlayer[playerID]; ok {
		rec.RoomID = roomID
	}
}

// MarkDisconnected flags the connection offline and returns its record.
func (cm *ConnectionManager) MarkDisconnected(connID string) *ConnectionRecord {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	rec, ok := cm.records[connID]
	if !ok {
		return nil
	}
	rec.Online = false
	rec.DisconnectedAt = time.Now()
	return rec
}

// StartGrace arms the player's reconnection window. If it expires before a
// rejoin, OnGraceExpired performs the full cleanup.
func (cm *ConnectionManager) StartGrace(playerID, roomID string) {
	cm.log.Debugf("grace window started for %s in room %s (%s)", playerID, roomID, cm.cfg.GraceWindow)
	cm.sched.Schedule(graceKey(playerID), cm.cfg.GraceWindow, func() {
		cm.log.Infof("grace window expired for %s in room %s", playerID, roomID)
		cm.mu.Lock()
		if rec, ok := cm.byPlayer[playerID]; ok && !rec.Online {
			delete(cm.records, rec.ConnID)
			delete(cm.byPlayer, playerID)
		}
		cm.mu.Unlock()
		if cm.cfg.OnGraceExpired != nil {
			cm.cfg.OnGraceExpired(playerID, roomID)
		}
	})
}

// GraceActive reports whether the player has a pending grace window.
func (cm *ConnectionManager) GraceActive(playerID string) bool {
	return cm.sched.Pending(graceKey(playerID))
}

// Rebind binds a resumed connection to the existing player identity and
// cancels the grace timer. Takeover requires the prior connection to be
// confirmed gone: a rejoin racing a still-live connection is rejected so
// two connections can never fight over one player slot.
func (cm *ConnectionManager) Rebind(playerID, newConnID string) (*ConnectionRecord, error) {
	cm.mu.Lock()
	old, ok := cm.byPlayer[playerID]
	if !ok {
		cm.mu.Unlock()
		return nil, fmt.Errorf("no connection record for player %s", playerID)
	}
	if old.Online && old.ConnID != newConnID {
		cm.mu.Unlock()
		return nil, fmt.Errorf("player %s still has a live connection", playerID)
	}

	delete(cm.records, old.ConnID)
	now := time.Now()
	rec := &ConnectionRecord{
		ConnID:        newConnID,
		PlayerID:      playerID,
		Username:      old.Username,
		RoomID:        old.RoomID,
		ConnectedAt:   now,
		LastHeartbeat: now,
		Reconnects:    old.Reconnects + 1,
		Online:        true,
	}
	cm.records[newConnID] = rec
	cm.byPlayer[playerID] = rec
	cm.mu.Unlock()

	cm.sched.Cancel(graceKey(playerID))
	return rec, nil
}

// Cleanup removes a connection record entirely (explicit leave or stale
// teardown) and cancels any pending grace timer.
func (cm *ConnectionManager) Cleanup(connID string) {
	cm.mu.Lock()
	rec, ok := cm.records[connID]
	if ok {
		delete(cm.records, connID)
		if cur, exists := cm.byPlayer[rec.PlayerID]; exists && cur.ConnID == connID {
			delete(cm.byPlayer, rec.PlayerID)
		}
	}
	cm.mu.Unlock()

	if ok {
		cm.sched.Cancel(graceKey(rec.PlayerID))
	}
}

// Record returns the record for a connection id, if present.
func (cm *ConnectionManager) Record(connID string) *ConnectionRecord {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.records[connID]
}

// RecordForPlayer returns the record bound to a logical player id.
func (cm *ConnectionManager) RecordForPlayer(playerID string) *ConnectionRecord {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.byPlayer[playerID]
}

func graceKey(playerID string) string {
	return "grace:" + playerID
}
