package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/vctt94/heistparty/pkg/heist"
	"github.com/vctt94/heistparty/pkg/scheduler"
)

// ServerConfig holds configuration for the server.
type ServerConfig struct {
	DB         Database
	LogBackend *logging.LogBackend
	Replay     ReplaySink
	Announcer  Announcer

	Seed           int64 // deterministic room seeds when non-zero
	NextHeistDelay time.Duration
	EmptyRoomDelay time.Duration // delay before deleting an empty lobby room

	SweepInterval    time.Duration
	HeartbeatTimeout time.Duration
	GraceWindow      time.Duration
}

// Server owns the room registry and dispatches inbound actions to the
// correct room's state machine. It is the only structure mutated from
// multiple connection contexts; rooms themselves are single-writer actors.
type Server struct {
	log        slog.Logger
	logBackend *logging.LogBackend
	cfg        ServerConfig

	db        Database
	replay    ReplaySink
	announcer Announcer

	mu           sync.RWMutex
	rooms        map[string]*heist.Room
	roomByPlayer map[string]string // logical player id -> room id

	sessionsMu       sync.RWMutex
	sessions         map[string]*Session // by connection id
	sessionsByPlayer map[string]*Session

	gameMu  sync.Mutex
	gameIDs map[string]string // room id -> persisted game id

	connMgr        *ConnectionManager
	sched          *scheduler.Scheduler
	eventProcessor *EventProcessor

	stopOnce sync.Once
}

// NewServer creates a server, starts its event dispatcher and connection
// sweep, and returns it ready to accept websocket sessions.
func NewServer(cfg ServerConfig) *Server {
	if cfg.EmptyRoomDelay == 0 {
		cfg.EmptyRoomDelay = 10 * time.Second
	}
	if cfg.Replay == nil {
		cfg.Replay = NopReplaySink{}
	}

	s := &Server{
		log:              cfg.LogBackend.Logger("SERVER"),
		logBackend:       cfg.LogBackend,
		cfg:              cfg,
		db:               cfg.DB,
		replay:           cfg.Replay,
		announcer:        cfg.Announcer,
		rooms:            make(map[string]*heist.Room),
		roomByPlayer:     make(map[string]string),
		sessions:         make(map[string]*Session),
		sessionsByPlayer: make(map[string]*Session),
		gameIDs:          make(map[string]string),
		sched:            scheduler.New(),
	}
	if s.announcer == nil {
		s.announcer = LogAnnouncer{Log: s.logBackend.Logger("CHAT")}
	}

	// A single worker keeps per-room event order intact.
	s.eventProcessor = NewEventProcessor(s, 1000, 1)
	s.eventProcessor.Start()

	s.connMgr = NewConnectionManager(ConnectionConfig{
		Log:              s.logBackend.Logger("CONN"),
		SweepInterval:    cfg.SweepInterval,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		GraceWindow:      cfg.GraceWindow,
		OnStale:          s.teardownStaleConnection,
		OnGraceExpired:   s.handleGraceExpired,
	})

	return s
}

// Stop gracefully stops the server: rooms close (cancelling their timers),
// the dispatcher drains out, and live sessions are shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		for id, room := range s.rooms {
			room.Close()
			delete(s.rooms, id)
		}
		s.mu.Unlock()

		s.sched.Stop()
		s.connMgr.Stop()
		s.eventProcessor.Stop()

		s.sessionsMu.Lock()
		for _, sess := range s.sessions {
			sess.close()
		}
		s.sessionsMu.Unlock()

		if err := s.replay.Close(); err != nil {
			s.log.Errorf("closing replay sink: %v", err)
		}
	})
}

// getRoom returns the room or nil.
func (s *Server) getRoom(roomID string) *heist.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

// roomForPlayer returns the room the player currently occupies, if any.
func (s *Server) roomForPlayer(playerID string) *heist.Room {
	s.mu.RLock()
	roomID, ok := s.roomByPlayer[playerID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.getRoom(roomID)
}

// CreateRoom creates a room with the caller as host and seats them.
func (s *Server) CreateRoom(playerID, username, name string, maxPlayers int, modeName string) (*heist.Room, error) {
	mode, err := heist.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	if s.roomForPlayer(playerID) != nil {
		return nil, fmt.Errorf("already in a room")
	}

	roomID := uuid.NewString()
	room, err := heist.NewRoom(heist.RoomConfig{
		ID:             roomID,
		Name:           name,
		HostID:         playerID,
		MaxPlayers:     maxPlayers,
		Mode:           mode,
		Seed:           s.cfg.Seed,
		NextHeistDelay: s.cfg.NextHeistDelay,
		Log:            s.logBackend.Logger("ROOM"),
		GameLog:        s.logBackend.Logger("GAME"),
	})
	if err != nil {
		return nil, err
	}
	room.SetEventChannel(s.eventProcessor.Queue())

	s.mu.Lock()
	s.rooms[roomID] = room
	s.mu.Unlock()

	if _, err := room.AddPlayer(playerID, username); err != nil {
		s.deleteRoom(roomID)
		return nil, err
	}

	s.mu.Lock()
	s.roomByPlayer[playerID] = roomID
	s.mu.Unlock()
	s.connMgr.SetRoom(playerID, roomID)

	s.log.Infof("room %s (%q) created by %s", roomID, name, username)
	return room, nil
}

// JoinRoom seats a player in an existing room.
func (s *Server) JoinRoom(playerID, username, roomID string) (*heist.Room, error) {
	room := s.getRoom(roomID)
	if room == nil {
		return nil, fmt.Errorf("room not found")
	}
	if s.roomForPlayer(playerID) != nil {
		return nil, fmt.Errorf("already in a room")
	}

	if _, err := room.AddPlayer(playerID, username); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.roomByPlayer[playerID] = roomID
	s.mu.Unlock()
	s.connMgr.SetRoom(playerID, roomID)

	// A pending empty-room deletion is void once someone is back inside.
	s.sched.Cancel(deleteKey(roomID))
	return room, nil
}

// ToggleReady flips the caller's lobby ready flag.
func (s *Server) ToggleReady(playerID string) error {
	room := s.roomForPlayer(playerID)
	if room == nil {
		return fmt.Errorf("not in a room")
	}
	return room.ToggleReady(playerID)
}

// StartGame starts the game in the caller's room (host only).
func (s *Server) StartGame(playerID, roomID string) error {
	room := s.getRoom(roomID)
	if room == nil {
		return fmt.Errorf("room not found")
	}
	return room.StartGame(playerID)
}

// HandleAction routes one arbitration action to the room's state machine.
func (s *Server) HandleAction(playerID, roomID string, action heist.PlayerAction) error {
	room := s.getRoom(roomID)
	if room == nil {
		return fmt.Errorf("room not found")
	}
	return room.HandleAction(playerID, action)
}

// UseSpecialistCard plays a specialist card in the caller's room.
func (s *Server) UseSpecialistCard(playerID, roomID, cardID string) error {
	room := s.getRoom(roomID)
	if room == nil {
		return fmt.Errorf("room not found")
	}
	return room.UseSpecialistCard(playerID, cardID)
}

// LeaveRoom removes a player explicitly. An empty room is deleted after a
// short delay so a transient reconnect doesn't destroy room metadata.
func (s *Server) LeaveRoom(playerID, roomID string) error {
	room := s.getRoom(roomID)
	if room == nil {
		return fmt.Errorf("room not found")
	}
	if err := room.RemovePlayer(playerID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.roomByPlayer, playerID)
	s.mu.Unlock()
	s.connMgr.SetRoom(playerID, "")

	s.maybeScheduleRoomDeletion(room)
	return nil
}

// RejoinRoom resumes a player after a reconnect within their grace window.
// The returned snapshot restores hole cards, held chip, pass state and the
// current phase.
func (s *Server) RejoinRoom(playerID, roomID string) (*heist.RoomSnapshot, error) {
	room := s.getRoom(roomID)
	if room == nil {
		return nil, fmt.Errorf("room not found")
	}
	snap, err := room.MarkReconnected(playerID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.roomByPlayer[playerID] = roomID
	s.mu.Unlock()
	s.connMgr.SetRoom(playerID, roomID)
	return snap, nil
}

// ListRooms returns a lobby listing of all rooms.
func (s *Server) ListRooms() []*heist.RoomSnapshot {
	s.mu.RLock()
	rooms := make([]*heist.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	out := make([]*heist.RoomSnapshot, 0, len(rooms))
	for _, room := range rooms {
		if snap := room.Snapshot(""); snap != nil {
			out = append(out, snap)
		}
	}
	return out
}

// handleDisconnect applies the disconnect policy for a dropped session. A
// participant in an in-progress game is kept, marked offline, and given a
// grace window; a lobby player is removed immediately.
func (s *Server) handleDisconnect(sess *Session) {
	s.unregisterSession(sess)
	rec := s.connMgr.MarkDisconnected(sess.ConnID)
	if rec == nil {
		return
	}

	room := s.roomForPlayer(sess.PlayerID)
	if room == nil {
		s.connMgr.Cleanup(sess.ConnID)
		return
	}

	if room.InProgress() && room.HasPlayer(sess.PlayerID) {
		if err := room.MarkDisconnected(sess.PlayerID); err != nil {
			s.log.Errorf("marking %s disconnected: %v", sess.PlayerID, err)
		}
		s.connMgr.StartGrace(sess.PlayerID, room.ID())
		return
	}

	// Lobby: immediate removal.
	if err := s.LeaveRoom(sess.PlayerID, room.ID()); err != nil {
		s.log.Errorf("removing %s from lobby room %s: %v", sess.PlayerID, room.ID(), err)
	}
	s.connMgr.Cleanup(sess.ConnID)
}

// handleGraceExpired performs the full leave for a player whose
// reconnection window lapsed.
func (s *Server) handleGraceExpired(playerID, roomID string) {
	s.log.Infof("player %s grace expired, removing from room %s", playerID, roomID)
	if err := s.LeaveRoom(playerID, roomID); err != nil {
		s.log.Warnf("grace cleanup for %s: %v", playerID, err)
	}
}

// teardownStaleConnection closes the session of a connection flagged by the
// liveness sweep; the read pump then drives the normal disconnect path.
func (s *Server) teardownStaleConnection(connID string) {
	s.sessionsMu.RLock()
	sess := s.sessions[connID]
	s.sessionsMu.RUnlock()
	if sess != nil {
		sess.close()
	}
}

// maybeScheduleRoomDeletion arms the deferred deletion of an empty room.
func (s *Server) maybeScheduleRoomDeletion(room *heist.Room) {
	if room.PlayerCount() > 0 {
		return
	}
	roomID := room.ID()
	s.sched.Schedule(deleteKey(roomID), s.cfg.EmptyRoomDelay, func() {
		if r := s.getRoom(roomID); r != nil && r.PlayerCount() == 0 {
			s.log.Infof("deleting empty room %s", roomID)
			s.deleteRoom(roomID)
		}
	})
}

// deleteRoom tears a room down and drops it from the registry.
func (s *Server) deleteRoom(roomID string) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if ok {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()

	if ok {
		room.Close()
	}
}

// gameIDForRoom returns the persisted game id for the room, minting a new
// one when requested (on game start).
func (s *Server) gameIDForRoom(roomID string, fresh bool) string {
	s.gameMu.Lock()
	defer s.gameMu.Unlock()

	if fresh || s.gameIDs[roomID] == "" {
		s.gameIDs[roomID] = uuid.NewString()
	}
	return s.gameIDs[roomID]
}

// clearGameID forgets the room's persisted game id once the game is final.
func (s *Server) clearGameID(roomID string) {
	s.gameMu.Lock()
	defer s.gameMu.Unlock()
	delete(s.gameIDs, roomID)
}

func deleteKey(roomID string) string {
	return "delete-room:" + roomID
}
