package server

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vctt94/heistparty/pkg/heist"
)

// OutboundMessage is the envelope for every server-to-client message.
type OutboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorPayload is the generic error envelope surfaced to clients.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Session is one live websocket connection bound to a logical player.
type Session struct {
	ConnID   string
	PlayerID string
	Username string

	conn *websocket.Conn
	send chan OutboundMessage

	done      chan struct{}
	closeOnce sync.Once
}

// newSession wraps an upgraded connection.
func newSession(connID, playerID, username string, conn *websocket.Conn) *Session {
	return &Session{
		ConnID:   connID,
		PlayerID: playerID,
		Username: username,
		conn:     conn,
		send:     make(chan OutboundMessage, 32),
		done:     make(chan struct{}),
	}
}

// Send queues a message without blocking; a stalled client's backlog is
// dropped rather than holding up the dispatcher.
func (sess *Session) Send(msg OutboundMessage) bool {
	select {
	case sess.send <- msg:
		return true
	case <-sess.done:
		return false
	default:
		return false
	}
}

// close shuts the session down once.
func (sess *Session) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)
		sess.conn.Close()
	})
}

// registerSession adds a live session to the registry.
func (s *Server) registerSession(sess *Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[sess.ConnID] = sess
	s.sessionsByPlayer[sess.PlayerID] = sess
}

// unregisterSession removes a session; it stays the player's binding only
// if no newer session has replaced it.
func (s *Server) unregisterSession(sess *Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, sess.ConnID)
	if cur, ok := s.sessionsByPlayer[sess.PlayerID]; ok && cur.ConnID == sess.ConnID {
		delete(s.sessionsByPlayer, sess.PlayerID)
	}
}

// sessionForPlayer returns the player's live session, if any.
func (s *Server) sessionForPlayer(playerID string) *Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessionsByPlayer[playerID]
}

// sendToPlayer delivers one message to a player's live session.
func (s *Server) sendToPlayer(playerID string, msg OutboundMessage) {
	if sess := s.sessionForPlayer(playerID); sess != nil {
		if !sess.Send(msg) {
			s.log.Warnf("dropping %s message for slow client %s", msg.Type, playerID)
		}
	}
}

// broadcastEvent fans a room event out to the room's connected players.
// Game-state snapshots are rebuilt per player so hole cards stay redacted.
func (s *Server) broadcastEvent(event heist.RoomEvent) {
	room := s.getRoom(event.RoomID)
	if room == nil {
		// Raced with room teardown; nothing to deliver.
		return
	}

	switch event.Type {
	case heist.RoomEventState, heist.RoomEventPlayerJoined, heist.RoomEventPlayerLeft,
		heist.RoomEventGameStarted, heist.RoomEventHeistStarted, heist.RoomEventRoundAdvanced:
		s.broadcastSnapshots(room)

	case heist.RoomEventShowdown:
		s.broadcastToRoom(room, OutboundMessage{Type: "showdown", Payload: event.Payload})

	case heist.RoomEventGameEnded:
		s.broadcastToRoom(room, OutboundMessage{Type: "gameEnded", Payload: event.Payload})

	case heist.RoomEventPlayerAction:
		// Covered by the state snapshot published alongside it.
	}
}

// broadcastSnapshots sends each connected player their own redacted view.
func (s *Server) broadcastSnapshots(room *heist.Room) {
	base := room.Snapshot("")
	if base == nil {
		return
	}
	for _, pv := range base.Players {
		snap := room.Snapshot(pv.ID)
		s.sendToPlayer(pv.ID, OutboundMessage{Type: "state", Payload: snap})
	}
}

// broadcastToRoom sends the same message to every player in the room.
func (s *Server) broadcastToRoom(room *heist.Room, msg OutboundMessage) {
	snap := room.Snapshot("")
	if snap == nil {
		return
	}
	for _, pv := range snap.Players {
		s.sendToPlayer(pv.ID, msg)
	}
}
