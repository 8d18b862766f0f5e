package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vctt94/heistparty/pkg/heist"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks belong to the fronting proxy.
		return true
	},
}

// InboundMessage is the envelope for every client-to-server message.
type InboundMessage struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createRoomPayload struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	Mode       string `json:"mode"`
}

type specialistPayload struct {
	CardID string `json:"cardId"`
}

type welcomePayload struct {
	PlayerID string `json:"playerId"`
	ConnID   string `json:"connId"`
	Resumed  bool   `json:"resumed"`
}

// ServeWS upgrades an HTTP request to a websocket session. The username
// query parameter is required; a playerId parameter resumes an existing
// logical identity (the reconnection path).
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade: %v", err)
		return
	}

	connID := uuid.NewString()
	playerID := r.URL.Query().Get("playerId")
	resumed := false

	if playerID != "" {
		if _, err := s.connMgr.Rebind(playerID, connID); err != nil {
			s.log.Warnf("rejected identity takeover for %s: %v", playerID, err)
			writeCloseError(conn, err.Error())
			return
		}
		resumed = true
	} else {
		playerID = uuid.NewString()
		s.connMgr.Register(connID, playerID, username)
	}

	sess := newSession(connID, playerID, username, conn)
	s.registerSession(sess)
	s.log.Infof("connection %s established for %s (player %s, resumed=%v)",
		connID, username, playerID, resumed)

	sess.Send(OutboundMessage{Type: "welcome", Payload: welcomePayload{
		PlayerID: playerID,
		ConnID:   connID,
		Resumed:  resumed,
	}})

	go s.writePump(sess)
	go s.readPump(sess)
}

// readPump drains inbound messages until the connection drops, then runs
// the disconnect policy.
func (s *Server) readPump(sess *Session) {
	defer func() {
		s.handleDisconnect(sess)
		sess.close()
	}()

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			s.log.Debugf("connection %s read: %v", sess.ConnID, err)
			return
		}

		// Any inbound traffic counts as a heartbeat.
		s.connMgr.Touch(sess.ConnID)

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(sess, fmt.Errorf("malformed message: %v", err))
			continue
		}
		if err := s.handleMessage(sess, msg); err != nil {
			s.sendError(sess, err)
		}
	}
}

// writePump serializes outbound messages and keeps the connection alive
// with pings.
func (s *Server) writePump(sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sess.close()
	}()

	for {
		select {
		case msg := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(msg); err != nil {
				s.log.Debugf("connection %s write: %v", sess.ConnID, err)
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

// handleMessage dispatches one inbound envelope. Validation errors are
// returned to the caller and never mutate state.
func (s *Server) handleMessage(sess *Session, msg InboundMessage) error {
	switch msg.Type {
	case "ping":
		sess.Send(OutboundMessage{Type: "pong"})
		return nil

	case "listRooms":
		sess.Send(OutboundMessage{Type: "rooms", Payload: s.ListRooms()})
		return nil

	case "createRoom":
		var p createRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("malformed createRoom payload: %v", err)
		}
		room, err := s.CreateRoom(sess.PlayerID, sess.Username, p.Name, p.MaxPlayers, p.Mode)
		if err != nil {
			return err
		}
		sess.Send(OutboundMessage{Type: "roomCreated", Payload: room.Snapshot(sess.PlayerID)})
		return nil

	case "joinRoom":
		if msg.RoomID == "" {
			return fmt.Errorf("roomId is required")
		}
		_, err := s.JoinRoom(sess.PlayerID, sess.Username, msg.RoomID)
		return err

	case "toggleReady":
		return s.ToggleReady(sess.PlayerID)

	case "startGame":
		if msg.RoomID == "" {
			return fmt.Errorf("roomId is required")
		}
		return s.StartGame(sess.PlayerID, msg.RoomID)

	case "playerAction":
		if msg.RoomID == "" {
			return fmt.Errorf("roomId is required")
		}
		var action heist.PlayerAction
		if err := json.Unmarshal(msg.Payload, &action); err != nil {
			return fmt.Errorf("malformed playerAction payload: %v", err)
		}
		return s.HandleAction(sess.PlayerID, msg.RoomID, action)

	case "useSpecialistCard":
		if msg.RoomID == "" {
			return fmt.Errorf("roomId is required")
		}
		var p specialistPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("malformed useSpecialistCard payload: %v", err)
		}
		return s.UseSpecialistCard(sess.PlayerID, msg.RoomID, p.CardID)

	case "leaveRoom":
		if msg.RoomID == "" {
			return fmt.Errorf("roomId is required")
		}
		return s.LeaveRoom(sess.PlayerID, msg.RoomID)

	case "rejoinRoom":
		if msg.RoomID == "" {
			return fmt.Errorf("roomId is required")
		}
		snap, err := s.RejoinRoom(sess.PlayerID, msg.RoomID)
		if err != nil {
			return err
		}
		sess.Send(OutboundMessage{Type: "state", Payload: snap})
		return nil

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// sendError surfaces a generic error envelope to the client.
func (s *Server) sendError(sess *Session, err error) {
	sess.Send(OutboundMessage{Type: "error", Payload: ErrorPayload{Message: err.Error()}})
}

// writeCloseError writes a terminal error then closes the raw connection.
func writeCloseError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(OutboundMessage{Type: "error", Payload: ErrorPayload{Message: message}})
	conn.Close()
}
