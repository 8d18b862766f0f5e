package heist

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/heistparty/pkg/scheduler"
)

// ErrRoomClosed is returned for operations against a torn-down room.
var ErrRoomClosed = errors.New("room is closed")

// RoomEventType identifies an outbound room event.
type RoomEventType string

const (
	RoomEventState         RoomEventType = "state"
	RoomEventPlayerJoined  RoomEventType = "player_joined"
	RoomEventPlayerLeft    RoomEventType = "player_left"
	RoomEventGameStarted   RoomEventType = "game_started"
	RoomEventPlayerAction  RoomEventType = "player_action"
	RoomEventRoundAdvanced RoomEventType = "round_advanced"
	RoomEventShowdown      RoomEventType = "showdown"
	RoomEventHeistStarted  RoomEventType = "heist_started"
	RoomEventGameEnded     RoomEventType = "game_ended"
)

// RoomEvent is an outbound event emitted by a room after its in-memory
// state has advanced. The server's dispatcher drains these and fans out to
// broadcast, persistence, replay and chat handlers.
type RoomEvent struct {
	Type      RoomEventType
	RoomID    string
	PlayerID  string // acting player, when meaningful
	Payload   interface{}
	Timestamp time.Time
}

// ActionPayload describes one arbitration action for persistence/replay.
type ActionPayload struct {
	Action string `json:"action"`
	Round  int    `json:"round"`
	ChipID int    `json:"chipId,omitempty"`
	Target string `json:"target,omitempty"`
}

// RoundPayload describes a freshly dealt round.
type RoundPayload struct {
	Round          int    `json:"round"`
	Phase          string `json:"phase"`
	CommunityCards []Card `json:"communityCards"`
}

// PresencePayload carries the display name for join/leave events so chat
// and transport render usernames instead of opaque player ids.
type PresencePayload struct {
	Username string `json:"username"`
}

// GameEndedPayload carries the terminal result of a game.
type GameEndedPayload struct {
	Won    bool   `json:"won"`
	Reason string `json:"reason"`
	Vaults int    `json:"vaults"`
	Alarms int    `json:"alarms"`
}

// PlayerAction is one inbound arbitration action from a client.
type PlayerAction struct {
	Type         string `json:"action"`
	ChipID       int    `json:"chipId"`
	TargetID     string `json:"targetId"`
	TargetChipID int    `json:"targetChipId"`
}

// Inbound action names.
const (
	ActionPass               = "pass"
	ActionTakeFromCenter     = "takeFromCenter"
	ActionTakeFromPlayer     = "takeFromPlayer"
	ActionExchangeWithCenter = "exchangeWithCenter"
	ActionExchangeWithPlayer = "exchangeWithPlayer"
)

// RoomConfig holds configuration for a new room.
type RoomConfig struct {
	ID             string
	Name           string
	HostID         string
	MaxPlayers     int
	Mode           GameMode
	Seed           int64 // deterministic decks/permutations when non-zero
	NextHeistDelay time.Duration
	Log            slog.Logger
	GameLog        slog.Logger
}

// Room owns one game session and its lobby membership. All mutation runs on
// a single-writer goroutine draining a bounded command channel; every player
// action or timer callback executes to completion (validate, mutate,
// publish) before the next one is admitted, so chip and phase mutations are
// never interleaved.
type Room struct {
	cfg   RoomConfig
	log   slog.Logger
	sched *scheduler.Scheduler

	players map[string]*Player
	seats   int
	game    *Game

	events chan<- RoomEvent

	cmds      chan roomCmd
	quit      chan struct{}
	closeOnce sync.Once

	createdAt  time.Time
	lastAction time.Time
}

type roomCmd struct {
	fn    func() error
	reply chan error
}

// NewRoom creates a room and starts its event loop.
func NewRoom(cfg RoomConfig) (*Room, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("heist: log is required")
	}
	if cfg.MaxPlayers < 2 || cfg.MaxPlayers > 6 {
		return nil, fmt.Errorf("heist: max players must be 2-6, got %d", cfg.MaxPlayers)
	}
	if cfg.NextHeistDelay == 0 {
		cfg.NextHeistDelay = 5 * time.Second
	}
	if cfg.GameLog == nil {
		cfg.GameLog = cfg.Log
	}

	r := &Room{
		cfg:       cfg,
		log:       cfg.Log,
		sched:     scheduler.New(),
		players:   make(map[string]*Player),
		cmds:      make(chan roomCmd, 64),
		quit:      make(chan struct{}),
		createdAt: time.Now(),
	}
	go r.loop()
	return r, nil
}

// loop is the room's single writer.
func (r *Room) loop() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd.reply <- cmd.fn()
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the room goroutine and waits for its result.
func (r *Room) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.cmds <- roomCmd{fn: fn, reply: reply}:
	case <-r.quit:
		return ErrRoomClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.quit:
		return ErrRoomClosed
	}
}

// post queues fn without waiting. Used by timer callbacks so the scheduler
// goroutine never blocks on the room.
func (r *Room) post(fn func() error) {
	select {
	case r.cmds <- roomCmd{fn: fn, reply: make(chan error, 1)}:
	case <-r.quit:
	}
}

// Close tears the room down: pending timers are cancelled and the loop
// exits, so no stale callback can resurrect state.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.sched.Stop()
		close(r.quit)
	})
}

// SetEventChannel wires the room's outbound events to the dispatcher.
func (r *Room) SetEventChannel(events chan<- RoomEvent) {
	r.events = events
}

// publish emits an event without blocking; a full dispatcher queue drops
// the event rather than stalling game-state transitions.
func (r *Room) publish(eventType RoomEventType, playerID string, payload interface{}) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- RoomEvent{
		Type:      eventType,
		RoomID:    r.cfg.ID,
		PlayerID:  playerID,
		Payload:   payload,
		Timestamp: time.Now(),
	}:
	default:
		r.log.Warnf("room %s: event queue full, dropping %s", r.cfg.ID, eventType)
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.cfg.ID }

// Name returns the display name.
func (r *Room) Name() string { return r.cfg.Name }

// HostID returns the current host's player id.
func (r *Room) HostID() string {
	var host string
	_ = r.do(func() error {
		host = r.cfg.HostID
		return nil
	})
	return host
}

// AddPlayer seats a new player. Joining is rejected once a game is in
// progress; reconnection goes through MarkReconnected instead.
func (r *Room) AddPlayer(playerID, name string) (*Player, error) {
	var p *Player
	err := r.do(func() error {
		if r.game != nil && r.game.GetPhase() != PhaseEnded {
			return fmt.Errorf("game already in progress")
		}
		if len(r.players) >= r.cfg.MaxPlayers {
			return fmt.Errorf("room is full")
		}
		if _, exists := r.players[playerID]; exists {
			return fmt.Errorf("player already in room")
		}
		r.seats++
		p = NewPlayer(playerID, name, r.seats)
		r.players[playerID] = p
		r.lastAction = time.Now()
		r.publish(RoomEventPlayerJoined, playerID, &PresencePayload{Username: name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RemovePlayer removes a player entirely (explicit leave or expired grace).
// If a game is in progress the game-side removal returns their chip to the
// center and resets pass flags; a game left with fewer than two players
// ends immediately.
func (r *Room) RemovePlayer(playerID string) error {
	return r.do(func() error {
		leaver, exists := r.players[playerID]
		if !exists {
			return ErrUnknownPlayer
		}
		delete(r.players, playerID)
		r.lastAction = time.Now()

		if r.game != nil && r.game.GetPhase() != PhaseEnded {
			if err := r.game.RemovePlayer(playerID); err != nil && !errors.Is(err, ErrUnknownPlayer) {
				r.log.Errorf("room %s: removing %s from game: %v", r.cfg.ID, playerID, err)
			}
			if len(r.game.Players()) < 2 {
				r.endGameLocked("not enough players remaining")
			} else if r.game.AllPassed() {
				// Remaining players were all passed before the departure;
				// the reset above cleared them, but re-check for safety.
				r.advanceLocked()
			}
		}

		// Host handoff to the lowest remaining seat.
		if r.cfg.HostID == playerID {
			var next *Player
			for _, p := range r.players {
				if next == nil || p.Seat < next.Seat {
					next = p
				}
			}
			if next != nil {
				r.cfg.HostID = next.ID
			}
		}

		r.publish(RoomEventPlayerLeft, playerID, &PresencePayload{Username: leaver.Name})
		r.publish(RoomEventState, "", nil)
		return nil
	})
}

// ToggleReady flips a lobby player's ready flag.
func (r *Room) ToggleReady(playerID string) error {
	return r.do(func() error {
		p, exists := r.players[playerID]
		if !exists {
			return ErrUnknownPlayer
		}
		if r.game != nil && r.game.GetPhase() != PhaseEnded {
			return fmt.Errorf("game already in progress")
		}
		p.IsReady = !p.IsReady
		r.publish(RoomEventState, playerID, nil)
		return nil
	})
}

// StartGame begins the first heist. Host only, at least two players, all
// players ready.
func (r *Room) StartGame(requesterID string) error {
	return r.do(func() error {
		if requesterID != r.cfg.HostID {
			return fmt.Errorf("only the host can start the game")
		}
		if r.game != nil && r.game.GetPhase() != PhaseEnded {
			return fmt.Errorf("game already in progress")
		}
		if len(r.players) < 2 {
			return fmt.Errorf("need at least 2 players to start")
		}
		for _, p := range r.players {
			if !p.IsReady {
				return fmt.Errorf("player %s is not ready", p.Name)
			}
		}

		players := make([]*Player, 0, len(r.players))
		for _, p := range r.players {
			players = append(players, p)
		}
		g, err := NewGame(GameConfig{
			Players: players,
			Mode:    r.cfg.Mode,
			Seed:    r.cfg.Seed,
			Log:     r.cfg.GameLog,
		})
		if err != nil {
			return fmt.Errorf("failed to create game: %w", err)
		}
		if err := g.StartHeist(); err != nil {
			return err
		}
		r.game = g
		r.lastAction = time.Now()

		r.publish(RoomEventGameStarted, requesterID, nil)
		r.publish(RoomEventRoundAdvanced, "", r.roundPayloadLocked())
		r.publish(RoomEventState, "", nil)
		return nil
	})
}

// HandleAction routes one arbitration action into the game. Validation and
// mutation run to completion on the room goroutine, then the resulting
// state is published; a validation or invariant error leaves the room
// untouched.
func (r *Room) HandleAction(playerID string, action PlayerAction) error {
	return r.do(func() error {
		if r.game == nil || r.game.GetPhase() == PhaseEnded {
			return fmt.Errorf("no game in progress")
		}

		var err error
		switch action.Type {
		case ActionPass:
			err = r.game.Pass(playerID)
		case ActionTakeFromCenter:
			err = r.game.TakeFromCenter(playerID, action.ChipID)
		case ActionTakeFromPlayer:
			err = r.game.TakeFromPlayer(playerID, action.TargetID, action.ChipID)
		case ActionExchangeWithCenter:
			err = r.game.ExchangeWithCenter(playerID, action.ChipID, action.TargetChipID)
		case ActionExchangeWithPlayer:
			err = r.game.ExchangeWithPlayer(playerID, action.TargetID, action.ChipID, action.TargetChipID)
		default:
			return fmt.Errorf("unknown action %q", action.Type)
		}
		if err != nil {
			return err
		}

		r.lastAction = time.Now()
		r.publish(RoomEventPlayerAction, playerID, &ActionPayload{
			Action: action.Type,
			Round:  r.game.CurrentRound(),
			ChipID: action.ChipID,
			Target: action.TargetID,
		})

		if r.game.AllPassed() {
			r.advanceLocked()
		}
		r.publish(RoomEventState, "", nil)
		return nil
	})
}

// UseSpecialistCard plays a specialist card.
func (r *Room) UseSpecialistCard(playerID, cardID string) error {
	return r.do(func() error {
		if r.game == nil || r.game.GetPhase() == PhaseEnded {
			return fmt.Errorf("no game in progress")
		}
		if err := r.game.UseSpecialistCard(playerID, cardID); err != nil {
			return err
		}
		r.publish(RoomEventState, playerID, nil)
		return nil
	})
}

// advanceLocked advances the round or resolves the showdown. Runs on the
// room goroutine.
func (r *Room) advanceLocked() {
	wasRound4 := r.game.GetPhase() == PhaseRound4
	if err := r.game.AdvanceRound(); err != nil {
		r.log.Errorf("room %s: advance failed: %v", r.cfg.ID, err)
		return
	}

	if !wasRound4 {
		r.publish(RoomEventRoundAdvanced, "", r.roundPayloadLocked())
		return
	}

	result := r.game.LastShowdown()
	r.publish(RoomEventShowdown, "", result)

	switch {
	case result.GameOver:
		reason := "vaults cracked"
		if !result.Won {
			reason = "alarms maxed out"
		}
		r.publish(RoomEventGameEnded, "", &GameEndedPayload{
			Won:    result.Won,
			Reason: reason,
			Vaults: result.Vaults,
			Alarms: result.Alarms,
		})
	default:
		// Non-terminal: schedule the next heist. The task posts back into
		// the room channel and is cancelled by Close.
		r.sched.Schedule("next-heist", r.cfg.NextHeistDelay, func() {
			r.post(func() error {
				if r.game == nil {
					return nil
				}
				if err := r.game.StartNextHeist(); err != nil {
					r.log.Errorf("room %s: next heist: %v", r.cfg.ID, err)
					return nil
				}
				r.publish(RoomEventHeistStarted, "", nil)
				r.publish(RoomEventRoundAdvanced, "", r.roundPayloadLocked())
				r.publish(RoomEventState, "", nil)
				return nil
			})
		})
	}
}

// endGameLocked terminates the game early. Runs on the room goroutine.
func (r *Room) endGameLocked(reason string) {
	r.sched.Cancel("next-heist")
	r.publish(RoomEventGameEnded, "", &GameEndedPayload{
		Reason: reason,
		Vaults: r.game.Vaults(),
		Alarms: r.game.Alarms(),
	})
	r.game = nil
	for _, p := range r.players {
		p.IsReady = false
	}
}

// roundPayloadLocked builds the round event payload. Runs on the room
// goroutine.
func (r *Room) roundPayloadLocked() *RoundPayload {
	return &RoundPayload{
		Round:          r.game.CurrentRound(),
		Phase:          r.game.GetPhase().String(),
		CommunityCards: append([]Card{}, r.game.CommunityCards()...),
	}
}

// InProgress reports whether a game is currently running.
func (r *Room) InProgress() bool {
	var started bool
	_ = r.do(func() error {
		started = r.game != nil && r.game.GetPhase() != PhaseEnded
		return nil
	})
	return started
}

// PlayerCount returns the number of seated players.
func (r *Room) PlayerCount() int {
	var n int
	_ = r.do(func() error {
		n = len(r.players)
		return nil
	})
	return n
}

// HasPlayer reports whether the given logical player id is seated.
func (r *Room) HasPlayer(playerID string) bool {
	var ok bool
	_ = r.do(func() error {
		_, ok = r.players[playerID]
		return nil
	})
	return ok
}

// MarkDisconnected flags a player as offline without removing them, so an
// in-progress game stays consistent while their grace window runs.
func (r *Room) MarkDisconnected(playerID string) error {
	return r.do(func() error {
		p, exists := r.players[playerID]
		if !exists {
			return ErrUnknownPlayer
		}
		p.IsDisconnected = true
		p.DisconnectedAt = time.Now()
		r.publish(RoomEventState, "", nil)
		return nil
	})
}

// MarkReconnected re-binds a resumed connection to the existing player
// record and returns the private snapshot that restores their hole cards,
// held chip, pass state and phase.
func (r *Room) MarkReconnected(playerID string) (*RoomSnapshot, error) {
	var snap *RoomSnapshot
	err := r.do(func() error {
		p, exists := r.players[playerID]
		if !exists {
			return ErrUnknownPlayer
		}
		p.IsDisconnected = false
		p.DisconnectedAt = time.Time{}
		snap = r.snapshotLocked(playerID)
		r.publish(RoomEventState, "", nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Snapshot returns the room state as visible to forPlayerID. Other players'
// hole cards are redacted until showdown.
func (r *Room) Snapshot(forPlayerID string) *RoomSnapshot {
	var snap *RoomSnapshot
	_ = r.do(func() error {
		snap = r.snapshotLocked(forPlayerID)
		return nil
	})
	return snap
}
