package heist

import "time"

// Player is one participant's per-room state. Players are keyed by a stable
// logical id; the transport connection id is mapped to it by the connection
// manager, so reconnects never mutate game-state collections.
type Player struct {
	// Identity
	ID   string
	Name string

	// Seat position, for display ordering only. This game has no turn order.
	Seat int

	// Lobby state
	IsReady bool

	// Connection state, maintained by the connection lifecycle manager.
	IsDisconnected bool
	DisconnectedAt time.Time

	// Per-heist state, reset between heists.
	HoleCards []Card
	HeldChip  *Chip
	HasPassed bool
}

// NewPlayer creates a player for the given logical id and seat.
func NewPlayer(id, name string, seat int) *Player {
	return &Player{
		ID:        id,
		Name:      name,
		Seat:      seat,
		HoleCards: make([]Card, 0, 2),
	}
}

// ResetForNewHeist clears the per-heist fields while preserving identity,
// seat and connection state.
func (p *Player) ResetForNewHeist() {
	p.HoleCards = p.HoleCards[:0]
	p.HeldChip = nil
	p.HasPassed = false
}

// HoldsChip reports whether the player currently holds the given chip id.
func (p *Player) HoldsChip(chipID int) bool {
	return p.HeldChip != nil && p.HeldChip.ID == chipID
}
