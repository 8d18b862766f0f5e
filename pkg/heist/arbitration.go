package heist

import "errors"

// Arbitration invariant violations. Every operation validates fully before
// mutating, so a returned error means no chip moved.
var (
	ErrNotInRound         = errors.New("no round in progress")
	ErrUnknownPlayer      = errors.New("player not in game")
	ErrSelfTarget         = errors.New("cannot target yourself")
	ErrCenterEmpty        = errors.New("center pool is empty")
	ErrChipNotFound       = errors.New("chip not found in expected location")
	ErrAlreadyHoldingChip = errors.New("player already holds a chip")
	ErrNotHoldingChip     = errors.New("player does not hold that chip")
)

// TakeFromCenter moves a chip from the center pool to the player. Any chip
// movement invalidates every player's pass: passing signals acceptance of
// the current ordering, and a change voids that signal for the whole crew.
func (g *Game) TakeFromCenter(playerID string, chipID int) error {
	if g.phase.Round() == 0 {
		return ErrNotInRound
	}
	p := g.findPlayer(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	if p.HeldChip != nil {
		return ErrAlreadyHoldingChip
	}
	if len(g.centerChips) == 0 {
		return ErrCenterEmpty
	}
	idx := g.centerChipIndex(chipID)
	if idx == -1 {
		return ErrChipNotFound
	}

	chip := g.centerChips[idx]
	g.centerChips = append(g.centerChips[:idx], g.centerChips[idx+1:]...)
	p.HeldChip = chip
	g.clearAllPasses()
	return nil
}

// TakeFromPlayer moves the target's held chip to the actor.
func (g *Game) TakeFromPlayer(actorID, targetID string, chipID int) error {
	if g.phase.Round() == 0 {
		return ErrNotInRound
	}
	if actorID == targetID {
		return ErrSelfTarget
	}
	actor := g.findPlayer(actorID)
	if actor == nil {
		return ErrUnknownPlayer
	}
	target := g.findPlayer(targetID)
	if target == nil {
		return ErrUnknownPlayer
	}
	if actor.HeldChip != nil {
		return ErrAlreadyHoldingChip
	}
	if !target.HoldsChip(chipID) {
		return ErrNotHoldingChip
	}

	actor.HeldChip = target.HeldChip
	target.HeldChip = nil
	g.clearAllPasses()
	return nil
}

// ExchangeWithCenter atomically swaps the player's held chip with a chip in
// the center pool.
func (g *Game) ExchangeWithCenter(playerID string, ownChipID, centerChipID int) error {
	if g.phase.Round() == 0 {
		return ErrNotInRound
	}
	p := g.findPlayer(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	if !p.HoldsChip(ownChipID) {
		return ErrNotHoldingChip
	}
	idx := g.centerChipIndex(centerChipID)
	if idx == -1 {
		return ErrChipNotFound
	}

	p.HeldChip, g.centerChips[idx] = g.centerChips[idx], p.HeldChip
	g.clearAllPasses()
	return nil
}

// ExchangeWithPlayer atomically swaps held chips between two players.
func (g *Game) ExchangeWithPlayer(actorID, targetID string, ownChipID, targetChipID int) error {
	if g.phase.Round() == 0 {
		return ErrNotInRound
	}
	if actorID == targetID {
		return ErrSelfTarget
	}
	actor := g.findPlayer(actorID)
	if actor == nil {
		return ErrUnknownPlayer
	}
	target := g.findPlayer(targetID)
	if target == nil {
		return ErrUnknownPlayer
	}
	if !actor.HoldsChip(ownChipID) {
		return ErrNotHoldingChip
	}
	if !target.HoldsChip(targetChipID) {
		return ErrChipNotFound
	}

	actor.HeldChip, target.HeldChip = target.HeldChip, actor.HeldChip
	g.clearAllPasses()
	return nil
}

// Pass marks the player as satisfied with the current chip ordering. It
// affects only the caller's flag; the round ends when every player's flag
// is set simultaneously.
func (g *Game) Pass(playerID string) error {
	if g.phase.Round() == 0 {
		return ErrNotInRound
	}
	p := g.findPlayer(playerID)
	if p == nil {
		return ErrUnknownPlayer
	}
	p.HasPassed = true
	return nil
}

// centerChipIndex returns the index of the chip in the center pool, or -1.
func (g *Game) centerChipIndex(chipID int) int {
	for i, c := range g.centerChips {
		if c.ID == chipID {
			return i
		}
	}
	return -1
}
