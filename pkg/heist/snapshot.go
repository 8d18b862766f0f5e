package heist

import "sort"

// PlayerView is one player's state as visible to a given viewer.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"username"`
	Seat         int    `json:"seat"`
	Ready        bool   `json:"ready"`
	Disconnected bool   `json:"disconnected"`
	Passed       bool   `json:"passed"`
	ChipCount    int    `json:"chipCount"`
	Chip         *Chip  `json:"chip,omitempty"`
	Cards        []Card `json:"cards,omitempty"`
}

// RoomSnapshot is a point-in-time copy of room state safe to hand to the
// dispatcher and transport layers. Hole cards other than the viewer's own
// are redacted until showdown.
type RoomSnapshot struct {
	RoomID         string       `json:"roomId"`
	Name           string       `json:"name"`
	HostID         string       `json:"hostId"`
	Mode           string       `json:"mode"`
	MaxPlayers     int          `json:"maxPlayers"`
	Started        bool         `json:"started"`
	Phase          string       `json:"phase"`
	CurrentRound   int          `json:"currentRound"`
	CenterChips    []Chip       `json:"centerChips"`
	CommunityCards []Card       `json:"communityCards"`
	Players        []PlayerView `json:"players"`
	CurrentVaults  int          `json:"currentVaults"`
	CurrentAlarms  int          `json:"currentAlarms"`
}

// snapshotLocked builds the snapshot for one viewer. Runs on the room
// goroutine.
func (r *Room) snapshotLocked(forPlayerID string) *RoomSnapshot {
	snap := &RoomSnapshot{
		RoomID:     r.cfg.ID,
		Name:       r.cfg.Name,
		HostID:     r.cfg.HostID,
		Mode:       r.cfg.Mode.Name,
		MaxPlayers: r.cfg.MaxPlayers,
		Phase:      PhaseWaiting.String(),
	}

	revealAll := false
	if r.game != nil {
		phase := r.game.GetPhase()
		snap.Started = phase != PhaseEnded
		snap.Phase = phase.String()
		snap.CurrentRound = r.game.CurrentRound()
		snap.CurrentVaults = r.game.Vaults()
		snap.CurrentAlarms = r.game.Alarms()
		snap.CommunityCards = append([]Card{}, r.game.CommunityCards()...)
		for _, c := range r.game.CenterChips() {
			snap.CenterChips = append(snap.CenterChips, *c)
		}
		revealAll = phase == PhaseShowdown || phase == PhasePreparingNext || phase == PhaseEnded
	}

	for _, p := range r.players {
		view := PlayerView{
			ID:           p.ID,
			Name:         p.Name,
			Seat:         p.Seat,
			Ready:        p.IsReady,
			Disconnected: p.IsDisconnected,
			Passed:       p.HasPassed,
		}
		if p.HeldChip != nil {
			view.ChipCount = 1
			chip := *p.HeldChip
			view.Chip = &chip
		}
		if p.ID == forPlayerID || revealAll {
			view.Cards = append([]Card{}, p.HoleCards...)
		}
		snap.Players = append(snap.Players, view)
	}

	// Seat order for stable display.
	sort.Slice(snap.Players, func(i, j int) bool {
		return snap.Players[i].Seat < snap.Players[j].Seat
	})

	return snap
}
