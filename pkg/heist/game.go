package heist

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/heistparty/pkg/statemachine"
)

// GamePhase identifies the current phase of a heist.
type GamePhase int

const (
	PhaseWaiting GamePhase = iota
	PhaseRound1
	PhaseRound2
	PhaseRound3
	PhaseRound4
	PhaseShowdown
	PhasePreparingNext
	PhaseEnded
)

// String returns the wire name of the phase.
func (p GamePhase) String() string {
	switch p {
	case PhaseWaiting:
		return "WAITING"
	case PhaseRound1:
		return "PRE_FLOP"
	case PhaseRound2:
		return "FLOP"
	case PhaseRound3:
		return "TURN"
	case PhaseRound4:
		return "RIVER"
	case PhaseShowdown:
		return "SHOWDOWN"
	case PhasePreparingNext:
		return "PREPARING_NEXT_HEIST"
	case PhaseEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Round returns the round number for round phases (1..4), 0 otherwise.
func (p GamePhase) Round() int {
	if p >= PhaseRound1 && p <= PhaseRound4 {
		return int(p-PhaseRound1) + 1
	}
	return 0
}

// GameMode holds the win/lose thresholds and challenge effects for a game.
type GameMode struct {
	Name            string
	RequiredVaults  int
	MaxAlarms       int
	BackupGenerator bool // challenge: failed heists raise alarms by 2
}

// ParseMode validates a mode name from createRoom.
func ParseMode(name string) (GameMode, error) {
	switch name {
	case "", "basic":
		return GameMode{Name: "basic", RequiredVaults: 3, MaxAlarms: 3}, nil
	case "pro":
		return GameMode{Name: "pro", RequiredVaults: 3, MaxAlarms: 2, BackupGenerator: true}, nil
	default:
		return GameMode{}, fmt.Errorf("unknown game mode %q", name)
	}
}

// Specialist card ids playable via UseSpecialistCard.
const SpecialistGetawayDriver = "getaway-driver"

// HeistOutcome is the result of one showdown.
type HeistOutcome string

const (
	OutcomeVault HeistOutcome = "vault"  // claimed order matched, vault cracked
	OutcomeAlarm HeistOutcome = "alarm"  // mismatch, alarm raised
	OutcomeRetry HeistOutcome = "retry"  // mismatch absorbed by the getaway driver
)

// ShowdownEntry is one player's evaluation at showdown.
type ShowdownEntry struct {
	PlayerID     string
	Name         string
	HoleCards    []Card
	Value        HandValue
	Description  string // human-readable hand, e.g. "Pair, A high"
	Rank         int
	Tied         bool
	ClaimedStars int
}

// ShowdownResult compares the claimed chip ordering against true hand
// strength and records the heist outcome.
type ShowdownResult struct {
	Entries      []ShowdownEntry // in claimed order, strongest claim first
	ClaimedOrder []string
	ActualOrder  []RankedHand
	Match        bool
	Outcome      HeistOutcome
	Vaults       int
	Alarms       int
	GameOver     bool
	Won          bool
}

// GameStateFn is a game state function.
type GameStateFn = statemachine.StateFn[Game]

// GameConfig holds configuration for a new game.
type GameConfig struct {
	Players []*Player
	Mode    GameMode
	Seed    int64 // optional seed for deterministic decks and chip permutations
	Log     slog.Logger
}

// Game drives the four-round heist sequence for one room. It is not
// self-locking: all mutation is confined to the owning room's single-writer
// goroutine, which serializes every action and timer callback.
type Game struct {
	log  slog.Logger
	mode GameMode
	rng  *rand.Rand

	players []*Player // seat order

	deck           *Deck
	communityCards []Card
	centerChips    []*Chip
	nextChipID     int

	phase GamePhase

	vaults int
	alarms int

	// Specialist/challenge effects. availableSpecialists holds cards not
	// yet played; getawayDriver is armed until consumed by a failed heist.
	availableSpecialists map[string]bool
	getawayDriver        bool

	lastShowdown *ShowdownResult

	sm *statemachine.StateMachine[Game]
}

// NewGame creates a game for the given players. Player order is fixed by
// seat for display; there is no turn order in this game.
func NewGame(cfg GameConfig) (*Game, error) {
	if len(cfg.Players) < 2 || len(cfg.Players) > 6 {
		return nil, fmt.Errorf("heist: need 2-6 players, got %d", len(cfg.Players))
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("heist: log is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	players := append([]*Player{}, cfg.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })

	g := &Game{
		log:     cfg.Log,
		mode:    cfg.Mode,
		rng:     rand.New(rand.NewSource(seed)),
		players: players,
		phase:   PhaseWaiting,
		availableSpecialists: map[string]bool{
			SpecialistGetawayDriver: true,
		},
	}
	g.sm = statemachine.New(g, gameStateIdle)
	return g, nil
}

// State functions. Each performs its work and returns the next state.

func gameStateIdle(g *Game) GameStateFn {
	return gameStateIdle
}

// gameStateDealRound sets up the next round: cards dealt or revealed, a
// fresh center chip pool minted, all pass flags cleared.
func gameStateDealRound(g *Game) GameStateFn {
	round := g.phase.Round() + 1
	if g.phase == PhaseWaiting || g.phase == PhasePreparingNext {
		round = 1
	}

	switch round {
	case 1:
		for i := 0; i < 2; i++ {
			for _, p := range g.players {
				card, ok := g.deck.Draw()
				if !ok {
					g.log.Errorf("deck exhausted dealing hole cards")
					return gameStateIdle
				}
				p.HoleCards = append(p.HoleCards, card)
			}
		}
	case 2:
		g.revealCommunity(3)
	case 3, 4:
		g.revealCommunity(1)
	}

	g.centerChips = mintChips(&g.nextChipID, len(g.players), round, g.rng)
	for _, p := range g.players {
		p.HeldChip = nil
		p.HasPassed = false
	}

	g.phase = PhaseRound1 + GamePhase(round-1)
	g.log.Debugf("round %d dealt: %d center chips (%s), %d community cards",
		round, len(g.centerChips), chipColorForRound(round), len(g.communityCards))

	return gameStateAwaitPasses
}

// gameStateAwaitPasses waits for every player to pass; the room drives the
// transition when the arbitration engine reports the round complete.
func gameStateAwaitPasses(g *Game) GameStateFn {
	return gameStateAwaitPasses
}

// gameStateShowdown resolves the heist and routes to the next heist or the
// end of the game.
func gameStateShowdown(g *Game) GameStateFn {
	g.phase = PhaseShowdown
	result := g.resolveShowdown()
	g.lastShowdown = result

	if result.GameOver {
		g.phase = PhaseEnded
		return nil
	}
	g.phase = PhasePreparingNext
	return gameStatePrepareNext
}

// gameStatePrepareNext holds between heists until the room's scheduled task
// calls StartNextHeist.
func gameStatePrepareNext(g *Game) GameStateFn {
	return gameStatePrepareNext
}

// StartHeist begins the first heist: fresh deck, per-heist player state
// reset, round 1 dealt.
func (g *Game) StartHeist() error {
	if g.phase != PhaseWaiting {
		return fmt.Errorf("game already started (phase %s)", g.phase)
	}
	g.beginHeist()
	return nil
}

// StartNextHeist begins a follow-up heist after a non-terminal showdown.
func (g *Game) StartNextHeist() error {
	if g.phase != PhasePreparingNext {
		return fmt.Errorf("no heist pending (phase %s)", g.phase)
	}
	g.beginHeist()
	return nil
}

// beginHeist resets per-heist state, keeping vault/alarm counters and card
// effects, and deals round 1 from a fresh shuffled deck.
func (g *Game) beginHeist() {
	g.deck = NewDeck(g.rng)
	g.communityCards = g.communityCards[:0]
	g.centerChips = nil
	for _, p := range g.players {
		p.ResetForNewHeist()
	}
	g.sm.Dispatch(gameStateDealRound)
}

// AdvanceRound moves to the next round once all players have passed, or to
// showdown after round 4.
func (g *Game) AdvanceRound() error {
	if g.phase.Round() == 0 {
		return fmt.Errorf("cannot advance: phase %s is not a round", g.phase)
	}
	if !g.AllPassed() {
		return fmt.Errorf("cannot advance: not all players have passed")
	}
	if g.phase == PhaseRound4 {
		g.sm.Dispatch(gameStateShowdown)
	} else {
		g.sm.Dispatch(gameStateDealRound)
	}
	return nil
}

// revealCommunity draws n cards onto the community board.
func (g *Game) revealCommunity(n int) {
	for i := 0; i < n; i++ {
		card, ok := g.deck.Draw()
		if !ok {
			g.log.Errorf("deck exhausted revealing community cards")
			return
		}
		g.communityCards = append(g.communityCards, card)
	}
}

// AllPassed reports whether every current player has passed simultaneously.
func (g *Game) AllPassed() bool {
	if len(g.players) == 0 {
		return false
	}
	for _, p := range g.players {
		if !p.HasPassed {
			return false
		}
	}
	return true
}

// UseSpecialistCard plays a specialist card for the crew. Cards are shared
// crew resources and each is playable once per game.
func (g *Game) UseSpecialistCard(playerID, cardID string) error {
	if g.findPlayer(playerID) == nil {
		return ErrUnknownPlayer
	}
	if !g.availableSpecialists[cardID] {
		return fmt.Errorf("specialist card %q is not available", cardID)
	}
	delete(g.availableSpecialists, cardID)

	switch cardID {
	case SpecialistGetawayDriver:
		g.getawayDriver = true
		g.log.Infof("getaway driver armed by %s", playerID)
	}
	return nil
}

// resolveShowdown compares the claimed red-chip ordering to true hand
// strength and charges the outcome against the vault/alarm counters.
func (g *Game) resolveShowdown() *ShowdownResult {
	hands := make(map[string]HandValue, len(g.players))
	for _, p := range g.players {
		hands[p.ID] = EvaluateHand(p.HoleCards, g.communityCards)
	}
	actual := RankHands(hands)
	actualRank := make(map[string]int, len(actual))
	tied := make(map[string]bool, len(actual))
	for _, rh := range actual {
		actualRank[rh.PlayerID] = rh.Rank
		tied[rh.PlayerID] = rh.Tied
	}

	// Claimed order: players sorted by held red chip stars, descending.
	// A player who ended the round without a chip claims last place.
	claimed := append([]*Player{}, g.players...)
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimedStars(claimed[i]) > claimedStars(claimed[j])
	})

	result := &ShowdownResult{
		Entries:      make([]ShowdownEntry, 0, len(claimed)),
		ClaimedOrder: make([]string, 0, len(claimed)),
		Match:        true,
	}
	for i, p := range claimed {
		result.ClaimedOrder = append(result.ClaimedOrder, p.ID)
		result.Entries = append(result.Entries, ShowdownEntry{
			PlayerID:     p.ID,
			Name:         p.Name,
			HoleCards:    append([]Card{}, p.HoleCards...),
			Value:        hands[p.ID],
			Description:  hands[p.ID].Describe(),
			Rank:         actualRank[p.ID],
			Tied:         tied[p.ID],
			ClaimedStars: claimedStars(p),
		})
		// The claimed sequence must list hands weakest-last: each actual
		// dense rank must be >= the one claimed before it. Tied hands may
		// appear in either order.
		if i > 0 && actualRank[p.ID] < actualRank[claimed[i-1].ID] {
			result.Match = false
		}
	}
	result.ActualOrder = actual

	switch {
	case result.Match:
		g.vaults++
		result.Outcome = OutcomeVault
	case g.getawayDriver:
		// The driver absorbs one failure before alarms are charged.
		g.getawayDriver = false
		result.Outcome = OutcomeRetry
	default:
		raise := 1
		if g.mode.BackupGenerator {
			raise = 2
		}
		g.alarms += raise
		result.Outcome = OutcomeAlarm
	}

	result.Vaults = g.vaults
	result.Alarms = g.alarms
	if g.vaults >= g.mode.RequiredVaults {
		result.GameOver = true
		result.Won = true
	} else if g.alarms >= g.mode.MaxAlarms {
		result.GameOver = true
	}

	g.log.Infof("showdown: match=%v outcome=%s vaults=%d/%d alarms=%d/%d",
		result.Match, result.Outcome, g.vaults, g.mode.RequiredVaults, g.alarms, g.mode.MaxAlarms)

	return result
}

func claimedStars(p *Player) int {
	if p.HeldChip == nil {
		return 0
	}
	return p.HeldChip.Stars
}

// RemovePlayer drops a player from the game mid-heist. Their held chip
// returns to the center pool and every pass flag resets, so the departure
// can never satisfy the round-end condition through a stale flag.
func (g *Game) RemovePlayer(playerID string) error {
	idx := -1
	for i, p := range g.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrUnknownPlayer
	}

	p := g.players[idx]
	if p.HeldChip != nil {
		g.centerChips = append(g.centerChips, p.HeldChip)
		p.HeldChip = nil
	}
	g.players = append(g.players[:idx], g.players[idx+1:]...)
	g.clearAllPasses()
	return nil
}

// findPlayer returns the player with the given id, or nil.
func (g *Game) findPlayer(playerID string) *Player {
	for _, p := range g.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// clearAllPasses resets every player's pass flag. Any chip movement
// invalidates all prior passes room-wide.
func (g *Game) clearAllPasses() {
	for _, p := range g.players {
		p.HasPassed = false
	}
}

// Accessors. Reads are only safe from the owning room goroutine or from
// snapshots it publishes.

// GetPhase returns the current phase.
func (g *Game) GetPhase() GamePhase { return g.phase }

// CurrentRound returns the active round number (1..4) or 0.
func (g *Game) CurrentRound() int { return g.phase.Round() }

// CommunityCards returns the revealed community cards.
func (g *Game) CommunityCards() []Card { return g.communityCards }

// CenterChips returns the chips currently in the center pool.
func (g *Game) CenterChips() []*Chip { return g.centerChips }

// Players returns the players in seat order.
func (g *Game) Players() []*Player { return g.players }

// Vaults returns the cracked vault count.
func (g *Game) Vaults() int { return g.vaults }

// Alarms returns the raised alarm count.
func (g *Game) Alarms() int { return g.alarms }

// Mode returns the game mode.
func (g *Game) Mode() GameMode { return g.mode }

// LastShowdown returns the most recent showdown result, if any.
func (g *Game) LastShowdown() *ShowdownResult { return g.lastShowdown }

// GetawayDriverArmed reports whether the getaway driver effect is active.
func (g *Game) GetawayDriverArmed() bool { return g.getawayDriver }
