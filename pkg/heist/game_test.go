package heist

import (
	"testing"
)

// riggedCommunity is a dry board: no pair, no three-flush, no straight
// reachable with the rigged pocket pairs below.
var riggedCommunity = []Card{
	{suit: Spades, value: Two},
	{suit: Clubs, value: Three},
	{suit: Hearts, value: Five},
	{suit: Diamonds, value: Six},
	{suit: Diamonds, value: Seven},
}

// riggedHoles holds pocket pairs in strictly decreasing strength, so the
// true hand ordering of the first n players is exactly seat order.
var riggedHoles = [][]Card{
	{{suit: Hearts, value: Ace}, {suit: Spades, value: Ace}},
	{{suit: Hearts, value: King}, {suit: Spades, value: King}},
	{{suit: Hearts, value: Queen}, {suit: Spades, value: Queen}},
	{{suit: Hearts, value: Jack}, {suit: Spades, value: Jack}},
	{{suit: Hearts, value: Ten}, {suit: Spades, value: Ten}},
	{{suit: Hearts, value: Nine}, {suit: Spades, value: Nine}},
}

func passAll(t *testing.T, g *Game) {
	t.Helper()
	for _, p := range g.Players() {
		if err := g.Pass(p.ID); err != nil {
			t.Fatalf("Pass(%s): %v", p.ID, err)
		}
	}
}

func chipWithStars(t *testing.T, g *Game, stars int) *Chip {
	t.Helper()
	for _, c := range g.CenterChips() {
		if c.Stars == stars {
			return c
		}
	}
	t.Fatalf("no center chip with %d stars", stars)
	return nil
}

// runRiggedHeist plays one full heist. Hands are rigged so that seat order
// is the true strength order; correct controls whether the crew claims the
// matching chip ordering or its reverse.
func runRiggedHeist(t *testing.T, g *Game, correct bool) {
	t.Helper()

	for g.CurrentRound() != 4 {
		passAll(t, g)
		if err := g.AdvanceRound(); err != nil {
			t.Fatalf("AdvanceRound: %v", err)
		}
	}

	players := g.Players()
	g.communityCards = append(g.communityCards[:0], riggedCommunity...)
	for i, p := range players {
		p.HoleCards = append(p.HoleCards[:0], riggedHoles[i]...)
	}

	n := len(players)
	for i, p := range players {
		stars := n - i // strongest claims the most stars
		if !correct {
			stars = i + 1
		}
		chip := chipWithStars(t, g, stars)
		if err := g.TakeFromCenter(p.ID, chip.ID); err != nil {
			t.Fatalf("TakeFromCenter(%s): %v", p.ID, err)
		}
	}

	passAll(t, g)
	if err := g.AdvanceRound(); err != nil {
		t.Fatalf("AdvanceRound to showdown: %v", err)
	}
}

func TestStartHeistDealsRoundOne(t *testing.T) {
	g := newTestGame(t, 3, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	if g.GetPhase() != PhaseRound1 {
		t.Errorf("phase = %s, want PRE_FLOP", g.GetPhase())
	}
	if len(g.CommunityCards()) != 0 {
		t.Errorf("round 1 should have no community cards, has %d", len(g.CommunityCards()))
	}
	for _, p := range g.Players() {
		if len(p.HoleCards) != 2 {
			t.Errorf("%s has %d hole cards, want 2", p.ID, len(p.HoleCards))
		}
	}

	chips := g.CenterChips()
	if len(chips) != 3 {
		t.Fatalf("center pool has %d chips, want 3", len(chips))
	}
	for i, c := range chips {
		if c.Color != ChipWhite {
			t.Errorf("chip %d color = %s, want white", c.ID, c.Color)
		}
		// Early-round chips are dealt in sequential star order.
		if c.Stars != i+1 {
			t.Errorf("chip at index %d has %d stars, want %d", i, c.Stars, i+1)
		}
	}

	if err := g.StartHeist(); err == nil {
		t.Errorf("second StartHeist should fail")
	}
}

func TestRoundProgression(t *testing.T) {
	g := newTestGame(t, 4, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	tests := []struct {
		round     int
		community int
		color     ChipColor
	}{
		{2, 3, ChipYellow},
		{3, 4, ChipOrange},
		{4, 5, ChipRed},
	}

	seenIDs := make(map[int]bool)
	for _, c := range g.CenterChips() {
		seenIDs[c.ID] = true
	}

	starOrder := make(map[ChipColor][]int)
	for _, tt := range tests {
		// Hold a chip so the reset into the next round is observable.
		chip := g.CenterChips()[0]
		if err := g.TakeFromCenter("p1", chip.ID); err != nil {
			t.Fatalf("TakeFromCenter: %v", err)
		}
		passAll(t, g)
		if err := g.AdvanceRound(); err != nil {
			t.Fatalf("AdvanceRound to round %d: %v", tt.round, err)
		}

		if g.CurrentRound() != tt.round {
			t.Fatalf("round = %d, want %d", g.CurrentRound(), tt.round)
		}
		if len(g.CommunityCards()) != tt.community {
			t.Errorf("round %d: %d community cards, want %d",
				tt.round, len(g.CommunityCards()), tt.community)
		}
		if len(g.CenterChips()) != 4 {
			t.Errorf("round %d: center pool has %d chips, want 4", tt.round, len(g.CenterChips()))
		}
		for _, c := range g.CenterChips() {
			if c.Color != tt.color {
				t.Errorf("round %d: chip color = %s, want %s", tt.round, c.Color, tt.color)
			}
			if seenIDs[c.ID] {
				t.Errorf("round %d: chip id %d reused from an earlier round", tt.round, c.ID)
			}
			seenIDs[c.ID] = true
		}
		for _, p := range g.Players() {
			if p.HeldChip != nil {
				t.Errorf("round %d: %s still holds a chip from the previous round", tt.round, p.ID)
			}
			if p.HasPassed {
				t.Errorf("round %d: %s pass flag not cleared", tt.round, p.ID)
			}
		}
		for _, c := range g.CenterChips() {
			starOrder[tt.color] = append(starOrder[tt.color], c.Stars)
		}
	}

	// Late-round chips cover the full star range even when permuted.
	stars := make(map[int]bool)
	for _, c := range g.CenterChips() {
		stars[c.Stars] = true
	}
	for want := 1; want <= 4; want++ {
		if !stars[want] {
			t.Errorf("round 4 pool missing a %d-star chip", want)
		}
	}

	// Early-round chips deal in sequential star order; late rounds permute
	// the stars across ids so the pool's listing order hides the values.
	// The seeded generator makes the permutations deterministic here.
	if !isSequential(starOrder[ChipYellow]) {
		t.Errorf("yellow stars = %v, want sequential order", starOrder[ChipYellow])
	}
	if isSequential(starOrder[ChipRed]) {
		t.Errorf("red stars = %v, want a shuffled order", starOrder[ChipRed])
	}
}

// isSequential reports whether stars reads 1..N in id order.
func isSequential(stars []int) bool {
	for i, s := range stars {
		if s != i+1 {
			return false
		}
	}
	return len(stars) > 0
}

func TestAdvanceRequiresAllPassed(t *testing.T) {
	g := newTestGame(t, 3, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	if err := g.AdvanceRound(); err == nil {
		t.Errorf("advance with no passes should fail")
	}
	if err := g.Pass("p1"); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if err := g.Pass("p2"); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if err := g.AdvanceRound(); err == nil {
		t.Errorf("advance with a pending player should fail")
	}
}

func TestShowdownVault(t *testing.T) {
	g := newTestGame(t, 3, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}
	runRiggedHeist(t, g, true)

	res := g.LastShowdown()
	if res == nil {
		t.Fatalf("no showdown result")
	}
	if !res.Match || res.Outcome != OutcomeVault {
		t.Errorf("match=%v outcome=%s, want matched vault", res.Match, res.Outcome)
	}
	if res.Vaults != 1 || res.Alarms != 0 {
		t.Errorf("vaults=%d alarms=%d, want 1/0", res.Vaults, res.Alarms)
	}
	if res.GameOver {
		t.Errorf("game should continue after the first vault")
	}
	if g.GetPhase() != PhasePreparingNext {
		t.Errorf("phase = %s, want PREPARING_NEXT_HEIST", g.GetPhase())
	}
	if res.ClaimedOrder[0] != "p1" || res.ClaimedOrder[2] != "p3" {
		t.Errorf("claimed order = %v", res.ClaimedOrder)
	}
	// Entries carry a readable hand description for the reveal.
	if got := res.Entries[0].Description; got != "Pair, A high" {
		t.Errorf("entry description = %q, want %q", got, "Pair, A high")
	}

	// Counters and hole state carry correctly into the next heist.
	if err := g.StartNextHeist(); err != nil {
		t.Fatalf("StartNextHeist: %v", err)
	}
	if g.GetPhase() != PhaseRound1 {
		t.Errorf("phase = %s, want PRE_FLOP", g.GetPhase())
	}
	if g.Vaults() != 1 {
		t.Errorf("vault counter reset between heists")
	}
	for _, p := range g.Players() {
		if len(p.HoleCards) != 2 || p.HeldChip != nil || p.HasPassed {
			t.Errorf("%s not reset for the new heist", p.ID)
		}
	}
}

func TestShowdownAlarm(t *testing.T) {
	g := newTestGame(t, 3, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}
	runRiggedHeist(t, g, false)

	res := g.LastShowdown()
	if res == nil {
		t.Fatalf("no showdown result")
	}
	if res.Match || res.Outcome != OutcomeAlarm {
		t.Errorf("match=%v outcome=%s, want mismatched alarm", res.Match, res.Outcome)
	}
	if res.Alarms != 1 {
		t.Errorf("alarms = %d, want 1", res.Alarms)
	}
	if res.GameOver {
		t.Errorf("basic mode survives the first alarm")
	}
}

func TestGameWonAfterThreeVaults(t *testing.T) {
	g := newTestGame(t, 2, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	for i := 0; i < 3; i++ {
		runRiggedHeist(t, g, true)
		if i < 2 {
			if err := g.StartNextHeist(); err != nil {
				t.Fatalf("StartNextHeist after heist %d: %v", i+1, err)
			}
		}
	}

	res := g.LastShowdown()
	if !res.GameOver || !res.Won {
		t.Errorf("gameOver=%v won=%v, want a won game", res.GameOver, res.Won)
	}
	if g.GetPhase() != PhaseEnded {
		t.Errorf("phase = %s, want ENDED", g.GetPhase())
	}
	if err := g.StartNextHeist(); err == nil {
		t.Errorf("StartNextHeist after the game ended should fail")
	}
}

func TestGameLostAfterThreeAlarms(t *testing.T) {
	g := newTestGame(t, 2, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	for i := 0; i < 3; i++ {
		runRiggedHeist(t, g, false)
		if i < 2 {
			if err := g.StartNextHeist(); err != nil {
				t.Fatalf("StartNextHeist after heist %d: %v", i+1, err)
			}
		}
	}

	res := g.LastShowdown()
	if !res.GameOver || res.Won {
		t.Errorf("gameOver=%v won=%v, want a lost game", res.GameOver, res.Won)
	}
	if g.GetPhase() != PhaseEnded {
		t.Errorf("phase = %s, want ENDED", g.GetPhase())
	}
}

func TestProModeBackupGenerator(t *testing.T) {
	g := newTestGame(t, 2, "pro")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}
	runRiggedHeist(t, g, false)

	// The backup generator charges failed heists double, and pro mode
	// tolerates fewer alarms, so one failure ends the run.
	res := g.LastShowdown()
	if res.Alarms != 2 {
		t.Errorf("alarms = %d, want 2", res.Alarms)
	}
	if !res.GameOver || res.Won {
		t.Errorf("gameOver=%v won=%v, want a lost game", res.GameOver, res.Won)
	}
}

func TestGetawayDriverAbsorbsOneFailure(t *testing.T) {
	g := newTestGame(t, 2, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	if err := g.UseSpecialistCard("p1", SpecialistGetawayDriver); err != nil {
		t.Fatalf("UseSpecialistCard: %v", err)
	}
	if !g.GetawayDriverArmed() {
		t.Fatalf("driver should be armed")
	}
	// A specialist card is a shared crew resource, playable once per game.
	if err := g.UseSpecialistCard("p2", SpecialistGetawayDriver); err == nil {
		t.Errorf("second play of the same card should fail")
	}

	runRiggedHeist(t, g, false)
	res := g.LastShowdown()
	if res.Outcome != OutcomeRetry {
		t.Errorf("outcome = %s, want retry", res.Outcome)
	}
	if res.Alarms != 0 {
		t.Errorf("alarms = %d, driver should absorb the failure", res.Alarms)
	}
	if g.GetawayDriverArmed() {
		t.Errorf("driver should be consumed")
	}

	// The next failure is charged normally.
	if err := g.StartNextHeist(); err != nil {
		t.Fatalf("StartNextHeist: %v", err)
	}
	runRiggedHeist(t, g, false)
	if got := g.LastShowdown(); got.Outcome != OutcomeAlarm || got.Alarms != 1 {
		t.Errorf("outcome=%s alarms=%d, want alarm/1", got.Outcome, got.Alarms)
	}
}

func TestUseSpecialistCardUnknown(t *testing.T) {
	g := newTestGame(t, 2, "basic")
	if err := g.UseSpecialistCard("p1", "vault-cracker"); err == nil {
		t.Errorf("unknown card should fail")
	}
	if err := g.UseSpecialistCard("ghost", SpecialistGetawayDriver); err == nil {
		t.Errorf("unknown player should fail")
	}
}

func TestChiplessPlayerClaimsLast(t *testing.T) {
	g := newTestGame(t, 3, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	for g.CurrentRound() != 4 {
		passAll(t, g)
		if err := g.AdvanceRound(); err != nil {
			t.Fatalf("AdvanceRound: %v", err)
		}
	}

	players := g.Players()
	g.communityCards = append(g.communityCards[:0], riggedCommunity...)
	for i, p := range players {
		p.HoleCards = append(p.HoleCards[:0], riggedHoles[i]...)
	}

	// Only the two strongest hands claim chips; the weakest stays
	// empty-handed and therefore claims last place, which matches.
	if err := g.TakeFromCenter("p1", chipWithStars(t, g, 3).ID); err != nil {
		t.Fatalf("TakeFromCenter: %v", err)
	}
	if err := g.TakeFromCenter("p2", chipWithStars(t, g, 2).ID); err != nil {
		t.Fatalf("TakeFromCenter: %v", err)
	}
	passAll(t, g)
	if err := g.AdvanceRound(); err != nil {
		t.Fatalf("AdvanceRound: %v", err)
	}

	res := g.LastShowdown()
	if !res.Match || res.Outcome != OutcomeVault {
		t.Errorf("match=%v outcome=%s, want matched vault", res.Match, res.Outcome)
	}
	if res.ClaimedOrder[2] != "p3" {
		t.Errorf("chipless player should claim last, order = %v", res.ClaimedOrder)
	}
	if res.Entries[2].ClaimedStars != 0 {
		t.Errorf("chipless entry claims %d stars, want 0", res.Entries[2].ClaimedStars)
	}
}

func TestRemovePlayerMidRound(t *testing.T) {
	g := newTestGame(t, 3, "basic")
	if err := g.StartHeist(); err != nil {
		t.Fatalf("StartHeist: %v", err)
	}

	chip := g.CenterChips()[0]
	if err := g.TakeFromCenter("p2", chip.ID); err != nil {
		t.Fatalf("TakeFromCenter: %v", err)
	}
	if err := g.Pass("p1"); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	if err := g.Pass("p3"); err != nil {
		t.Fatalf("Pass: %v", err)
	}

	if err := g.RemovePlayer("p2"); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if len(g.Players()) != 2 {
		t.Fatalf("player count = %d, want 2", len(g.Players()))
	}
	if g.centerChipIndex(chip.ID) == -1 {
		t.Errorf("departed player's chip should return to the center")
	}
	// The departure must not complete the round through stale flags.
	if g.AllPassed() {
		t.Errorf("pass flags should reset when a player leaves")
	}

	if err := g.RemovePlayer("ghost"); err == nil {
		t.Errorf("removing an unknown player should fail")
	}
}
