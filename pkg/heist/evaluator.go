package heist

import (
	"fmt"
	"sort"
)

// HandRank represents the category of a poker hand, ascending strength.
type HandRank int

const (
	HighCard HandRank = iota + 1
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns a human-readable name for the hand rank.
func (r HandRank) String() string {
	switch r {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// HandValue is the complete evaluation of a hand. Kickers is the full
// tiebreak vector in descending significance: primary card values first
// (pair value, trips value, ...), then the remaining kickers high-first.
// Two hands with equal Rank and equal Kickers are tied.
type HandValue struct {
	Rank     HandRank
	Kickers  []int
	BestHand []Card
}

// Describe returns a human-readable description of the hand.
func (hv HandValue) Describe() string {
	if len(hv.Kickers) == 0 {
		return hv.Rank.String()
	}
	return fmt.Sprintf("%s, %s high", hv.Rank, intToValue(hv.Kickers[0]))
}

// valueToInt converts a card Value to its integer representation (2..14).
func valueToInt(value Value) int {
	switch value {
	case Ace:
		return 14
	case King:
		return 13
	case Queen:
		return 12
	case Jack:
		return 11
	case Ten:
		return 10
	case Nine:
		return 9
	case Eight:
		return 8
	case Seven:
		return 7
	case Six:
		return 6
	case Five:
		return 5
	case Four:
		return 4
	case Three:
		return 3
	case Two:
		return 2
	default:
		return 0
	}
}

// intToValue converts an integer back to its card Value representation.
func intToValue(value int) Value {
	switch value {
	case 14:
		return Ace
	case 13:
		return King
	case 12:
		return Queen
	case 11:
		return Jack
	case 10:
		return Ten
	case 9:
		return Nine
	case 8:
		return Eight
	case 7:
		return Seven
	case 6:
		return Six
	case 5:
		return Five
	case 4:
		return Four
	case 3:
		return Three
	case 2:
		return Two
	default:
		return ""
	}
}

// EvaluateHand computes the maximum-strength five-card hand from up to 2
// hole cards and up to 5 community cards by scoring every five-card subset
// and keeping the best by (rank, then kicker-by-kicker comparison). The
// result is deterministic and invariant under permutation of the inputs.
func EvaluateHand(holeCards []Card, communityCards []Card) HandValue {
	allCards := append([]Card{}, holeCards...)
	allCards = append(allCards, communityCards...)

	if len(allCards) < 5 {
		// Not enough cards for a full hand; score what we have as high cards.
		return scorePartial(allCards)
	}

	var best HandValue
	first := true
	for _, combo := range combinations(allCards, 5) {
		hv := scoreFive(combo)
		if first || CompareHands(hv, best) > 0 {
			best = hv
			first = false
		}
	}
	return best
}

// scorePartial ranks fewer than five cards as a bare high-card vector. Only
// reachable before the river in informational displays, never at showdown.
func scorePartial(cards []Card) HandValue {
	vals := make([]int, len(cards))
	for i, c := range cards {
		vals[i] = valueToInt(c.value)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vals)))
	sorted := append([]Card{}, cards...)
	sortCardsByValue(sorted)
	return HandValue{Rank: HighCard, Kickers: vals, BestHand: sorted}
}

// scoreFive scores exactly five cards.
func scoreFive(cards []Card) HandValue {
	vals := make([]int, 5)
	for i, c := range cards {
		vals[i] = valueToInt(c.value)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vals)))

	flush := true
	for i := 1; i < 5; i++ {
		if cards[i].suit != cards[0].suit {
			flush = false
			break
		}
	}

	straightHigh, straight := straightHighCard(vals)

	// Count multiples: value -> count.
	counts := make(map[int]int, 5)
	for _, v := range vals {
		counts[v]++
	}

	// Group values by multiplicity, each group sorted high-first.
	byCount := make(map[int][]int)
	for v, n := range counts {
		byCount[n] = append(byCount[n], v)
	}
	for _, group := range byCount {
		sort.Sort(sort.Reverse(sort.IntSlice(group)))
	}

	sorted := append([]Card{}, cards...)
	sortCardsByValue(sorted)

	hv := HandValue{BestHand: sorted}

	switch {
	case flush && straight && straightHigh == 14:
		hv.Rank = RoyalFlush
		hv.Kickers = []int{}
	case flush && straight:
		hv.Rank = StraightFlush
		hv.Kickers = []int{straightHigh}
	case len(byCount[4]) == 1:
		hv.Rank = FourOfAKind
		hv.Kickers = append([]int{byCount[4][0]}, byCount[1]...)
	case len(byCount[3]) == 1 && len(byCount[2]) == 1:
		hv.Rank = FullHouse
		hv.Kickers = []int{byCount[3][0], byCount[2][0]}
	case flush:
		hv.Rank = Flush
		hv.Kickers = vals
	case straight:
		hv.Rank = Straight
		hv.Kickers = []int{straightHigh}
	case len(byCount[3]) == 1:
		hv.Rank = ThreeOfAKind
		hv.Kickers = append([]int{byCount[3][0]}, byCount[1]...)
	case len(byCount[2]) == 2:
		hv.Rank = TwoPair
		hv.Kickers = append(append([]int{}, byCount[2]...), byCount[1]...)
	case len(byCount[2]) == 1:
		hv.Rank = Pair
		hv.Kickers = append([]int{byCount[2][0]}, byCount[1]...)
	default:
		hv.Rank = HighCard
		hv.Kickers = vals
	}

	return hv
}

// straightHighCard reports whether the five descending values form a
// straight and its high card. The wheel (A-2-3-4-5) keys on 5, not 14.
func straightHighCard(desc []int) (int, bool) {
	run := true
	for i := 1; i < 5; i++ {
		if desc[i] != desc[i-1]-1 {
			run = false
			break
		}
	}
	if run {
		return desc[0], true
	}
	// Wheel: A,5,4,3,2 sorted descending.
	if desc[0] == 14 && desc[1] == 5 && desc[2] == 4 && desc[3] == 3 && desc[4] == 2 {
		return 5, true
	}
	return 0, false
}

// combinations returns every k-card subset of cards.
func combinations(cards []Card, k int) [][]Card {
	var out [][]Card

	if k > len(cards) || k <= 0 {
		return out
	}
	if k == len(cards) {
		return [][]Card{cards}
	}

	var walk func(start int, current []Card)
	walk = func(start int, current []Card) {
		if len(current) == k {
			combo := make([]Card, k)
			copy(combo, current)
			out = append(out, combo)
			return
		}
		for i := start; i <= len(cards)-(k-len(current)); i++ {
			walk(i+1, append(current, cards[i]))
		}
	}

	walk(0, []Card{})
	return out
}

// sortCardsByValue sorts cards in place, highest value first.
func sortCardsByValue(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		return valueToInt(cards[i].value) > valueToInt(cards[j].value)
	})
}

// CompareHands compares two hand values and returns -1 if a is worse than b,
// 0 on a tie, and 1 if a is better. Ties are resolved kicker by kicker.
func CompareHands(a, b HandValue) int {
	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return -1
		}
		return 1
	}
	for i := 0; i < len(a.Kickers) && i < len(b.Kickers); i++ {
		if a.Kickers[i] != b.Kickers[i] {
			if a.Kickers[i] < b.Kickers[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// RankedHand is one entry in a dense ranking of player hands.
type RankedHand struct {
	PlayerID string
	Value    HandValue
	Rank     int
	Tied     bool
}

// RankHands orders hands strongest-first and assigns dense ranks
// (1,1,2,3,...): equal hands share a rank and the next distinct hand's rank
// increments by one. Tied entries are flagged. Ordering between tied hands
// is stabilized by player id so the result is deterministic.
func RankHands(hands map[string]HandValue) []RankedHand {
	out := make([]RankedHand, 0, len(hands))
	for id, hv := range hands {
		out = append(out, RankedHand{PlayerID: id, Value: hv})
	}

	sort.Slice(out, func(i, j int) bool {
		c := CompareHands(out[i].Value, out[j].Value)
		if c != 0 {
			return c > 0
		}
		return out[i].PlayerID < out[j].PlayerID
	})

	rank := 0
	for i := range out {
		if i == 0 || CompareHands(out[i].Value, out[i-1].Value) != 0 {
			rank++
		}
		out[i].Rank = rank
	}

	// Flag ties now that ranks are settled.
	for i := range out {
		if i > 0 && out[i].Rank == out[i-1].Rank {
			out[i].Tied = true
			out[i-1].Tied = true
		}
	}

	return out
}
