package heist

import "math/rand"

// ChipColor tags a chip with the round it was minted for.
type ChipColor string

const (
	ChipWhite  ChipColor = "white"
	ChipYellow ChipColor = "yellow"
	ChipOrange ChipColor = "orange"
	ChipRed    ChipColor = "red"
)

// chipColorForRound maps a round number (1..4) to its chip color.
func chipColorForRound(round int) ChipColor {
	switch round {
	case 1:
		return ChipWhite
	case 2:
		return ChipYellow
	case 3:
		return ChipOrange
	default:
		return ChipRed
	}
}

// Chip is a numbered star chip. Ownership is exclusive: a chip sits either
// in the room's center pool or in exactly one player's hand, and moves
// atomically between those two locations.
type Chip struct {
	ID    int       `json:"id"`
	Stars int       `json:"stars"`
	Color ChipColor `json:"color"`
}

// mintChips creates playerCount chips of the given color with star values
// 1..playerCount. Rounds 1 and 2 deal the chips in sequential id order;
// rounds 3 and 4 permute the star values across ids so the listing order of
// the center pool leaks nothing about the values' ordering. Ids come from
// the game's generation counter and are unique for the life of the game.
func mintChips(nextID *int, playerCount, round int, rng *rand.Rand) []*Chip {
	stars := make([]int, playerCount)
	for i := range stars {
		stars[i] = i + 1
	}
	if round >= 3 {
		rng.Shuffle(len(stars), func(i, j int) {
			stars[i], stars[j] = stars[j], stars[i]
		})
	}

	color := chipColorForRound(round)
	chips := make([]*Chip, playerCount)
	for i := range chips {
		*nextID++
		chips[i] = &Chip{
			ID:    *nextID,
			Stars: stars[i],
			Color: color,
		}
	}
	return chips
}
