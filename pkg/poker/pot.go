package poker

import (
	"sort"
)

// SidePot is one distribution bucket built from player contributions. The
// main pot is the lowest level; each higher contribution level forms a side
// pot eligible only to the players who contributed at or above it.
type SidePot struct {
	Amount   int64 `json:"amount"`
	Level    int64 `json:"level"`
	Eligible []int `json:"eligible"` // player indices, folded players excluded
}

// PotType returns "main" for the first pot and "side-N" for the rest.
func PotType(potIdx int) string {
	if potIdx == 0 {
		return "main"
	}
	return sideName(potIdx)
}

func sideName(idx int) string {
	// side-1, side-2, ... small and bounded, no fmt needed on the hot path
	digits := []byte{}
	for idx > 0 {
		digits = append([]byte{byte('0' + idx%10)}, digits...)
		idx /= 10
	}
	return "side-" + string(digits)
}

// BuildSidePots buckets the players' total contributions into pots. For each
// distinct contribution level L (ascending) a pot collects (L - prevL) from
// every contributor at or above L; eligibility for each pot excludes folded
// players.
func BuildSidePots(players []Player) []SidePot {
	levelSet := make(map[int64]bool)
	for _, p := range players {
		if p.TotalBetThisHand > 0 {
			levelSet[p.TotalBetThisHand] = true
		}
	}
	if len(levelSet) == 0 {
		return nil
	}

	levels := make([]int64, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	pots := make([]SidePot, 0, len(levels))
	var prev int64
	for _, level := range levels {
		pot := SidePot{Level: level}
		for _, p := range players {
			if p.TotalBetThisHand <= prev {
				continue
			}
			contribution := p.TotalBetThisHand
			if contribution > level {
				contribution = level
			}
			pot.Amount += contribution - prev
		}
		for idx, p := range players {
			if p.TotalBetThisHand >= level && p.Status != StatusFolded {
				pot.Eligible = append(pot.Eligible, idx)
			}
		}
		pots = append(pots, pot)
		prev = level
	}

	// Merge pots with identical eligibility; distinct levels created solely
	// by folded players' contributions collapse into one bucket.
	merged := pots[:0]
	for _, pot := range pots {
		if len(merged) > 0 && sameEligibility(merged[len(merged)-1].Eligible, pot.Eligible) {
			merged[len(merged)-1].Amount += pot.Amount
			merged[len(merged)-1].Level = pot.Level
			continue
		}
		merged = append(merged, pot)
	}

	return merged
}

func sameEligibility(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PotAward records one player's share of one pot.
type PotAward struct {
	PlayerIndex int    `json:"player_index"`
	PlayerID    string `json:"player_id"`
	Amount      int64  `json:"amount"`
	PotType     string `json:"pot_type"`
}

// AwardPots resolves each pot to the best hand among its eligible players.
// Ties split by integer division with odd chips going to the earliest seat
// after the dealer. Players without a HandValue (uncontested pots) win by
// default when they are the only eligible player.
func AwardPots(pots []SidePot, players []Player, dealerIndex int) []PotAward {
	var awards []PotAward

	for potIdx, pot := range pots {
		if pot.Amount == 0 || len(pot.Eligible) == 0 {
			continue
		}

		var winners []int
		var best *HandValue
		for _, idx := range pot.Eligible {
			hv := players[idx].HandValue
			if hv == nil {
				continue
			}
			if best == nil || CompareHands(*hv, *best) > 0 {
				best = hv
				winners = []int{idx}
			} else if CompareHands(*hv, *best) == 0 {
				winners = append(winners, idx)
			}
		}

		// Uncontested pot: no evaluations available, award to the sole
		// eligible player.
		if len(winners) == 0 {
			if len(pot.Eligible) == 1 {
				winners = pot.Eligible
			} else {
				continue
			}
		}

		share := pot.Amount / int64(len(winners))
		remainder := pot.Amount % int64(len(winners))

		// Order winners from earliest seat after the dealer so odd chips
		// land deterministically.
		ordered := orderFromDealer(winners, len(players), dealerIndex)
		for i, idx := range ordered {
			amount := share
			if int64(i) < remainder {
				amount++
			}
			if amount == 0 {
				continue
			}
			awards = append(awards, PotAward{
				PlayerIndex: idx,
				PlayerID:    players[idx].ID,
				Amount:      amount,
				PotType:     PotType(potIdx),
			})
		}
	}

	return awards
}

// orderFromDealer sorts player indices by distance from the seat after the
// dealer, wrapping around the table.
func orderFromDealer(indices []int, numPlayers, dealerIndex int) []int {
	ordered := make([]int, len(indices))
	copy(ordered, indices)
	sort.Slice(ordered, func(i, j int) bool {
		di := (ordered[i] - dealerIndex - 1 + numPlayers) % numPlayers
		dj := (ordered[j] - dealerIndex - 1 + numPlayers) % numPlayers
		return di < dj
	})
	return ordered
}

