package poker

import (
	"testing"
)

func cards(specs ...[2]interface{}) []Card {
	out := make([]Card, 0, len(specs))
	for _, s := range specs {
		out = append(out, NewCard(s[0].(Suit), s[1].(Value)))
	}
	return out
}

func TestEvaluateHandRanks(t *testing.T) {
	community := cards(
		[2]interface{}{Spades, Ten},
		[2]interface{}{Spades, Jack},
		[2]interface{}{Spades, Queen},
		[2]interface{}{Hearts, Two},
		[2]interface{}{Diamonds, Seven},
	)

	testCases := []struct {
		name string
		hole []Card
		want HandRank
	}{
		{
			name: "royal flush cards",
			hole: cards([2]interface{}{Spades, Ace}, [2]interface{}{Spades, King}),
			want: StraightFlush, // chehsunliu classes a royal as the top straight flush
		},
		{
			name: "straight",
			hole: cards([2]interface{}{Clubs, Ace}, [2]interface{}{Hearts, King}),
			want: Straight,
		},
		{
			name: "pair",
			hole: cards([2]interface{}{Clubs, Ten}, [2]interface{}{Hearts, Three}),
			want: Pair,
		},
		{
			name: "high card",
			hole: cards([2]interface{}{Clubs, Ace}, [2]interface{}{Hearts, Four}),
			want: HighCard,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			hv, err := EvaluateHand(tc.hole, community)
			if err != nil {
				t.Fatalf("EvaluateHand failed: %v", err)
			}
			if hv.Rank != tc.want {
				t.Errorf("Expected rank %v, got %v (%s)", tc.want, hv.Rank, hv.HandDescription)
			}
			if len(hv.BestHand) != 5 {
				t.Errorf("Expected 5 best cards, got %d", len(hv.BestHand))
			}
			if hv.HandDescription == "" {
				t.Error("Expected a non-empty hand description")
			}
		})
	}
}

func TestEvaluateHandRequiresFiveCards(t *testing.T) {
	hole := cards([2]interface{}{Spades, Ace}, [2]interface{}{Spades, King})
	if _, err := EvaluateHand(hole, nil); err == nil {
		t.Error("Expected error evaluating fewer than 5 cards")
	}
}

func TestCompareHands(t *testing.T) {
	community := cards(
		[2]interface{}{Spades, Ten},
		[2]interface{}{Hearts, Ten},
		[2]interface{}{Diamonds, Four},
		[2]interface{}{Clubs, Nine},
		[2]interface{}{Spades, Two},
	)

	trips, err := EvaluateHand(cards([2]interface{}{Clubs, Ten}, [2]interface{}{Hearts, Ace}), community)
	if err != nil {
		t.Fatalf("EvaluateHand failed: %v", err)
	}
	pair, err := EvaluateHand(cards([2]interface{}{Clubs, Ace}, [2]interface{}{Hearts, King}), community)
	if err != nil {
		t.Fatalf("EvaluateHand failed: %v", err)
	}

	if CompareHands(trips, pair) != 1 {
		t.Error("Expected three of a kind to beat a pair")
	}
	if CompareHands(pair, trips) != -1 {
		t.Error("Expected a pair to lose to three of a kind")
	}
	if CompareHands(trips, trips) != 0 {
		t.Error("Expected a hand to tie with itself")
	}
}

func TestCompareHandsTieOnBoard(t *testing.T) {
	// Board plays for both: community is a straight neither hole improves.
	community := cards(
		[2]interface{}{Spades, Ten},
		[2]interface{}{Hearts, Jack},
		[2]interface{}{Diamonds, Queen},
		[2]interface{}{Clubs, King},
		[2]interface{}{Spades, Nine},
	)

	a, err := EvaluateHand(cards([2]interface{}{Clubs, Two}, [2]interface{}{Hearts, Three}), community)
	if err != nil {
		t.Fatalf("EvaluateHand failed: %v", err)
	}
	b, err := EvaluateHand(cards([2]interface{}{Diamonds, Two}, [2]interface{}{Spades, Four}), community)
	if err != nil {
		t.Fatalf("EvaluateHand failed: %v", err)
	}

	if CompareHands(a, b) != 0 {
		t.Errorf("Expected a split when the board plays, got %d", CompareHands(a, b))
	}
}
