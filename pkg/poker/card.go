package poker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit string

const (
	Spades   Suit = "♠"
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
)

// Value represents a card value
type Value string

const (
	Ace   Value = "A"
	Two   Value = "2"
	Three Value = "3"
	Four  Value = "4"
	Five  Value = "5"
	Six   Value = "6"
	Seven Value = "7"
	Eight Value = "8"
	Nine  Value = "9"
	Ten   Value = "10"
	Jack  Value = "J"
	Queen Value = "Q"
	King  Value = "K"
)

// Card represents a playing card
type Card struct {
	suit  Suit
	value Value
}

// NewCard creates a new Card with the given suit and value.
// This is needed because Card fields are unexported.
func NewCard(suit Suit, value Value) Card {
	return Card{suit: suit, value: value}
}

// cardJSON is the wire form of a card: the suit (symbol on output, with
// letters and words accepted on input) and the numeric rank, 2-14 with
// aces high.
type cardJSON struct {
	Suit string `json:"suit"`
	Rank int    `json:"rank"`
}

// suitNames maps every accepted input spelling to its suit.
var suitNames = map[string]Suit{
	"♠": Spades, "s": Spades, "spades": Spades,
	"♥": Hearts, "h": Hearts, "hearts": Hearts,
	"♦": Diamonds, "d": Diamonds, "diamonds": Diamonds,
	"♣": Clubs, "c": Clubs, "clubs": Clubs,
}

// suitFromString resolves a suit spelling, case-insensitively.
func suitFromString(s string) (Suit, error) {
	if suit, ok := suitNames[strings.ToLower(s)]; ok {
		return suit, nil
	}
	return "", fmt.Errorf("invalid suit: %s", s)
}

// valueFromRank maps a numeric rank back to its card value.
func valueFromRank(rank int) (Value, error) {
	switch rank {
	case 14:
		return Ace, nil
	case 13:
		return King, nil
	case 12:
		return Queen, nil
	case 11:
		return Jack, nil
	case 10:
		return Ten, nil
	case 9:
		return Nine, nil
	case 8:
		return Eight, nil
	case 7:
		return Seven, nil
	case 6:
		return Six, nil
	case 5:
		return Five, nil
	case 4:
		return Four, nil
	case 3:
		return Three, nil
	case 2:
		return Two, nil
	default:
		return "", fmt.Errorf("invalid rank: %d", rank)
	}
}

// MarshalJSON implements json.Marshaler interface for Card
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{
		Suit: string(c.suit),
		Rank: c.Rank(),
	})
}

// UnmarshalJSON implements json.Unmarshaler interface for Card
func (c *Card) UnmarshalJSON(data []byte) error {
	var cj cardJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}

	suit, err := suitFromString(cj.Suit)
	if err != nil {
		return err
	}
	value, err := valueFromRank(cj.Rank)
	if err != nil {
		return err
	}

	c.suit = suit
	c.value = value
	return nil
}

// String returns a string representation of the card
func (c Card) String() string {
	return string(c.value) + string(c.suit)
}

// GetSuit returns the card's suit
func (c Card) GetSuit() string {
	return string(c.suit)
}

// GetValue returns the card's value
func (c Card) GetValue() string {
	return string(c.value)
}

// Rank returns the numeric rank of the card (2-14, aces high).
func (c Card) Rank() int {
	return valueToInt(c.value)
}

// valueToInt converts a card Value to its integer representation
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
