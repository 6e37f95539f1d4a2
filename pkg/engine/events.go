package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pokercore/holdemd/pkg/poker"
)

// EventType represents the type of game event
type EventType string

const (
	EventHandStarted          EventType = "HAND_STARTED"
	EventBlindsPosted         EventType = "BLINDS_POSTED"
	EventHoleCardsDealt       EventType = "HOLE_CARDS_DEALT"
	EventPlayerToAct          EventType = "PLAYER_TO_ACT"
	EventPlayerActed          EventType = "PLAYER_ACTED"
	EventBettingRoundComplete EventType = "BETTING_ROUND_COMPLETE"
	EventStreetChanged        EventType = "STREET_CHANGED"
	EventCommunityCardsDealt  EventType = "COMMUNITY_CARDS_DEALT"
	EventShowdownStarted      EventType = "SHOWDOWN_STARTED"
	EventHandRevealed         EventType = "HAND_REVEALED"
	EventPotAwarded           EventType = "POT_AWARDED"
	EventHandEnded            EventType = "HAND_ENDED"
	EventError                EventType = "ERROR"
)

// GameEvent is one sequenced record in a hand's event stream. Sequence is
// strictly monotonic within the hand. The timestamp annotates the event
// only; no reducer decision depends on it.
type GameEvent struct {
	Type      EventType    `json:"type"`
	EventID   string       `json:"event_id"`
	HandID    string       `json:"hand_id"`
	TableID   string       `json:"table_id"`
	Sequence  uint64       `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   EventPayload `json:"payload,omitempty"`
}

// EventPayload is the per-type payload carried by an event. Each event
// carries exactly one payload implementing this interface.
type EventPayload interface {
	Kind() EventType
}

// eventNamespace derives deterministic event ids from hand id and sequence.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("holdemd/events"))

func eventID(handID string, sequence uint64) string {
	return uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s/%d", handID, sequence))).String()
}

// ---------- Hand lifecycle payloads ----------

type HandStartedPayload struct {
	HandNumber  uint64   `json:"hand_number"`
	DealerIndex int      `json:"dealer_index"`
	PlayerIDs   []string `json:"player_ids"`
}

func (HandStartedPayload) Kind() EventType { return EventHandStarted }

type BlindsPostedPayload struct {
	SmallBlindPlayer string `json:"small_blind_player"`
	BigBlindPlayer   string `json:"big_blind_player"`
	SmallBlind       int64  `json:"small_blind"`
	BigBlind         int64  `json:"big_blind"`
	Pot              int64  `json:"pot"`
}

func (BlindsPostedPayload) Kind() EventType { return EventBlindsPosted }

type HoleCardsDealtPayload struct {
	// CardsPerPlayer is always 2; hole cards themselves stay private to
	// the state and are never broadcast in the shared stream.
	PlayerIDs      []string `json:"player_ids"`
	CardsPerPlayer int      `json:"cards_per_player"`
}

func (HoleCardsDealtPayload) Kind() EventType { return EventHoleCardsDealt }

// ---------- Action payloads ----------

type PlayerToActPayload struct {
	PlayerID   string `json:"player_id"`
	CallAmount int64  `json:"call_amount"`
}

func (PlayerToActPayload) Kind() EventType { return EventPlayerToAct }

type PlayerActedPayload struct {
	PlayerID string           `json:"player_id"`
	Action   poker.ActionType `json:"action"`
	Amount   int64            `json:"amount,omitempty"`
	Pot      int64            `json:"pot"`
}

func (PlayerActedPayload) Kind() EventType { return EventPlayerActed }

type BettingRoundCompletePayload struct {
	Street poker.Street `json:"street"`
	Pot    int64        `json:"pot"`
}

func (BettingRoundCompletePayload) Kind() EventType { return EventBettingRoundComplete }

// ---------- Street payloads ----------

type StreetChangedPayload struct {
	From poker.Street `json:"from"`
	To   poker.Street `json:"to"`
}

func (StreetChangedPayload) Kind() EventType { return EventStreetChanged }

type CommunityCardsDealtPayload struct {
	Cards     []poker.Card `json:"cards"`
	Community []poker.Card `json:"community"`
}

func (CommunityCardsDealtPayload) Kind() EventType { return EventCommunityCardsDealt }

// ---------- Showdown and settlement payloads ----------

type ShowdownStartedPayload struct {
	PlayerIDs []string `json:"player_ids"`
}

func (ShowdownStartedPayload) Kind() EventType { return EventShowdownStarted }

type HandRevealedPayload struct {
	PlayerID        string       `json:"player_id"`
	HoleCards       []poker.Card `json:"hole_cards"`
	HandDescription string       `json:"hand_description"`
}

func (HandRevealedPayload) Kind() EventType { return EventHandRevealed }

type PotAwardedPayload struct {
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
	PotType  string `json:"pot_type"`
}

func (PotAwardedPayload) Kind() EventType { return EventPotAwarded }

// HandEndReason describes how a hand concluded.
type HandEndReason string

const (
	EndReasonAllFold  HandEndReason = "all-fold"
	EndReasonShowdown HandEndReason = "showdown"
)

type HandEndedPayload struct {
	Reason  HandEndReason `json:"reason"`
	Winners []string      `json:"winners"`
	Pot     int64         `json:"pot"`
}

func (HandEndedPayload) Kind() EventType { return EventHandEnded }

// ErrorPayload reports a rejected command. ERROR events never alter state.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorPayload) Kind() EventType { return EventError }
