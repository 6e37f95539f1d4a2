package engine

import (
	"time"

	"github.com/pokercore/holdemd/pkg/poker"
)

// Phase represents where a hand is in its lifecycle.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseBlinds     Phase = "BLINDS"
	PhasePreflop    Phase = "PREFLOP"
	PhaseFlop       Phase = "FLOP"
	PhaseTurn       Phase = "TURN"
	PhaseRiver      Phase = "RIVER"
	PhaseShowdown   Phase = "SHOWDOWN"
	PhaseSettlement Phase = "SETTLEMENT"
	PhaseComplete   Phase = "COMPLETE"
)

// allowedTransitions is the exhaustive phase graph. Reducers consult it
// before every transition; anything not listed is a programmer error.
var allowedTransitions = map[Phase][]Phase{
	PhaseWaiting:    {PhaseBlinds},
	PhaseBlinds:     {PhasePreflop},
	PhasePreflop:    {PhaseFlop, PhaseShowdown, PhaseSettlement},
	PhaseFlop:       {PhaseTurn, PhaseShowdown, PhaseSettlement},
	PhaseTurn:       {PhaseRiver, PhaseShowdown, PhaseSettlement},
	PhaseRiver:      {PhaseShowdown, PhaseSettlement},
	PhaseShowdown:   {PhaseSettlement},
	PhaseSettlement: {PhaseComplete},
	PhaseComplete:   {},
}

func transitionAllowed(from, to Phase) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// bettingPhase reports whether player actions are accepted in the phase.
func bettingPhase(p Phase) bool {
	switch p {
	case PhasePreflop, PhaseFlop, PhaseTurn, PhaseRiver:
		return true
	}
	return false
}

// streetForPhase maps betting phases to their table street.
func streetForPhase(p Phase) poker.Street {
	switch p {
	case PhasePreflop:
		return poker.StreetPreflop
	case PhaseFlop:
		return poker.StreetFlop
	case PhaseTurn:
		return poker.StreetTurn
	case PhaseRiver:
		return poker.StreetRiver
	case PhaseShowdown:
		return poker.StreetShowdown
	case PhaseComplete:
		return poker.StreetComplete
	default:
		return poker.StreetWaiting
	}
}

// HandResult captures everything a settled hand produced, for consumers
// that need the outcome after the event stream has gone by.
type HandResult struct {
	HandID             string            `json:"hand_id"`
	TableID            string            `json:"table_id"`
	Reason             HandEndReason     `json:"reason"`
	Awards             []poker.PotAward  `json:"awards"`
	Winners            []string          `json:"winners"`
	WinningDescription string            `json:"winning_description,omitempty"`
	TotalPot           int64             `json:"total_pot"`
	RakeTotal          int64             `json:"rake_total"`
	Contributions      map[string]int64  `json:"contributions"`
	FinalStacks        map[string]int64  `json:"final_stacks"`
}

// HandState wraps the table state with the hand's identity, remaining deck
// and command history. Reducers treat it as immutable: every transition
// clones first and returns a new instance.
type HandState struct {
	HandID  string `json:"hand_id"`
	TableID string `json:"table_id"`

	Table poker.TableState `json:"table"`
	Deck  *poker.Deck      `json:"-"`
	Phase Phase            `json:"phase"`

	StartTime      time.Time      `json:"start_time"`
	LastActionTime time.Time      `json:"last_action_time"`
	ActionHistory  []poker.Action `json:"action_history"`

	// EventSeq is the next event sequence number for this hand.
	EventSeq uint64 `json:"event_seq"`

	// Result is set once the hand reaches COMPLETE.
	Result *HandResult `json:"result,omitempty"`
}

// NewHandState creates a hand in WAITING with the supplied deck.
func NewHandState(handID, tableID string, table poker.TableState, deck *poker.Deck, start time.Time) HandState {
	return HandState{
		HandID:         handID,
		TableID:        tableID,
		Table:          table,
		Deck:           deck,
		Phase:          PhaseWaiting,
		StartTime:      start,
		LastActionTime: start,
		EventSeq:       1,
	}
}

// Clone returns a deep copy of the hand state.
func (hs HandState) Clone() HandState {
	cp := hs
	cp.Table = hs.Table.Clone()
	if hs.Deck != nil {
		cp.Deck = hs.Deck.Clone()
	}
	cp.ActionHistory = make([]poker.Action, len(hs.ActionHistory))
	copy(cp.ActionHistory, hs.ActionHistory)
	if hs.Result != nil {
		r := *hs.Result
		cp.Result = &r
	}
	return cp
}

