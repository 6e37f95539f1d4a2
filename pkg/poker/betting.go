package poker

import (
	"fmt"
)

// ActionType represents a betting action kind.
type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionBet   ActionType = "bet"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "all-in"
)

// Action represents one player action within a betting round. Amount is the
// bet-to or raise-to total for bet/raise and ignored for the rest.
type Action struct {
	PlayerID string     `json:"player_id"`
	Type     ActionType `json:"type"`
	Amount   int64      `json:"amount,omitempty"`
}

// ValidActions reports which actions the acting player may take and their
// legal amount ranges.
type ValidActions struct {
	PlayerID string `json:"player_id"`

	CanFold bool `json:"can_fold"`

	CanCheck bool `json:"can_check"`

	CanCall    bool  `json:"can_call"`
	CallAmount int64 `json:"call_amount"`

	CanBet bool  `json:"can_bet"`
	MinBet int64 `json:"min_bet"`
	MaxBet int64 `json:"max_bet"`

	CanRaise bool  `json:"can_raise"`
	MinRaise int64 `json:"min_raise"`
	MaxRaise int64 `json:"max_raise"`

	CanAllIn    bool  `json:"can_all_in"`
	AllInAmount int64 `json:"all_in_amount"`
}

// ComputeValidActions returns the legal actions for the player at the given
// index. A player out of turn gets the zero value.
func ComputeValidActions(ts TableState, playerIdx int) ValidActions {
	if playerIdx < 0 || playerIdx >= len(ts.Players) || playerIdx != ts.ActivePlayerIndex {
		return ValidActions{}
	}
	p := ts.Players[playerIdx]
	if !p.CanAct() {
		return ValidActions{}
	}

	va := ValidActions{PlayerID: p.ID}
	owed := ts.CurrentBet - p.CurrentBet
	if owed < 0 {
		owed = 0
	}

	va.CanFold = true
	va.CanCheck = owed == 0

	if owed > 0 {
		va.CanCall = true
		va.CallAmount = owed
		if va.CallAmount > p.Stack {
			va.CallAmount = p.Stack
		}
	}

	if ts.CurrentBet == 0 {
		va.CanBet = p.Stack > 0
		va.MinBet = ts.BigBlind
		if va.MinBet > p.Stack {
			va.MinBet = p.Stack
		}
		va.MaxBet = p.Stack
	} else {
		// A raise is only open to players who have not yet acted since the
		// last full raise; a short all-in does not reopen action.
		minTo := ts.CurrentBet + raiseIncrement(ts)
		maxTo := p.CurrentBet + p.Stack
		if !p.HasActed && maxTo > ts.CurrentBet {
			va.CanRaise = true
			va.MinRaise = minTo
			if va.MinRaise > maxTo {
				va.MinRaise = maxTo
			}
			va.MaxRaise = maxTo
		}
	}

	if p.Stack > 0 {
		va.CanAllIn = true
		va.AllInAmount = p.CurrentBet + p.Stack
	}

	return va
}

// raiseIncrement returns the minimum raise increment for the current round.
func raiseIncrement(ts TableState) int64 {
	inc := ts.MinRaise
	if ts.LastFullRaiseIncrement > inc {
		inc = ts.LastFullRaiseIncrement
	}
	return inc
}

// PostBlinds deducts the blinds, sets the opening bet and positions the
// action pointer for preflop. Heads-up, the dealer posts the small blind
// and acts first; otherwise the seat to the dealer's left posts the small
// blind and the player after the big blind opens the action.
func PostBlinds(ts TableState) TableState {
	next := ts.Clone()
	n := len(next.Players)
	if n < 2 {
		return next
	}

	sbIdx := (next.DealerIndex + 1) % n
	bbIdx := (next.DealerIndex + 2) % n
	if n == 2 {
		sbIdx = next.DealerIndex
		bbIdx = (next.DealerIndex + 1) % n
	}

	postBlind(&next, sbIdx, next.SmallBlind)
	postBlind(&next, bbIdx, next.BigBlind)

	next.CurrentBet = next.BigBlind
	next.MinRaise = next.BigBlind
	next.LastFullRaiseIncrement = next.BigBlind
	next.LastRaiserIndex = bbIdx

	if n == 2 {
		next.ActivePlayerIndex = next.DealerIndex
	} else {
		next.ActivePlayerIndex = next.nextActingIndex(bbIdx)
	}
	if next.ActivePlayerIndex >= 0 && !next.Players[next.ActivePlayerIndex].CanAct() {
		next.ActivePlayerIndex = next.nextActingIndex(next.ActivePlayerIndex)
	}

	return next
}

// postBlind moves a forced bet into the pot. A player who cannot cover the
// blind posts their remaining stack and is all-in.
func postBlind(ts *TableState, idx int, amount int64) {
	p := &ts.Players[idx]
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.CurrentBet += amount
	p.TotalBetThisHand += amount
	ts.Pot += amount
	if p.Stack == 0 {
		p.Status = StatusAllIn
	}
}

// ApplyAction validates and applies a player action, producing the next
// table state. The input state is never modified.
func ApplyAction(ts TableState, action Action) (TableState, error) {
	idx := ts.PlayerIndex(action.PlayerID)
	if idx == -1 {
		return ts, fmt.Errorf("player %s not found", action.PlayerID)
	}
	if idx != ts.ActivePlayerIndex {
		return ts, fmt.Errorf("not player %s's turn to act", action.PlayerID)
	}
	if !ts.Players[idx].CanAct() {
		return ts, fmt.Errorf("player %s cannot act", action.PlayerID)
	}

	next := ts.Clone()
	p := &next.Players[idx]
	owed := next.CurrentBet - p.CurrentBet
	if owed < 0 {
		owed = 0
	}

	switch action.Type {
	case ActionFold:
		p.Status = StatusFolded

	case ActionCheck:
		if owed != 0 {
			return ts, fmt.Errorf("cannot check when %d is owed to call", owed)
		}

	case ActionCall:
		if owed == 0 {
			return ts, fmt.Errorf("nothing to call - use check instead")
		}
		amount := owed
		if amount > p.Stack {
			amount = p.Stack
		}
		commitChips(&next, idx, amount)

	case ActionBet:
		if next.CurrentBet != 0 {
			return ts, fmt.Errorf("cannot bet when a bet of %d is live - raise instead", next.CurrentBet)
		}
		if action.Amount < next.BigBlind && action.Amount < p.Stack {
			return ts, fmt.Errorf("bet %d below minimum %d", action.Amount, next.BigBlind)
		}
		if action.Amount > p.Stack {
			return ts, fmt.Errorf("bet %d exceeds stack %d", action.Amount, p.Stack)
		}
		commitChips(&next, idx, action.Amount)
		next.CurrentBet = action.Amount
		next.LastRaiserIndex = idx
		next.LastFullRaiseIncrement = action.Amount
		reopenAction(&next, idx)

	case ActionRaise:
		if next.CurrentBet == 0 {
			return ts, fmt.Errorf("cannot raise without a live bet - bet instead")
		}
		delta := action.Amount - p.CurrentBet
		if delta <= 0 {
			return ts, fmt.Errorf("raise to %d does not increase player bet %d", action.Amount, p.CurrentBet)
		}
		if delta > p.Stack {
			return ts, fmt.Errorf("raise to %d exceeds available chips", action.Amount)
		}
		minTo := next.CurrentBet + raiseIncrement(next)
		if action.Amount < minTo && delta < p.Stack {
			return ts, fmt.Errorf("raise to %d below minimum %d", action.Amount, minTo)
		}
		applyRaise(&next, idx, action.Amount)

	case ActionAllIn:
		total := p.CurrentBet + p.Stack
		if total > next.CurrentBet {
			applyRaise(&next, idx, total)
		} else {
			commitChips(&next, idx, p.Stack)
		}

	default:
		return ts, fmt.Errorf("unknown action type: %s", action.Type)
	}

	next.Players[idx].HasActed = true
	next.ActionsThisRound++
	next.ActivePlayerIndex = nextToAct(next, idx)

	return next, nil
}

// applyRaise commits chips for a raise-to total, marking it as a full raise
// (which reopens action) only when it meets the minimum increment.
func applyRaise(ts *TableState, idx int, raiseTo int64) {
	p := &ts.Players[idx]
	minTo := ts.CurrentBet + raiseIncrement(*ts)
	increment := raiseTo - ts.CurrentBet

	commitChips(ts, idx, raiseTo-p.CurrentBet)
	ts.LastRaiserIndex = idx
	if raiseTo >= minTo {
		ts.LastFullRaiseIncrement = increment
		reopenAction(ts, idx)
	}
	ts.CurrentBet = raiseTo
}

// commitChips moves chips from the player's stack into their bet and the
// pot, marking all-in at zero stack.
func commitChips(ts *TableState, idx int, amount int64) {
	p := &ts.Players[idx]
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.CurrentBet += amount
	p.TotalBetThisHand += amount
	ts.Pot += amount
	if p.Stack == 0 {
		p.Status = StatusAllIn
	}
}

// reopenAction clears the acted flag for every other player still able to
// act, giving them the option to respond to a full raise.
func reopenAction(ts *TableState, raiserIdx int) {
	for i := range ts.Players {
		if i == raiserIdx {
			continue
		}
		if ts.Players[i].CanAct() {
			ts.Players[i].HasActed = false
		}
	}
}

// nextToAct returns the index of the next player owing an action, or -1
// when the betting round is settled.
func nextToAct(ts TableState, from int) int {
	n := len(ts.Players)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		p := ts.Players[idx]
		if !p.CanAct() {
			continue
		}
		if !p.HasActed || p.CurrentBet != ts.CurrentBet {
			return idx
		}
	}
	return -1
}

// IsRoundComplete reports whether the current betting round is finished:
// every player able to act has acted since the last full raise and matched
// the current bet, or no such players remain.
func IsRoundComplete(ts TableState) bool {
	for _, p := range ts.Players {
		if !p.CanAct() {
			continue
		}
		if !p.HasActed || p.CurrentBet != ts.CurrentBet {
			return false
		}
	}
	return true
}

// ResetForNextStreet clears per-round betting state ahead of the next
// street. Post-flop action starts left of the dealer.
func ResetForNextStreet(ts TableState) TableState {
	next := ts.Clone()
	for i := range next.Players {
		next.Players[i].CurrentBet = 0
		next.Players[i].HasActed = false
	}
	next.CurrentBet = 0
	next.MinRaise = next.BigBlind
	next.LastFullRaiseIncrement = 0
	next.LastRaiserIndex = -1
	next.ActionsThisRound = 0
	next.ActivePlayerIndex = next.nextActingIndex(next.DealerIndex)
	return next
}
