package engine

import (
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/poker"
)

// Command is a tagged request into the hand state machine. The reducer
// switches exhaustively over the concrete types.
type Command interface {
	commandName() string
}

// StartHandCommand moves a WAITING hand through blinds and the deal into
// the preflop betting round.
type StartHandCommand struct{}

func (StartHandCommand) commandName() string { return "start_hand" }

// PlayerActionCommand applies one betting action.
type PlayerActionCommand struct {
	Action poker.Action
}

func (PlayerActionCommand) commandName() string { return "player_action" }

// Clock supplies event timestamps. It is injected so replays can pin time;
// no reducer decision ever reads it for control flow.
type Clock func() time.Time

// RakeConfig controls the house take at settlement. A zero value means no
// rake. Basis points apply to the total pot, capped at Cap when Cap > 0.
type RakeConfig struct {
	Bps int64 `json:"bps"`
	Cap int64 `json:"cap"`
}

// amount returns the rake for a pot total, never exceeding the pot.
func (rc RakeConfig) amount(pot int64) int64 {
	if rc.Bps <= 0 || pot <= 0 {
		return 0
	}
	rake := pot * rc.Bps / 10000
	if rc.Cap > 0 && rake > rc.Cap {
		rake = rc.Cap
	}
	if rake > pot {
		rake = pot
	}
	return rake
}

// Dispatcher reduces commands over hand states. It holds no mutable hand
// data; the same dispatcher serves every hand on a table.
type Dispatcher struct {
	clock Clock
	rake  RakeConfig
	log   slog.Logger
}

// NewDispatcher creates a dispatcher. A nil clock defaults to time.Now.
func NewDispatcher(clock Clock, rake RakeConfig, log slog.Logger) (*Dispatcher, error) {
	if log == nil {
		return nil, fmt.Errorf("engine: log is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{clock: clock, rake: rake, log: log}, nil
}

// Reduce applies one command to a hand state, producing the next state and
// the events emitted along the way. On error the returned state is the
// input state unchanged, and the events contain at most a single ERROR
// event.
func (d *Dispatcher) Reduce(hs HandState, cmd Command) (HandState, []GameEvent, error) {
	var (
		next   HandState
		events []GameEvent
		err    error
	)
	switch c := cmd.(type) {
	case StartHandCommand:
		next, events, err = d.reduceStartHand(hs)
	case PlayerActionCommand:
		next, events, err = d.reducePlayerAction(hs, c.Action)
	default:
		return hs, nil, fmt.Errorf("unknown command type %T", cmd)
	}
	if err != nil {
		coded, ok := err.(*domain.CodedError)
		if !ok {
			coded = domain.ErrInternal("reduce", err)
		}
		return hs, []GameEvent{d.errorEvent(hs, coded)}, coded
	}
	return next, events, nil
}

// emit appends a sequenced event to the stream, bumping the hand's event
// counter.
func (d *Dispatcher) emit(hs *HandState, events []GameEvent, payload EventPayload) []GameEvent {
	ev := GameEvent{
		Type:      payload.Kind(),
		EventID:   eventID(hs.HandID, hs.EventSeq),
		HandID:    hs.HandID,
		TableID:   hs.TableID,
		Sequence:  hs.EventSeq,
		Timestamp: d.clock(),
		Payload:   payload,
	}
	hs.EventSeq++
	return append(events, ev)
}

// errorEvent builds a non-state-altering ERROR event against the input
// state. The sequence consumed belongs to the rejected attempt; the caller
// keeps the original state, so the next accepted command reuses it.
func (d *Dispatcher) errorEvent(hs HandState, err *domain.CodedError) GameEvent {
	return GameEvent{
		Type:      EventError,
		EventID:   eventID(hs.HandID, hs.EventSeq),
		HandID:    hs.HandID,
		TableID:   hs.TableID,
		Sequence:  hs.EventSeq,
		Timestamp: d.clock(),
		Payload:   ErrorPayload{Code: err.Code, Message: err.Message},
	}
}

// reduceStartHand runs WAITING -> BLINDS -> PREFLOP: post blinds, deal
// hole cards, hand the action to the first player.
func (d *Dispatcher) reduceStartHand(hs HandState) (HandState, []GameEvent, error) {
	if hs.Phase != PhaseWaiting {
		err := domain.ErrOutOfPhase("start_hand", string(hs.Phase))
		return hs, []GameEvent{d.errorEvent(hs, err)}, err
	}
	if hs.Table.PlayersInHand() < 2 {
		err := domain.ErrInvalidAction("need at least 2 players to start a hand")
		return hs, []GameEvent{d.errorEvent(hs, err)}, err
	}

	next := hs.Clone()
	var events []GameEvent

	playerIDs := make([]string, len(next.Table.Players))
	for i, p := range next.Table.Players {
		playerIDs[i] = p.ID
	}
	events = d.emit(&next, events, HandStartedPayload{
		HandNumber:  next.Table.HandNumber,
		DealerIndex: next.Table.DealerIndex,
		PlayerIDs:   playerIDs,
	})

	// BLINDS
	next.Phase = PhaseBlinds
	next.Table = poker.PostBlinds(next.Table)

	n := len(next.Table.Players)
	sbIdx := (next.Table.DealerIndex + 1) % n
	bbIdx := (next.Table.DealerIndex + 2) % n
	if n == 2 {
		sbIdx = next.Table.DealerIndex
		bbIdx = (next.Table.DealerIndex + 1) % n
	}
	events = d.emit(&next, events, BlindsPostedPayload{
		SmallBlindPlayer: next.Table.Players[sbIdx].ID,
		BigBlindPlayer:   next.Table.Players[bbIdx].ID,
		SmallBlind:       next.Table.SmallBlind,
		BigBlind:         next.Table.BigBlind,
		Pot:              next.Table.Pot,
	})

	// Deal two hole cards per player, one at a time, starting left of the
	// dealer, consuming the supplied deck in order.
	for round := 0; round < 2; round++ {
		for i := 1; i <= n; i++ {
			idx := (next.Table.DealerIndex + i) % n
			if !next.Table.Players[idx].InHand() {
				continue
			}
			card, ok := next.Deck.Draw()
			if !ok {
				err := domain.ErrInternal("deck exhausted while dealing hole cards", nil)
				return hs, []GameEvent{d.errorEvent(hs, err)}, err
			}
			next.Table.Players[idx].HoleCards = append(next.Table.Players[idx].HoleCards, card)
		}
	}
	events = d.emit(&next, events, HoleCardsDealtPayload{
		PlayerIDs:      playerIDs,
		CardsPerPlayer: 2,
	})

	// PREFLOP
	next.Phase = PhasePreflop
	next.Table.Street = poker.StreetPreflop
	next.LastActionTime = d.clock()

	if next.Table.ActivePlayerIndex >= 0 {
		events = d.emit(&next, events, PlayerToActPayload{
			PlayerID:   next.Table.Players[next.Table.ActivePlayerIndex].ID,
			CallAmount: next.Table.CallAmount(next.Table.ActivePlayerIndex),
		})
	} else {
		// Every player is all-in from the blinds; run the board out.
		return d.runOutAndShowdown(next, events)
	}

	d.log.Debugf("hand %s started with %d players", next.HandID, n)
	return next, events, nil
}

// reducePlayerAction validates and applies one betting action, then
// auto-progresses the hand as far as it can go without further input.
func (d *Dispatcher) reducePlayerAction(hs HandState, action poker.Action) (HandState, []GameEvent, error) {
	if !bettingPhase(hs.Phase) {
		err := domain.ErrOutOfPhase("player_action", string(hs.Phase))
		return hs, []GameEvent{d.errorEvent(hs, err)}, err
	}

	next := hs.Clone()
	applied, err := poker.ApplyAction(next.Table, action)
	if err != nil {
		coded := domain.ErrInvalidAction(err.Error())
		coded.Cause = err
		return hs, []GameEvent{d.errorEvent(hs, coded)}, coded
	}
	next.Table = applied
	next.ActionHistory = append(next.ActionHistory, action)
	next.LastActionTime = d.clock()

	var events []GameEvent
	idx := next.Table.PlayerIndex(action.PlayerID)
	events = d.emit(&next, events, PlayerActedPayload{
		PlayerID: action.PlayerID,
		Action:   action.Type,
		Amount:   actedAmount(next.Table, idx, action),
		Pot:      next.Table.Pot,
	})

	return d.progress(next, events)
}

// actedAmount reports the player's total committed bet after the action,
// which is what observers care about.
func actedAmount(ts poker.TableState, idx int, action poker.Action) int64 {
	switch action.Type {
	case poker.ActionFold, poker.ActionCheck:
		return 0
	default:
		if idx >= 0 {
			return ts.Players[idx].CurrentBet
		}
		return action.Amount
	}
}

// progress advances the hand after an accepted action: uncontested win,
// street transition, all-in runout, showdown, or simply the next player
// to act.
func (d *Dispatcher) progress(hs HandState, events []GameEvent) (HandState, []GameEvent, error) {
	// Everyone else folded: the last player standing wins without a
	// showdown.
	if hs.Table.PlayersInHand() == 1 {
		return d.settleUncontested(hs, events)
	}

	if !poker.IsRoundComplete(hs.Table) {
		if hs.Table.ActivePlayerIndex >= 0 {
			events = d.emit(&hs, events, PlayerToActPayload{
				PlayerID:   hs.Table.Players[hs.Table.ActivePlayerIndex].ID,
				CallAmount: hs.Table.CallAmount(hs.Table.ActivePlayerIndex),
			})
		}
		return hs, events, nil
	}

	events = d.emit(&hs, events, BettingRoundCompletePayload{
		Street: hs.Table.Street,
		Pot:    hs.Table.Pot,
	})

	// All remaining players all-in (or all but one, with bets settled):
	// run out the board and go straight to showdown.
	if hs.Table.ActingPlayers() <= 1 {
		return d.runOutAndShowdown(hs, events)
	}

	if hs.Phase == PhaseRiver {
		return d.showdown(hs, events)
	}

	return d.nextStreet(hs, events)
}

// nextStreet deals the next street's community cards and reopens betting.
func (d *Dispatcher) nextStreet(hs HandState, events []GameEvent) (HandState, []GameEvent, error) {
	var nextPhase Phase
	var dealCount int
	switch hs.Phase {
	case PhasePreflop:
		nextPhase, dealCount = PhaseFlop, 3
	case PhaseFlop:
		nextPhase, dealCount = PhaseTurn, 1
	case PhaseTurn:
		nextPhase, dealCount = PhaseRiver, 1
	default:
		return hs, events, fmt.Errorf("no next street from phase %s", hs.Phase)
	}
	if !transitionAllowed(hs.Phase, nextPhase) {
		return hs, events, fmt.Errorf("transition %s -> %s not allowed", hs.Phase, nextPhase)
	}

	from := hs.Table.Street
	hs.Phase = nextPhase
	hs.Table = poker.ResetForNextStreet(hs.Table)
	hs.Table.Street = streetForPhase(nextPhase)

	events = d.emit(&hs, events, StreetChangedPayload{From: from, To: hs.Table.Street})

	dealt, err := d.dealCommunity(&hs, dealCount)
	if err != nil {
		return hs, events, err
	}
	events = d.emit(&hs, events, CommunityCardsDealtPayload{
		Cards:     dealt,
		Community: hs.Table.CommunityCards,
	})

	if hs.Table.ActivePlayerIndex >= 0 {
		events = d.emit(&hs, events, PlayerToActPayload{
			PlayerID:   hs.Table.Players[hs.Table.ActivePlayerIndex].ID,
			CallAmount: hs.Table.CallAmount(hs.Table.ActivePlayerIndex),
		})
	}
	return hs, events, nil
}

// dealCommunity consumes cards from the supplied deck in canonical order.
// Burn cards are not modeled.
func (d *Dispatcher) dealCommunity(hs *HandState, count int) ([]poker.Card, error) {
	dealt := make([]poker.Card, 0, count)
	for i := 0; i < count; i++ {
		card, ok := hs.Deck.Draw()
		if !ok {
			return nil, fmt.Errorf("deck exhausted while dealing community cards")
		}
		hs.Table.CommunityCards = append(hs.Table.CommunityCards, card)
		dealt = append(dealt, card)
	}
	return dealt, nil
}

// runOutAndShowdown deals every remaining street without betting, then
// resolves the showdown.
func (d *Dispatcher) runOutAndShowdown(hs HandState, events []GameEvent) (HandState, []GameEvent, error) {
	for len(hs.Table.CommunityCards) < 5 {
		var nextPhase Phase
		var dealCount int
		switch len(hs.Table.CommunityCards) {
		case 0:
			nextPhase, dealCount = PhaseFlop, 3
		case 3:
			nextPhase, dealCount = PhaseTurn, 1
		case 4:
			nextPhase, dealCount = PhaseRiver, 1
		}

		from := hs.Table.Street
		hs.Phase = nextPhase
		hs.Table.Street = streetForPhase(nextPhase)
		events = d.emit(&hs, events, StreetChangedPayload{From: from, To: hs.Table.Street})

		dealt, err := d.dealCommunity(&hs, dealCount)
		if err != nil {
			return hs, events, err
		}
		events = d.emit(&hs, events, CommunityCardsDealtPayload{
			Cards:     dealt,
			Community: hs.Table.CommunityCards,
		})
	}

	return d.showdown(hs, events)
}

// showdown evaluates every player still in the hand, awards the pots, and
// completes the hand.
func (d *Dispatcher) showdown(hs HandState, events []GameEvent) (HandState, []GameEvent, error) {
	if !transitionAllowed(hs.Phase, PhaseShowdown) {
		return hs, events, fmt.Errorf("transition %s -> SHOWDOWN not allowed", hs.Phase)
	}
	hs.Phase = PhaseShowdown
	hs.Table.Street = poker.StreetShowdown
	hs.Table.ActivePlayerIndex = -1

	var inHand []string
	for _, p := range hs.Table.Players {
		if p.InHand() {
			inHand = append(inHand, p.ID)
		}
	}
	events = d.emit(&hs, events, ShowdownStartedPayload{PlayerIDs: inHand})

	// Reveal in seat order starting left of the dealer.
	n := len(hs.Table.Players)
	for i := 1; i <= n; i++ {
		idx := (hs.Table.DealerIndex + i) % n
		p := &hs.Table.Players[idx]
		if !p.InHand() {
			continue
		}
		hv, err := poker.EvaluateHand(p.HoleCards, hs.Table.CommunityCards)
		if err != nil {
			return hs, events, fmt.Errorf("evaluate hand for %s: %w", p.ID, err)
		}
		p.HandValue = &hv
		p.HandDescription = hv.HandDescription
		events = d.emit(&hs, events, HandRevealedPayload{
			PlayerID:        p.ID,
			HoleCards:       p.HoleCards,
			HandDescription: hv.HandDescription,
		})
	}

	return d.settle(hs, events, EndReasonShowdown)
}

// settleUncontested awards the pot to the last player in the hand.
func (d *Dispatcher) settleUncontested(hs HandState, events []GameEvent) (HandState, []GameEvent, error) {
	return d.settle(hs, events, EndReasonAllFold)
}

// settle builds the side pots, takes the rake, applies the awards to the
// stacks and completes the hand.
func (d *Dispatcher) settle(hs HandState, events []GameEvent, reason HandEndReason) (HandState, []GameEvent, error) {
	if !transitionAllowed(hs.Phase, PhaseSettlement) {
		return hs, events, fmt.Errorf("transition %s -> SETTLEMENT not allowed", hs.Phase)
	}
	hs.Phase = PhaseSettlement
	hs.Table.ActivePlayerIndex = -1

	// An uncalled over-bet needs no special return path: its contribution
	// level forms a pot whose only eligible player is the bettor, so the
	// award hands it straight back.
	totalPot := hs.Table.Pot

	contributions := make(map[string]int64, len(hs.Table.Players))
	for _, p := range hs.Table.Players {
		if p.TotalBetThisHand > 0 {
			contributions[p.ID] = p.TotalBetThisHand
		}
	}

	pots := poker.BuildSidePots(hs.Table.Players)

	// The rake comes off the first pot before distribution.
	rake := d.rake.amount(totalPot)
	if rake > 0 && len(pots) > 0 {
		if rake > pots[0].Amount {
			rake = pots[0].Amount
		}
		pots[0].Amount -= rake
	}

	awards := poker.AwardPots(pots, hs.Table.Players, hs.Table.DealerIndex)

	var winners []string
	seenWinner := make(map[string]bool)
	var winningDesc string
	for _, award := range awards {
		p := &hs.Table.Players[award.PlayerIndex]
		p.Stack += award.Amount
		events = d.emit(&hs, events, PotAwardedPayload{
			PlayerID: award.PlayerID,
			Amount:   award.Amount,
			PotType:  award.PotType,
		})
		if !seenWinner[award.PlayerID] {
			seenWinner[award.PlayerID] = true
			winners = append(winners, award.PlayerID)
			if p.HandDescription != "" && winningDesc == "" {
				winningDesc = p.HandDescription
			}
		}
	}

	hs.Table.Winners = winners
	hs.Table.WinningHandDescription = winningDesc
	hs.Table.Pot = 0
	for i := range hs.Table.Players {
		hs.Table.Players[i].CurrentBet = 0
	}

	finalStacks := make(map[string]int64, len(hs.Table.Players))
	for _, p := range hs.Table.Players {
		finalStacks[p.ID] = p.Stack
	}

	hs.Result = &HandResult{
		HandID:             hs.HandID,
		TableID:            hs.TableID,
		Reason:             reason,
		Awards:             awards,
		Winners:            winners,
		WinningDescription: winningDesc,
		TotalPot:           totalPot,
		RakeTotal:          rake,
		Contributions:      contributions,
		FinalStacks:        finalStacks,
	}

	events = d.emit(&hs, events, HandEndedPayload{
		Reason:  reason,
		Winners: winners,
		Pot:     totalPot,
	})

	hs.Phase = PhaseComplete
	hs.Table.Street = poker.StreetComplete

	d.log.Debugf("hand %s ended (%s): pot=%d rake=%d winners=%v",
		hs.HandID, reason, totalPot, rake, winners)
	return hs, events, nil
}
