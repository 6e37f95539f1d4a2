package engine

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/poker"
)

func fixedClock() time.Time {
	return time.Unix(1700000000, 0).UTC()
}

func newTestDispatcher(t *testing.T, rake RakeConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(fixedClock, rake, slog.Disabled)
	require.NoError(t, err)
	return d
}

func newTestHand(t *testing.T, stacks []int64, smallBlind, bigBlind int64) HandState {
	t.Helper()
	players := make([]poker.Player, len(stacks))
	for i, stack := range stacks {
		players[i] = poker.Player{
			ID:     playerName(i),
			Name:   playerName(i),
			Stack:  stack,
			Status: poker.StatusActive,
			Seat:   i,
		}
	}
	table := poker.NewTableState(players, 0, smallBlind, bigBlind, 1)
	deck, err := poker.NewDeck(poker.StandardOrder())
	require.NoError(t, err)
	return NewHandState("hand-1", "T1", table, deck, fixedClock())
}

func playerName(i int) string {
	return "P" + string(rune('1'+i))
}

func act(t *testing.T, d *Dispatcher, hs HandState, playerID string, typ poker.ActionType, amount int64) (HandState, []GameEvent) {
	t.Helper()
	next, events, err := d.Reduce(hs, PlayerActionCommand{
		Action: poker.Action{PlayerID: playerID, Type: typ, Amount: amount},
	})
	require.NoError(t, err)
	return next, events
}

func eventTypes(events []GameEvent) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestStartHandEmitsCanonicalOpening(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{})
	hs := newTestHand(t, []int64{1000, 1000}, 5, 10)

	next, events, err := d.Reduce(hs, StartHandCommand{})
	require.NoError(t, err)

	require.Equal(t, PhasePreflop, next.Phase)
	require.Equal(t, []EventType{
		EventHandStarted,
		EventBlindsPosted,
		EventHoleCardsDealt,
		EventPlayerToAct,
	}, eventTypes(events))

	// Blinds landed: heads-up dealer posts the small blind.
	blinds := events[1].Payload.(BlindsPostedPayload)
	require.Equal(t, "P1", blinds.SmallBlindPlayer)
	require.Equal(t, "P2", blinds.BigBlindPlayer)
	require.EqualValues(t, 15, blinds.Pot)

	// Two hole cards each.
	for _, p := range next.Table.Players {
		require.Len(t, p.HoleCards, 2)
	}
}

func TestStartHandOutOfPhaseLeavesStateUnchanged(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{})
	hs := newTestHand(t, []int64{1000, 1000}, 5, 10)

	started, _, err := d.Reduce(hs, StartHandCommand{})
	require.NoError(t, err)

	again, events, err := d.Reduce(started, StartHandCommand{})
	require.Error(t, err)
	var coded *domain.CodedError
	require.ErrorAs(t, err, &coded)
	require.Equal(t, domain.CodeHandNotInProgress, coded.Code)

	// State unchanged, one non-state-altering ERROR event.
	require.Equal(t, started.Phase, again.Phase)
	require.Equal(t, started.EventSeq, again.EventSeq)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Type)
}

func TestActionBeforeStartRejected(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{})
	hs := newTestHand(t, []int64{1000, 1000}, 5, 10)

	_, events, err := d.Reduce(hs, PlayerActionCommand{
		Action: poker.Action{PlayerID: "P1", Type: poker.ActionFold},
	})
	require.Error(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Type)
}

// Heads-up fold: the blinds go to the surviving player without a showdown.
func TestFoldWinsBlindsHeadsUp(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{})
	hs := newTestHand(t, []int64{1000, 1000}, 5, 10)

	started, openEvents, err := d.Reduce(hs, StartHandCommand{})
	require.NoError(t, err)

	done, foldEvents := act(t, d, started, "P1", poker.ActionFold, 0)

	require.Equal(t, PhaseComplete, done.Phase)
	require.Equal(t, []EventType{
		EventPlayerActed,
		EventPotAwarded,
		EventHandEnded,
	}, eventTypes(foldEvents))

	award := foldEvents[1].Payload.(PotAwardedPayload)
	require.Equal(t, "P2", award.PlayerID)
	require.EqualValues(t, 15, award.Amount)

	ended := foldEvents[2].Payload.(HandEndedPayload)
	require.Equal(t, EndReasonAllFold, ended.Reason)

	// Final stacks: P1 995, P2 1005.
	require.EqualValues(t, 995, done.Result.FinalStacks["P1"])
	require.EqualValues(t, 1005, done.Result.FinalStacks["P2"])

	// Sequences are strictly monotonic across the whole hand.
	all := append(openEvents, foldEvents...)
	for i := 1; i < len(all); i++ {
		require.Equal(t, all[i-1].Sequence+1, all[i].Sequence)
	}
}

// All-in preflop runs out all five community cards before the showdown.
func TestAllInRunoutHeadsUp(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{})
	hs := newTestHand(t, []int64{50, 50}, 5, 10)

	started, _, err := d.Reduce(hs, StartHandCommand{})
	require.NoError(t, err)

	afterShove, _ := act(t, d, started, "P1", poker.ActionAllIn, 0)
	done, events := act(t, d, afterShove, "P2", poker.ActionCall, 0)

	require.Equal(t, PhaseComplete, done.Phase)
	require.Len(t, done.Table.CommunityCards, 5)

	types := eventTypes(events)
	require.Contains(t, types, EventBettingRoundComplete)
	require.Contains(t, types, EventShowdownStarted)
	require.Contains(t, types, EventHandRevealed)
	require.Contains(t, types, EventPotAwarded)
	require.Contains(t, types, EventHandEnded)

	// Chips conserve: stacks total the 100 that entered the hand.
	var total int64
	for _, stack := range done.Result.FinalStacks {
		total += stack
	}
	require.EqualValues(t, 100, total)
}

// Three players to a showdown, with one folding to the turn bet.
func TestThreeWayHandToShowdown(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{})
	hs := newTestHand(t, []int64{200, 200, 200}, 5, 10)

	started, _, err := d.Reduce(hs, StartHandCommand{})
	require.NoError(t, err)

	var all []GameEvent
	collect := func(hs HandState, events []GameEvent) HandState {
		all = append(all, events...)
		return hs
	}

	// Preflop: everyone calls, big blind checks the option (pot = 30).
	s := started
	var events []GameEvent
	s, events = act(t, d, s, "P1", poker.ActionCall, 0) // dealer/UTG
	s = collect(s, events)
	s, events = act(t, d, s, "P2", poker.ActionCall, 0)
	s = collect(s, events)
	s, events = act(t, d, s, "P3", poker.ActionCheck, 0)
	s = collect(s, events)
	require.Equal(t, PhaseFlop, s.Phase)
	require.EqualValues(t, 30, s.Table.Pot)

	// Flop checks around.
	s, events = act(t, d, s, "P2", poker.ActionCheck, 0)
	s = collect(s, events)
	s, events = act(t, d, s, "P3", poker.ActionCheck, 0)
	s = collect(s, events)
	s, events = act(t, d, s, "P1", poker.ActionCheck, 0)
	s = collect(s, events)
	require.Equal(t, PhaseTurn, s.Phase)

	// Turn: P2 bets 20, P3 folds, P1 calls.
	s, events = act(t, d, s, "P2", poker.ActionBet, 20)
	s = collect(s, events)
	s, events = act(t, d, s, "P3", poker.ActionFold, 0)
	s = collect(s, events)
	s, events = act(t, d, s, "P1", poker.ActionCall, 0)
	s = collect(s, events)
	require.Equal(t, PhaseRiver, s.Phase)

	// River checks; showdown resolves.
	s, events = act(t, d, s, "P2", poker.ActionCheck, 0)
	s = collect(s, events)
	s, events = act(t, d, s, "P1", poker.ActionCheck, 0)
	s = collect(s, events)

	require.Equal(t, PhaseComplete, s.Phase)

	var total int64
	for _, stack := range s.Result.FinalStacks {
		total += stack
	}
	require.EqualValues(t, 600, total)

	types := eventTypes(all)
	for _, want := range []EventType{
		EventStreetChanged,
		EventCommunityCardsDealt,
		EventBettingRoundComplete,
		EventShowdownStarted,
		EventPotAwarded,
		EventHandEnded,
	} {
		require.Contains(t, types, want)
	}
}

// The same commands over the same deck produce identical event streams.
func TestDeterministicReplay(t *testing.T) {
	run := func() []GameEvent {
		d := newTestDispatcher(t, RakeConfig{})
		hs := newTestHand(t, []int64{50, 50}, 5, 10)

		var all []GameEvent
		s, events, err := d.Reduce(hs, StartHandCommand{})
		require.NoError(t, err)
		all = append(all, events...)

		s, events = act(t, d, s, "P1", poker.ActionAllIn, 0)
		all = append(all, events...)
		_, events = act(t, d, s, "P2", poker.ActionCall, 0)
		all = append(all, events...)
		return all
	}

	first := run()
	second := run()
	require.Equal(t, first, second, "replayed event stream diverged:\n%s", spew.Sdump(second))
}

// The rake comes off the pot before distribution.
func TestRakeDeductedAtSettlement(t *testing.T) {
	d := newTestDispatcher(t, RakeConfig{Bps: 1000}) // 10%
	hs := newTestHand(t, []int64{50, 50}, 5, 10)

	started, _, err := d.Reduce(hs, StartHandCommand{})
	require.NoError(t, err)

	afterShove, _ := act(t, d, started, "P1", poker.ActionAllIn, 0)
	done, _ := act(t, d, afterShove, "P2", poker.ActionCall, 0)

	require.EqualValues(t, 100, done.Result.TotalPot)
	require.EqualValues(t, 10, done.Result.RakeTotal)

	var total int64
	for _, stack := range done.Result.FinalStacks {
		total += stack
	}
	require.EqualValues(t, 90, total)
}
