package engine

import (
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/pokercore/holdemd/pkg/boundary"
	"github.com/pokercore/holdemd/pkg/ledger"
	"github.com/pokercore/holdemd/pkg/poker"
)

type serviceEnv struct {
	svc    *GameService
	ledger *ledger.Ledger
	topups *boundary.TopUpBoundary
}

func newServiceEnv(t *testing.T, table TableConfig) *serviceEnv {
	t.Helper()

	chipLedger, err := ledger.New(ledger.Config{Log: slog.Disabled, Clock: fixedClock})
	require.NoError(t, err)
	topups, err := boundary.NewTopUpBoundary(boundary.TopUpConfig{
		Log:    slog.Disabled,
		Ledger: chipLedger,
	})
	require.NoError(t, err)

	svc, err := NewGameService(ServiceConfig{
		Table:    table,
		Log:      slog.Disabled,
		Clock:    fixedClock,
		Recorder: ledger.NewSettlementRecorder(chipLedger, slog.Disabled),
		Checker:  ledger.NewInvariantChecker(),
		Ledger:   chipLedger,
		TopUps:   topups,
	})
	require.NoError(t, err)

	return &serviceEnv{svc: svc, ledger: chipLedger, topups: topups}
}

func defaultTable() TableConfig {
	return TableConfig{
		ID:         "T1",
		ClubID:     "C1",
		SmallBlind: 5,
		BigBlind:   10,
		MinPlayers: 2,
		MaxPlayers: 9,
	}
}

// fund credits a player through the top-up boundary so settlement debits
// never drive a derived balance negative.
func (env *serviceEnv) fund(t *testing.T, playerID string, amount int64) {
	t.Helper()
	result := env.topups.Process(boundary.TopUpIntent{
		IntentID: "fund-" + playerID,
		PlayerID: playerID,
		ClubID:   "C1",
		Amount:   amount,
	})
	require.True(t, result.Success)
}

func (env *serviceEnv) join(t *testing.T, playerID string, buyIn int64) {
	t.Helper()
	result := env.svc.JoinTable(JoinRequest{PlayerID: playerID, Name: playerID, BuyIn: buyIn, Seat: -1})
	require.True(t, result.OK(), "join %s: %s", playerID, result.Message)
}

func TestJoinTableValidation(t *testing.T) {
	env := newServiceEnv(t, defaultTable())

	// Buy-in window is [10 BB, 200 BB] = [100, 2000].
	result := env.svc.JoinTable(JoinRequest{PlayerID: "P1", BuyIn: 50, Seat: -1})
	require.Equal(t, CodeInvalidAmount, result.Code)

	result = env.svc.JoinTable(JoinRequest{PlayerID: "P1", BuyIn: 5000, Seat: -1})
	require.Equal(t, CodeInvalidAmount, result.Code)

	env.join(t, "P1", 1000)

	// Seat collision.
	result = env.svc.JoinTable(JoinRequest{PlayerID: "P2", BuyIn: 1000, Seat: 0})
	require.Equal(t, CodeSeatTaken, result.Code)

	// Duplicate player.
	result = env.svc.JoinTable(JoinRequest{PlayerID: "P1", BuyIn: 1000, Seat: -1})
	require.Equal(t, CodeInvalidAction, result.Code)
}

func TestTableFull(t *testing.T) {
	table := defaultTable()
	table.MaxPlayers = 2
	env := newServiceEnv(t, table)

	env.join(t, "P1", 1000)
	env.join(t, "P2", 1000)

	result := env.svc.JoinTable(JoinRequest{PlayerID: "P3", BuyIn: 1000, Seat: -1})
	require.Equal(t, CodeTableFull, result.Code)
}

// Heads-up fold through the facade settles a balanced ledger batch.
func TestFoldHandSettlesLedger(t *testing.T) {
	env := newServiceEnv(t, defaultTable())
	env.fund(t, "P1", 1000)
	env.fund(t, "P2", 1000)
	env.join(t, "P1", 1000)
	env.join(t, "P2", 1000)

	events, cancel := env.svc.Subscribe()
	defer cancel()

	require.True(t, env.svc.StartHand(poker.StandardOrder()).OK())
	result := env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionFold})
	require.True(t, result.OK(), result.Message)

	handResult, res := env.svc.GetHandResult()
	require.True(t, res.OK())
	require.Equal(t, EndReasonAllFold, handResult.Reason)
	require.EqualValues(t, 995, handResult.FinalStacks["P1"])
	require.EqualValues(t, 1005, handResult.FinalStacks["P2"])

	// Settlement batch: +15 P2, -5 P1, -10 P2; sums to zero.
	entries := env.ledger.Entries()
	var sum int64
	settlementEntries := 0
	for _, e := range entries {
		if e.Source == ledger.SourceHandSettlement {
			settlementEntries++
			sum += e.Delta
		}
	}
	require.Equal(t, 3, settlementEntries)
	require.EqualValues(t, 0, sum)

	// Derived balances follow the stacks.
	require.EqualValues(t, 995, env.ledger.Balance(ledger.PlayerParty("P1")))
	require.EqualValues(t, 1005, env.ledger.Balance(ledger.PlayerParty("P2")))

	report := env.ledger.VerifyIntegrity()
	require.True(t, report.IsValid)

	// The subscriber saw the whole hand, ending with HAND_ENDED.
	var seen []EventType
drain:
	for {
		select {
		case ev := <-events:
			seen = append(seen, ev.Type)
		default:
			break drain
		}
	}
	require.NotEmpty(t, seen)
	require.Equal(t, EventHandEnded, seen[len(seen)-1])
}

func TestProcessActionCodes(t *testing.T) {
	env := newServiceEnv(t, defaultTable())
	env.join(t, "P1", 1000)
	env.join(t, "P2", 1000)

	// No hand yet.
	result := env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionFold})
	require.Equal(t, CodeHandNotInProgress, result.Code)

	require.True(t, env.svc.StartHand(poker.StandardOrder()).OK())

	// Unknown player.
	result = env.svc.ProcessAction(ActionRequest{PlayerID: "P9", Type: poker.ActionFold})
	require.Equal(t, CodePlayerNotFound, result.Code)

	// Out of turn (P2 is the big blind; P1 acts first heads-up).
	result = env.svc.ProcessAction(ActionRequest{PlayerID: "P2", Type: poker.ActionCheck})
	require.Equal(t, CodeNotYourTurn, result.Code)

	// Check facing a bet.
	result = env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionCheck})
	require.Equal(t, CodeInvalidAction, result.Code)

	// Raise beyond the stack.
	result = env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionRaise, Amount: 5000})
	require.Equal(t, CodeInsufficientChips, result.Code)

	// Raise below the minimum.
	result = env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionRaise, Amount: 15})
	require.Equal(t, CodeInvalidAmount, result.Code)

	// Negative amount.
	result = env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionBet, Amount: -5})
	require.Equal(t, CodeInvalidAmount, result.Code)
}

func TestGetValidActions(t *testing.T) {
	env := newServiceEnv(t, defaultTable())
	env.join(t, "P1", 1000)
	env.join(t, "P2", 1000)

	_, result := env.svc.GetValidActions("P1")
	require.Equal(t, CodeHandNotInProgress, result.Code)

	require.True(t, env.svc.StartHand(poker.StandardOrder()).OK())

	va, result := env.svc.GetValidActions("P1")
	require.True(t, result.OK())
	require.True(t, va.CanFold)
	require.True(t, va.CanCall)
	require.EqualValues(t, 5, va.CallAmount)

	_, result = env.svc.GetValidActions("P2")
	require.Equal(t, CodeNotYourTurn, result.Code)
}

func TestActionTimeoutFoldsThroughReducer(t *testing.T) {
	table := defaultTable()
	table.ActionTimeout = 30 * time.Second
	env := newServiceEnv(t, table)
	env.join(t, "P1", 1000)
	env.join(t, "P2", 1000)

	require.True(t, env.svc.StartHand(poker.StandardOrder()).OK())

	// Deadline not reached.
	result := env.svc.TimeoutPendingAction(fixedClock().Add(10 * time.Second))
	require.Equal(t, CodeInvalidAction, result.Code)

	// Past the deadline the pending player folds deterministically.
	result = env.svc.TimeoutPendingAction(fixedClock().Add(31 * time.Second))
	require.Equal(t, CodeActionTimeout, result.Code)

	handResult, res := env.svc.GetHandResult()
	require.True(t, res.OK())
	require.Equal(t, []string{"P2"}, handResult.Winners)
}

func TestRebuyOnlyBetweenHands(t *testing.T) {
	env := newServiceEnv(t, defaultTable())
	env.join(t, "P1", 1000)
	env.join(t, "P2", 1000)

	require.True(t, env.svc.StartHand(poker.StandardOrder()).OK())
	result := env.svc.Rebuy("P1", 100)
	require.Equal(t, CodeInvalidAction, result.Code)

	require.True(t, env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionFold}).OK())
	result = env.svc.Rebuy("P1", 100)
	require.True(t, result.OK(), result.Message)

	view := env.svc.GetGameState()
	for _, p := range view.Players {
		if p.ID == "P1" {
			require.EqualValues(t, 1095, p.Stack)
		}
	}
}

// Identical command sequences against identical decks produce identical
// ledger contents and the same chain head.
func TestReplayProducesIdenticalLedger(t *testing.T) {
	run := func() *serviceEnv {
		env := newServiceEnv(t, defaultTable())
		env.fund(t, "P1", 1000)
		env.fund(t, "P2", 1000)
		env.join(t, "P1", 1000)
		env.join(t, "P2", 1000)
		require.True(t, env.svc.StartHand(poker.StandardOrder()).OK())
		require.True(t, env.svc.ProcessAction(ActionRequest{PlayerID: "P1", Type: poker.ActionFold}).OK())
		return env
	}

	a := run()
	b := run()

	entriesA := a.ledger.Entries()
	entriesB := b.ledger.Entries()
	require.Equal(t, entriesA, entriesB)
	require.Equal(t, a.ledger.ChainHead(), b.ledger.ChainHead())
}

func TestCapabilitiesManifestIsStable(t *testing.T) {
	caps := Capabilities()
	require.Contains(t, caps, CapabilityDeterministic)
	require.Contains(t, caps, CapabilityAppendOnlyLedger)

	// Mutating the returned slice must not affect the manifest.
	caps[0] = Capability("mutated")
	require.NotContains(t, Capabilities(), Capability("mutated"))

	restrictions := Restrictions()
	require.Contains(t, restrictions, RestrictionNoRandomness)
	require.Contains(t, restrictions, RestrictionNoClocks)
	require.Len(t, restrictions, 6)
}
