package ledger

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

func testClock() time.Time {
	return time.Unix(1700000000, 0).UTC()
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(Config{Log: slog.Disabled, Clock: testClock})
	require.NoError(t, err)
	return l
}

func topUpInput(playerID string, amount int64, intentID string) EntryInput {
	return EntryInput{
		Source:      SourceTopUp,
		Party:       PlayerParty(playerID),
		Delta:       amount,
		Description: "external chip top-up",
		Metadata:    map[string]string{ExternalIntentKey: intentID},
	}
}

func TestAppendAssignsSequenceAndChains(t *testing.T) {
	l := newTestLedger(t)

	first, err := l.Append(topUpInput("P1", 500, "t1"))
	require.NoError(t, err)
	require.EqualValues(t, 1, first.Sequence)
	require.Equal(t, chainChecksum(GenesisChecksum(), first), first.Checksum)

	second, err := l.Append(topUpInput("P2", 300, "t2"))
	require.NoError(t, err)
	require.EqualValues(t, 2, second.Sequence)
	require.Equal(t, chainChecksum(first.Checksum, second), second.Checksum)
	require.Equal(t, second.Checksum, l.ChainHead())
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	l := newTestLedger(t)

	// Unknown source.
	_, err := l.Append(EntryInput{Source: "BOGUS", Party: PlayerParty("P1"), Delta: 1})
	require.Error(t, err)

	// Party shape.
	_, err = l.Append(EntryInput{Source: SourceTopUp, Party: Party{Type: PartyPlayer}, Delta: 1})
	require.Error(t, err)
	_, err = l.Append(EntryInput{Source: SourceTopUp, Party: Party{Type: PartyPlatform, ID: "x"}, Delta: 1})
	require.Error(t, err)

	// Zero delta.
	_, err = l.Append(EntryInput{Source: SourceTopUp, Party: PlayerParty("P1"), Delta: 0})
	require.Error(t, err)

	// Settlement entries only through the recorder.
	_, err = l.Append(EntryInput{Source: SourceHandSettlement, Party: PlayerParty("P1"), Delta: 10})
	require.Error(t, err)

	require.Equal(t, 0, l.Len())
}

func TestAppendEnforcesNonNegativeBalance(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Append(topUpInput("P1", 100, "t1"))
	require.NoError(t, err)

	// A batch that would overdraw P1 is refused whole.
	_, err = l.AppendBatch([]EntryInput{
		{Source: SourceTopUp, Party: PlayerParty("P1"), Delta: -150,
			Metadata: map[string]string{ExternalIntentKey: "t2"}},
	})
	require.Error(t, err)
	require.Equal(t, 1, l.Len())
	require.EqualValues(t, 100, l.Balance(PlayerParty("P1")))
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(topUpInput("P1", 500, "t1"))
	require.NoError(t, err)
	_, err = l.Append(topUpInput("P2", 300, "t2"))
	require.NoError(t, err)
	_, err = l.Append(topUpInput("P3", 200, "t3"))
	require.NoError(t, err)

	report := l.VerifyIntegrity()
	require.True(t, report.IsValid)
	require.Equal(t, 3, report.VerifiedEntries)
	require.Equal(t, -1, report.FirstFailureIndex)

	// Mutate the middle entry's delta: the chain breaks at index 1.
	l.corruptEntryForTest(1, func(e *Entry) { e.Delta = 9999 })

	report = l.VerifyIntegrity()
	require.False(t, report.IsValid, spew.Sdump(report))
	require.Equal(t, 1, report.FirstFailureIndex)
	require.Equal(t, 1, report.VerifiedEntries)
}

func TestCanonicalEncodingExcludesTimestamp(t *testing.T) {
	e := Entry{
		EntryID:  "id-1",
		Sequence: 1,
		Source:   SourceTopUp,
		Party:    PlayerParty("P1"),
		Delta:    500,
		Metadata: map[string]string{"b": "2", "a": "1"},
	}

	early := e
	early.Timestamp = time.Unix(1, 0)
	late := e
	late.Timestamp = time.Unix(999999, 0)

	require.Equal(t, canonicalBytes(early), canonicalBytes(late))
}

func TestRecordSettlementBalancedBatch(t *testing.T) {
	l := newTestLedger(t)
	recorder := NewSettlementRecorder(l, slog.Disabled)

	// Players funded ahead of the hand.
	_, err := l.Append(topUpInput("P1", 1000, "t1"))
	require.NoError(t, err)
	_, err = l.Append(topUpInput("P2", 1000, "t2"))
	require.NoError(t, err)

	batch, err := recorder.RecordSettlement(SettlementAttribution{
		HandID:  "H1",
		TableID: "T1",
		ClubID:  "C1",
		PotWinners: []PotWinner{
			{PlayerID: "P1", Amount: 90, PotType: "main"},
		},
		RakeTotal: 10,
		Rake: RakeBreakdown{
			ClubShare:     7,
			AgentShare:    2,
			AgentID:       "A1",
			PlatformShare: 1,
		},
		Contributions: map[string]int64{"P1": 50, "P2": 50},
	})
	require.NoError(t, err)

	// Entries: P1 +90, CLUB +7, AGENT +2, PLATFORM +1, P1 -50, P2 -50.
	require.Len(t, batch.EntryIDs, 6)

	var sum int64
	for _, e := range l.Entries() {
		if e.Source == SourceHandSettlement {
			sum += e.Delta
		}
	}
	require.EqualValues(t, 0, sum)

	require.EqualValues(t, 7, l.Balance(ClubParty("C1")))
	require.EqualValues(t, 2, l.Balance(AgentParty("A1")))
	require.EqualValues(t, 1, l.Balance(PlatformParty()))
	require.EqualValues(t, 1040, l.Balance(PlayerParty("P1")))
	require.EqualValues(t, 950, l.Balance(PlayerParty("P2")))

	report := l.VerifyIntegrity()
	require.True(t, report.IsValid)
	require.Equal(t, 8, report.VerifiedEntries)
}

func TestRecordSettlementRejectsBadRakeArithmetic(t *testing.T) {
	l := newTestLedger(t)
	recorder := NewSettlementRecorder(l, slog.Disabled)

	attr := SettlementAttribution{
		HandID:        "H1",
		ClubID:        "C1",
		PotWinners:    []PotWinner{{PlayerID: "P1", Amount: 90, PotType: "main"}},
		RakeTotal:     10,
		Rake:          RakeBreakdown{ClubShare: 5, AgentShare: 0, PlatformShare: 1},
		Contributions: map[string]int64{"P1": 50, "P2": 50},
	}
	_, err := recorder.RecordSettlement(attr)
	require.Error(t, err)
	require.Equal(t, 0, l.Len())

	// Agent share with no agent id.
	attr.Rake = RakeBreakdown{ClubShare: 7, AgentShare: 2, PlatformShare: 1}
	_, err = recorder.RecordSettlement(attr)
	require.Error(t, err)

	// Winners plus rake must equal contributions.
	attr.Rake.AgentID = "A1"
	attr.Contributions = map[string]int64{"P1": 10, "P2": 10}
	_, err = recorder.RecordSettlement(attr)
	require.Error(t, err)

	require.Equal(t, 0, l.Len())
}

func TestInvariantCheckerAllPass(t *testing.T) {
	l := newTestLedger(t)
	recorder := NewSettlementRecorder(l, slog.Disabled)
	checker := NewInvariantChecker()

	_, err := l.Append(topUpInput("P1", 500, "t1"))
	require.NoError(t, err)
	_, err = l.Append(topUpInput("P2", 500, "t2"))
	require.NoError(t, err)

	_, err = recorder.RecordSettlement(SettlementAttribution{
		HandID:        "H1",
		ClubID:        "C1",
		PotWinners:    []PotWinner{{PlayerID: "P2", Amount: 30, PotType: "main"}},
		RakeTotal:     0,
		Contributions: map[string]int64{"P1": 15, "P2": 15},
	})
	require.NoError(t, err)

	report := checker.CheckAll(l)
	require.True(t, report.AllPassed)
	require.Empty(t, report.Violations)
}

func TestInvariantCheckerFlagsTampering(t *testing.T) {
	l := newTestLedger(t)
	checker := NewInvariantChecker()

	_, err := l.Append(topUpInput("P1", 500, "t1"))
	require.NoError(t, err)

	l.corruptEntryForTest(0, func(e *Entry) { e.Delta = 9999 })

	report := checker.CheckAll(l)
	require.False(t, report.AllPassed)

	names := make(map[InvariantName]bool)
	for _, v := range report.Violations {
		names[v.Invariant] = true
		require.Equal(t, SeverityCritical, v.Severity)
	}
	require.True(t, names[InvariantAppendOnlyIntegrity])
	require.True(t, names[InvariantAttributionImmutability])
}

func TestExportRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Append(topUpInput("P1", 500, "t1"))
	require.NoError(t, err)

	export := l.Export()
	require.Equal(t, ExportVersion, export.Version)
	require.NoError(t, VerifyExport(export))

	// A doctored export fails its checksum.
	export.Entries[0].Delta = 1
	require.Error(t, VerifyExport(export))

	// Exporting never mutated the ledger.
	require.Equal(t, 1, l.Len())
	require.True(t, l.VerifyIntegrity().IsValid)
}

func TestExternalValueBoundary(t *testing.T) {
	guard := NewExternalValueBoundary()

	valid := EntryInput{
		Source:   SourceTopUp,
		Party:    PlayerParty("P1"),
		Delta:    100,
		Metadata: map[string]string{ExternalIntentKey: "t1"},
	}
	require.NoError(t, guard.Admit(valid))

	// Settlement entries never enter externally.
	bad := valid
	bad.Source = SourceHandSettlement
	require.Error(t, guard.Admit(bad))

	// Only players receive external value.
	bad = valid
	bad.Party = ClubParty("C1")
	require.Error(t, guard.Admit(bad))

	// Only positive credits.
	bad = valid
	bad.Delta = -100
	require.Error(t, guard.Admit(bad))

	// Idempotency key required.
	bad = valid
	bad.Metadata = nil
	require.Error(t, guard.Admit(bad))
}

func TestDeterministicIDs(t *testing.T) {
	require.Equal(t, DeterministicEntryID(1), DeterministicEntryID(1))
	require.NotEqual(t, DeterministicEntryID(1), DeterministicEntryID(2))
	require.NotEqual(t, DeterministicEntryID(1), DeterministicBatchID(1))
}
