package boundary

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/ledger"
)

func testClock() time.Time {
	return time.Unix(1700000000, 0).UTC()
}

func newTestBoundary(t *testing.T, strict bool) (*TopUpBoundary, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(ledger.Config{Log: slog.Disabled, Clock: testClock})
	require.NoError(t, err)
	b, err := NewTopUpBoundary(TopUpConfig{Log: slog.Disabled, Ledger: l, Strict: strict})
	require.NoError(t, err)
	return b, l
}

func validIntent() TopUpIntent {
	return TopUpIntent{
		IntentID: "t1",
		PlayerID: "P1",
		ClubID:   "C1",
		Amount:   500,
	}
}

func TestTopUpHappyPath(t *testing.T) {
	b, l := newTestBoundary(t, false)

	result := b.Process(validIntent())
	require.True(t, result.Success)
	require.NotNil(t, result.Entry)

	require.Equal(t, 1, l.Len())
	entry := l.Entries()[0]
	require.Equal(t, ledger.SourceTopUp, entry.Source)
	require.Equal(t, ledger.PartyPlayer, entry.Party.Type)
	require.Equal(t, "P1", entry.Party.ID)
	require.EqualValues(t, 500, entry.Delta)
	require.Equal(t, "t1", entry.Metadata[ledger.ExternalIntentKey])
}

func TestTopUpDuplicateIntentRejected(t *testing.T) {
	b, l := newTestBoundary(t, false)

	require.True(t, b.Process(validIntent()).Success)

	// Re-submitting the same intent is reported as a duplicate and leaves
	// the ledger unchanged.
	result := b.Process(validIntent())
	require.False(t, result.Success)
	require.True(t, result.IsDuplicate)
	require.Equal(t, 1, l.Len())
}

func TestTopUpValidationErrors(t *testing.T) {
	b, _ := newTestBoundary(t, false)

	testCases := []struct {
		name   string
		mutate func(*TopUpIntent)
		code   ValidationCode
	}{
		{"missing intent id", func(i *TopUpIntent) { i.IntentID = "" }, CodeMissingField},
		{"intent id too long", func(i *TopUpIntent) { i.IntentID = strings.Repeat("x", 257) }, CodeIntentTooLong},
		{"missing player", func(i *TopUpIntent) { i.PlayerID = "" }, CodeMissingField},
		{"missing club", func(i *TopUpIntent) { i.ClubID = "" }, CodeMissingField},
		{"zero amount", func(i *TopUpIntent) { i.Amount = 0 }, CodeInvalidAmount},
		{"negative amount", func(i *TopUpIntent) { i.Amount = -100 }, CodeInvalidAmount},
		{"non-player target", func(i *TopUpIntent) { i.Target = ledger.ClubParty("C1") }, CodeForbiddenTarget},
		{"wrong source", func(i *TopUpIntent) { i.Source = "WIRE" }, CodeForbiddenTarget},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validIntent()
			tc.mutate(&intent)
			errs := b.Validate(intent)
			require.NotEmpty(t, errs)

			found := false
			for _, e := range errs {
				if e.Code == tc.code {
					found = true
				}
			}
			require.True(t, found, "expected code %s in %v", tc.code, errs)
		})
	}
}

func TestTopUpBlockedDuringSettlement(t *testing.T) {
	b, l := newTestBoundary(t, false)

	b.BeginSettlement("T1")

	intent := validIntent()
	intent.TableID = "T1"
	result := b.Process(intent)
	require.False(t, result.Success)
	require.Equal(t, CodeForbiddenTiming, result.Errors[0].Code)
	require.Equal(t, 0, l.Len())

	// Boundary rejections unwrap to the coded domain error.
	var coded *domain.CodedError
	require.True(t, errors.As(result.Errors[0], &coded))
	require.Equal(t, domain.CodeForbiddenTiming, coded.Code)

	// A top-up for another table is unaffected.
	other := validIntent()
	other.IntentID = "t2"
	other.TableID = "T2"
	require.True(t, b.Process(other).Success)

	// After the window closes, the original intent goes through.
	b.EndSettlement("T1")
	require.True(t, b.Process(intent).Success)
	require.Equal(t, 2, l.Len())
}

func TestStrictModeForbiddenVocabulary(t *testing.T) {
	b, l := newTestBoundary(t, true)

	testCases := []struct {
		name     string
		metadata map[string]string
	}{
		{"forbidden exact key", map[string]string{"walletAddress": "abc"}},
		{"forbidden key term", map[string]string{"payment_ref": "x"}},
		{"forbidden value term", map[string]string{"note": "converted from BTC"}},
		{"currency value", map[string]string{"memo": "usd settlement"}},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validIntent()
			intent.IntentID = "strict-" + string(rune('a'+i))
			intent.Metadata = tc.metadata
			result := b.Process(intent)
			require.False(t, result.Success)
			require.Equal(t, CodeForbiddenMetadata, result.Errors[0].Code)
		})
	}
	require.Equal(t, 0, l.Len())

	// Clean metadata passes in strict mode.
	intent := validIntent()
	intent.Metadata = map[string]string{"campaign": "spring-league"}
	require.True(t, b.Process(intent).Success)
}

func TestLenientModeSkipsVocabularyScan(t *testing.T) {
	b, _ := newTestBoundary(t, false)

	intent := validIntent()
	intent.Metadata = map[string]string{"note": "wallet import"}
	require.True(t, b.Process(intent).Success)
}

func TestValidateDoesNotConsumeIntent(t *testing.T) {
	b, _ := newTestBoundary(t, false)

	// Validation alone must not mark the intent processed.
	require.Empty(t, b.Validate(validIntent()))
	require.Empty(t, b.Validate(validIntent()))
	require.True(t, b.Process(validIntent()).Success)
}

func TestTopUpRequestedAtRecorded(t *testing.T) {
	b, l := newTestBoundary(t, false)

	intent := validIntent()
	intent.RequestedAt = testClock()
	require.True(t, b.Process(intent).Success)

	entry := l.Entries()[0]
	require.Equal(t, testClock().Format(time.RFC3339), entry.Metadata["requestedAt"])
}
