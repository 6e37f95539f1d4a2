package ledger

import (
	"fmt"
	"sort"

	"github.com/decred/slog"
)

// PotWinner is one player's share of a settled pot.
type PotWinner struct {
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
	PotType  string `json:"pot_type"`
}

// RakeBreakdown partitions the rake across club, agent and platform.
type RakeBreakdown struct {
	ClubShare     int64  `json:"club_share"`
	AgentShare    int64  `json:"agent_share"`
	AgentID       string `json:"agent_id,omitempty"`
	PlatformShare int64  `json:"platform_share"`
}

// SettlementAttribution is the complete accounting of one settled hand:
// who won what, how the rake splits, and what each player put in. The
// contributions fund the balancing debits that make every settlement batch
// sum to zero.
type SettlementAttribution struct {
	HandID        string           `json:"hand_id"`
	TableID       string           `json:"table_id"`
	ClubID        string           `json:"club_id"`
	StateVersion  uint64           `json:"state_version"`
	PotWinners    []PotWinner      `json:"pot_winners"`
	RakeTotal     int64            `json:"rake_total"`
	Rake          RakeBreakdown    `json:"rake_breakdown"`
	Contributions map[string]int64 `json:"contributions"`
}

// Validate checks the attribution's internal arithmetic.
func (a SettlementAttribution) Validate() error {
	if a.HandID == "" {
		return fmt.Errorf("attribution requires a hand id")
	}
	if a.RakeTotal < 0 {
		return fmt.Errorf("rake total must be non-negative, got %d", a.RakeTotal)
	}
	if a.Rake.ClubShare < 0 || a.Rake.AgentShare < 0 || a.Rake.PlatformShare < 0 {
		return fmt.Errorf("rake shares must be non-negative")
	}
	if a.RakeTotal != a.Rake.ClubShare+a.Rake.AgentShare+a.Rake.PlatformShare {
		return fmt.Errorf("rake total %d does not equal club %d + agent %d + platform %d",
			a.RakeTotal, a.Rake.ClubShare, a.Rake.AgentShare, a.Rake.PlatformShare)
	}
	if a.Rake.AgentShare > 0 && a.Rake.AgentID == "" {
		return fmt.Errorf("agent share %d requires an agent id", a.Rake.AgentShare)
	}

	var winnerTotal int64
	for i, w := range a.PotWinners {
		if w.PlayerID == "" {
			return fmt.Errorf("pot winner %d missing player id", i)
		}
		if w.Amount <= 0 {
			return fmt.Errorf("pot winner %s amount must be positive, got %d", w.PlayerID, w.Amount)
		}
		winnerTotal += w.Amount
	}

	var contributed int64
	for playerID, amount := range a.Contributions {
		if amount < 0 {
			return fmt.Errorf("contribution for %s must be non-negative, got %d", playerID, amount)
		}
		contributed += amount
	}

	if winnerTotal+a.RakeTotal != contributed {
		return fmt.Errorf("winners %d + rake %d does not equal pot contributions %d",
			winnerTotal, a.RakeTotal, contributed)
	}

	return nil
}

// SettlementRecorder transforms settlement attributions into balanced
// ledger batches. It is the only path by which HAND_SETTLEMENT entries may
// exist.
type SettlementRecorder struct {
	ledger *Ledger
	log    slog.Logger
}

// NewSettlementRecorder creates a recorder writing to the given ledger.
func NewSettlementRecorder(l *Ledger, log slog.Logger) *SettlementRecorder {
	return &SettlementRecorder{ledger: l, log: log}
}

// RecordSettlement writes one balanced batch for a settled hand:
// winner credits first, then rake shares, then balancing player debits for
// the contributions. The batch sums to zero.
func (r *SettlementRecorder) RecordSettlement(attr SettlementAttribution) (Batch, error) {
	if err := attr.Validate(); err != nil {
		return Batch{}, fmt.Errorf("settlement attribution rejected: %w", err)
	}

	inputs := make([]EntryInput, 0, len(attr.PotWinners)+3+len(attr.Contributions))

	for _, w := range attr.PotWinners {
		inputs = append(inputs, EntryInput{
			Source:      SourceHandSettlement,
			Party:       PlayerParty(w.PlayerID),
			Delta:       w.Amount,
			TableID:     attr.TableID,
			ClubID:      attr.ClubID,
			HandID:      attr.HandID,
			Description: fmt.Sprintf("%s pot won", w.PotType),
			Metadata:    map[string]string{"potType": w.PotType},
		})
	}

	if attr.Rake.ClubShare > 0 {
		inputs = append(inputs, EntryInput{
			Source:      SourceHandSettlement,
			Party:       ClubParty(attr.ClubID),
			Delta:       attr.Rake.ClubShare,
			TableID:     attr.TableID,
			ClubID:      attr.ClubID,
			HandID:      attr.HandID,
			Description: "club rake share",
		})
	}
	if attr.Rake.AgentShare > 0 {
		inputs = append(inputs, EntryInput{
			Source:      SourceHandSettlement,
			Party:       AgentParty(attr.Rake.AgentID),
			Delta:       attr.Rake.AgentShare,
			TableID:     attr.TableID,
			ClubID:      attr.ClubID,
			HandID:      attr.HandID,
			Description: "agent rake share",
		})
	}
	if attr.Rake.PlatformShare > 0 {
		inputs = append(inputs, EntryInput{
			Source:      SourceHandSettlement,
			Party:       PlatformParty(),
			Delta:       attr.Rake.PlatformShare,
			TableID:     attr.TableID,
			ClubID:      attr.ClubID,
			HandID:      attr.HandID,
			Description: "platform rake share",
		})
	}

	// Balancing debits, ordered by player id for deterministic batches.
	for _, playerID := range sortedKeys(attr.Contributions) {
		amount := attr.Contributions[playerID]
		if amount == 0 {
			continue
		}
		inputs = append(inputs, EntryInput{
			Source:      SourceHandSettlement,
			Party:       PlayerParty(playerID),
			Delta:       -amount,
			TableID:     attr.TableID,
			ClubID:      attr.ClubID,
			HandID:      attr.HandID,
			Description: "pot contribution",
		})
	}

	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	batch, err := r.ledger.appendBatchLocked(inputs)
	if err != nil {
		return Batch{}, fmt.Errorf("record settlement for hand %s: %w", attr.HandID, err)
	}

	r.log.Debugf("recorded settlement for hand %s: %d entries", attr.HandID, len(batch.EntryIDs))
	return batch, nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
