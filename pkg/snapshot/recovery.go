package snapshot

import (
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/pokercore/holdemd/pkg/engine"
)

// RecoveredTable is the reconstructable state of one table after restart:
// its latest snapshot plus the reconnection registry for its players.
type RecoveredTable struct {
	Snapshot TableSnapshot
	Players  []engine.RosterPlayer
}

// pendingReconnect holds a disconnected player's seat and stack until the
// grace deadline.
type pendingReconnect struct {
	player   engine.RosterPlayer
	deadline time.Time
}

// RecoveryConfig holds configuration for a recovery manager.
type RecoveryConfig struct {
	Store Store
	Log   slog.Logger

	// GracePeriod is how long a disconnected player may reconnect to the
	// same seat with the same stack. After it the entry is dropped.
	GracePeriod time.Duration

	Clock func() time.Time
}

// RecoveryManager restores table state from the latest snapshots and
// tracks disconnected-reconnectable players.
type RecoveryManager struct {
	store       Store
	gracePeriod time.Duration
	clock       func() time.Time
	log         slog.Logger

	// pending is keyed by tableID then playerID.
	pending map[string]map[string]pendingReconnect
}

// NewRecoveryManager creates a recovery manager.
func NewRecoveryManager(cfg RecoveryConfig) (*RecoveryManager, error) {
	if cfg.Store == nil || cfg.Log == nil {
		return nil, errConfig
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	return &RecoveryManager{
		store:       cfg.Store,
		gracePeriod: grace,
		clock:       clock,
		log:         cfg.Log,
		pending:     make(map[string]map[string]pendingReconnect),
	}, nil
}

// Recover reads the server record, loads the latest snapshot per table and
// marks every known player disconnected-reconnectable. Corrupt or missing
// snapshots are treated as absent; a hand interrupted mid-flight is
// abandoned and the table resumes between hands with snapshotted stacks.
func (rm *RecoveryManager) Recover() ([]RecoveredTable, error) {
	server, err := rm.store.LoadServer()
	if err != nil {
		return nil, fmt.Errorf("load server record: %w", err)
	}
	if server == nil {
		return nil, nil
	}

	deadline := rm.clock().Add(rm.gracePeriod)

	var recovered []RecoveredTable
	for _, tableID := range server.TableIDs {
		snap, err := rm.store.LoadLatestTable(tableID)
		if err != nil {
			// Corruption is local: skip the table, keep recovering others.
			rm.log.Warnf("skipping table %s: %v", tableID, err)
			continue
		}
		if snap == nil {
			rm.log.Warnf("no snapshot for table %s", tableID)
			continue
		}

		players := make([]engine.RosterPlayer, len(snap.View.Players))
		copy(players, snap.View.Players)

		reg := make(map[string]pendingReconnect, len(players))
		for _, p := range players {
			reg[p.ID] = pendingReconnect{player: p, deadline: deadline}
		}
		rm.pending[tableID] = reg

		recovered = append(recovered, RecoveredTable{Snapshot: *snap, Players: players})
		rm.log.Infof("recovered table %s at version %d with %d players",
			tableID, snap.Version, len(players))
	}

	return recovered, nil
}

// Reconnect restores a player at the same seat with the same stack if the
// grace period has not elapsed. After the deadline the entry is dropped.
func (rm *RecoveryManager) Reconnect(tableID, playerID string) (engine.RosterPlayer, error) {
	reg := rm.pending[tableID]
	entry, ok := reg[playerID]
	if !ok {
		return engine.RosterPlayer{}, fmt.Errorf("no reconnectable entry for player %s at table %s", playerID, tableID)
	}

	if rm.clock().After(entry.deadline) {
		delete(reg, playerID)
		return engine.RosterPlayer{}, fmt.Errorf("grace period elapsed for player %s", playerID)
	}

	delete(reg, playerID)
	rm.log.Infof("player %s reconnected to table %s (seat %d, stack %d)",
		playerID, tableID, entry.player.Seat, entry.player.Stack)
	return entry.player, nil
}

// ExpireStale drops every reconnectable entry past its deadline.
func (rm *RecoveryManager) ExpireStale() {
	now := rm.clock()
	for tableID, reg := range rm.pending {
		for playerID, entry := range reg {
			if now.After(entry.deadline) {
				delete(reg, playerID)
				rm.log.Debugf("dropped stale reconnect entry for %s at %s", playerID, tableID)
			}
		}
	}
}

// PendingCount returns the number of reconnectable players for a table.
func (rm *RecoveryManager) PendingCount(tableID string) int {
	return len(rm.pending[tableID])
}
