package snapshot

import (
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/pokercore/holdemd/pkg/engine"
)

// ManagerConfig holds configuration for a snapshot manager.
type ManagerConfig struct {
	Store Store
	Log   slog.Logger

	// MinInterval throttles spurious writes; hand-end and lifecycle
	// transitions always write.
	MinInterval time.Duration

	// Retention bounds versions kept per table; 0 keeps everything.
	Retention int

	Clock func() time.Time
}

// Manager assigns versions, seals checksums and persists snapshots at
// meaningful transitions. A write failure never blocks gameplay; the last
// error is retained for the caller to surface.
type Manager struct {
	mu sync.Mutex

	store       Store
	minInterval time.Duration
	retention   int
	clock       func() time.Time
	log         slog.Logger

	versions  map[string]uint64
	lastWrite map[string]time.Time
	tableIDs  map[string]bool
	lastErr   error
}

// NewManager creates a snapshot manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil || cfg.Log == nil {
		return nil, errConfig
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:       cfg.Store,
		minInterval: cfg.MinInterval,
		retention:   cfg.Retention,
		clock:       clock,
		log:         cfg.Log,
		versions:    make(map[string]uint64),
		lastWrite:   make(map[string]time.Time),
		tableIDs:    make(map[string]bool),
	}, nil
}

var errConfig = &configError{}

type configError struct{}

func (*configError) Error() string { return "snapshot manager: store and log are required" }

// Capture implements engine.SnapshotSink: it versions, seals and persists
// the view. Round-end and player-change captures are throttled by the
// minimum interval; hand-end and lifecycle captures always land.
func (m *Manager) Capture(kind engine.TransitionKind, view engine.TableView) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	throttled := kind == engine.TransitionRoundEnd || kind == engine.TransitionPlayerChange
	if throttled && m.minInterval > 0 {
		if last, ok := m.lastWrite[view.TableID]; ok && now.Sub(last) < m.minInterval {
			return
		}
	}

	m.versions[view.TableID]++
	version := m.versions[view.TableID]

	snap := TableSnapshot{
		SnapshotID:  snapshotID(view.TableID, version),
		Version:     version,
		TableID:     view.TableID,
		Timestamp:   now,
		Kind:        string(kind),
		View:        view,
		HandNumber:  view.HandNumber,
		DealerIndex: view.DealerIndex,
	}
	if view.Hand != nil {
		snap.HandID = view.Hand.HandID
	}

	if err := sealTableSnapshot(&snap); err != nil {
		m.fail(err)
		return
	}
	if err := m.store.SaveTable(snap); err != nil {
		m.fail(err)
		return
	}
	m.lastWrite[view.TableID] = now

	if kind == engine.TransitionHandEnd && view.Hand != nil && view.Hand.Result != nil {
		rec := HandRecord{
			HandID:  view.Hand.HandID,
			TableID: view.TableID,
			Result:  view.Hand.Result,
			SavedAt: now,
		}
		if err := sealHandRecord(&rec); err != nil {
			m.fail(err)
		} else if err := m.store.SaveHand(rec); err != nil {
			m.fail(err)
		}
	}

	if !m.tableIDs[view.TableID] {
		m.tableIDs[view.TableID] = true
		m.saveServerLocked(now)
	}

	m.compactLocked(view.TableID)
}

// FinalSnapshot forces a write regardless of throttling, for shutdown.
func (m *Manager) FinalSnapshot(view engine.TableView) {
	m.Capture(engine.TransitionTableLifecycle, view)
}

func (m *Manager) saveServerLocked(now time.Time) {
	ids := make([]string, 0, len(m.tableIDs))
	for id := range m.tableIDs {
		ids = append(ids, id)
	}
	rec := ServerRecord{TableIDs: ids, Timestamp: now}
	if err := sealServerRecord(&rec); err != nil {
		m.fail(err)
		return
	}
	if err := m.store.SaveServer(rec); err != nil {
		m.fail(err)
	}
}

func (m *Manager) compactLocked(tableID string) {
	if m.retention <= 0 {
		return
	}
	versions, err := m.store.ListTableVersions(tableID)
	if err != nil {
		m.fail(err)
		return
	}
	for len(versions) > m.retention {
		if err := m.store.DeleteTableVersion(tableID, versions[0]); err != nil {
			m.fail(err)
			return
		}
		versions = versions[1:]
	}
}

func (m *Manager) fail(err error) {
	m.lastErr = err
	m.log.Errorf("snapshot write failed: %v", err)
}

// LastError returns the most recent persistence failure, if any. Snapshot
// failures are surfaced here instead of interrupting play.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
