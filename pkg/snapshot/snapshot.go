package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/engine"
)

// TableSnapshot is one versioned, checksummed capture of a table runtime.
// Versions are strictly monotonic per table. Snapshots are never mutated;
// compaction discards the oldest beyond the configured retention.
type TableSnapshot struct {
	SnapshotID  string           `json:"snapshot_id"`
	Version     uint64           `json:"version"`
	TableID     string           `json:"table_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Kind        string           `json:"kind"`
	View        engine.TableView `json:"view"`
	HandID      string           `json:"hand_id,omitempty"`
	HandNumber  uint64           `json:"hand_number"`
	DealerIndex int              `json:"dealer_index"`
	Checksum    chainhash.Hash   `json:"checksum"`
}

// HandRecord preserves a completed hand's result for audit.
type HandRecord struct {
	HandID   string             `json:"hand_id"`
	TableID  string             `json:"table_id"`
	Result   *engine.HandResult `json:"result"`
	SavedAt  time.Time          `json:"saved_at"`
	Checksum chainhash.Hash     `json:"checksum"`
}

// ServerRecord tracks the set of live tables for recovery.
type ServerRecord struct {
	TableIDs  []string       `json:"table_ids"`
	Timestamp time.Time      `json:"timestamp"`
	Checksum  chainhash.Hash `json:"checksum"`
}

// snapshotNamespace derives deterministic snapshot ids.
var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("holdemd/snapshots"))

func snapshotID(tableID string, version uint64) string {
	return uuid.NewSHA1(snapshotNamespace, []byte(fmt.Sprintf("%s/%d", tableID, version))).String()
}

// contentChecksum hashes a record with its checksum field zeroed. Every
// persisted record is verified against this on load.
func contentChecksum(v interface{}) (chainhash.Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("marshal for checksum: %w", err)
	}
	return chainhash.DoubleHashH(data), nil
}

// sealTableSnapshot computes and stamps the snapshot's content checksum.
func sealTableSnapshot(snap *TableSnapshot) error {
	snap.Checksum = chainhash.Hash{}
	sum, err := contentChecksum(snap)
	if err != nil {
		return err
	}
	snap.Checksum = sum
	return nil
}

// verifyTableSnapshot recomputes the content checksum and compares.
func verifyTableSnapshot(snap TableSnapshot) error {
	stored := snap.Checksum
	snap.Checksum = chainhash.Hash{}
	sum, err := contentChecksum(&snap)
	if err != nil {
		return err
	}
	if sum != stored {
		return corruptionError(snap.TableID, snap.Version, "")
	}
	return nil
}

func sealHandRecord(rec *HandRecord) error {
	rec.Checksum = chainhash.Hash{}
	sum, err := contentChecksum(rec)
	if err != nil {
		return err
	}
	rec.Checksum = sum
	return nil
}

func verifyHandRecord(rec HandRecord) error {
	stored := rec.Checksum
	rec.Checksum = chainhash.Hash{}
	sum, err := contentChecksum(&rec)
	if err != nil {
		return err
	}
	if sum != stored {
		return corruptionError(rec.TableID, 0, rec.HandID)
	}
	return nil
}

func sealServerRecord(rec *ServerRecord) error {
	rec.Checksum = chainhash.Hash{}
	sum, err := contentChecksum(rec)
	if err != nil {
		return err
	}
	rec.Checksum = sum
	return nil
}

func verifyServerRecord(rec ServerRecord) error {
	stored := rec.Checksum
	rec.Checksum = chainhash.Hash{}
	sum, err := contentChecksum(&rec)
	if err != nil {
		return err
	}
	if sum != stored {
		return corruptionError("server", 0, "")
	}
	return nil
}

// CorruptionError reports a checksum mismatch on load, anchored to the
// domain error it was built from. Callers treat the corrupt record as
// absent.
type CorruptionError struct {
	TableID string
	Version uint64
	HandID  string
	Cause   error
}

// corruptionError builds a CorruptionError over a coded domain error.
func corruptionError(tableID string, version uint64, handID string) *CorruptionError {
	e := &CorruptionError{TableID: tableID, Version: version, HandID: handID}
	e.Cause = domain.ErrSnapshotCorrupt(e.describe())
	return e
}

func (e *CorruptionError) describe() string {
	if e.HandID != "" {
		return fmt.Sprintf("hand %s of table %s", e.HandID, e.TableID)
	}
	return fmt.Sprintf("table %s version %d", e.TableID, e.Version)
}

func (e *CorruptionError) Error() string {
	return "snapshot corruption: " + e.describe()
}

func (e *CorruptionError) Unwrap() error { return e.Cause }

// Store persists snapshots. The memory variant serves tests; the
// filesystem variant lays records out under a base path.
type Store interface {
	SaveTable(snap TableSnapshot) error
	LoadLatestTable(tableID string) (*TableSnapshot, error)
	ListTableVersions(tableID string) ([]uint64, error)
	DeleteTableVersion(tableID string, version uint64) error

	SaveHand(rec HandRecord) error
	LoadHand(tableID, handID string) (*HandRecord, error)

	SaveServer(rec ServerRecord) error
	LoadServer() (*ServerRecord, error)
}
