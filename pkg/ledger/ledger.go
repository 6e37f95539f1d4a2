package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/slog"
	"github.com/google/uuid"
)

// idNamespace scopes deterministic entry and batch ids. Derived ids keep
// replays bit-identical: the same sequence always maps to the same id.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("holdemd/ledger"))

// DeterministicEntryID derives the entry id for a sequence number.
func DeterministicEntryID(sequence uint64) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("entry/%d", sequence))).String()
}

// DeterministicBatchID derives the batch id for the first sequence it covers.
func DeterministicBatchID(firstSequence uint64) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("batch/%d", firstSequence))).String()
}

// Clock supplies entry timestamps. Timestamps annotate entries only; they
// are excluded from canonical content so replay stays deterministic.
type Clock func() time.Time

// Config holds configuration for a new ledger.
type Config struct {
	Log   slog.Logger
	Clock Clock
}

// Ledger is an append-only, hash-chained log of chip movements. Append is
// the only mutation; the append path is serialized because a deployment may
// share one ledger across tables.
type Ledger struct {
	mu sync.Mutex

	entries      []Entry
	balances     map[string]int64
	fingerprints []attributionFingerprint
	stateVersion uint64
	head         chainhash.Hash

	clock Clock
	log   slog.Logger
}

// New creates an empty ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("ledger: log is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		balances: make(map[string]int64),
		head:     GenesisChecksum(),
		clock:    clock,
		log:      cfg.Log,
	}, nil
}

// Append validates and appends a single external-origin entry. Settlement
// entries are refused here; they exist only through the settlement
// recorder.
func (l *Ledger) Append(input EntryInput) (Entry, error) {
	if input.Source == SourceHandSettlement {
		return Entry{}, fmt.Errorf("HAND_SETTLEMENT entries may only be written by the settlement recorder")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(input, l.stateVersion+1)
}

// AppendBatch atomically appends a group of entries: either every input is
// valid and the batch lands whole, or the ledger is untouched.
func (l *Ledger) AppendBatch(inputs []EntryInput) (Batch, error) {
	for _, input := range inputs {
		if input.Source == SourceHandSettlement {
			return Batch{}, fmt.Errorf("HAND_SETTLEMENT entries may only be written by the settlement recorder")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendBatchLocked(inputs)
}

// appendBatchLocked is shared by AppendBatch and the settlement recorder.
func (l *Ledger) appendBatchLocked(inputs []EntryInput) (Batch, error) {
	if len(inputs) == 0 {
		return Batch{}, fmt.Errorf("batch must contain at least one entry")
	}

	for i, input := range inputs {
		if err := input.validate(); err != nil {
			return Batch{}, fmt.Errorf("batch entry %d: %w", i, err)
		}
	}

	// The whole batch settles at once, so the balance floor is checked on
	// the aggregate effect per party, not per entry.
	effect := make(map[string]int64)
	for _, input := range inputs {
		effect[input.Party.Key()] += input.Delta
	}
	for key, delta := range effect {
		if l.balances[key]+delta < 0 {
			return Batch{}, fmt.Errorf("batch would drive %s balance below zero (%d%+d)",
				key, l.balances[key], delta)
		}
	}

	version := l.stateVersion + 1
	firstSeq := uint64(len(l.entries)) + 1

	written := make([]Entry, 0, len(inputs))
	for _, input := range inputs {
		entry, err := l.appendLocked(input, version)
		if err != nil {
			// Validation above makes this unreachable; surface loudly if not.
			return Batch{}, fmt.Errorf("batch append after validation: %w", err)
		}
		written = append(written, entry)
	}

	batch := Batch{
		BatchID:  DeterministicBatchID(firstSeq),
		EntryIDs: make([]string, len(written)),
		Checksum: batchChecksum(written),
	}
	for i, e := range written {
		batch.EntryIDs[i] = e.EntryID
	}

	l.log.Debugf("appended batch %s with %d entries", batch.BatchID, len(written))
	return batch, nil
}

// appendLocked assigns sequence, id, version and checksum, then appends.
func (l *Ledger) appendLocked(input EntryInput, version uint64) (Entry, error) {
	if err := input.validate(); err != nil {
		return Entry{}, err
	}

	key := input.Party.Key()
	if l.balances[key]+input.Delta < 0 {
		return Entry{}, fmt.Errorf("entry would drive %s balance below zero (%d%+d)",
			key, l.balances[key], input.Delta)
	}

	sequence := uint64(len(l.entries)) + 1
	entry := Entry{
		EntryID:      DeterministicEntryID(sequence),
		Sequence:     sequence,
		Timestamp:    l.clock(),
		Source:       input.Source,
		Party:        input.Party,
		Delta:        input.Delta,
		StateVersion: version,
		TableID:      input.TableID,
		ClubID:       input.ClubID,
		HandID:       input.HandID,
		Description:  input.Description,
		Metadata:     make(map[string]string, len(input.Metadata)),
	}
	for k, v := range input.Metadata {
		entry.Metadata[k] = v
	}
	entry.Checksum = chainChecksum(l.head, entry)

	l.entries = append(l.entries, entry)
	l.balances[key] += input.Delta
	l.fingerprints = append(l.fingerprints, attributionFingerprint{
		sequence: entry.Sequence,
		party:    entry.Party,
		source:   entry.Source,
		delta:    entry.Delta,
	})
	l.head = entry.Checksum
	l.stateVersion = version

	l.log.Debugf("ledger entry %d: %s %s %+d", entry.Sequence, entry.Source, key, entry.Delta)
	return entry.clone(), nil
}

// Entries returns a copy of all entries in sequence order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		entries[i] = e.clone()
	}
	return entries
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Balance returns the derived balance for a party.
func (l *Ledger) Balance(party Party) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[party.Key()]
}

// StateVersion returns the current state version. The ledger owns the
// counter; callers treat it as opaque.
func (l *Ledger) StateVersion() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateVersion
}

// ChainHead returns the checksum of the latest entry, or the genesis seed
// for an empty ledger.
func (l *Ledger) ChainHead() chainhash.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// IntegrityReport is the result of walking and recomputing the hash chain.
type IntegrityReport struct {
	IsValid           bool   `json:"is_valid"`
	VerifiedEntries   int    `json:"verified_entries"`
	FirstFailureIndex int    `json:"first_failure_index"` // -1 when valid
	Cause             string `json:"cause,omitempty"`
}

// VerifyIntegrity recomputes every checksum from the genesis seed and
// reports the first mismatch, if any. It is the sole test authority for
// append-only integrity.
func (l *Ledger) VerifyIntegrity() IntegrityReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := GenesisChecksum()
	for i, e := range l.entries {
		if e.Sequence != uint64(i)+1 {
			return IntegrityReport{
				VerifiedEntries:   i,
				FirstFailureIndex: i,
				Cause:             fmt.Sprintf("entry %d has sequence %d, want %d", i, e.Sequence, i+1),
			}
		}
		want := chainChecksum(prev, e)
		if e.Checksum != want {
			return IntegrityReport{
				VerifiedEntries:   i,
				FirstFailureIndex: i,
				Cause:             fmt.Sprintf("checksum mismatch at sequence %d", e.Sequence),
			}
		}
		prev = e.Checksum
	}

	return IntegrityReport{
		IsValid:           true,
		VerifiedEntries:   len(l.entries),
		FirstFailureIndex: -1,
	}
}

// Export is a read-only snapshot of the ledger, checksummed for transport.
// No import path exists; exports never flow back into a ledger.
type Export struct {
	Version  string         `json:"version"`
	Entries  []Entry        `json:"entries"`
	Head     chainhash.Hash `json:"head"`
	Checksum chainhash.Hash `json:"checksum"`
}

// ExportVersion tags the export payload format.
const ExportVersion = "holdemd-ledger-export/1"

// Export computes a read-only export of the current ledger contents.
func (l *Ledger) Export() Export {
	entries := l.Entries()

	l.mu.Lock()
	head := l.head
	l.mu.Unlock()

	return Export{
		Version:  ExportVersion,
		Entries:  entries,
		Head:     head,
		Checksum: batchChecksum(entries),
	}
}

// VerifyExport checks an export payload's content checksum.
func VerifyExport(ex Export) error {
	if ex.Version != ExportVersion {
		return fmt.Errorf("unknown export version: %s", ex.Version)
	}
	prev := GenesisChecksum()
	for _, e := range ex.Entries {
		if chainChecksum(prev, e) != e.Checksum {
			return fmt.Errorf("export entry %d does not match its checksum", e.Sequence)
		}
		prev = e.Checksum
	}
	if prev != ex.Head {
		return fmt.Errorf("export head mismatch")
	}
	if got := batchChecksum(ex.Entries); got != ex.Checksum {
		return fmt.Errorf("export checksum mismatch")
	}
	return nil
}

// corruptEntryForTest overwrites a stored entry in place. Test-only hook
// used to prove that verification detects tampering.
func (l *Ledger) corruptEntryForTest(index int, mutate func(*Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mutate(&l.entries[index])
}
