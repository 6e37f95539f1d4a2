package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// genesisTag seeds the hash chain; the first entry chains from its hash.
const genesisTag = "holdemd/ledger/genesis/v1"

// GenesisChecksum returns the constant seed the first entry chains from.
func GenesisChecksum() chainhash.Hash {
	return chainhash.DoubleHashH([]byte(genesisTag))
}

// canonicalBytes encodes an entry's identity-relevant fields in a fixed
// order with metadata keys sorted. Timestamps and the checksum itself are
// excluded so that two replays of the same command sequence produce
// identical canonical bytes.
func canonicalBytes(e Entry) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "entry_id=%q\n", e.EntryID)
	fmt.Fprintf(&b, "sequence=%d\n", e.Sequence)
	fmt.Fprintf(&b, "source=%q\n", string(e.Source))
	fmt.Fprintf(&b, "party=%q\n", e.Party.Key())
	fmt.Fprintf(&b, "delta=%d\n", e.Delta)
	fmt.Fprintf(&b, "state_version=%d\n", e.StateVersion)
	fmt.Fprintf(&b, "table_id=%q\n", e.TableID)
	fmt.Fprintf(&b, "club_id=%q\n", e.ClubID)
	fmt.Fprintf(&b, "hand_id=%q\n", e.HandID)
	fmt.Fprintf(&b, "description=%q\n", e.Description)

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "meta.%q=%q\n", k, e.Metadata[k])
	}

	return []byte(b.String())
}

// chainChecksum computes H(prev || canonical(entry)) with the frozen chain
// hash.
func chainChecksum(prev chainhash.Hash, e Entry) chainhash.Hash {
	payload := make([]byte, 0, chainhash.HashSize+256)
	payload = append(payload, prev[:]...)
	payload = append(payload, canonicalBytes(e)...)
	return chainhash.DoubleHashH(payload)
}

// batchChecksum chains over the checksums of the batch's entries.
func batchChecksum(entries []Entry) chainhash.Hash {
	payload := make([]byte, 0, len(entries)*chainhash.HashSize)
	for _, e := range entries {
		payload = append(payload, e.Checksum[:]...)
	}
	return chainhash.DoubleHashH(payload)
}
