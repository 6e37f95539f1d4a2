package ledger

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Source identifies the origin of a chip movement.
type Source string

const (
	SourceHandSettlement Source = "HAND_SETTLEMENT"
	SourceTopUp          Source = "TOP_UP"
	SourceAdminCredit    Source = "ADMIN_CREDIT"
)

// PartyType identifies which kind of party an entry credits or debits.
type PartyType string

const (
	PartyPlayer   PartyType = "PLAYER"
	PartyClub     PartyType = "CLUB"
	PartyAgent    PartyType = "AGENT"
	PartyPlatform PartyType = "PLATFORM"
)

// Party is the tagged attribution target of an entry. PLATFORM carries no id.
type Party struct {
	Type PartyType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// PlayerParty returns the attribution target for a player.
func PlayerParty(id string) Party { return Party{Type: PartyPlayer, ID: id} }

// ClubParty returns the attribution target for a club.
func ClubParty(id string) Party { return Party{Type: PartyClub, ID: id} }

// AgentParty returns the attribution target for an agent.
func AgentParty(id string) Party { return Party{Type: PartyAgent, ID: id} }

// PlatformParty returns the attribution target for the platform.
func PlatformParty() Party { return Party{Type: PartyPlatform} }

// Key returns a stable map key for the party.
func (p Party) Key() string {
	if p.ID == "" {
		return string(p.Type)
	}
	return string(p.Type) + ":" + p.ID
}

// String implements fmt.Stringer.
func (p Party) String() string { return p.Key() }

// validate checks the party shape.
func (p Party) validate() error {
	switch p.Type {
	case PartyPlayer, PartyClub, PartyAgent:
		if p.ID == "" {
			return fmt.Errorf("%s party requires an id", p.Type)
		}
	case PartyPlatform:
		if p.ID != "" {
			return fmt.Errorf("PLATFORM party must not carry an id")
		}
	default:
		return fmt.Errorf("unknown party type: %s", p.Type)
	}
	return nil
}

// Entry is one immutable chip movement. Once appended it never changes;
// the checksum chains over the previous entry's checksum and this entry's
// canonical content.
type Entry struct {
	EntryID      string            `json:"entry_id"`
	Sequence     uint64            `json:"sequence"`
	Timestamp    time.Time         `json:"timestamp"`
	Source       Source            `json:"source"`
	Party        Party             `json:"affected_party"`
	Delta        int64             `json:"delta"`
	StateVersion uint64            `json:"state_version"`
	TableID      string            `json:"table_id,omitempty"`
	ClubID       string            `json:"club_id,omitempty"`
	HandID       string            `json:"hand_id,omitempty"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Checksum     chainhash.Hash    `json:"checksum"`
}

// clone returns a deep copy so callers can never reach into stored state.
func (e Entry) clone() Entry {
	cp := e
	cp.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}

// EntryInput is the caller-supplied portion of an entry. Sequence,
// timestamp, state version and checksum are assigned on append.
type EntryInput struct {
	Source      Source
	Party       Party
	Delta       int64
	TableID     string
	ClubID      string
	HandID      string
	Description string
	Metadata    map[string]string
}

func (in EntryInput) validate() error {
	switch in.Source {
	case SourceHandSettlement, SourceTopUp, SourceAdminCredit:
	default:
		return fmt.Errorf("unknown entry source: %s", in.Source)
	}
	if err := in.Party.validate(); err != nil {
		return err
	}
	if in.Delta == 0 {
		return fmt.Errorf("entry delta must be non-zero")
	}
	return nil
}

// Batch groups entries written atomically for one logical event.
type Batch struct {
	BatchID  string         `json:"batch_id"`
	EntryIDs []string       `json:"entry_ids"`
	Checksum chainhash.Hash `json:"checksum"`
}

// attributionFingerprint is the immutable identity of an entry captured at
// append time; the invariant checker compares live entries against it.
type attributionFingerprint struct {
	sequence uint64
	party    Party
	source   Source
	delta    int64
}
