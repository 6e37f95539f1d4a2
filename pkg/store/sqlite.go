package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pokercore/holdemd/pkg/ledger"
)

// ArchiveDB mirrors ledger entries into sqlite for offline audit queries.
// It is strictly a read model: nothing written here ever flows back into
// the ledger, and archiving failures never affect the chain.
type ArchiveDB struct {
	*sql.DB
}

// NewArchiveDB opens (or creates) the archive database.
func NewArchiveDB(dbPath string) (*ArchiveDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &ArchiveDB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			sequence INTEGER PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			party_type TEXT NOT NULL,
			party_id TEXT,
			delta INTEGER NOT NULL,
			state_version INTEGER NOT NULL,
			table_id TEXT,
			club_id TEXT,
			hand_id TEXT,
			description TEXT,
			metadata TEXT,
			checksum TEXT NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS party_balances (
			party_key TEXT PRIMARY KEY,
			party_type TEXT NOT NULL,
			party_id TEXT,
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// ArchiveEntry appends one ledger entry to the archive and refreshes the
// party's derived balance.
func (db *ArchiveDB) ArchiveEntry(entry ledger.Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal entry metadata: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO ledger_entries
			(sequence, entry_id, source, party_type, party_id, delta,
			 state_version, table_id, club_id, hand_id, description, metadata, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Sequence, entry.EntryID, string(entry.Source),
		string(entry.Party.Type), entry.Party.ID, entry.Delta,
		entry.StateVersion, entry.TableID, entry.ClubID, entry.HandID,
		entry.Description, string(metadata), entry.Checksum.String())
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO party_balances (party_key, party_type, party_id, balance, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(party_key) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = CURRENT_TIMESTAMP
	`, entry.Party.Key(), string(entry.Party.Type), entry.Party.ID, entry.Delta)
	if err != nil {
		return fmt.Errorf("update party balance: %w", err)
	}

	return tx.Commit()
}

// ArchiveAll mirrors every entry past the archive's high-water mark.
func (db *ArchiveDB) ArchiveAll(l *ledger.Ledger) error {
	var highWater uint64
	err := db.QueryRow(`SELECT COALESCE(MAX(sequence), 0) FROM ledger_entries`).Scan(&highWater)
	if err != nil {
		return fmt.Errorf("read archive high-water mark: %w", err)
	}

	for _, entry := range l.Entries() {
		if entry.Sequence <= highWater {
			continue
		}
		if err := db.ArchiveEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// PartyBalance returns the archived balance for a party key.
func (db *ArchiveDB) PartyBalance(partyKey string) (int64, error) {
	var balance int64
	err := db.QueryRow(`SELECT balance FROM party_balances WHERE party_key = ?`, partyKey).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read party balance: %w", err)
	}
	return balance, nil
}

// EntriesForHand returns the archived entry ids for one hand, in sequence
// order.
func (db *ArchiveDB) EntriesForHand(handID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT entry_id FROM ledger_entries WHERE hand_id = ? ORDER BY sequence
	`, handID)
	if err != nil {
		return nil, fmt.Errorf("query hand entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EntryCount returns the number of archived entries.
func (db *ArchiveDB) EntryCount() (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries`).Scan(&count)
	return count, err
}
