package store

import (
	"database/sql"
	"fmt"
)

// schema holds one entry per schema version. Entries are append-only; the
// database's user_version records how many have been applied.
var schema = [][]string{
	// 1: recorded sessions, bindings and settings
	{
		`CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			ticks INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,
		// hands seen in each processed tick, as JSON
		`CREATE TABLE ticks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			timestamp_ns INTEGER NOT NULL,
			hands TEXT NOT NULL DEFAULT '[]',
			UNIQUE(session_id, seq)
		)`,
		`CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			timestamp_ns INTEGER NOT NULL,
			kind TEXT NOT NULL,
			hand_ids TEXT NOT NULL DEFAULT '[]',
			magnitude REAL NOT NULL
		)`,
		`CREATE TABLE commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			timestamp_ns INTEGER NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			delta REAL NOT NULL DEFAULT 0,
			target TEXT NOT NULL DEFAULT ''
		)`,
		// overrides of the gesture to command table
		`CREATE TABLE bindings (
			kind TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			scale REAL NOT NULL DEFAULT 1,
			cooldown_ms INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX idx_ticks_session_id ON ticks(session_id)`,
		`CREATE INDEX idx_events_session_id ON events(session_id)`,
		`CREATE INDEX idx_commands_session_id ON commands(session_id)`,
	},
}

// migrate applies the schema versions the database has not seen yet, each
// in its own transaction.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(schema) {
		return fmt.Errorf("schema version %d is newer than this build (%d)", version, len(schema))
	}

	for v := version; v < len(schema); v++ {
		err := s.inTx(func(tx *sql.Tx) error {
			for _, stmt := range schema[v] {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			// PRAGMA does not take bind parameters.
			_, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1))
			return err
		})
		if err != nil {
			return fmt.Errorf("schema version %d: %w", v+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the schema version of the open database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`PRAGMA user_version`).Scan(&v)
	return v, err
}
