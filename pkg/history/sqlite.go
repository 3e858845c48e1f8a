package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Sink backed by a single SQLite table. Use ":memory:" as
// the path for an ephemeral store (useful in tests).
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and migrates the readings schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: configure database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id TEXT NOT NULL,
		duty INTEGER NOT NULL,
		voltage REAL NOT NULL,
		current_ma REAL NOT NULL,
		power_mw REAL NOT NULL,
		ts DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_readings_node_id ON readings(node_id);
	CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertReading appends one sample. Errors are the caller's to decide
// whether to swallow; Sink implementations used by the controller are
// expected to log-and-continue rather than propagate.
func (s *SQLiteStore) InsertReading(ctx context.Context, nodeID string, duty int, voltage, current, power float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (node_id, duty, voltage, current_ma, power_mw) VALUES (?, ?, ?, ?, ?)`,
		nodeID, duty, voltage, current, power)
	return err
}

// Recent returns the most recent readings for nodeID, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, nodeID string, limit int) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, duty, voltage, current_ma, power_mw, ts FROM readings
		 WHERE node_id = ? ORDER BY ts DESC, id DESC LIMIT ?`, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.NodeID, &r.Duty, &r.Voltage, &r.Current, &r.Power, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
