package sink

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/xenoscope/golmr/pkg/acquire"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	channel        INTEGER NOT NULL,
	timestamp      INTEGER NOT NULL,
	capacitance_pf REAL    NOT NULL,
	samples        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_channel_ts ON readings(channel, timestamp);
`

// SQLite persists readings into a local SQLite database, one row per
// reading, for later time-series queries.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the database at path and ensures
// the readings schema exists.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// WriteCycle implements acquire.Sink. The cycle's readings are inserted in
// one transaction so a partial cycle never lands in the table.
func (s *SQLite) WriteCycle(cycle acquire.Cycle) error {
	if len(cycle.Readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO readings (channel, timestamp, capacitance_pf, samples) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range cycle.Readings {
		if _, err := stmt.Exec(r.Channel, r.Timestamp, r.Capacitance, r.Samples); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit readings: %w", err)
	}
	return nil
}

// Latest returns the most recent reading per requested channel, newest first.
func (s *SQLite) Latest(channel, limit int) ([]acquire.Reading, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.Query(
		`SELECT channel, timestamp, capacitance_pf, samples FROM readings WHERE channel = ? ORDER BY timestamp DESC LIMIT ?`,
		channel, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []acquire.Reading
	for rows.Next() {
		var r acquire.Reading
		if err := rows.Scan(&r.Channel, &r.Timestamp, &r.Capacitance, &r.Samples); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
