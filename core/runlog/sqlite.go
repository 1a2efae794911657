package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS iterations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT,
        instance TEXT,
        iteration INTEGER,
        max_difference REAL,
        welfare REAL,
        converged INTEGER,
        ts INTEGER
    );
    CREATE INDEX IF NOT EXISTS iterations_run ON iterations (run_id);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO iterations (run_id, instance, iteration, max_difference, welfare, converged, ts)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Instance, rec.Iteration, rec.MaxDifference, rec.Welfare, rec.Converged, rec.Timestamp.UnixNano())
	return err
}

// Query returns records matching q ordered by time.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT run_id, instance, iteration, max_difference, welfare, converged, ts FROM iterations WHERE 1=1`
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.Instance != "" {
		query += ` AND instance = ?`
		args = append(args, q.Instance)
	}
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var (
			r  Record
			ts int64
		)
		if err := rows.Scan(&r.RunID, &r.Instance, &r.Iteration, &r.MaxDifference, &r.Welfare, &r.Converged, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = unixNano(ts)
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func unixNano(ns int64) time.Time { return time.Unix(0, ns) }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
