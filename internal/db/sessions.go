package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SessionRecord struct {
	ID        string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Source    string     `json:"source"`
}

func (db *DB) RecordSessionStart(ctx context.Context, id, source string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at, source) VALUES (?, ?, ?)`,
		id, at.UTC(), source)
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

func (db *DB) RecordSessionStop(ctx context.Context, id string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sessions SET stopped_at = ? WHERE session_id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record session stop: %w", err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, started_at, stopped_at, source FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var stopped sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &stopped, &r.Source); err != nil {
			return nil, err
		}
		if stopped.Valid {
			t := stopped.Time
			r.StoppedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
