package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	StatusRunning = "running"
	StatusExited  = "exited"
	StatusClosed  = "closed"
	// StatusLost marks sessions left running by a previous server process.
	StatusLost = "lost"
)

// Session is the durable record of one terminal session.
type Session struct {
	ID         string     `json:"id"`
	SessionID  uint64     `json:"session_id"`
	Command    string     `json:"command"`
	WorkingDir string     `json:"working_dir,omitempty"`
	Cols       int        `json:"cols"`
	Rows       int        `json:"rows"`
	Sandboxed  bool       `json:"sandboxed"`
	Title      string     `json:"title,omitempty"`
	Status     string     `json:"status"`
	ExitCode   *int       `json:"exit_code"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

type SessionFilter struct {
	Status string
	Limit  int
}

func NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}

func nullIfEmpty(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
