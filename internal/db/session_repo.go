package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, session_id, command, working_dir, cols, rows, sandboxed, title, status, exit_code, created_at, ended_at`

func (r *SessionRepo) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		session.ID = id
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = nowUTC()
	}
	if session.Status == "" {
		session.Status = StatusRunning
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, session.ID, int64(session.SessionID), session.Command, session.WorkingDir, session.Cols, session.Rows,
		boolToInt(session.Sandboxed), session.Title, session.Status, nullInt(session.ExitCode),
		formatTimestamp(session.CreatedAt), endedAtValue(session.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %q: %w", id, err)
	}
	return s, nil
}

func (r *SessionRepo) List(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []any{}
	where := []string{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepo) SetTitle(ctx context.Context, id, title string) error {
	return r.update(ctx, id, `UPDATE sessions SET title = ? WHERE id = ?`, title, id)
}

// MarkExited records the child's exit. code is nil when the exit status is
// unknown.
func (r *SessionRepo) MarkExited(ctx context.Context, id string, code *int, at time.Time) error {
	return r.update(ctx, id, `
UPDATE sessions SET status = ?, exit_code = ?, ended_at = ?
WHERE id = ?
`, StatusExited, nullInt(code), formatTimestamp(at), id)
}

// MarkClosed records an explicit close. A session that already exited keeps
// its exit status.
func (r *SessionRepo) MarkClosed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, ended_at = ?
WHERE id = ? AND status = ?
`, StatusClosed, formatTimestamp(at), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to close session %q: %w", id, err)
	}
	return nil
}

// MarkLost flags every running session as lost. It is called once at
// startup, before any session of the new process exists.
func (r *SessionRepo) MarkLost(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, ended_at = ?
WHERE status = ?
`, StatusLost, formatTimestamp(nowUTC()), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark lost sessions: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes ended sessions created before cutoff.
func (r *SessionRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM sessions WHERE status != ? AND created_at < ?
`, StatusRunning, formatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %q: %w", id, err)
	}
	return nil
}

func (r *SessionRepo) update(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for session %q: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var sessionID int64
	var sandboxed int
	var exitCode sql.NullInt64
	var createdAtRaw string
	var endedAtRaw sql.NullString

	if err := row.Scan(&s.ID, &sessionID, &s.Command, &s.WorkingDir, &s.Cols, &s.Rows, &sandboxed,
		&s.Title, &s.Status, &exitCode, &createdAtRaw, &endedAtRaw); err != nil {
		return nil, err
	}
	s.SessionID = uint64(sessionID)
	s.Sandboxed = sandboxed != 0
	if exitCode.Valid {
		code := int(exitCode.Int64)
		s.ExitCode = &code
	}

	var err error
	s.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	if endedAtRaw.Valid {
		ended, err := parseTimestamp(endedAtRaw.String)
		if err != nil {
			return nil, err
		}
		s.EndedAt = &ended
	}
	return &s, nil
}

func endedAtValue(ts *time.Time) sql.NullString {
	if ts == nil {
		return sql.NullString{}
	}
	return nullIfEmpty(formatTimestamp(*ts))
}
