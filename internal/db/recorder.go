package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/phantom/internal/terminal"
)

// Recorder stores the lifecycle of terminal sessions in the sessions table.
// Runtime session ids restart with every process, so each session gets its
// own row id and the mapping is kept in memory.
type Recorder struct {
	repo *SessionRepo
	mu   sync.Mutex
	rows map[uint64]string
}

func NewRecorder(repo *SessionRepo) *Recorder {
	return &Recorder{repo: repo, rows: make(map[uint64]string)}
}

func (r *Recorder) SessionStarted(ctx context.Context, rec terminal.Record) error {
	s := &Session{
		SessionID:  rec.ID,
		Command:    rec.Command,
		WorkingDir: rec.WorkingDir,
		Cols:       int(rec.Cols),
		Rows:       int(rec.Rows),
		Sandboxed:  rec.Sandboxed,
		Status:     StatusRunning,
		CreatedAt:  rec.CreatedAt,
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return err
	}
	r.mu.Lock()
	r.rows[rec.ID] = s.ID
	r.mu.Unlock()
	return nil
}

func (r *Recorder) SessionTitle(ctx context.Context, id uint64, title string) error {
	row, err := r.row(id)
	if err != nil {
		return err
	}
	return r.repo.SetTitle(ctx, row, title)
}

func (r *Recorder) SessionExited(ctx context.Context, id uint64, code *int) error {
	row, err := r.row(id)
	if err != nil {
		return err
	}
	return r.repo.MarkExited(ctx, row, code, nowUTC())
}

func (r *Recorder) SessionClosed(ctx context.Context, id uint64) error {
	row, err := r.row(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.rows, id)
	r.mu.Unlock()
	return r.repo.MarkClosed(ctx, row, nowUTC())
}

func (r *Recorder) row(id uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return "", fmt.Errorf("no record for session %d", id)
	}
	return row, nil
}
