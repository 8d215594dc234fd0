package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// RunSessionRepository persists JobRunSession rows: the agent sessions a
// background run used, and their close lifecycle.
type RunSessionRepository struct {
	path string

	mu       sync.RWMutex
	sessions map[string]JobRunSession // keyed by RunID
}

func NewRunSessionRepository(dir string) *RunSessionRepository {
	return &RunSessionRepository{
		path:     filepath.Join(dir, "run_sessions.json"),
		sessions: make(map[string]JobRunSession),
	}
}

func (r *RunSessionRepository) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := loadJSONSlice[JobRunSession](r.path)
	if err != nil {
		return fmt.Errorf("load run sessions: %w", err)
	}
	r.sessions = make(map[string]JobRunSession, len(rows))
	for _, s := range rows {
		r.sessions[s.RunID] = s
	}
	return nil
}

func (r *RunSessionRepository) saveLocked() error {
	rows := make([]JobRunSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].CreatedAt < rows[k].CreatedAt })
	return writeJSONAtomic(r.path, rows)
}

// Insert records a new run-session row at run start.
func (r *RunSessionRepository) Insert(session JobRunSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.RunID] = session
	return r.saveLocked()
}

// MarkClosed closes a run-session, optionally recording a close error that
// did not itself fail the run.
func (r *RunSessionRepository) MarkClosed(runID string, closedAt int64, closeErrorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[runID]
	if !ok {
		return fmt.Errorf("run session not found: %s", runID)
	}
	s.ClosedAt = &closedAt
	s.CloseErrorMessage = closeErrorMessage
	r.sessions[runID] = s
	return r.saveLocked()
}

// ListActiveByJobID returns run-sessions for jobID that have not been
// closed yet (used by background-jobs/cancel to find sessions to stop).
func (r *RunSessionRepository) ListActiveByJobID(jobID string) []JobRunSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []JobRunSession
	for _, s := range r.sessions {
		if s.JobID == jobID && s.ClosedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt < out[k].CreatedAt })
	return out
}

// ListByJobID returns every run-session belonging to jobID.
func (r *RunSessionRepository) ListByJobID(jobID string) []JobRunSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []JobRunSession
	for _, s := range r.sessions {
		if s.JobID == jobID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt < out[k].CreatedAt })
	return out
}
