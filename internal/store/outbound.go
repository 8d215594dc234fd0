package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// EnqueueResult reports whether an enqueue call actually inserted a row.
type EnqueueResult string

const (
	EnqueueInserted EnqueueResult = "enqueued"
	EnqueueDuplicate EnqueueResult = "duplicate"
)

// OutboundRepository persists OutboundMessage rows with dedupe-key
// uniqueness enforcement.
type OutboundRepository struct {
	path string

	mu       sync.RWMutex
	messages map[string]OutboundMessage // keyed by ID
	byDedupe map[string]string          // dedupeKey -> ID
}

func NewOutboundRepository(dir string) *OutboundRepository {
	return &OutboundRepository{
		path:     filepath.Join(dir, "outbound.json"),
		messages: make(map[string]OutboundMessage),
		byDedupe: make(map[string]string),
	}
}

func (r *OutboundRepository) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := loadJSONSlice[OutboundMessage](r.path)
	if err != nil {
		return fmt.Errorf("load outbound: %w", err)
	}
	r.messages = make(map[string]OutboundMessage, len(rows))
	r.byDedupe = make(map[string]string, len(rows))
	for _, m := range rows {
		r.messages[m.ID] = m
		if m.DedupeKey != nil {
			r.byDedupe[*m.DedupeKey] = m.ID
		}
	}
	return nil
}

func (r *OutboundRepository) saveLocked() error {
	rows := make([]OutboundMessage, 0, len(r.messages))
	for _, m := range r.messages {
		rows = append(rows, m)
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].CreatedAt < rows[k].CreatedAt })
	return writeJSONAtomic(r.path, rows)
}

// Enqueue unconditionally inserts record, ignoring any dedupe key collision
// semantics (callers that need dedupe protection use EnqueueOrIgnoreDedupe).
func (r *OutboundRepository) Enqueue(record OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[record.ID] = record
	if record.DedupeKey != nil {
		r.byDedupe[*record.DedupeKey] = record.ID
	}
	return r.saveLocked()
}

// EnqueueOrIgnoreDedupe inserts record unless its dedupeKey already exists.
func (r *OutboundRepository) EnqueueOrIgnoreDedupe(record OutboundMessage) (EnqueueResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.DedupeKey != nil {
		if _, exists := r.byDedupe[*record.DedupeKey]; exists {
			return EnqueueDuplicate, nil
		}
	}

	r.messages[record.ID] = record
	if record.DedupeKey != nil {
		r.byDedupe[*record.DedupeKey] = record.ID
	}
	if err := r.saveLocked(); err != nil {
		return "", err
	}
	return EnqueueInserted, nil
}

// ListDue returns queued messages due at t, ordered by nextAttemptAt then
// insertion order.
func (r *OutboundRepository) ListDue(t int64) []OutboundMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []OutboundMessage
	for _, m := range r.messages {
		if m.IsDue(t) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].NextAttemptAt != due[k].NextAttemptAt {
			return due[i].NextAttemptAt < due[k].NextAttemptAt
		}
		return due[i].CreatedAt < due[k].CreatedAt
	})
	return due
}

// MarkSent finalizes a message as delivered.
func (r *OutboundRepository) MarkSent(id string, attemptCount int, sentAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("outbound message not found: %s", id)
	}
	m.Status = OutboundSent
	m.AttemptCount = attemptCount
	m.SentAt = &sentAt
	m.UpdatedAt = sentAt
	r.messages[id] = m
	return r.saveLocked()
}

// MarkRetry schedules another delivery attempt.
func (r *OutboundRepository) MarkRetry(id string, attemptCount int, nextAttemptAt int64, errorMessage string, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("outbound message not found: %s", id)
	}
	m.Status = OutboundQueued
	m.AttemptCount = attemptCount
	m.NextAttemptAt = nextAttemptAt
	m.ErrorMessage = &errorMessage
	m.UpdatedAt = now
	r.messages[id] = m
	return r.saveLocked()
}

// MarkFailed finalizes a message as permanently undeliverable.
func (r *OutboundRepository) MarkFailed(id string, attemptCount int, errorMessage string, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("outbound message not found: %s", id)
	}
	m.Status = OutboundFailed
	m.AttemptCount = attemptCount
	m.ErrorMessage = &errorMessage
	m.FailedAt = &now
	m.UpdatedAt = now
	r.messages[id] = m
	return r.saveLocked()
}

// GetByID returns a message by id.
func (r *OutboundRepository) GetByID(id string) (OutboundMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	return m, ok
}
