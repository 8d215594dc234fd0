package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// BindingRepository maps a binding key (a chat, or a recurring scheduled
// task identity) to a persistent external agent session id, with a reverse
// index from session id to chat id.
type BindingRepository struct {
	path string

	mu             sync.RWMutex
	byKey          map[string]SessionBinding
	sessionToChat  map[string]int64
}

func NewBindingRepository(dir string) *BindingRepository {
	return &BindingRepository{
		path:          filepath.Join(dir, "bindings.json"),
		byKey:         make(map[string]SessionBinding),
		sessionToChat: make(map[string]int64),
	}
}

func (r *BindingRepository) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := loadJSONSlice[SessionBinding](r.path)
	if err != nil {
		return fmt.Errorf("load bindings: %w", err)
	}
	r.byKey = make(map[string]SessionBinding, len(rows))
	r.sessionToChat = make(map[string]int64, len(rows))
	for _, b := range rows {
		r.byKey[b.BindingKey] = b
		if b.ChatID != nil {
			r.sessionToChat[b.SessionID] = *b.ChatID
		}
	}
	return nil
}

func (r *BindingRepository) saveLocked() error {
	rows := make([]SessionBinding, 0, len(r.byKey))
	for _, b := range r.byKey {
		rows = append(rows, b)
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].BindingKey < rows[k].BindingKey })
	return writeJSONAtomic(r.path, rows)
}

// GetByBindingKey returns the session id bound to key, if any.
func (r *BindingRepository) GetByBindingKey(key string) (SessionBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byKey[key]
	return b, ok
}

// Upsert creates or replaces the binding for key.
func (r *BindingRepository) Upsert(binding SessionBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKey[binding.BindingKey] = binding
	if binding.ChatID != nil {
		r.sessionToChat[binding.SessionID] = *binding.ChatID
	}
	return r.saveLocked()
}

// GetTelegramChatIDBySessionID reverse-looks-up the chat a session id was
// bound from.
func (r *BindingRepository) GetTelegramChatIDBySessionID(sessionID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chatID, ok := r.sessionToChat[sessionID]
	return chatID, ok
}
