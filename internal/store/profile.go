package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// ProfileRepository persists the singleton UserProfile record.
type ProfileRepository struct {
	path string

	mu      sync.RWMutex
	profile *UserProfile
}

func NewProfileRepository(dir string) *ProfileRepository {
	return &ProfileRepository{path: filepath.Join(dir, "profile.json")}
}

func (r *ProfileRepository) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read profile: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var p UserProfile
	if err := sonic.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal profile: %w", err)
	}
	r.profile = &p
	return nil
}

func (r *ProfileRepository) saveLocked() error {
	return writeJSONAtomic(r.path, r.profile)
}

// Get returns the profile, or a zero-value default if none is persisted
// yet (resolveEffectiveProfile is responsible for filling in defaults).
func (r *ProfileRepository) Get() UserProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.profile == nil {
		return UserProfile{}
	}
	return *r.profile
}

// Upsert replaces the stored profile wholesale.
func (r *ProfileRepository) Upsert(record UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = &record
	return r.saveLocked()
}

// SetMuteUntil updates only the muteUntil field.
func (r *ProfileRepository) SetMuteUntil(muteUntil *int64, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profile == nil {
		r.profile = &UserProfile{}
	}
	r.profile.MuteUntil = muteUntil
	r.profile.UpdatedAt = updatedAt
	return r.saveLocked()
}

// SetLastDigestAt updates only the lastDigestAt field.
func (r *ProfileRepository) SetLastDigestAt(ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profile == nil {
		r.profile = &UserProfile{}
	}
	r.profile.LastDigestAt = &ts
	r.profile.UpdatedAt = ts
	return r.saveLocked()
}
