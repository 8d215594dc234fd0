package store

import "fmt"

// Store aggregates every repository over a single ottoHome/data directory.
// It is passed explicitly to the scheduler, executor, outbound processor,
// and HTTP server constructors rather than held as process-global state.
type Store struct {
	Jobs        *JobRepository
	RunSessions *RunSessionRepository
	Outbound    *OutboundRepository
	Profile     *ProfileRepository
	Bindings    *BindingRepository
	Audit       *AuditRepository
}

// NewStore wires repositories rooted at dataDir; call Load to read
// persisted state before use.
func NewStore(dataDir string) *Store {
	return &Store{
		Jobs:        NewJobRepository(dataDir),
		RunSessions: NewRunSessionRepository(dataDir),
		Outbound:    NewOutboundRepository(dataDir),
		Profile:     NewProfileRepository(dataDir),
		Bindings:    NewBindingRepository(dataDir),
		Audit:       NewAuditRepository(dataDir),
	}
}

// Load reads every repository's persisted file. Safe to call once at
// startup; each repository tolerates a missing file as "empty".
func (s *Store) Load() error {
	if err := s.Jobs.Load(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.RunSessions.Load(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.Outbound.Load(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.Profile.Load(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.Bindings.Load(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := s.Audit.Load(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
