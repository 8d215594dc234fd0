package api

import (
	"context"
	"testing"

	"github.com/marcomuellner/otto/internal/store"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	dir := t.TempDir()

	jobs := store.NewJobRepository(dir)
	if err := jobs.Load(); err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	runSessions := store.NewRunSessionRepository(dir)
	if err := runSessions.Load(); err != nil {
		t.Fatalf("load run sessions: %v", err)
	}
	outboundRepo := store.NewOutboundRepository(dir)
	if err := outboundRepo.Load(); err != nil {
		t.Fatalf("load outbound: %v", err)
	}
	profile := store.NewProfileRepository(dir)
	if err := profile.Load(); err != nil {
		t.Fatalf("load profile: %v", err)
	}
	bindings := store.NewBindingRepository(dir)
	if err := bindings.Load(); err != nil {
		t.Fatalf("load bindings: %v", err)
	}
	audit := store.NewAuditRepository(dir)
	if err := audit.Load(); err != nil {
		t.Fatalf("load audit: %v", err)
	}

	return &Deps{
		Jobs:        jobs,
		Outbound:    outboundRepo,
		Profile:     profile,
		Bindings:    bindings,
		RunSessions: runSessions,
		Audit:       audit,
		Sessions:    &fakeSessionController{},
		OttoHome:    dir,
		OutboxDir:   dir + "/telegram-outbox",
	}
}

type fakeSessionController struct {
	closed    []string
	failWith  error
}

func (f *fakeSessionController) CloseSession(ctx context.Context, sessionID string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.closed = append(f.closed, sessionID)
	return nil
}
