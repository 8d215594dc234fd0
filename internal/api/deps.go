// Package api implements the local control-plane HTTP surface: the
// loopback-only, bearer-token-guarded `/internal/tools/...` endpoints an
// external agent session uses to queue outbound messages, manage tasks,
// and inspect/cancel background runs.
package api

import (
	"github.com/marcomuellner/otto/internal/executor"
	"github.com/marcomuellner/otto/internal/store"
)

// Deps bundles every repository and collaborator the control-plane
// handlers need. It carries no HTTP concerns of its own so its methods can
// be exercised directly in tests without a live server.
type Deps struct {
	Jobs        *store.JobRepository
	Outbound    *store.OutboundRepository
	Profile     *store.ProfileRepository
	Bindings    *store.BindingRepository
	RunSessions *store.RunSessionRepository
	Audit       *store.AuditRepository
	Sessions    executor.SessionController

	DefaultChatID *int64
	OttoHome      string
	OutboxDir     string
	MaxFileBytes  int64

	NowFn func() int64
}

func (d *Deps) now() int64 {
	if d.NowFn != nil {
		return d.NowFn()
	}
	return unixMilliNow()
}
