// Package scheduler implements the tick loop that claims due jobs under a
// lease and hands them to the executor, one at a time.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/pkg/logs"
	"github.com/marcomuellner/otto/internal/store"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateIdle    State = "idle"
	StateTicking State = "ticking"
)

// Executor runs a single claimed job to completion. Implemented by
// internal/executor.
type Executor interface {
	ExecuteClaimedJob(ctx context.Context, job store.Job)
}

// Config is the env-sourced scheduler configuration (see internal/config's
// OTTO_SCHEDULER_* knobs). The tick floor and lease >= tick checks happen
// at boot in config.LoadRuntimeEnv, not here.
type Config struct {
	Enabled     bool
	TickMs      int
	BatchSize   int
	LockLeaseMs int
}

// Scheduler is a single cooperative ticker over a job repository.
type Scheduler struct {
	jobs   *store.JobRepository
	cfg    Config
	exec   Executor
	nowFn  func() int64
	state  atomic.Value // State
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticking atomic.Bool // reentry guard
}

// New creates a scheduler bound to jobs and cfg. exec may be nil; in that
// case every claimed job is released immediately (no-op tick).
func New(jobs *store.JobRepository, cfg Config, exec Executor) *Scheduler {
	s := &Scheduler{
		jobs:  jobs,
		cfg:   cfg,
		exec:  exec,
		nowFn: func() int64 { return time.Now().UnixMilli() },
	}
	s.state.Store(StateStopped)
	return s
}

// SetExecutor attaches the executor after construction, for the common
// wiring order where the scheduler is created before the executor.
func (s *Scheduler) SetExecutor(exec Executor) {
	s.exec = exec
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

// Start begins the tick loop. No-op if scheduling is disabled in Config.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		logs.CtxInfo(ctx, "[scheduler] disabled, not starting")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.state.Store(StateIdle)
	s.ticker = time.NewTicker(time.Duration(s.cfg.TickMs) * time.Millisecond)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	logs.CtxInfo(ctx, "[scheduler] started (tickMs=%d batchSize=%d lockLeaseMs=%d)",
		s.cfg.TickMs, s.cfg.BatchSize, s.cfg.LockLeaseMs)
}

// Stop halts the tick loop and waits for any in-flight tick to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		s.state.Store(StateStopped)
		return
	}
	s.cancel()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.wg.Wait()
	s.state.Store(StateStopped)
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one claim+dispatch pass. Reentry is guarded: if the previous
// tick has not returned, this one is skipped outright.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		logs.CtxWarn(ctx, "[scheduler] tick skipped: previous tick still running")
		return
	}
	defer s.ticking.Store(false)

	s.state.Store(StateTicking)
	defer s.state.Store(StateIdle)

	now := s.nowFn()
	lockToken := uuid.NewString()
	claimed := s.jobs.ClaimDue(now, s.cfg.BatchSize, lockToken, int64(s.cfg.LockLeaseMs), now)

	for _, job := range claimed {
		s.runOne(ctx, job, lockToken)
	}
}

// runOne dispatches a single claimed job to the executor, sequentially.
// Sequential-not-concurrent is deliberate: shared session bindings must not
// be mutated by two jobs claimed in the same batch at once.
func (s *Scheduler) runOne(ctx context.Context, job store.Job, lockToken string) {
	if s.exec == nil {
		if err := s.jobs.ReleaseLock(job.ID, lockToken, s.nowFn()); err != nil {
			logs.CtxWarn(ctx, "[scheduler] release lock for %s (no executor): %v", job.ID, err)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logs.CtxError(ctx, "[scheduler] job %s panicked: %v", job.ID, r)
			if err := s.jobs.ReleaseLock(job.ID, lockToken, s.nowFn()); err != nil {
				logs.CtxWarn(ctx, "[scheduler] release lock for %s after panic: %v", job.ID, err)
			}
		}
	}()

	s.exec.ExecuteClaimedJob(ctx, job)
}
