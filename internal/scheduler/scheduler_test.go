package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marcomuellner/otto/internal/store"
)

type recordingExecutor struct {
	mu   sync.Mutex
	ran  []string
	jobs *store.JobRepository
}

func (e *recordingExecutor) ExecuteClaimedJob(ctx context.Context, job store.Job) {
	e.mu.Lock()
	e.ran = append(e.ran, job.ID)
	e.mu.Unlock()
	_ = e.jobs.ReleaseLock(job.ID, *job.LockToken, time.Now().UnixMilli())
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ran)
}

func newTestRepo(t *testing.T) *store.JobRepository {
	t.Helper()
	repo := store.NewJobRepository(t.TempDir())
	if err := repo.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return repo
}

func TestScheduler_TickClaimsAndDispatches(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UnixMilli()
	job := store.Job{ID: "j1", Type: store.JobTypeHeartbeat, ScheduleKind: store.ScheduleRecurring, Status: store.JobIdle, NextRunAt: &now, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec := &recordingExecutor{jobs: repo}
	s := New(repo, Config{Enabled: true, TickMs: 1000, BatchSize: 10, LockLeaseMs: 5000}, exec)
	s.nowFn = func() int64 { return now }

	s.tick(context.Background())

	if exec.count() != 1 {
		t.Fatalf("executed count = %d, want 1", exec.count())
	}
	got, _ := repo.GetByID("j1")
	if got.LockToken != nil {
		t.Errorf("lock token should have been released, got %v", got.LockToken)
	}
}

func TestScheduler_NoExecutorReleasesLock(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UnixMilli()
	job := store.Job{ID: "j1", Type: store.JobTypeHeartbeat, ScheduleKind: store.ScheduleRecurring, Status: store.JobIdle, NextRunAt: &now, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	s := New(repo, Config{Enabled: true, TickMs: 1000, BatchSize: 10, LockLeaseMs: 5000}, nil)
	s.nowFn = func() int64 { return now }

	s.tick(context.Background())

	got, _ := repo.GetByID("j1")
	if got.LockToken != nil {
		t.Errorf("expected lock released when no executor attached")
	}
	if got.Status != store.JobIdle {
		t.Errorf("status = %s, want idle", got.Status)
	}
}

func TestScheduler_ReentryGuardSkipsOverlappingTick(t *testing.T) {
	repo := newTestRepo(t)
	s := New(repo, Config{Enabled: true, TickMs: 1000, BatchSize: 10, LockLeaseMs: 5000}, nil)

	s.ticking.Store(true)
	s.tick(context.Background()) // should be a no-op: guard already held

	if s.State() == StateTicking {
		t.Fatalf("tick should not have run while guard was held")
	}
}

func TestScheduler_BatchSizeLimitsClaims(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		job := store.Job{ID: id, Type: store.JobTypeHeartbeat, ScheduleKind: store.ScheduleRecurring, Status: store.JobIdle, NextRunAt: &now, CreatedAt: now, UpdatedAt: now}
		if err := repo.CreateTask(job); err != nil {
			t.Fatalf("create task %s: %v", id, err)
		}
	}

	exec := &recordingExecutor{jobs: repo}
	s := New(repo, Config{Enabled: true, TickMs: 1000, BatchSize: 2, LockLeaseMs: 5000}, exec)
	s.nowFn = func() int64 { return now }

	s.tick(context.Background())

	if exec.count() != 2 {
		t.Fatalf("executed count = %d, want 2 (batchSize limit)", exec.count())
	}
}

func TestScheduler_StartStop_Disabled(t *testing.T) {
	repo := newTestRepo(t)
	s := New(repo, Config{Enabled: false}, nil)
	s.Start(context.Background())
	if s.State() != StateStopped {
		t.Errorf("disabled scheduler should remain stopped, got %s", s.State())
	}
	s.Stop()
}
