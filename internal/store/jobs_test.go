package store

import (
	"os"
	"path/filepath"
	"testing"
)

func ptrInt64(v int64) *int64 { return &v }
func ptrInt(v int) *int       { return &v }
func ptrStr(v string) *string { return &v }

func newIdleRecurringJob(id string, nextRunAt int64) Job {
	return Job{
		ID:             id,
		Type:           "reminder",
		ScheduleKind:   ScheduleRecurring,
		CadenceMinutes: ptrInt(30),
		Status:         JobIdle,
		NextRunAt:      ptrInt64(nextRunAt),
		CreatedAt:      1,
		UpdatedAt:      1,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	r := NewJobRepository(t.TempDir())

	job := newIdleRecurringJob("job-1", 1000)
	if err := r.CreateTask(job); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := r.CreateTask(job); err == nil {
		t.Fatal("expected error on duplicate CreateTask")
	}

	got, ok := r.GetByID("job-1")
	if !ok || got.ID != "job-1" {
		t.Fatalf("GetByID: got %+v, ok=%v", got, ok)
	}
}

func TestJobRepository_ClaimDue_StampsLockAndStatus(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	_ = r.CreateTask(newIdleRecurringJob("due", 1000))
	_ = r.CreateTask(newIdleRecurringJob("not-due", 5000))

	claimed := r.ClaimDue(2000, 10, "token-a", 90000, 2000)
	if len(claimed) != 1 || claimed[0].ID != "due" {
		t.Fatalf("ClaimDue: got %+v", claimed)
	}

	got, _ := r.GetByID("due")
	if got.Status != JobRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
	if got.LockToken == nil || *got.LockToken != "token-a" {
		t.Errorf("lockToken = %v, want token-a", got.LockToken)
	}
	if got.LockExpiresAt == nil || *got.LockExpiresAt != 2000+90000 {
		t.Errorf("lockExpiresAt = %v, want %d", got.LockExpiresAt, 2000+90000)
	}
}

func TestJobRepository_ClaimDue_DisjointAcrossConsecutiveCalls(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	_ = r.CreateTask(newIdleRecurringJob("job-a", 1000))
	_ = r.CreateTask(newIdleRecurringJob("job-b", 1000))

	first := r.ClaimDue(2000, 10, "token-1", 90000, 2000)
	second := r.ClaimDue(2000, 10, "token-2", 90000, 2000)

	if len(first) != 2 {
		t.Fatalf("first claim: got %d jobs, want 2", len(first))
	}
	if len(second) != 0 {
		t.Fatalf("second claim: got %d jobs, want 0 (already claimed)", len(second))
	}
}

func TestJobRepository_ClaimDue_RespectsBatchSize(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	for i := 0; i < 5; i++ {
		_ = r.CreateTask(newIdleRecurringJob(string(rune('a'+i)), 1000))
	}

	claimed := r.ClaimDue(2000, 2, "token", 90000, 2000)
	if len(claimed) != 2 {
		t.Fatalf("ClaimDue with batchSize=2: got %d", len(claimed))
	}
}

func TestJobRepository_ReleaseLock_NoopOnStolenLease(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	_ = r.CreateTask(newIdleRecurringJob("job-a", 1000))
	r.ClaimDue(2000, 10, "token-a", 90000, 2000)

	// Simulate the lease being stolen by a later claim under a new token
	// after expiry; releasing with the old (stale) token must be a no-op.
	if err := r.ReleaseLock("job-a", "wrong-token", 3000); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}

	got, _ := r.GetByID("job-a")
	if got.LockToken == nil || *got.LockToken != "token-a" {
		t.Errorf("lock was cleared by mismatched token: %+v", got)
	}
}

func TestJobRepository_RescheduleRecurring_AdvancesNextRunAt(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	_ = r.CreateTask(newIdleRecurringJob("job-a", 1000))
	r.ClaimDue(1000, 10, "token-a", 90000, 1000)

	if err := r.RescheduleRecurring("job-a", "token-a", 2000, 2000+30*60_000, 2000); err != nil {
		t.Fatalf("RescheduleRecurring: %v", err)
	}

	got, _ := r.GetByID("job-a")
	if got.LockToken != nil {
		t.Error("lockToken should be cleared after reschedule")
	}
	if got.TerminalState != nil {
		t.Error("recurring job should not be terminal")
	}
	if got.NextRunAt == nil || *got.NextRunAt != 2000+30*60_000 {
		t.Errorf("nextRunAt = %v, want %d", got.NextRunAt, 2000+30*60_000)
	}
}

func TestJobRepository_FinalizeOneShot_SetsTerminal(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	job := Job{
		ID:           "one-shot",
		Type:         "reminder",
		ScheduleKind: ScheduleOneshot,
		RunAt:        ptrInt64(1000),
		Status:       JobIdle,
		NextRunAt:    ptrInt64(1000),
		CreatedAt:    1,
		UpdatedAt:    1,
	}
	_ = r.CreateTask(job)
	r.ClaimDue(1000, 10, "token-a", 90000, 1000)

	if err := r.FinalizeOneShot("one-shot", "token-a", TerminalCompleted, nil, 2000, 2000); err != nil {
		t.Fatalf("FinalizeOneShot: %v", err)
	}

	got, _ := r.GetByID("one-shot")
	if got.TerminalState == nil || *got.TerminalState != TerminalCompleted {
		t.Errorf("terminalState = %v, want completed", got.TerminalState)
	}
	if got.NextRunAt != nil {
		t.Error("nextRunAt should be nil for a terminal job")
	}
	if got.LockToken != nil {
		t.Error("lockToken should be nil for a terminal job")
	}
}

func TestJobRepository_RunTaskNow_Idempotent(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	job := newIdleRecurringJob("job-a", 1000)
	terminal := TerminalCompleted
	job.TerminalState = &terminal
	job.NextRunAt = nil
	_ = r.CreateTask(job)

	if err := r.RunTaskNow("job-a", 5000); err != nil {
		t.Fatalf("RunTaskNow: %v", err)
	}
	if err := r.RunTaskNow("job-a", 5000); err != nil {
		t.Fatalf("RunTaskNow (second call): %v", err)
	}

	got, _ := r.GetByID("job-a")
	if got.TerminalState != nil {
		t.Error("terminalState should be cleared by RunTaskNow")
	}
	if got.NextRunAt == nil || *got.NextRunAt != 5000 {
		t.Errorf("nextRunAt = %v, want 5000", got.NextRunAt)
	}
}

func TestJobRepository_InsertRun_MarkRunFinished(t *testing.T) {
	r := NewJobRepository(t.TempDir())
	run := JobRun{ID: "run-1", JobID: "job-a", ScheduledFor: 1000, StartedAt: 1000, Status: RunSkipped, CreatedAt: 1000}
	if err := r.InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	errCode := "task_error"
	if err := r.MarkRunFinished("run-1", RunFailed, 2000, &errCode, ptrStr("boom"), nil); err != nil {
		t.Fatalf("MarkRunFinished: %v", err)
	}

	got, ok := r.GetRunByID("run-1")
	if !ok {
		t.Fatal("run not found after MarkRunFinished")
	}
	if got.Status != RunFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.FinishedAt == nil || *got.FinishedAt != 2000 {
		t.Errorf("finishedAt = %v, want 2000", got.FinishedAt)
	}
}

func TestJobRepository_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	r1 := NewJobRepository(dir)
	_ = r1.CreateTask(newIdleRecurringJob("job-a", 1000))
	_ = r1.InsertRun(JobRun{ID: "run-1", JobID: "job-a", ScheduledFor: 1000, StartedAt: 1000, Status: RunSkipped, CreatedAt: 1000})

	r2 := NewJobRepository(dir)
	if err := r2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	job, ok := r2.GetByID("job-a")
	if !ok || job.ID != "job-a" {
		t.Fatalf("reloaded job: %+v, ok=%v", job, ok)
	}
	run, ok := r2.GetRunByID("run-1")
	if !ok || run.ID != "run-1" {
		t.Fatalf("reloaded run: %+v, ok=%v", run, ok)
	}
}

func TestJobRepository_Load_MissingFile(t *testing.T) {
	r := NewJobRepository(filepath.Join(t.TempDir(), "nonexistent"))
	if err := r.Load(); err != nil {
		t.Fatalf("Load on missing file should not error: %v", err)
	}
	if len(r.ListTasks()) != 0 {
		t.Fatal("expected empty list on missing file")
	}
}

func TestJobRepository_CreateTask_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	r := NewJobRepository(dir)
	if err := r.CreateTask(newIdleRecurringJob("job-a", 1000)); err != nil {
		t.Fatalf("CreateTask should create directories: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "jobs.json")); err != nil {
		t.Fatalf("file not created: %v", err)
	}
}
