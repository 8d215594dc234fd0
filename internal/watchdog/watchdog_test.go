package watchdog

import (
	"testing"

	"github.com/marcomuellner/otto/internal/store"
)

func newRepos(t *testing.T) (*store.JobRepository, *store.OutboundRepository) {
	t.Helper()
	dir := t.TempDir()
	jobs := store.NewJobRepository(dir)
	if err := jobs.Load(); err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	outbound := store.NewOutboundRepository(dir)
	if err := outbound.Load(); err != nil {
		t.Fatalf("load outbound: %v", err)
	}
	return jobs, outbound
}

func seedFailedRun(t *testing.T, jobs *store.JobRepository, jobID, jobType string, createdAt int64) {
	t.Helper()
	job := store.Job{ID: jobID, Type: jobType, ScheduleKind: store.ScheduleOneshot, Status: store.JobIdle, CreatedAt: createdAt, UpdatedAt: createdAt}
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}
	errMsg := "boom"
	run := store.JobRun{ID: jobID + "-run", JobID: jobID, Status: store.RunFailed, CreatedAt: createdAt, ErrorMessage: &errMsg}
	if err := jobs.InsertRun(run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
}

func TestCheckTaskFailures_BelowThreshold(t *testing.T) {
	jobs, outbound := newRepos(t)
	seedFailedRun(t, jobs, "j1", "scheduled", 1000)

	chatID := int64(42)
	result := CheckTaskFailures(jobs, outbound, &chatID, Params{LookbackMinutes: 60, Threshold: 2, MaxFailures: 50, Notify: true}, 2000)
	if result.ShouldAlert {
		t.Fatalf("should not alert below threshold")
	}
	if result.NotificationStatus != NotificationNotRequested {
		t.Errorf("status = %s, want not_requested", result.NotificationStatus)
	}
}

func TestCheckTaskFailures_AlertsAndDedupes(t *testing.T) {
	jobs, outbound := newRepos(t)
	seedFailedRun(t, jobs, "j1", "scheduled", 1000)
	seedFailedRun(t, jobs, "j2", "scheduled", 1500)

	chatID := int64(42)
	params := Params{LookbackMinutes: 60, Threshold: 2, MaxFailures: 50, Notify: true}

	first := CheckTaskFailures(jobs, outbound, &chatID, params, 2000)
	if first.NotificationStatus != NotificationEnqueued {
		t.Fatalf("first check status = %s, want enqueued", first.NotificationStatus)
	}

	second := CheckTaskFailures(jobs, outbound, &chatID, params, 2000)
	if second.NotificationStatus != NotificationDuplicate {
		t.Fatalf("second check status = %s, want duplicate", second.NotificationStatus)
	}
}

func TestCheckTaskFailures_NoChatID(t *testing.T) {
	jobs, outbound := newRepos(t)
	seedFailedRun(t, jobs, "j1", "scheduled", 1000)
	seedFailedRun(t, jobs, "j2", "scheduled", 1500)

	result := CheckTaskFailures(jobs, outbound, nil, Params{LookbackMinutes: 60, Threshold: 2, MaxFailures: 50, Notify: true}, 2000)
	if result.NotificationStatus != NotificationNoChatID {
		t.Errorf("status = %s, want no_chat_id", result.NotificationStatus)
	}
}

func TestCheckTaskFailures_ExcludesTaskTypes(t *testing.T) {
	jobs, outbound := newRepos(t)
	seedFailedRun(t, jobs, "j1", "heartbeat", 1000)
	seedFailedRun(t, jobs, "j2", "heartbeat", 1500)

	result := CheckTaskFailures(jobs, outbound, nil, Params{LookbackMinutes: 60, Threshold: 2, MaxFailures: 50, Notify: true, ExcludeTaskTypes: []string{"heartbeat"}}, 2000)
	if result.FailedCount != 0 {
		t.Errorf("failedCount = %d, want 0", result.FailedCount)
	}
}

func TestCheckTaskFailures_NotifyFalse(t *testing.T) {
	jobs, outbound := newRepos(t)
	seedFailedRun(t, jobs, "j1", "scheduled", 1000)
	seedFailedRun(t, jobs, "j2", "scheduled", 1500)

	chatID := int64(42)
	result := CheckTaskFailures(jobs, outbound, &chatID, Params{LookbackMinutes: 60, Threshold: 2, MaxFailures: 50, Notify: false}, 2000)
	if result.NotificationStatus != NotificationNotRequested {
		t.Errorf("status = %s, want not_requested", result.NotificationStatus)
	}
	if !result.ShouldAlert {
		t.Errorf("shouldAlert should still be true even when notify=false")
	}
}
