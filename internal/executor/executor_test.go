package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/marcomuellner/otto/internal/store"
)

type fakeGateway struct {
	ensureErr  error
	promptText string
	promptErr  error
	closeErr   error
	sessionSeq int
}

func (g *fakeGateway) EnsureSession(ctx context.Context, existing *string) (string, error) {
	if g.ensureErr != nil {
		return "", g.ensureErr
	}
	if existing != nil {
		return *existing, nil
	}
	g.sessionSeq++
	return fmt.Sprintf("session-%d", g.sessionSeq), nil
}

func (g *fakeGateway) PromptSession(ctx context.Context, sessionID, prompt string, opts PromptOptions) (string, error) {
	if g.promptErr != nil {
		return "", g.promptErr
	}
	return g.promptText, nil
}

func (g *fakeGateway) CloseSession(ctx context.Context, sessionID string) error {
	return g.closeErr
}

func newTestExecutor(t *testing.T, gw SessionGateway) (*Executor, *store.JobRepository) {
	t.Helper()
	dir := t.TempDir()
	jobs := store.NewJobRepository(dir)
	runSessions := store.NewRunSessionRepository(dir)
	outbound := store.NewOutboundRepository(dir)
	profile := store.NewProfileRepository(dir)
	bindings := store.NewBindingRepository(dir)
	for _, loader := range []interface{ Load() error }{jobs, runSessions, outbound, profile, bindings} {
		if err := loader.Load(); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	chatID := int64(99)
	exec := &Executor{
		Jobs: jobs, RunSessions: runSessions, Outbound: outbound, Profile: profile, Bindings: bindings,
		Gateway: gw, DefaultChatID: &chatID,
		NowFn: func() int64 { return 1000 },
	}
	return exec, jobs
}

func claimedJob(id, jobType string, payload *string) store.Job {
	token := "tok-" + id
	return store.Job{ID: id, Type: jobType, ScheduleKind: store.ScheduleOneshot, Status: store.JobRunning, Payload: payload, LockToken: &token, CreatedAt: 500, UpdatedAt: 500}
}

func TestExecuteClaimedJob_ScheduledTaskSuccess(t *testing.T) {
	gw := &fakeGateway{promptText: `{"status":"success","summary":"did the thing"}`}
	exec, jobs := newTestExecutor(t, gw)
	job := claimedJob("j1", "generic_task", nil)
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec.ExecuteClaimedJob(context.Background(), job)

	got, _ := jobs.GetByID("j1")
	if got.TerminalState == nil || *got.TerminalState != store.TerminalCompleted {
		t.Fatalf("job not finalized completed: %+v", got)
	}
	runs := jobs.ListRunsByJobID("j1", 10, 0)
	if len(runs) != 1 || runs[0].Status != store.RunSuccess {
		t.Fatalf("run not marked success: %+v", runs)
	}
}

func TestExecuteClaimedJob_InvalidResultJSON(t *testing.T) {
	gw := &fakeGateway{promptText: "not json at all"}
	exec, jobs := newTestExecutor(t, gw)
	job := claimedJob("j1", "generic_task", nil)
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec.ExecuteClaimedJob(context.Background(), job)

	runs := jobs.ListRunsByJobID("j1", 10, 0)
	if len(runs) != 1 || runs[0].Status != store.RunFailed {
		t.Fatalf("expected failed run, got %+v", runs)
	}
	if runs[0].ErrorCode == nil || *runs[0].ErrorCode != "invalid_result_json" {
		t.Fatalf("errorCode = %v, want invalid_result_json", runs[0].ErrorCode)
	}
}

func TestExecuteClaimedJob_GatewayErrorReleasesAndRetains(t *testing.T) {
	gw := &fakeGateway{ensureErr: errors.New("boom")}
	exec, jobs := newTestExecutor(t, gw)
	cadence := 10
	token := "tok-j1"
	job := store.Job{ID: "j1", Type: "generic_task", ScheduleKind: store.ScheduleRecurring, CadenceMinutes: &cadence, Status: store.JobRunning, LockToken: &token, CreatedAt: 500, UpdatedAt: 500}
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec.ExecuteClaimedJob(context.Background(), job)

	runs := jobs.ListRunsByJobID("j1", 10, 0)
	if len(runs) != 1 || runs[0].Status != store.RunFailed {
		t.Fatalf("expected failed run recorded, got %+v", runs)
	}
	got, _ := jobs.GetByID("j1")
	if got.NextRunAt == nil {
		t.Fatalf("recurring job should have been rescheduled even on gateway error")
	}
}

func TestExecuteClaimedJob_WatchdogNoChatID(t *testing.T) {
	gw := &fakeGateway{}
	exec, jobs := newTestExecutor(t, gw)
	exec.DefaultChatID = nil

	payload := `{"lookbackMinutes":60,"threshold":1,"maxFailures":10,"notify":true}`
	job := claimedJob("wd1", store.JobTypeWatchdogFailures, &payload)
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}
	errMsg := "boom"
	if err := jobs.InsertRun(store.JobRun{ID: "priorrun", JobID: "other", Status: store.RunFailed, CreatedAt: 400, ErrorMessage: &errMsg}); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	exec.ExecuteClaimedJob(context.Background(), job)

	runs := jobs.ListRunsByJobID("wd1", 10, 0)
	if len(runs) != 1 {
		t.Fatalf("expected one run for wd1, got %d", len(runs))
	}
	if runs[0].Status != store.RunFailed {
		t.Fatalf("status = %s, want failed (no chat id)", runs[0].Status)
	}
}

func TestExecuteClaimedJob_HeartbeatAlwaysSuccess(t *testing.T) {
	gw := &fakeGateway{}
	exec, jobs := newTestExecutor(t, gw)
	job := claimedJob(store.HeartbeatJobID, store.JobTypeHeartbeat, nil)
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec.ExecuteClaimedJob(context.Background(), job)

	runs := jobs.ListRunsByJobID(store.HeartbeatJobID, 10, 0)
	if len(runs) != 1 || runs[0].Status != store.RunSuccess {
		t.Fatalf("heartbeat run should always succeed, got %+v", runs)
	}
}

func TestExecuteClaimedJob_InteractiveBackgroundLifecycle(t *testing.T) {
	gw := &fakeGateway{promptText: `{"status":"success","summary":"done"}`}
	exec, jobs := newTestExecutor(t, gw)

	payload := `{"version":1,"source":{"surface":"telegram"},"request":{"text":"do a thing","requestedAt":900}}`
	job := claimedJob("bg1", store.JobTypeInteractiveBackgroundOneshot, &payload)
	if err := jobs.CreateTask(job); err != nil {
		t.Fatalf("create task: %v", err)
	}

	exec.ExecuteClaimedJob(context.Background(), job)

	runs := jobs.ListRunsByJobID("bg1", 10, 0)
	if len(runs) != 1 || runs[0].Status != store.RunSuccess {
		t.Fatalf("expected successful background run, got %+v", runs)
	}

	due := exec.Outbound.ListDue(10_000)
	if len(due) < 2 {
		t.Fatalf("expected at least started+final lifecycle messages, got %d", len(due))
	}
}
