package heartbeat

import (
	"testing"
	"time"

	"github.com/marcomuellner/otto/internal/store"
)

func newRepos(t *testing.T) (*store.JobRepository, *store.OutboundRepository, *store.ProfileRepository) {
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
	profile := store.NewProfileRepository(dir)
	if err := profile.Load(); err != nil {
		t.Fatalf("load profile: %v", err)
	}
	return jobs, outbound, profile
}

func viennaNow(t *testing.T, y, mo, d, h, m int) int64 {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Vienna")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(y, time.Month(mo), d, h, m, 0, 0, loc).UnixMilli()
}

func TestEnsureHeartbeatTask_Idempotent(t *testing.T) {
	jobs, _, _ := newRepos(t)
	now := int64(1000)
	if err := EnsureHeartbeatTask(jobs, now); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := EnsureHeartbeatTask(jobs, now+1); err != nil {
		t.Fatalf("second ensure should be a no-op, got: %v", err)
	}
	job, ok := jobs.GetByID(store.HeartbeatJobID)
	if !ok {
		t.Fatal("heartbeat job not created")
	}
	if job.CreatedAt != now {
		t.Errorf("createdAt = %d, want %d (should not be overwritten)", job.CreatedAt, now)
	}
}

func TestExecute_NoChatID(t *testing.T) {
	jobs, outbound, profile := newRepos(t)
	result := Execute(jobs, outbound, profile, Payload{}, nil, 1000)
	if result.Reason != ReasonSignalEmpty || result.Emitted {
		t.Fatalf("got %+v, want signal_empty/not-emitted", result)
	}
}

func TestExecute_OnboardingIncomplete(t *testing.T) {
	jobs, outbound, profile := newRepos(t)
	chatID := int64(7)
	now := viennaNow(t, 2026, 1, 15, 9, 0)

	result := Execute(jobs, outbound, profile, Payload{}, &chatID, now)
	if !result.Emitted || result.Reason != ReasonQueued {
		t.Fatalf("got %+v, want emitted/queued onboarding prompt", result)
	}
}

func TestExecute_OutsideCadence(t *testing.T) {
	jobs, outbound, profile := newRepos(t)
	chatID := int64(7)
	completedAt := int64(1)
	if err := profile.Upsert(store.UserProfile{
		Timezone: "Europe/Vienna", QuietHoursStart: hhmm("22:00"), QuietHoursEnd: hhmm("07:00"),
		OnboardingCompletedAt: &completedAt, HeartbeatCadenceMinutes: 180,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// No configured morning/midday/evening window, cadence of 180 minutes,
	// and "now" not aligned to a 180-minute boundary.
	now := viennaNow(t, 2026, 1, 15, 9, 17)
	result := Execute(jobs, outbound, profile, Payload{}, &chatID, now)
	if result.Emitted || result.Reason != ReasonOutsideCadence {
		t.Fatalf("got %+v, want outside_cadence", result)
	}
}

func TestExecute_QuietHoursHolds(t *testing.T) {
	jobs, outbound, profile := newRepos(t)
	chatID := int64(7)
	completedAt := int64(1)
	if err := profile.Upsert(store.UserProfile{
		Timezone: "Europe/Vienna", QuietHoursStart: hhmm("20:00"), QuietHoursEnd: hhmm("08:00"),
		QuietMode: store.QuietCriticalOnly, OnboardingCompletedAt: &completedAt, HeartbeatMorning: hhmm("22:00"),
		HeartbeatCadenceMinutes: 180,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := viennaNow(t, 2026, 1, 15, 22, 10)
	result := Execute(jobs, outbound, profile, Payload{}, &chatID, now)
	if result.Emitted || result.Reason != ReasonQuietOrMuted {
		t.Fatalf("got %+v, want quiet_or_muted", result)
	}
}

func TestExecute_WindowFiresAndDedupes(t *testing.T) {
	jobs, outbound, profile := newRepos(t)
	chatID := int64(7)
	completedAt := int64(1)
	if err := profile.Upsert(store.UserProfile{
		Timezone: "Europe/Vienna", HeartbeatMorning: hhmm("09:00"), QuietMode: store.QuietOff,
		OnboardingCompletedAt: &completedAt, HeartbeatCadenceMinutes: 180,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := viennaNow(t, 2026, 1, 15, 9, 5)
	first := Execute(jobs, outbound, profile, Payload{}, &chatID, now)
	if !first.Emitted || first.Reason != ReasonQueued {
		t.Fatalf("first fire: got %+v, want emitted/queued", first)
	}

	second := Execute(jobs, outbound, profile, Payload{}, &chatID, now+60_000)
	if second.Emitted || second.Reason != ReasonDedupe {
		t.Fatalf("second fire in same window: got %+v, want dedupe", second)
	}
}

func hhmm(v string) *string { return &v }
