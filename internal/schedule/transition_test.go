package schedule

import (
	"testing"

	"github.com/marcomuellner/otto/internal/store"
)

func ptrInt(v int) *int { return &v }

func TestResolveScheduleTransition_Recurring(t *testing.T) {
	cadence := 30
	job := store.Job{ScheduleKind: store.ScheduleRecurring, CadenceMinutes: &cadence}

	got, err := ResolveScheduleTransition(job, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Mode != ModeReschedule {
		t.Fatalf("mode = %s, want reschedule", got.Mode)
	}
	want := int64(2000 + 30*60_000)
	if got.NextRunAt != want {
		t.Errorf("nextRunAt = %d, want %d", got.NextRunAt, want)
	}
	if got.LastRunAt != 2000 {
		t.Errorf("lastRunAt = %d, want 2000", got.LastRunAt)
	}
}

func TestResolveScheduleTransition_RecurringInvalidCadence(t *testing.T) {
	job := store.Job{ScheduleKind: store.ScheduleRecurring, CadenceMinutes: ptrInt(0)}
	if _, err := ResolveScheduleTransition(job, 2000); err == nil {
		t.Fatal("expected error for invalid cadence")
	}
}

func TestResolveScheduleTransition_RecurringNilCadence(t *testing.T) {
	job := store.Job{ScheduleKind: store.ScheduleRecurring}
	if _, err := ResolveScheduleTransition(job, 2000); err == nil {
		t.Fatal("expected error for nil cadence")
	}
}

func TestResolveScheduleTransition_Oneshot(t *testing.T) {
	job := store.Job{ScheduleKind: store.ScheduleOneshot}

	got, err := ResolveScheduleTransition(job, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Mode != ModeFinalize {
		t.Fatalf("mode = %s, want finalize", got.Mode)
	}
	if got.TerminalState != store.TerminalCompleted {
		t.Errorf("terminalState = %s, want completed", got.TerminalState)
	}
	if got.TerminalReason != nil {
		t.Errorf("terminalReason = %v, want nil", got.TerminalReason)
	}
}
