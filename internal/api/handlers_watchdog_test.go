package api

import (
	"testing"

	"github.com/marcomuellner/otto/internal/apierr"
)

func TestTasksFailuresCheck_RejectsOutOfRangeLookback(t *testing.T) {
	d := newTestDeps(t)
	_, apiErr := d.TasksFailuresCheck(TasksFailuresCheckRequest{LookbackMinutes: 2})
	if apiErr == nil || apiErr.Kind != apierr.InvalidWatchdogPayload {
		t.Fatalf("expected invalid_watchdog_payload error, got %v", apiErr)
	}
}

func TestTasksFailuresCheck_DefaultsAppliedNoFailures(t *testing.T) {
	d := newTestDeps(t)
	resp, apiErr := d.TasksFailuresCheck(TasksFailuresCheckRequest{})
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if resp.FailedCount != 0 || resp.ShouldAlert {
		t.Fatalf("expected no failures, got %+v", resp)
	}
	if resp.NotificationStatus != "no_chat_id" && resp.NotificationStatus != "not_requested" {
		t.Fatalf("unexpected notification status: %s", resp.NotificationStatus)
	}
}
