package api

import (
	"testing"

	"github.com/marcomuellner/otto/internal/store"
)

func TestTasksAuditList_ScopedToJobID(t *testing.T) {
	d := newTestDeps(t)
	runAt := int64(5000)
	created, apiErr := d.TasksCreate(TaskCreateRequest{
		Lane: laneInteractive, Type: "custom_reminder", ScheduleKind: string(store.ScheduleOneshot), RunAt: &runAt,
	})
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}

	resp := d.TasksAuditList(TasksAuditListRequest{JobID: created.Job.ID})
	if len(resp.TaskAudit) != 1 {
		t.Fatalf("expected 1 task audit row, got %d", len(resp.TaskAudit))
	}
	if resp.TaskAudit[0].Action != store.TaskAuditCreate {
		t.Fatalf("expected create action, got %s", resp.TaskAudit[0].Action)
	}
}

func TestTasksAuditList_RecentIncludesCommandLog(t *testing.T) {
	d := newTestDeps(t)
	d.recordCommand("tasks.list", laneInteractive, nil, nil)

	resp := d.TasksAuditList(TasksAuditListRequest{})
	if len(resp.CommandAudit) != 1 {
		t.Fatalf("expected 1 command audit row, got %d", len(resp.CommandAudit))
	}
}
