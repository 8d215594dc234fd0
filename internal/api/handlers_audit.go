package api

import "github.com/marcomuellner/otto/internal/store"

const defaultAuditLimit = 50
const maxAuditLimit = 200

type TasksAuditListRequest struct {
	Limit int    `json:"limit"`
	JobID string `json:"jobId,omitempty"`
}

type TasksAuditListResponse struct {
	TaskAudit    []store.TaskAuditRecord    `json:"taskAudit"`
	CommandAudit []store.CommandAuditRecord `json:"commandAudit,omitempty"`
}

// TasksAuditList returns recent task-mutation audit rows, optionally scoped
// to a single job. When jobId is empty the response also carries the recent
// command-call log.
func (d *Deps) TasksAuditList(req TasksAuditListRequest) TasksAuditListResponse {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	if req.JobID != "" {
		return TasksAuditListResponse{TaskAudit: d.Audit.ListByTaskID(req.JobID, limit)}
	}

	tasks, commands := d.Audit.ListRecent(limit)
	return TasksAuditListResponse{TaskAudit: tasks, CommandAudit: commands}
}
