package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/apierr"
	"github.com/marcomuellner/otto/internal/executor"
	"github.com/marcomuellner/otto/internal/store"
)

type BackgroundJobSpawnRequest struct {
	Lane            string  `json:"lane"`
	SessionID       *string `json:"sessionId,omitempty"`
	Request         string  `json:"request"`
	Rationale       *string `json:"rationale,omitempty"`
	SourceMessageID *string `json:"sourceMessageId,omitempty"`
}

type BackgroundJobSpawnResponse struct {
	Status          string `json:"status"`
	JobID           string `json:"jobId"`
	JobType         string `json:"jobType"`
	Acknowledgement string `json:"acknowledgement"`
}

// BackgroundJobsSpawn inserts an interactive_background_oneshot job, runnable
// immediately. Allowed only in the interactive lane.
func (d *Deps) BackgroundJobsSpawn(req BackgroundJobSpawnRequest) (BackgroundJobSpawnResponse, *apierr.Error) {
	lane := req.Lane
	if lane == "" {
		lane = laneInteractive
	}
	if lane != laneInteractive {
		return BackgroundJobSpawnResponse{}, apierr.New(apierr.LaneForbidden, "background jobs may only be spawned in the interactive lane")
	}
	if req.Request == "" {
		return BackgroundJobSpawnResponse{}, apierr.New(apierr.InvalidRequest, "request is required")
	}

	now := d.now()

	var chatID *int64
	if req.SessionID != nil {
		if resolved, ok := d.Bindings.GetTelegramChatIDBySessionID(*req.SessionID); ok {
			chatID = &resolved
		}
	}

	payload := executor.InteractiveBackgroundPayload{
		Version: 1,
		Source: executor.InteractiveBackgroundSource{
			SessionID:       req.SessionID,
			ChatID:          chatID,
			SourceMessageID: req.SourceMessageID,
			Surface:         "control-plane",
		},
		Request: executor.InteractiveBackgroundRequest{
			Text:        req.Request,
			RequestedAt: now,
			Rationale:   req.Rationale,
		},
	}
	payloadJSON := mustJSON(payload)

	jobID := uuid.NewString()
	job := store.Job{
		ID:           jobID,
		Type:         store.JobTypeInteractiveBackgroundOneshot,
		ScheduleKind: store.ScheduleOneshot,
		RunAt:        &now,
		Payload:      &payloadJSON,
		Status:       store.JobIdle,
		NextRunAt:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Jobs.CreateTask(job); err != nil {
		return BackgroundJobSpawnResponse{}, apierr.New(apierr.InternalError, err.Error())
	}

	afterJSON := mustJSON(job)
	_ = d.Audit.InsertTaskAudit(store.TaskAuditRecord{
		ID: uuid.NewString(), JobID: jobID, Action: store.TaskAuditCreate,
		AfterJSON: &afterJSON, CreatedAt: now,
	})

	return BackgroundJobSpawnResponse{
		Status:          "queued",
		JobID:           jobID,
		JobType:         store.JobTypeInteractiveBackgroundOneshot,
		Acknowledgement: "Working on it in the background.",
	}, nil
}

type BackgroundJobListRequest struct {
	Limit int `json:"limit"`
}

type BackgroundJobListResponse struct {
	Jobs []store.Job `json:"jobs"`
}

func (d *Deps) BackgroundJobsList(req BackgroundJobListRequest) BackgroundJobListResponse {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []store.Job
	for _, j := range d.Jobs.ListTasks() {
		if j.Type != store.JobTypeInteractiveBackgroundOneshot {
			continue
		}
		out = append(out, j)
		if len(out) >= limit {
			break
		}
	}
	return BackgroundJobListResponse{Jobs: out}
}

type BackgroundJobShowRequest struct {
	JobID string `json:"jobId"`
}

type BackgroundJobShowResponse struct {
	Job      store.Job             `json:"job"`
	Sessions []store.JobRunSession `json:"sessions"`
}

func (d *Deps) BackgroundJobsShow(req BackgroundJobShowRequest) (BackgroundJobShowResponse, *apierr.Error) {
	job, ok := d.Jobs.GetByID(req.JobID)
	if !ok || job.Type != store.JobTypeInteractiveBackgroundOneshot {
		return BackgroundJobShowResponse{}, apierr.New(apierr.NotFound, "background job not found: "+req.JobID)
	}
	return BackgroundJobShowResponse{Job: job, Sessions: d.RunSessions.ListByJobID(job.ID)}, nil
}

type BackgroundJobCancelRequest struct {
	JobID string `json:"jobId"`
}

type StopSessionResult struct {
	SessionID    string  `json:"sessionId"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

type BackgroundJobCancelResponse struct {
	JobID              string               `json:"jobId"`
	Outcome            string               `json:"outcome"`
	TerminalState      *store.TerminalState `json:"terminalState,omitempty"`
	StopSessionResults []StopSessionResult  `json:"stopSessionResults"`
}

// BackgroundJobsCancel issues cancelTask, closes every active run session
// via the injected session controller, and marks the run-sessions closed.
func (d *Deps) BackgroundJobsCancel(ctx context.Context, req BackgroundJobCancelRequest) (BackgroundJobCancelResponse, *apierr.Error) {
	job, ok := d.Jobs.GetByID(req.JobID)
	if !ok || job.Type != store.JobTypeInteractiveBackgroundOneshot {
		return BackgroundJobCancelResponse{}, apierr.New(apierr.NotFound, "background job not found: "+req.JobID)
	}

	if job.TerminalState != nil {
		return BackgroundJobCancelResponse{
			JobID:              job.ID,
			Outcome:            "already_terminal",
			TerminalState:      job.TerminalState,
			StopSessionResults: nil,
		}, nil
	}

	beforeJSON := mustJSON(job)
	now := d.now()
	if err := d.Jobs.CancelTask(job.ID, now); err != nil {
		return BackgroundJobCancelResponse{}, apierr.New(apierr.InternalError, err.Error())
	}
	job, _ = d.Jobs.GetByID(job.ID)

	var results []StopSessionResult
	for _, s := range d.RunSessions.ListActiveByJobID(job.ID) {
		res := StopSessionResult{SessionID: s.SessionID, Status: "stopped"}
		closeErr := d.Sessions.CloseSession(ctx, s.SessionID)
		closedAt := d.now()
		var errMsg *string
		if closeErr != nil {
			msg := closeErr.Error()
			errMsg = &msg
			res.Status = "stop_failed"
			res.ErrorMessage = &msg
		}
		if err := d.RunSessions.MarkClosed(s.RunID, closedAt, errMsg); err != nil {
			// best-effort: the session row's own state still reflects reality
			// even if this particular persistence call failed.
			_ = err
		}
		results = append(results, res)
	}

	afterJSON := mustJSON(job)
	_ = d.Audit.InsertTaskAudit(store.TaskAuditRecord{
		ID: uuid.NewString(), JobID: job.ID, Action: store.TaskAuditCancel,
		BeforeJSON: &beforeJSON, AfterJSON: &afterJSON, CreatedAt: now,
	})

	return BackgroundJobCancelResponse{
		JobID:              job.ID,
		Outcome:            "cancelled",
		TerminalState:      job.TerminalState,
		StopSessionResults: results,
	}, nil
}
