package api

import (
	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/apierr"
	"github.com/marcomuellner/otto/internal/store"
)

const (
	laneInteractive = "interactive"
	laneScheduled   = "scheduled"
)

func validateLane(lane string) *apierr.Error {
	switch lane {
	case laneInteractive, laneScheduled:
		return nil
	default:
		return apierr.New(apierr.InvalidRequest, "lane must be interactive or scheduled")
	}
}

// requireMutable rejects mutation in the scheduled lane and on
// system-managed job types, regardless of lane.
func requireMutable(lane string, job *store.Job) *apierr.Error {
	if lane == laneScheduled {
		return apierr.New(apierr.LaneForbidden, "mutations are forbidden in the scheduled lane")
	}
	if job != nil && job.IsSystemManaged() {
		return apierr.New(apierr.ForbiddenMutation, "job type is system-managed")
	}
	return nil
}

type TaskCreateRequest struct {
	Lane           string  `json:"lane"`
	ID             *string `json:"id,omitempty"`
	Type           string  `json:"type"`
	ScheduleKind   string  `json:"scheduleKind"`
	CadenceMinutes *int    `json:"cadenceMinutes,omitempty"`
	RunAt          *int64  `json:"runAt,omitempty"`
	ProfileID      *string `json:"profileId,omitempty"`
	ModelRef       *string `json:"modelRef,omitempty"`
	Payload        *string `json:"payload,omitempty"`
}

type TaskResponse struct {
	Job store.Job `json:"job"`
}

func (d *Deps) TasksCreate(req TaskCreateRequest) (TaskResponse, *apierr.Error) {
	if err := validateLane(req.Lane); err != nil {
		return TaskResponse{}, err
	}

	pendingJob := &store.Job{Type: req.Type}
	if err := requireMutable(req.Lane, pendingJob); err != nil {
		return TaskResponse{}, err
	}

	if req.Type == "" {
		return TaskResponse{}, apierr.New(apierr.InvalidTaskPayload, "type is required")
	}

	id := uuid.NewString()
	if req.ID != nil && *req.ID != "" {
		id = *req.ID
	}

	var scheduleKind store.ScheduleKind
	switch req.ScheduleKind {
	case string(store.ScheduleOneshot):
		scheduleKind = store.ScheduleOneshot
		if req.RunAt == nil {
			return TaskResponse{}, apierr.New(apierr.InvalidTaskPayload, "runAt is required for a oneshot task")
		}
	case string(store.ScheduleRecurring):
		scheduleKind = store.ScheduleRecurring
		if req.CadenceMinutes == nil || *req.CadenceMinutes <= 0 {
			return TaskResponse{}, apierr.New(apierr.InvalidTaskPayload, "cadenceMinutes must be positive for a recurring task")
		}
	default:
		return TaskResponse{}, apierr.New(apierr.InvalidTaskPayload, "scheduleKind must be oneshot or recurring")
	}

	now := d.now()
	job := store.Job{
		ID:             id,
		Type:           req.Type,
		ScheduleKind:   scheduleKind,
		CadenceMinutes: req.CadenceMinutes,
		RunAt:          req.RunAt,
		ProfileID:      req.ProfileID,
		ModelRef:       req.ModelRef,
		Payload:        req.Payload,
		Status:         store.JobIdle,
		NextRunAt:      req.RunAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if scheduleKind == store.ScheduleRecurring {
		job.NextRunAt = req.RunAt
		if job.NextRunAt == nil {
			job.NextRunAt = &now
		}
	}

	if err := d.Jobs.CreateTask(job); err != nil {
		return TaskResponse{}, apierr.New(apierr.InternalError, err.Error())
	}

	afterJSON := mustJSON(job)
	_ = d.Audit.InsertTaskAudit(store.TaskAuditRecord{
		ID: uuid.NewString(), JobID: job.ID, Action: store.TaskAuditCreate,
		AfterJSON: &afterJSON, CreatedAt: now,
	})

	return TaskResponse{Job: job}, nil
}

type TaskUpdateRequest struct {
	Lane           string  `json:"lane"`
	ID             string  `json:"id"`
	Type           *string `json:"type,omitempty"`
	ScheduleKind   *string `json:"scheduleKind,omitempty"`
	CadenceMinutes *int    `json:"cadenceMinutes,omitempty"`
	RunAt          *int64  `json:"runAt,omitempty"`
	ProfileID      *string `json:"profileId,omitempty"`
	ModelRef       *string `json:"modelRef,omitempty"`
	Payload        *string `json:"payload,omitempty"`
}

func (d *Deps) TasksUpdate(req TaskUpdateRequest) (TaskResponse, *apierr.Error) {
	if err := validateLane(req.Lane); err != nil {
		return TaskResponse{}, err
	}
	if req.ID == "" {
		return TaskResponse{}, apierr.New(apierr.InvalidRequest, "id is required")
	}

	job, ok := d.Jobs.GetByID(req.ID)
	if !ok {
		return TaskResponse{}, apierr.New(apierr.NotFound, "job not found: "+req.ID)
	}
	if err := requireMutable(req.Lane, &job); err != nil {
		return TaskResponse{}, err
	}

	beforeJSON := mustJSON(job)

	if req.Type != nil {
		job.Type = *req.Type
	}
	if req.ScheduleKind != nil {
		switch *req.ScheduleKind {
		case string(store.ScheduleOneshot):
			job.ScheduleKind = store.ScheduleOneshot
		case string(store.ScheduleRecurring):
			job.ScheduleKind = store.ScheduleRecurring
		default:
			return TaskResponse{}, apierr.New(apierr.InvalidTaskPayload, "scheduleKind must be oneshot or recurring")
		}
	}
	if job.ScheduleKind == store.ScheduleRecurring && req.CadenceMinutes != nil {
		if *req.CadenceMinutes <= 0 {
			return TaskResponse{}, apierr.New(apierr.InvalidTaskPayload, "cadenceMinutes must be positive")
		}
		job.CadenceMinutes = req.CadenceMinutes
	}
	if req.RunAt != nil {
		job.RunAt = req.RunAt
		if job.TerminalState == nil {
			job.NextRunAt = req.RunAt
		}
	}
	if req.ProfileID != nil {
		job.ProfileID = req.ProfileID
	}
	if req.ModelRef != nil {
		job.ModelRef = req.ModelRef
	}
	if req.Payload != nil {
		job.Payload = req.Payload
	}
	job.UpdatedAt = d.now()

	if err := d.Jobs.UpdateTask(job); err != nil {
		return TaskResponse{}, apierr.New(apierr.InternalError, err.Error())
	}

	afterJSON := mustJSON(job)
	_ = d.Audit.InsertTaskAudit(store.TaskAuditRecord{
		ID: uuid.NewString(), JobID: job.ID, Action: store.TaskAuditUpdate,
		BeforeJSON: &beforeJSON, AfterJSON: &afterJSON, CreatedAt: job.UpdatedAt,
	})

	return TaskResponse{Job: job}, nil
}

type TaskDeleteRequest struct {
	Lane string `json:"lane"`
	ID   string `json:"id"`
}

func (d *Deps) TasksDelete(req TaskDeleteRequest) (TaskResponse, *apierr.Error) {
	if err := validateLane(req.Lane); err != nil {
		return TaskResponse{}, err
	}
	if req.ID == "" {
		return TaskResponse{}, apierr.New(apierr.InvalidRequest, "id is required")
	}

	job, ok := d.Jobs.GetByID(req.ID)
	if !ok {
		return TaskResponse{}, apierr.New(apierr.NotFound, "job not found: "+req.ID)
	}
	if err := requireMutable(req.Lane, &job); err != nil {
		return TaskResponse{}, err
	}

	beforeJSON := mustJSON(job)
	now := d.now()
	if err := d.Jobs.CancelTask(job.ID, now); err != nil {
		return TaskResponse{}, apierr.New(apierr.InternalError, err.Error())
	}
	job, _ = d.Jobs.GetByID(job.ID)

	afterJSON := mustJSON(job)
	_ = d.Audit.InsertTaskAudit(store.TaskAuditRecord{
		ID: uuid.NewString(), JobID: job.ID, Action: store.TaskAuditCancel,
		BeforeJSON: &beforeJSON, AfterJSON: &afterJSON, CreatedAt: now,
	})

	return TaskResponse{Job: job}, nil
}

type TaskListRequest struct {
	Lane string `json:"lane"`
}

type TaskListResponse struct {
	Jobs []store.Job `json:"jobs"`
}

// TasksList is allowed in either lane.
func (d *Deps) TasksList(req TaskListRequest) (TaskListResponse, *apierr.Error) {
	if req.Lane != "" {
		if err := validateLane(req.Lane); err != nil {
			return TaskListResponse{}, err
		}
	}
	return TaskListResponse{Jobs: d.Jobs.ListTasks()}, nil
}
