package store

// ScheduleKind distinguishes one-shot from recurring jobs.
type ScheduleKind string

const (
	ScheduleOneshot   ScheduleKind = "oneshot"
	ScheduleRecurring ScheduleKind = "recurring"
)

// JobStatus is the job's current lifecycle state.
type JobStatus string

const (
	JobIdle    JobStatus = "idle"
	JobRunning JobStatus = "running"
	JobPaused  JobStatus = "paused"
)

// TerminalState marks a job that will never run again.
type TerminalState string

const (
	TerminalCompleted TerminalState = "completed"
	TerminalCancelled TerminalState = "cancelled"
	TerminalFailed    TerminalState = "failed"
)

// System-managed job types; tasks/* mutation endpoints refuse these.
const (
	JobTypeHeartbeat                  = "heartbeat"
	JobTypeWatchdogFailures           = "watchdog_failures"
	JobTypeInteractiveBackgroundOneshot = "interactive_background_oneshot"
)

// HeartbeatJobID is the well-known id ensureHeartbeatTask maintains.
const HeartbeatJobID = "system-heartbeat"

// Job is a single scheduled unit of work. Fields follow the spec's data
// model exactly; payload is an opaque JSON string interpreted by the
// executor per job.Type.
type Job struct {
	ID             string        `json:"id"`
	Type           string        `json:"type"`
	ScheduleKind   ScheduleKind  `json:"scheduleKind"`
	CadenceMinutes *int          `json:"cadenceMinutes,omitempty"`
	RunAt          *int64        `json:"runAt,omitempty"`
	ProfileID      *string       `json:"profileId,omitempty"`
	ModelRef       *string       `json:"modelRef,omitempty"`
	Payload        *string       `json:"payload,omitempty"`

	Status         JobStatus      `json:"status"`
	LastRunAt      *int64         `json:"lastRunAt,omitempty"`
	NextRunAt      *int64         `json:"nextRunAt,omitempty"`
	TerminalState  *TerminalState `json:"terminalState,omitempty"`
	TerminalReason *string        `json:"terminalReason,omitempty"`
	LockToken      *string        `json:"lockToken,omitempty"`
	LockExpiresAt  *int64         `json:"lockExpiresAt,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// IsDue reports whether the job is due at t per the spec's definition.
func (j *Job) IsDue(t int64) bool {
	if j.TerminalState != nil {
		return false
	}
	if j.Status != JobIdle {
		return false
	}
	if j.NextRunAt == nil || *j.NextRunAt > t {
		return false
	}
	if j.LockToken != nil && (j.LockExpiresAt == nil || *j.LockExpiresAt > t) {
		return false
	}
	return true
}

func (j *Job) IsSystemManaged() bool {
	switch j.Type {
	case JobTypeHeartbeat, JobTypeWatchdogFailures, JobTypeInteractiveBackgroundOneshot:
		return true
	default:
		return false
	}
}

// RunStatus is the outcome of a finished (or in-flight) run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// JobRun is one execution attempt belonging to a Job.
type JobRun struct {
	ID           string     `json:"id"`
	JobID        string     `json:"jobId"`
	ScheduledFor int64      `json:"scheduledFor"`
	StartedAt    int64      `json:"startedAt"`
	FinishedAt   *int64     `json:"finishedAt,omitempty"`
	Status       RunStatus  `json:"status"`
	ErrorCode    *string    `json:"errorCode,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	ResultJSON   *string    `json:"resultJson,omitempty"`
	CreatedAt    int64      `json:"createdAt"`
}

// JobRunSession is one agent-session used by a background run.
type JobRunSession struct {
	RunID             string  `json:"runId"`
	JobID             string  `json:"jobId"`
	SessionID         string  `json:"sessionId"`
	CreatedAt         int64   `json:"createdAt"`
	ClosedAt          *int64  `json:"closedAt,omitempty"`
	CloseErrorMessage *string `json:"closeErrorMessage,omitempty"`
}

type OutboundKind string

const (
	OutboundText     OutboundKind = "text"
	OutboundDocument OutboundKind = "document"
	OutboundPhoto    OutboundKind = "photo"
)

type OutboundPriority string

const (
	PriorityLow      OutboundPriority = "low"
	PriorityNormal   OutboundPriority = "normal"
	PriorityHigh     OutboundPriority = "high"
	PriorityCritical OutboundPriority = "critical"
)

type OutboundStatus string

const (
	OutboundQueued OutboundStatus = "queued"
	OutboundSent   OutboundStatus = "sent"
	OutboundFailed OutboundStatus = "failed"
)

// OutboundMessage is one queued delivery to a chat.
type OutboundMessage struct {
	ID              string           `json:"id"`
	ChatID          int64            `json:"chatId"`
	Kind            OutboundKind     `json:"kind"`
	Content         string           `json:"content"`
	MediaPath       *string          `json:"mediaPath,omitempty"`
	MediaMimeType   *string          `json:"mediaMimeType,omitempty"`
	MediaFilename   *string          `json:"mediaFilename,omitempty"`
	Priority        OutboundPriority `json:"priority"`
	DedupeKey       *string          `json:"dedupeKey,omitempty"`
	Status          OutboundStatus   `json:"status"`
	AttemptCount    int              `json:"attemptCount"`
	NextAttemptAt   int64            `json:"nextAttemptAt"`
	SentAt          *int64           `json:"sentAt,omitempty"`
	FailedAt        *int64           `json:"failedAt,omitempty"`
	ErrorMessage    *string          `json:"errorMessage,omitempty"`
	CreatedAt       int64            `json:"createdAt"`
	UpdatedAt       int64            `json:"updatedAt"`
}

// IsDue reports whether the message is due for an attempt at t.
func (m *OutboundMessage) IsDue(t int64) bool {
	return m.Status == OutboundQueued && m.NextAttemptAt <= t
}

type QuietMode string

const (
	QuietCriticalOnly QuietMode = "critical_only"
	QuietOff          QuietMode = "off"
)

// UserProfile is the singleton notification-policy record.
type UserProfile struct {
	Timezone                string     `json:"timezone"`
	QuietHoursStart         *string    `json:"quietHoursStart,omitempty"`
	QuietHoursEnd           *string    `json:"quietHoursEnd,omitempty"`
	QuietMode               QuietMode  `json:"quietMode"`
	MuteUntil               *int64     `json:"muteUntil,omitempty"`
	HeartbeatMorning        *string    `json:"heartbeatMorning,omitempty"`
	HeartbeatMidday         *string    `json:"heartbeatMidday,omitempty"`
	HeartbeatEvening        *string    `json:"heartbeatEvening,omitempty"`
	HeartbeatCadenceMinutes int        `json:"heartbeatCadenceMinutes"`
	HeartbeatOnlyIfSignal   bool       `json:"heartbeatOnlyIfSignal"`
	OnboardingCompletedAt   *int64     `json:"onboardingCompletedAt,omitempty"`
	LastDigestAt            *int64     `json:"lastDigestAt,omitempty"`
	UpdatedAt               int64      `json:"updatedAt"`
}

// SessionBinding maps a binding key (chat or recurring task identity) to a
// persistent agent session id, and carries the chat id for reverse lookup.
type SessionBinding struct {
	BindingKey string `json:"bindingKey"`
	SessionID  string `json:"sessionId"`
	ChatID     *int64 `json:"chatId,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

type TaskAuditAction string

const (
	TaskAuditCreate TaskAuditAction = "create"
	TaskAuditUpdate TaskAuditAction = "update"
	TaskAuditCancel TaskAuditAction = "cancel"
	TaskAuditRunNow TaskAuditAction = "run_now"
)

// TaskAuditRecord is one append-only mutation log entry for a job.
type TaskAuditRecord struct {
	ID         string          `json:"id"`
	JobID      string          `json:"jobId"`
	Action     TaskAuditAction `json:"action"`
	BeforeJSON *string         `json:"beforeJson,omitempty"`
	AfterJSON  *string         `json:"afterJson,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
}

type CommandOutcome string

const (
	CommandSuccess CommandOutcome = "success"
	CommandFailed  CommandOutcome = "failed"
	CommandDenied  CommandOutcome = "denied"
)

// CommandAuditRecord is one append-only control-plane call log entry.
type CommandAuditRecord struct {
	ID           string         `json:"id"`
	Command      string         `json:"command"`
	Lane         string         `json:"lane"`
	Status       CommandOutcome `json:"status"`
	MetadataJSON *string        `json:"metadataJson,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    int64          `json:"createdAt"`
}
