// Package executor implements the task execution engine: claims a job,
// dispatches it by type, parses the agent's structured result, and
// advances the job's schedule state.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/heartbeat"
	"github.com/marcomuellner/otto/internal/pkg/logs"
	"github.com/marcomuellner/otto/internal/schedule"
	"github.com/marcomuellner/otto/internal/store"
	"github.com/marcomuellner/otto/internal/watchdog"
)

var errInvalidPayload = errors.New("invalid payload")

// Executor dispatches claimed jobs to their type-specific handling and
// finalizes the run and schedule transition.
type Executor struct {
	Jobs        *store.JobRepository
	RunSessions *store.RunSessionRepository
	Outbound    *store.OutboundRepository
	Profile     *store.ProfileRepository
	Bindings    *store.BindingRepository
	Gateway     SessionGateway

	DefaultChatID *int64
	NowFn         func() int64
}

func now(e *Executor) int64 {
	if e.NowFn != nil {
		return e.NowFn()
	}
	return unixMilliNow()
}

// ExecuteClaimedJob runs one claimed job to completion. job.LockToken must
// be set; a nil token is a programmer error (the kernel only ever calls
// this with jobs fresh from claimDue).
func (e *Executor) ExecuteClaimedJob(ctx context.Context, job store.Job) {
	if job.LockToken == nil {
		logs.CtxError(ctx, "[executor] executeClaimedJob called with no lockToken: %s", job.ID)
		return
	}
	lockToken := *job.LockToken

	startedAt := now(e)
	runID := uuid.NewString()
	if err := e.Jobs.InsertRun(store.JobRun{
		ID:           runID,
		JobID:        job.ID,
		ScheduledFor: startedAt,
		StartedAt:    startedAt,
		Status:       store.RunSkipped,
		CreatedAt:    startedAt,
	}); err != nil {
		logs.CtxError(ctx, "[executor] insert placeholder run for %s: %v", job.ID, err)
		e.release(ctx, job.ID, lockToken)
		return
	}

	result := e.dispatch(ctx, job, runID)
	e.finishRun(ctx, job, lockToken, runID, result)
}

// dispatch routes a claimed job to its type-specific handler.
func (e *Executor) dispatch(ctx context.Context, job store.Job, runID string) StructuredResult {
	switch job.Type {
	case store.JobTypeWatchdogFailures:
		return e.runWatchdog(job)
	case store.JobTypeHeartbeat:
		return e.runHeartbeat(job)
	case store.JobTypeInteractiveBackgroundOneshot:
		return e.runInteractiveBackground(ctx, job, runID)
	default:
		return e.runScheduledTask(ctx, job)
	}
}

func (e *Executor) runWatchdog(job store.Job) StructuredResult {
	payload := parseWatchdogPayload(job.Payload)
	chatID := payload.ChatID
	if chatID == nil {
		chatID = e.DefaultChatID
	}

	result := watchdog.CheckTaskFailures(e.Jobs, e.Outbound, chatID, watchdog.Params{
		LookbackMinutes: payload.LookbackMinutes,
		Threshold:       payload.Threshold,
		MaxFailures:     payload.MaxFailures,
		Notify:          payload.Notify,
	}, now(e))

	if result.ShouldAlert && result.NotificationStatus == watchdog.NotificationNoChatID {
		return StructuredResult{
			Status:  ResultFailed,
			Summary: "watchdog alert suppressed: no chat id configured",
			Errors: []StructuredError{{
				Code:    "watchdog_notification_unavailable",
				Message: "no default chat id configured for watchdog alerts",
			}},
		}
	}

	return StructuredResult{
		Status: ResultSuccess,
		Summary: fmt.Sprintf("examined failures, shouldAlert=%v, notification=%s",
			result.ShouldAlert, result.NotificationStatus),
	}
}

func (e *Executor) runHeartbeat(job store.Job) StructuredResult {
	var payload heartbeat.Payload
	if job.Payload != nil {
		_ = parseJSONInto(*job.Payload, &payload)
	}
	result := heartbeat.Execute(e.Jobs, e.Outbound, e.Profile, payload, e.DefaultChatID, now(e))
	return StructuredResult{
		Status:  ResultSuccess,
		Summary: fmt.Sprintf("heartbeat emitted=%v reason=%s", result.Emitted, result.Reason),
	}
}

func (e *Executor) runInteractiveBackground(ctx context.Context, job store.Job, runID string) StructuredResult {
	payload, err := parseInteractiveBackgroundPayload(job.Payload)
	if err != nil {
		return StructuredResult{Status: ResultFailed, Summary: "invalid background payload", Errors: []StructuredError{{Code: "invalid_task_payload", Message: err.Error()}}}
	}

	chatID := resolveLifecycleChatID(payload, e.Bindings, e.DefaultChatID)
	if chatID != nil {
		e.enqueueLifecycle(*chatID, "Started your background run...", store.PriorityNormal,
			fmt.Sprintf("bg-run:%s:%s:started", job.ID, runID))
	}

	sessionID, sessErr := e.Gateway.EnsureSession(ctx, nil)
	if sessErr != nil {
		return e.finishBackgroundRun(ctx, job, runID, chatID, StructuredResult{
			Status: ResultFailed, Summary: "could not open session",
			Errors: []StructuredError{{Code: "task_execution_error", Message: sessErr.Error()}},
		})
	}

	if err := e.RunSessions.Insert(store.JobRunSession{RunID: runID, JobID: job.ID, SessionID: sessionID, CreatedAt: now(e)}); err != nil {
		logs.CtxWarn(ctx, "[executor] insert run session for %s: %v", runID, err)
	}

	text, promptErr := e.Gateway.PromptSession(ctx, sessionID, backgroundPrompt(payload), PromptOptions{
		Agent:        "assistant",
		ModelContext: map[string]any{"flow": "interactiveAssistant", "jobModelRef": job.ModelRef},
	})

	var result StructuredResult
	if promptErr != nil {
		result = StructuredResult{Status: ResultFailed, Summary: "agent session failed", Errors: []StructuredError{{Code: "task_execution_error", Message: promptErr.Error()}}}
	} else {
		result = ParseStructuredResult(text)
	}

	return e.finishBackgroundRun(ctx, job, runID, chatID, result)
}

// finishBackgroundRun performs the scoped cleanup every exit path of an
// interactive background run must go through: close the session, mark the
// run-session closed, and enqueue the final lifecycle message.
func (e *Executor) finishBackgroundRun(ctx context.Context, job store.Job, runID string, chatID *int64, result StructuredResult) StructuredResult {
	runSessions := e.RunSessions.ListByJobID(job.ID)
	var sessionID string
	for _, s := range runSessions {
		if s.RunID == runID {
			sessionID = s.SessionID
			break
		}
	}

	var closeErrMsg *string
	if sessionID != "" {
		if err := e.Gateway.CloseSession(ctx, sessionID); err != nil {
			msg := err.Error()
			closeErrMsg = &msg
		}
		if err := e.RunSessions.MarkClosed(runID, now(e), closeErrMsg); err != nil {
			logs.CtxWarn(ctx, "[executor] mark run session closed for %s: %v", runID, err)
		}
	}

	if chatID != nil {
		final := "final_success"
		priority := store.PriorityNormal
		switch {
		case result.Status == ResultFailed || result.ParseFailed:
			final = "final_failed"
			priority = store.PriorityHigh
		case result.Status == ResultSkipped:
			final = "final_skipped"
		}
		e.enqueueLifecycle(*chatID, lifecycleFinalText(result), priority,
			fmt.Sprintf("bg-run:%s:%s:%s", job.ID, runID, final))
	}

	return result
}

func lifecycleFinalText(result StructuredResult) string {
	if result.ParseFailed {
		return "Your background run finished, but its result could not be parsed."
	}
	return result.Summary
}

func (e *Executor) enqueueLifecycle(chatID int64, content string, priority store.OutboundPriority, dedupeKey string) {
	ts := now(e)
	_, _ = e.Outbound.EnqueueOrIgnoreDedupe(store.OutboundMessage{
		ID:            uuid.NewString(),
		ChatID:        chatID,
		Kind:          store.OutboundText,
		Content:       content,
		Priority:      priority,
		DedupeKey:     &dedupeKey,
		Status:        store.OutboundQueued,
		NextAttemptAt: ts,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	})
}

// resolveLifecycleChatID resolves in order: payload chatId, session-binding
// lookup by sourceSessionId, default chat id.
func resolveLifecycleChatID(payload InteractiveBackgroundPayload, bindings *store.BindingRepository, defaultChatID *int64) *int64 {
	if payload.Source.ChatID != nil {
		return payload.Source.ChatID
	}
	if payload.Source.SessionID != nil {
		if chatID, ok := bindings.GetTelegramChatIDBySessionID(*payload.Source.SessionID); ok {
			return &chatID
		}
	}
	return defaultChatID
}

func (e *Executor) runScheduledTask(ctx context.Context, job store.Job) StructuredResult {
	bindingKey := fmt.Sprintf("scheduler:task:%s:assistant", job.ID)
	var existing *string
	if binding, ok := e.Bindings.GetByBindingKey(bindingKey); ok {
		sessionID := binding.SessionID
		existing = &sessionID
	}

	sessionID, err := e.Gateway.EnsureSession(ctx, existing)
	if err != nil {
		return StructuredResult{Status: ResultFailed, Summary: "could not open session", Errors: []StructuredError{{Code: "task_execution_error", Message: err.Error()}}}
	}
	if existing == nil || *existing != sessionID {
		ts := now(e)
		if err := e.Bindings.Upsert(store.SessionBinding{BindingKey: bindingKey, SessionID: sessionID, CreatedAt: ts, UpdatedAt: ts}); err != nil {
			logs.CtxWarn(ctx, "[executor] upsert binding for %s: %v", job.ID, err)
		}
	}

	text, err := e.Gateway.PromptSession(ctx, sessionID, scheduledTaskPrompt(job.ID, job.Payload), PromptOptions{Agent: "assistant"})
	if err != nil {
		return StructuredResult{Status: ResultFailed, Summary: "agent session failed", Errors: []StructuredError{{Code: "task_execution_error", Message: err.Error()}}}
	}
	return ParseStructuredResult(text)
}

// finishRun maps the dispatch result onto a run status, finalizes the run
// row, and resolves the schedule transition.
func (e *Executor) finishRun(ctx context.Context, job store.Job, lockToken, runID string, result StructuredResult) {
	finishedAt := now(e)

	status, errorCode, errorMessage := runOutcome(result)
	resultJSON := result.MarshalForStorage()
	if err := e.Jobs.MarkRunFinished(runID, status, finishedAt, errorCode, errorMessage, &resultJSON); err != nil {
		logs.CtxError(ctx, "[executor] mark run finished for %s: %v", runID, err)
	}

	transition, err := schedule.ResolveScheduleTransition(job, finishedAt)
	if err != nil {
		logs.CtxWarn(ctx, "[executor] schedule transition for %s: %v, releasing lock", job.ID, err)
		e.release(ctx, job.ID, lockToken)
		return
	}

	switch transition.Mode {
	case schedule.ModeReschedule:
		if err := e.Jobs.RescheduleRecurring(job.ID, lockToken, transition.LastRunAt, transition.NextRunAt, finishedAt); err != nil {
			logs.CtxError(ctx, "[executor] reschedule %s: %v", job.ID, err)
		}
	case schedule.ModeFinalize:
		if err := e.Jobs.FinalizeOneShot(job.ID, lockToken, transition.TerminalState, transition.TerminalReason, transition.LastRunAt, finishedAt); err != nil {
			logs.CtxError(ctx, "[executor] finalize %s: %v", job.ID, err)
		}
	}
}

func runOutcome(result StructuredResult) (store.RunStatus, *string, *string) {
	switch {
	case result.ParseFailed:
		code := result.ErrorCode
		message := "could not parse structured result"
		return store.RunFailed, &code, &message
	case result.Status == ResultSkipped:
		return store.RunSkipped, nil, nil
	case result.Status == ResultSuccess:
		return store.RunSuccess, nil, nil
	default:
		code := "task_failed"
		message := result.Summary
		if len(result.Errors) > 0 {
			code = result.Errors[0].Code
			message = result.Errors[0].Message
		}
		return store.RunFailed, &code, &message
	}
}

func (e *Executor) release(ctx context.Context, jobID, lockToken string) {
	if err := e.Jobs.ReleaseLock(jobID, lockToken, now(e)); err != nil {
		logs.CtxWarn(ctx, "[executor] release lock for %s: %v", jobID, err)
	}
}
