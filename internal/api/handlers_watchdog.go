package api

import (
	"github.com/marcomuellner/otto/internal/apierr"
	"github.com/marcomuellner/otto/internal/watchdog"
)

type TasksFailuresCheckRequest struct {
	Lane             string   `json:"lane"`
	ChatID           *int64   `json:"chatId,omitempty"`
	LookbackMinutes  int      `json:"lookbackMinutes"`
	Threshold        int      `json:"threshold"`
	MaxFailures      int      `json:"maxFailures"`
	Notify           *bool    `json:"notify,omitempty"`
	ExcludeTaskTypes []string `json:"excludeTaskTypes,omitempty"`
}

type TasksFailuresCheckResponse struct {
	FailedCount        int    `json:"failedCount"`
	ShouldAlert        bool   `json:"shouldAlert"`
	NotificationStatus string `json:"notificationStatus"`
}

// TasksFailuresCheck invokes the same CheckTaskFailures logic the executor
// uses for the scheduled watchdog job, on demand. chatId resolves to the
// request's chatId, else the process default chat; unlike the outbound
// message endpoint, no session-binding lookup is made.
func (d *Deps) TasksFailuresCheck(req TasksFailuresCheckRequest) (TasksFailuresCheckResponse, *apierr.Error) {
	if req.Lane != "" {
		if err := validateLane(req.Lane); err != nil {
			return TasksFailuresCheckResponse{}, err
		}
	}

	lookback := req.LookbackMinutes
	if lookback == 0 {
		lookback = 60
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = 3
	}
	maxFailures := req.MaxFailures
	if maxFailures == 0 {
		maxFailures = 50
	}
	if lookback < 5 || lookback > 1440 {
		return TasksFailuresCheckResponse{}, apierr.New(apierr.InvalidWatchdogPayload, "lookbackMinutes must be within [5, 1440]")
	}
	if threshold < 1 || threshold > 50 {
		return TasksFailuresCheckResponse{}, apierr.New(apierr.InvalidWatchdogPayload, "threshold must be within [1, 50]")
	}
	if maxFailures < 1 || maxFailures > 200 {
		return TasksFailuresCheckResponse{}, apierr.New(apierr.InvalidWatchdogPayload, "maxFailures must be within [1, 200]")
	}

	notify := true
	if req.Notify != nil {
		notify = *req.Notify
	}

	chatID := req.ChatID
	if chatID == nil {
		chatID = d.DefaultChatID
	}

	result := watchdog.CheckTaskFailures(d.Jobs, d.Outbound, chatID, watchdog.Params{
		LookbackMinutes:  lookback,
		Threshold:        threshold,
		MaxFailures:      maxFailures,
		Notify:           notify,
		ExcludeTaskTypes: req.ExcludeTaskTypes,
	}, d.now())

	return TasksFailuresCheckResponse{
		FailedCount:        result.FailedCount,
		ShouldAlert:        result.ShouldAlert,
		NotificationStatus: string(result.NotificationStatus),
	}, nil
}
