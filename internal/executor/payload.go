package executor

import "encoding/json"

// WatchdogPayload is the validated, defaulted watchdog job payload.
type WatchdogPayload struct {
	LookbackMinutes int    `json:"lookbackMinutes"`
	Threshold       int    `json:"threshold"`
	MaxFailures     int    `json:"maxFailures"`
	Notify          bool   `json:"notify"`
	ChatID          *int64 `json:"chatId,omitempty"`
}

// parseWatchdogPayload parses and defaults a job's raw payload per
// spec.md §4.E's watchdog dispatch case.
func parseWatchdogPayload(raw *string) WatchdogPayload {
	p := WatchdogPayload{LookbackMinutes: 60, Threshold: 3, MaxFailures: 50, Notify: true}
	if raw == nil {
		return p
	}
	// Unmarshal over the defaults so fields absent from the payload keep
	// their default rather than zeroing out.
	parsed := p
	if err := json.Unmarshal([]byte(*raw), &parsed); err != nil {
		return p
	}
	if parsed.LookbackMinutes < 5 || parsed.LookbackMinutes > 1440 {
		parsed.LookbackMinutes = p.LookbackMinutes
	}
	if parsed.Threshold < 1 || parsed.Threshold > 50 {
		parsed.Threshold = p.Threshold
	}
	if parsed.MaxFailures < 1 || parsed.MaxFailures > 200 {
		parsed.MaxFailures = p.MaxFailures
	}
	return parsed
}

// InteractiveBackgroundSource describes where a background request came
// from.
type InteractiveBackgroundSource struct {
	SessionID       *string `json:"sessionId,omitempty"`
	ChatID          *int64  `json:"chatId,omitempty"`
	SourceMessageID *string `json:"sourceMessageId,omitempty"`
	Surface         string  `json:"surface"`
}

// InteractiveBackgroundRequest is the user-facing ask of a background run.
type InteractiveBackgroundRequest struct {
	Text        string  `json:"text"`
	RequestedAt int64   `json:"requestedAt"`
	Rationale   *string `json:"rationale,omitempty"`
}

// InteractiveBackgroundPayload is the validated interactive-background-oneshot
// job payload.
type InteractiveBackgroundPayload struct {
	Version int                          `json:"version"`
	Source  InteractiveBackgroundSource  `json:"source"`
	Request InteractiveBackgroundRequest `json:"request"`
}

func parseInteractiveBackgroundPayload(raw *string) (InteractiveBackgroundPayload, error) {
	var p InteractiveBackgroundPayload
	if raw == nil {
		return p, errInvalidPayload
	}
	if err := json.Unmarshal([]byte(*raw), &p); err != nil {
		return p, errInvalidPayload
	}
	if p.Request.Text == "" {
		return p, errInvalidPayload
	}
	return p, nil
}
