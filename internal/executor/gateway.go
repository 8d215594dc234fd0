package executor

import "context"

// PromptOptions carries the optional per-call shaping a session gateway may
// use when talking to the underlying model.
type PromptOptions struct {
	SystemPrompt *string
	Tools        []string
	Agent        string
	ModelContext map[string]any
}

// SessionGateway is the external agent session boundary: opening sessions,
// prompting them, and optionally tearing them down. Implemented by
// internal/sessiongateway.
type SessionGateway interface {
	EnsureSession(ctx context.Context, existingSessionID *string) (string, error)
	PromptSession(ctx context.Context, sessionID, prompt string, opts PromptOptions) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// SessionController is the narrower surface used by background-job
// cancellation (control-plane `background-jobs/cancel`).
type SessionController interface {
	CloseSession(ctx context.Context, sessionID string) error
}
