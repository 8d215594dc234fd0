// Package sessiongateway implements the agent session boundary the
// scheduler's executor talks to: persistent per-session JSONL transcripts
// backing non-streaming calls to the Anthropic Messages API.
package sessiongateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/executor"
	"github.com/marcomuellner/otto/internal/pkg/logs"
)

var _ executor.SessionGateway = (*Manager)(nil)
var _ executor.SessionController = (*Manager)(nil)

// completer is the subset of AnthropicClient the manager depends on,
// narrowed so tests can substitute a fake.
type completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}

// Manager is the concrete executor.SessionGateway: it owns no in-memory
// conversation state between calls, reloading each session's transcript
// from disk before every prompt so it survives process restarts.
type Manager struct {
	client     completer
	transcript TranscriptStore
}

func NewManager(client *AnthropicClient, transcript TranscriptStore) *Manager {
	return &Manager{client: client, transcript: transcript}
}

// EnsureSession returns existingSessionID unchanged when set, else mints a
// fresh session id. The transcript file is created lazily on first Append.
func (m *Manager) EnsureSession(ctx context.Context, existingSessionID *string) (string, error) {
	if existingSessionID != nil && *existingSessionID != "" {
		return *existingSessionID, nil
	}
	return uuid.NewString(), nil
}

// PromptSession appends prompt to the session transcript, replays the full
// history through the Anthropic client, and appends the reply before
// returning it.
func (m *Manager) PromptSession(ctx context.Context, sessionID, prompt string, opts executor.PromptOptions) (string, error) {
	now := time.Now().UnixMilli()

	if err := m.transcript.Append(ctx, sessionID, Message{Role: "user", Content: prompt, At: now}); err != nil {
		return "", fmt.Errorf("append prompt to transcript: %w", err)
	}

	history, err := m.transcript.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}

	systemPrompt := ""
	if opts.SystemPrompt != nil {
		systemPrompt = *opts.SystemPrompt
	}

	reply, err := m.client.Complete(ctx, systemPrompt, history)
	if err != nil {
		return "", fmt.Errorf("complete session %s: %w", sessionID, err)
	}

	if err := m.transcript.Append(ctx, sessionID, Message{Role: "assistant", Content: reply, At: time.Now().UnixMilli()}); err != nil {
		logs.CtxWarn(ctx, "[sessiongateway] failed to append assistant reply for %s: %v", sessionID, err)
	}

	return reply, nil
}

// CloseSession is best-effort bookkeeping: the transcript itself stays on
// disk (internal/store's run-session rows, not this file, are the
// authoritative record of a session's lifecycle), so closing never fails
// the caller's own cleanup path.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	logs.CtxInfo(ctx, "[sessiongateway] session %s closed", sessionID)
	return nil
}
