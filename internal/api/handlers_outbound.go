package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/apierr"
	"github.com/marcomuellner/otto/internal/store"
)

type QueueTelegramMessageRequest struct {
	SessionID *string `json:"sessionId,omitempty"`
	ChatID    *int64  `json:"chatId,omitempty"`
	Content   string  `json:"content"`
	DedupeKey *string `json:"dedupeKey,omitempty"`
	Priority  *string `json:"priority,omitempty"`
}

type QueueResponse struct {
	Status    store.EnqueueResult `json:"status"`
	MessageID string               `json:"messageId"`
}

// QueueTelegramMessage resolves chatId (explicit, session-bound, or the
// process default) and enqueues a text outbound record.
func (d *Deps) QueueTelegramMessage(req QueueTelegramMessageRequest) (QueueResponse, *apierr.Error) {
	if strings.TrimSpace(req.Content) == "" {
		return QueueResponse{}, apierr.New(apierr.InvalidRequest, "content is required")
	}

	chatID, err := d.resolveChatID(req.ChatID, req.SessionID)
	if err != nil {
		return QueueResponse{}, err
	}

	priority, perr := parsePriority(req.Priority)
	if perr != nil {
		return QueueResponse{}, perr
	}

	now := d.now()
	id := uuid.NewString()
	outcome, dbErr := d.Outbound.EnqueueOrIgnoreDedupe(store.OutboundMessage{
		ID:            id,
		ChatID:        chatID,
		Kind:          store.OutboundText,
		Content:       req.Content,
		Priority:      priority,
		DedupeKey:     req.DedupeKey,
		Status:        store.OutboundQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if dbErr != nil {
		return QueueResponse{}, apierr.New(apierr.InternalError, dbErr.Error())
	}
	return QueueResponse{Status: outcome, MessageID: id}, nil
}

type QueueTelegramFileRequest struct {
	SessionID *string `json:"sessionId,omitempty"`
	ChatID    *int64  `json:"chatId,omitempty"`
	Content   string  `json:"content"`
	DedupeKey *string `json:"dedupeKey,omitempty"`
	Priority  *string `json:"priority,omitempty"`

	Kind     string  `json:"kind"`
	FilePath string  `json:"filePath"`
	MimeType string  `json:"mimeType"`
	FileName *string `json:"fileName,omitempty"`
	Caption  *string `json:"caption,omitempty"`
}

// QueueTelegramFile stages filePath into the telegram-outbox directory
// under ottoHome and enqueues a document/photo outbound record.
func (d *Deps) QueueTelegramFile(req QueueTelegramFileRequest) (QueueResponse, *apierr.Error) {
	var kind store.OutboundKind
	switch req.Kind {
	case "document":
		kind = store.OutboundDocument
	case "photo":
		kind = store.OutboundPhoto
	default:
		return QueueResponse{}, apierr.New(apierr.InvalidRequest, "kind must be document or photo")
	}

	chatID, cerr := d.resolveChatID(req.ChatID, req.SessionID)
	if cerr != nil {
		return QueueResponse{}, cerr
	}

	priority, perr := parsePriority(req.Priority)
	if perr != nil {
		return QueueResponse{}, perr
	}

	stagedPath, filename, serr := d.stageFile(req.FilePath, req.FileName)
	if serr != nil {
		return QueueResponse{}, serr
	}

	now := d.now()
	id := uuid.NewString()
	content := ""
	if req.Caption != nil {
		content = *req.Caption
	}
	mime := req.MimeType
	outcome, dbErr := d.Outbound.EnqueueOrIgnoreDedupe(store.OutboundMessage{
		ID:            id,
		ChatID:        chatID,
		Kind:          kind,
		Content:       content,
		MediaPath:     &stagedPath,
		MediaMimeType: &mime,
		MediaFilename: &filename,
		Priority:      priority,
		DedupeKey:     req.DedupeKey,
		Status:        store.OutboundQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if dbErr != nil {
		return QueueResponse{}, apierr.New(apierr.InternalError, dbErr.Error())
	}
	return QueueResponse{Status: outcome, MessageID: id}, nil
}

// resolveChatID implements chatId = chatId ?? bindings.getTelegramChatIdBySessionId(sessionId) ?? default.
func (d *Deps) resolveChatID(chatID *int64, sessionID *string) (int64, *apierr.Error) {
	if chatID != nil {
		return *chatID, nil
	}
	if sessionID != nil && *sessionID != "" {
		if resolved, ok := d.Bindings.GetTelegramChatIDBySessionID(*sessionID); ok {
			return resolved, nil
		}
	}
	if d.DefaultChatID != nil {
		return *d.DefaultChatID, nil
	}
	return 0, apierr.New(apierr.MissingChat, "could not resolve a chat id")
}

func parsePriority(raw *string) (store.OutboundPriority, *apierr.Error) {
	if raw == nil || *raw == "" {
		return store.PriorityNormal, nil
	}
	switch store.OutboundPriority(*raw) {
	case store.PriorityLow, store.PriorityNormal, store.PriorityHigh, store.PriorityCritical:
		return store.OutboundPriority(*raw), nil
	default:
		return "", apierr.New(apierr.InvalidRequest, "invalid priority: "+*raw)
	}
}

// stageFile validates that srcPath resolves inside ottoHome, copies it into
// the outbox directory under a fresh name, and returns the staged path and
// display filename.
func (d *Deps) stageFile(srcPath string, requestedName *string) (string, string, *apierr.Error) {
	absHome, err := filepath.Abs(d.OttoHome)
	if err != nil {
		return "", "", apierr.New(apierr.InvalidFilePath, "could not resolve otto home")
	}
	absSrc, err := filepath.Abs(srcPath)
	if err != nil {
		return "", "", apierr.New(apierr.InvalidFilePath, "could not resolve file path")
	}
	absSrc = filepath.Clean(absSrc)
	if absSrc != absHome && !strings.HasPrefix(absSrc, absHome+string(filepath.Separator)) {
		return "", "", apierr.New(apierr.InvalidFilePath, "file path escapes otto home")
	}

	info, err := os.Stat(absSrc)
	if err != nil || info.IsDir() {
		return "", "", apierr.New(apierr.InvalidFilePath, "file is not readable")
	}
	if d.MaxFileBytes > 0 && info.Size() > d.MaxFileBytes {
		return "", "", apierr.New(apierr.FileTooLarge, fmt.Sprintf("file exceeds %d bytes", d.MaxFileBytes))
	}

	filename := filepath.Base(absSrc)
	if requestedName != nil && *requestedName != "" {
		filename = *requestedName
	}

	if err := os.MkdirAll(d.OutboxDir, 0o755); err != nil {
		return "", "", apierr.New(apierr.InternalError, "create outbox dir: "+err.Error())
	}
	destPath := filepath.Join(d.OutboxDir, uuid.NewString()+"_"+filename)

	src, err := os.Open(absSrc)
	if err != nil {
		return "", "", apierr.New(apierr.InvalidFilePath, "file is not readable")
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", "", apierr.New(apierr.InternalError, "create staged file: "+err.Error())
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(destPath)
		return "", "", apierr.New(apierr.InternalError, "stage file: "+err.Error())
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(destPath)
		return "", "", apierr.New(apierr.InternalError, "close staged file: "+err.Error())
	}

	return destPath, filename, nil
}
