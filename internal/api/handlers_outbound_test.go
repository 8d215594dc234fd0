package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marcomuellner/otto/internal/apierr"
)

func TestQueueTelegramMessage_RequiresChatID(t *testing.T) {
	d := newTestDeps(t)
	_, apiErr := d.QueueTelegramMessage(QueueTelegramMessageRequest{Content: "hi"})
	if apiErr == nil || apiErr.Kind != apierr.MissingChat {
		t.Fatalf("expected missing_chat error, got %v", apiErr)
	}
}

func TestQueueTelegramMessage_ExplicitChatID(t *testing.T) {
	d := newTestDeps(t)
	chatID := int64(42)
	resp, apiErr := d.QueueTelegramMessage(QueueTelegramMessageRequest{ChatID: &chatID, Content: "hi"})
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if resp.MessageID == "" {
		t.Fatal("expected a message id")
	}
}

func TestQueueTelegramMessage_EmptyContentRejected(t *testing.T) {
	d := newTestDeps(t)
	chatID := int64(1)
	_, apiErr := d.QueueTelegramMessage(QueueTelegramMessageRequest{ChatID: &chatID, Content: "  "})
	if apiErr == nil || apiErr.Kind != apierr.InvalidRequest {
		t.Fatalf("expected invalid_request error, got %v", apiErr)
	}
}

func TestQueueTelegramFile_RejectsPathEscape(t *testing.T) {
	d := newTestDeps(t)
	chatID := int64(1)

	outside := t.TempDir()
	srcPath := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(srcPath, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	_, apiErr := d.QueueTelegramFile(QueueTelegramFileRequest{
		ChatID: &chatID, Kind: "document", FilePath: srcPath, MimeType: "text/plain",
	})
	if apiErr == nil || apiErr.Kind != apierr.InvalidFilePath {
		t.Fatalf("expected invalid_file_path error, got %v", apiErr)
	}
}

func TestQueueTelegramFile_StagesWithinOttoHome(t *testing.T) {
	d := newTestDeps(t)
	chatID := int64(1)

	srcPath := filepath.Join(d.OttoHome, "report.txt")
	if err := os.WriteFile(srcPath, []byte("contents"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	resp, apiErr := d.QueueTelegramFile(QueueTelegramFileRequest{
		ChatID: &chatID, Kind: "document", FilePath: srcPath, MimeType: "text/plain",
	})
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if resp.MessageID == "" {
		t.Fatal("expected a message id")
	}

	entries, err := os.ReadDir(d.OutboxDir)
	if err != nil {
		t.Fatalf("read outbox dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one staged file, got %d", len(entries))
	}
}

func TestQueueTelegramFile_RejectsTooLarge(t *testing.T) {
	d := newTestDeps(t)
	d.MaxFileBytes = 4
	chatID := int64(1)

	srcPath := filepath.Join(d.OttoHome, "report.txt")
	if err := os.WriteFile(srcPath, []byte("way too long"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	_, apiErr := d.QueueTelegramFile(QueueTelegramFileRequest{
		ChatID: &chatID, Kind: "document", FilePath: srcPath, MimeType: "text/plain",
	})
	if apiErr == nil || apiErr.Kind != apierr.FileTooLarge {
		t.Fatalf("expected file_too_large error, got %v", apiErr)
	}
}
