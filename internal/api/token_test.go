package api

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveInternalApiConfig_GeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "internal-api.token")

	token, err := resolveInternalApiConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != tokenByteLen*2 {
		t.Fatalf("expected a %d-char hex token, got %d chars", tokenByteLen*2, len(token))
	}

	again, err := resolveInternalApiConfig(path)
	if err != nil {
		t.Fatalf("unexpected error on second resolve: %v", err)
	}
	if again != token {
		t.Fatalf("expected idempotent token, got %q then %q", token, again)
	}
}

func TestResolveInternalApiConfig_PersistsTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "internal-api.token")
	if _, err := resolveInternalApiConfig(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	if !strings.HasSuffix(string(raw), "\n") {
		t.Fatalf("expected trailing newline in persisted token file")
	}
}
