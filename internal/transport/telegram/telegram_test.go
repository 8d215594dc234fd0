package telegram

import "testing"

func TestNewSender_RejectsEmptyToken(t *testing.T) {
	if _, err := NewSender(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
