package store

import "testing"

func TestOutboundRepository_EnqueueOrIgnoreDedupe_Uniqueness(t *testing.T) {
	r := NewOutboundRepository(t.TempDir())

	key := "watchdog:abc123"
	msg1 := OutboundMessage{ID: "m1", ChatID: 1, Kind: OutboundText, Content: "first", Priority: PriorityHigh, DedupeKey: &key, Status: OutboundQueued, CreatedAt: 1}
	result, err := r.EnqueueOrIgnoreDedupe(msg1)
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if result != EnqueueInserted {
		t.Fatalf("first enqueue result = %s, want enqueued", result)
	}

	msg2 := OutboundMessage{ID: "m2", ChatID: 1, Kind: OutboundText, Content: "second", Priority: PriorityHigh, DedupeKey: &key, Status: OutboundQueued, CreatedAt: 2}
	result, err = r.EnqueueOrIgnoreDedupe(msg2)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if result != EnqueueDuplicate {
		t.Fatalf("second enqueue result = %s, want duplicate", result)
	}

	due := r.ListDue(100)
	count := 0
	for _, m := range due {
		if m.DedupeKey != nil && *m.DedupeKey == key {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("records with dedupeKey %q = %d, want 1", key, count)
	}
}

func TestOutboundRepository_ListDue_OrderedByNextAttemptThenInsertion(t *testing.T) {
	r := NewOutboundRepository(t.TempDir())
	_ = r.Enqueue(OutboundMessage{ID: "late", ChatID: 1, Kind: OutboundText, Priority: PriorityNormal, Status: OutboundQueued, NextAttemptAt: 200, CreatedAt: 1})
	_ = r.Enqueue(OutboundMessage{ID: "early", ChatID: 1, Kind: OutboundText, Priority: PriorityNormal, Status: OutboundQueued, NextAttemptAt: 100, CreatedAt: 2})

	due := r.ListDue(1000)
	if len(due) != 2 || due[0].ID != "early" || due[1].ID != "late" {
		t.Fatalf("ListDue order: got %v", due)
	}
}

func TestOutboundRepository_MarkSent_RemovesFromDue(t *testing.T) {
	r := NewOutboundRepository(t.TempDir())
	_ = r.Enqueue(OutboundMessage{ID: "m1", ChatID: 1, Kind: OutboundText, Priority: PriorityNormal, Status: OutboundQueued, NextAttemptAt: 100, CreatedAt: 1})

	if err := r.MarkSent("m1", 1, 500); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	due := r.ListDue(1000)
	if len(due) != 0 {
		t.Fatalf("expected no due messages after MarkSent, got %v", due)
	}
}

func TestOutboundRepository_MarkRetry_ReschedulesNextAttempt(t *testing.T) {
	r := NewOutboundRepository(t.TempDir())
	_ = r.Enqueue(OutboundMessage{ID: "m1", ChatID: 1, Kind: OutboundText, Priority: PriorityNormal, Status: OutboundQueued, NextAttemptAt: 100, CreatedAt: 1})

	if err := r.MarkRetry("m1", 1, 9999, "suppressed_by_policy:quiet_hours", 500); err != nil {
		t.Fatalf("MarkRetry: %v", err)
	}

	m, ok := r.GetByID("m1")
	if !ok {
		t.Fatal("message not found")
	}
	if m.NextAttemptAt != 9999 {
		t.Errorf("nextAttemptAt = %d, want 9999", m.NextAttemptAt)
	}
	if m.ErrorMessage == nil || *m.ErrorMessage != "suppressed_by_policy:quiet_hours" {
		t.Errorf("errorMessage = %v", m.ErrorMessage)
	}
}
