package chatlog

import (
	"fmt"
	"path/filepath"
	"testing"
)

func newTestLog(t *testing.T, capacity, recent, interval int) *Log {
	t.Helper()
	store := NewSummaryStore(filepath.Join(t.TempDir(), "summaries.json"))
	return NewLog(capacity, recent, interval, store)
}

func textEntry(sender, content string) Entry {
	return Entry{Sender: sender, Timestamp: "2024-01-01 12:00", Type: TypeText, Content: content}
}

func TestLogAppendDue(t *testing.T) {
	log := newTestLog(t, 10, 5, 3)

	if log.Append("chat1", textEntry("ann", "one"), "") {
		t.Error("Append() #1 due = true, want false")
	}
	if log.Append("chat1", textEntry("bob", "two"), "") {
		t.Error("Append() #2 due = true, want false")
	}
	if !log.Append("chat1", textEntry("ann", "three"), "") {
		t.Error("Append() #3 due = false, want true")
	}
	// Stays due until the counter resets.
	if !log.Append("chat1", textEntry("bob", "four"), "") {
		t.Error("Append() #4 due = false, want true")
	}

	log.ResetCounter("chat1")
	if log.Append("chat1", textEntry("ann", "five"), "") {
		t.Error("Append() after reset due = true, want false")
	}
}

func TestLogCapacityTrim(t *testing.T) {
	log := newTestLog(t, 5, 3, 100)

	for i := 1; i <= 7; i++ {
		log.Append("chat1", textEntry("ann", fmt.Sprintf("m%d", i)), "")
	}

	older := log.Older("chat1")
	if len(older) != 2 {
		t.Fatalf("Older() returned %d entries, want 2", len(older))
	}
	if older[0].Content != "m3" || older[1].Content != "m4" {
		t.Errorf("Older() = %q, %q, want m3, m4", older[0].Content, older[1].Content)
	}

	ctx, ok := log.Context("chat1")
	if !ok {
		t.Fatal("Context() ok = false")
	}
	if len(ctx.Recent) != 3 {
		t.Fatalf("Recent has %d entries, want 3", len(ctx.Recent))
	}
	if ctx.Recent[0].Content != "m5" || ctx.Recent[2].Content != "m7" {
		t.Errorf("Recent = %q..%q, want m5..m7", ctx.Recent[0].Content, ctx.Recent[2].Content)
	}
}

func TestLogOlderExcludesRecentWindow(t *testing.T) {
	log := newTestLog(t, 200, 20, 100)

	for i := 1; i <= 25; i++ {
		log.Append("chat1", textEntry("ann", fmt.Sprintf("m%d", i)), "")
	}

	older := log.Older("chat1")
	if len(older) != 5 {
		t.Fatalf("Older() returned %d entries, want 5", len(older))
	}
	if older[0].Content != "m1" || older[4].Content != "m5" {
		t.Errorf("Older() = %q..%q, want m1..m5", older[0].Content, older[4].Content)
	}
}

func TestLogOlderUnderWindow(t *testing.T) {
	log := newTestLog(t, 200, 20, 100)

	for i := 0; i < 20; i++ {
		log.Append("chat1", textEntry("ann", "hi"), "")
	}
	if got := log.Older("chat1"); got != nil {
		t.Errorf("Older() = %d entries, want nil", len(got))
	}
	if got := log.Older("nochat"); got != nil {
		t.Errorf("Older() for unknown chat = %d entries, want nil", len(got))
	}
}

func TestLogContextAbsent(t *testing.T) {
	log := newTestLog(t, 10, 5, 3)

	if _, ok := log.Context("nochat"); ok {
		t.Error("Context() ok = true for unknown chat, want false")
	}
}

func TestLogContextTitleAndSummary(t *testing.T) {
	log := newTestLog(t, 10, 5, 3)

	log.Append("chat1", textEntry("ann", "hello"), "Tea Club")
	log.Append("chat1", textEntry("bob", "hi"), "")

	if err := log.SetSummary("chat1", "Ann and Bob said hello."); err != nil {
		t.Fatalf("SetSummary() error = %v", err)
	}

	ctx, ok := log.Context("chat1")
	if !ok {
		t.Fatal("Context() ok = false")
	}
	if ctx.Title != "Tea Club" {
		t.Errorf("Title = %q, want %q", ctx.Title, "Tea Club")
	}
	if ctx.Summary != "Ann and Bob said hello." {
		t.Errorf("Summary = %q", ctx.Summary)
	}
	if len(ctx.Recent) != 2 {
		t.Errorf("Recent has %d entries, want 2", len(ctx.Recent))
	}
}

func TestLogPendingChats(t *testing.T) {
	log := newTestLog(t, 10, 5, 3)

	log.Append("chat1", textEntry("ann", "hello"), "")
	log.Append("chat2", textEntry("bob", "hi"), "")
	log.ResetCounter("chat2")

	pending := log.PendingChats()
	if len(pending) != 1 || pending[0] != "chat1" {
		t.Errorf("PendingChats() = %v, want [chat1]", pending)
	}
}

func TestSummaryStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.json")

	store := NewSummaryStore(path)
	if err := store.Set("chat1", "the story so far"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened := NewSummaryStore(path)
	if got := reopened.Get("chat1"); got != "the story so far" {
		t.Errorf("Get() after reopen = %q", got)
	}
	if got := reopened.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}
