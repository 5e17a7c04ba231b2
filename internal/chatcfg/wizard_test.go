package chatcfg

import "testing"

func TestWizardConsumeAPIKey(t *testing.T) {
	store := newTestStore(t)
	w := NewWizard(store)

	w.Begin("chat1", PendingAPIKey)
	if got := w.Pending("chat1"); got != PendingAPIKey {
		t.Errorf("Pending() = %q, want %q", got, PendingAPIKey)
	}

	kind, err := w.Consume("chat1", "  sk-secret \n")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if kind != PendingAPIKey {
		t.Errorf("Consume() kind = %q, want %q", kind, PendingAPIKey)
	}
	if got := store.Get("chat1").APIKey; got != "sk-secret" {
		t.Errorf("stored APIKey = %q, want %q", got, "sk-secret")
	}
	if got := w.Pending("chat1"); got != PendingNone {
		t.Errorf("Pending() after consume = %q, want none", got)
	}
}

func TestWizardConsumeBaseURL(t *testing.T) {
	store := newTestStore(t)
	w := NewWizard(store)

	w.Begin("chat1", PendingBaseURL)
	kind, err := w.Consume("chat1", "https://proxy.example/v1")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if kind != PendingBaseURL {
		t.Errorf("Consume() kind = %q", kind)
	}
	if got := store.Get("chat1").BaseURL; got != "https://proxy.example/v1" {
		t.Errorf("stored BaseURL = %q", got)
	}
}

func TestWizardDeclinesWhenIdle(t *testing.T) {
	store := newTestStore(t)
	w := NewWizard(store)

	kind, err := w.Consume("chat1", "just chatting")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if kind != PendingNone {
		t.Errorf("Consume() kind = %q, want none", kind)
	}
	if !store.Get("chat1").Empty() {
		t.Error("idle wizard should not write config")
	}
}

func TestWizardBeginOverwrites(t *testing.T) {
	store := newTestStore(t)
	w := NewWizard(store)

	w.Begin("chat1", PendingAPIKey)
	w.Begin("chat1", PendingBaseURL)

	kind, _ := w.Consume("chat1", "https://other.example/v1")
	if kind != PendingBaseURL {
		t.Errorf("Consume() kind = %q, want %q", kind, PendingBaseURL)
	}
	if got := store.Get("chat1").APIKey; got != "" {
		t.Errorf("APIKey = %q, want empty", got)
	}
}

func TestWizardCancel(t *testing.T) {
	w := NewWizard(newTestStore(t))

	if w.Cancel("chat1") {
		t.Error("Cancel() with nothing pending = true, want false")
	}

	w.Begin("chat1", PendingAPIKey)
	if !w.Cancel("chat1") {
		t.Error("Cancel() with pending = false, want true")
	}
	if got := w.Pending("chat1"); got != PendingNone {
		t.Errorf("Pending() after cancel = %q, want none", got)
	}
}

func TestWizardPerChatState(t *testing.T) {
	store := newTestStore(t)
	w := NewWizard(store)

	w.Begin("chat1", PendingAPIKey)

	kind, _ := w.Consume("chat2", "hello from another chat")
	if kind != PendingNone {
		t.Errorf("Consume() on other chat kind = %q, want none", kind)
	}
	if got := w.Pending("chat1"); got != PendingAPIKey {
		t.Errorf("chat1 pending = %q, want %q", got, PendingAPIKey)
	}
}
