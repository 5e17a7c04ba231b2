package chatlog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mnemochat/mnemo/internal/llm"
)

type fakeClient struct {
	complete func(llm.Request) (*llm.Completion, error)
	requests []llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.requests = append(f.requests, req)
	if f.complete != nil {
		return f.complete(req)
	}
	return &llm.Completion{}, nil
}

func (f *fakeClient) LookupModel(context.Context, llm.Credentials, string) (*llm.ModelInfo, error) {
	return nil, nil
}

func (f *fakeClient) GenerateImage(context.Context, llm.ImageRequest) ([]byte, error) {
	return nil, nil
}

func TestSummarizeUpdatesSummary(t *testing.T) {
	log := newTestLog(t, 50, 2, 3)
	client := &fakeClient{
		complete: func(llm.Request) (*llm.Completion, error) {
			return &llm.Completion{Content: "People discussed tea."}, nil
		},
	}
	sum := NewSummarizer(client, "gpt-4o", 1024, log)

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		log.Append("chat1", textEntry("ann", content), "")
	}

	sum.Summarize(context.Background(), "chat1", llm.Credentials{APIKey: "sk-test"})

	if got := log.Summary("chat1"); got != "People discussed tea." {
		t.Errorf("Summary = %q", got)
	}
	if len(client.requests) != 1 {
		t.Fatalf("client saw %d requests, want 1", len(client.requests))
	}

	req := client.requests[0]
	if !strings.Contains(req.System, "200 words") {
		t.Errorf("system instruction missing word limit: %q", req.System)
	}
	if req.Creds.APIKey != "sk-test" {
		t.Errorf("Creds.APIKey = %q", req.Creds.APIKey)
	}

	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "(none)") {
		t.Errorf("prompt should note missing previous summary: %q", prompt)
	}
	// Entries one..three are older history, four and five are the recent
	// window and must not be summarized away.
	if !strings.Contains(prompt, "three") {
		t.Errorf("prompt missing older entry: %q", prompt)
	}
	if strings.Contains(prompt, "four") || strings.Contains(prompt, "five") {
		t.Errorf("prompt should exclude the recent window: %q", prompt)
	}

	// Counter was reset, so the next message is not due again.
	if log.Append("chat1", textEntry("bob", "six"), "") {
		t.Error("Append() after summarization due = true, want false")
	}
}

func TestSummarizeMergesPrevious(t *testing.T) {
	log := newTestLog(t, 50, 1, 3)
	client := &fakeClient{
		complete: func(llm.Request) (*llm.Completion, error) {
			return &llm.Completion{Content: "updated"}, nil
		},
	}
	sum := NewSummarizer(client, "gpt-4o", 1024, log)

	log.SetSummary("chat1", "Ann likes oolong.")
	log.Append("chat1", textEntry("ann", "hello"), "")
	log.Append("chat1", textEntry("bob", "hi"), "")

	sum.Summarize(context.Background(), "chat1", llm.Credentials{})

	prompt := client.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "Ann likes oolong.") {
		t.Errorf("prompt missing previous summary: %q", prompt)
	}
	if got := log.Summary("chat1"); got != "updated" {
		t.Errorf("Summary = %q, want %q", got, "updated")
	}
}

func TestSummarizeFailureResetsCounter(t *testing.T) {
	log := newTestLog(t, 50, 1, 2)
	client := &fakeClient{
		complete: func(llm.Request) (*llm.Completion, error) {
			return nil, errors.New("backend down")
		},
	}
	sum := NewSummarizer(client, "gpt-4o", 1024, log)

	log.SetSummary("chat1", "previous")
	log.Append("chat1", textEntry("ann", "one"), "")
	log.Append("chat1", textEntry("bob", "two"), "")

	sum.Summarize(context.Background(), "chat1", llm.Credentials{})

	if got := log.Summary("chat1"); got != "previous" {
		t.Errorf("failed summarization changed summary to %q", got)
	}
	if log.Append("chat1", textEntry("ann", "three"), "") {
		t.Error("counter should reset on failure")
	}
}

func TestSummarizeNothingOlder(t *testing.T) {
	log := newTestLog(t, 50, 20, 2)
	client := &fakeClient{}
	sum := NewSummarizer(client, "gpt-4o", 1024, log)

	log.Append("chat1", textEntry("ann", "one"), "")
	log.Append("chat1", textEntry("bob", "two"), "")

	sum.Summarize(context.Background(), "chat1", llm.Credentials{})

	if len(client.requests) != 0 {
		t.Errorf("client saw %d requests, want 0", len(client.requests))
	}
	if log.Append("chat1", textEntry("ann", "three"), "") {
		t.Error("counter should reset even with nothing to summarize")
	}
}

func TestSummarizeEmptyResponseKeepsSummary(t *testing.T) {
	log := newTestLog(t, 50, 1, 2)
	client := &fakeClient{
		complete: func(llm.Request) (*llm.Completion, error) {
			return &llm.Completion{Content: "   "}, nil
		},
	}
	sum := NewSummarizer(client, "gpt-4o", 1024, log)

	log.SetSummary("chat1", "previous")
	log.Append("chat1", textEntry("ann", "one"), "")
	log.Append("chat1", textEntry("bob", "two"), "")

	sum.Summarize(context.Background(), "chat1", llm.Credentials{})

	if got := log.Summary("chat1"); got != "previous" {
		t.Errorf("blank summarization changed summary to %q", got)
	}
}

func TestFormatEntries(t *testing.T) {
	entries := []Entry{
		{Sender: "ann", Timestamp: "2024-01-01 12:00", Type: TypeText, Content: "hello"},
		{Sender: "bob", Timestamp: "2024-01-01 12:01", Type: TypeText, Content: "hi", ReplyTo: "ann"},
		{Sender: "ann", Type: TypeImage, Content: "[photo] sunset"},
	}

	got := FormatEntries(entries)
	want := "[2024-01-01 12:00] ann: hello\n" +
		"[2024-01-01 12:01] bob (replying to ann): hi\n" +
		"ann: [photo] sunset\n"
	if got != want {
		t.Errorf("FormatEntries() = %q, want %q", got, want)
	}
}
