package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mnemochat/mnemo/internal/bus"
	"github.com/mnemochat/mnemo/internal/config"
)

type mockChannel struct {
	name     string
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stopped bool
	sent    []bus.OutboundMessage
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return m.startErr
}

func (m *mockChannel) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return m.stopErr
}

func (m *mockChannel) Send(msg bus.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockChannel) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newTestManager(b *bus.MessageBus, chs ...*mockChannel) *Manager {
	m := NewManagerWithChannels(b)
	for _, ch := range chs {
		m.register(ch)
	}
	return m
}

func TestNewManager(t *testing.T) {
	b := bus.NewMessageBus(10)
	cfg := config.DefaultConfig()
	cfg.Telegram.Token = "fake-token"

	m, err := NewManager(cfg, b)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if _, ok := m.Get("telegram"); !ok {
		t.Error("telegram channel not registered")
	}
	names := m.Names()
	if len(names) != 1 || names[0] != "telegram" {
		t.Errorf("Names = %v, want [telegram]", names)
	}
}

func TestNewManagerNoToken(t *testing.T) {
	b := bus.NewMessageBus(10)
	if _, err := NewManager(config.DefaultConfig(), b); err == nil {
		t.Error("expected error without a telegram token")
	}
}

func TestManagerStartStopAll(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := &mockChannel{name: "mock"}
	m := newTestManager(b, ch)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	if !ch.started {
		t.Error("channel not started")
	}

	if err := m.StopAll(); err != nil {
		t.Fatalf("StopAll error: %v", err)
	}
	if !ch.stopped {
		t.Error("channel not stopped")
	}
}

func TestManagerStartAllKeepsChannelsPolling(t *testing.T) {
	b := bus.NewMessageBus(10)
	mockBot := newMockBot()

	factory := func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
		return mockBot, nil
	}

	ch, _ := NewTelegramChannelWithFactory(config.TelegramConfig{Token: "fake-token"}, b, factory)
	m := NewManagerWithChannels(b, ch)

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll error: %v", err)
	}
	defer m.StopAll()

	// An update delivered after StartAll returns must still land on the bus.
	mockBot.updatesChan <- tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 123},
			Chat: &tgbotapi.Chat{ID: 456},
			Text: "still alive",
		},
	}

	select {
	case inbound := <-b.Inbound:
		if inbound.Content != "still alive" {
			t.Errorf("content = %q, want 'still alive'", inbound.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update never reached the bus after StartAll returned")
	}
}

func TestManagerStartAllError(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := &mockChannel{name: "mock", startErr: fmt.Errorf("boom")}
	m := newTestManager(b, ch)

	if err := m.StartAll(context.Background()); err == nil {
		t.Error("expected error from failing channel")
	}
}

func TestManagerStopAllSwallowsErrors(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := &mockChannel{name: "mock", stopErr: fmt.Errorf("boom")}
	m := newTestManager(b, ch)

	if err := m.StopAll(); err != nil {
		t.Errorf("StopAll should not fail on channel errors, got %v", err)
	}
}

func TestManagerRoutesOutbound(t *testing.T) {
	b := bus.NewMessageBus(10)
	ch := &mockChannel{name: "mock"}
	newTestManager(b, ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- bus.OutboundMessage{Channel: "mock", ChatID: "1", Content: "hi"}

	deadline := time.After(time.Second)
	for ch.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("outbound message never reached the channel")
		case <-time.After(10 * time.Millisecond):
		}
	}

	ch.mu.Lock()
	got := ch.sent[0]
	ch.mu.Unlock()
	if got.Content != "hi" || got.ChatID != "1" {
		t.Errorf("routed message = %+v", got)
	}
}

func TestManagerGetUnknown(t *testing.T) {
	b := bus.NewMessageBus(10)
	m := newTestManager(b)
	if _, ok := m.Get("nope"); ok {
		t.Error("Get should report missing channel")
	}
}
