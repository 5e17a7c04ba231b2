package bus

import (
	"context"
	"testing"
	"time"
)

func TestThreadKey(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want string
	}{
		{"chat only", InboundMessage{Channel: "telegram", ChatID: "42"}, "telegram:42"},
		{"with thread", InboundMessage{Channel: "telegram", ChatID: "42", ThreadID: "7"}, "telegram:42:7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.ThreadKey(); got != tt.want {
				t.Errorf("ThreadKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatchOutbound(t *testing.T) {
	b := NewMessageBus(10)

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		got <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"}

	select {
	case msg := <-got:
		if msg.ChatID != "42" || msg.Content != "hi" {
			t.Errorf("dispatched %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched")
	}
}

func TestDispatchOutbound_UnknownChannel(t *testing.T) {
	b := NewMessageBus(10)

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("telegram", func(msg OutboundMessage) {
		got <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	// Unknown channel is dropped, the next message still goes through.
	b.Outbound <- OutboundMessage{Channel: "nope", ChatID: "1"}
	b.Outbound <- OutboundMessage{Channel: "telegram", ChatID: "2"}

	select {
	case msg := <-got:
		if msg.ChatID != "2" {
			t.Errorf("dispatched ChatID = %q, want 2", msg.ChatID)
		}
	case <-time.After(time.Second):
		t.Fatal("message after unknown channel was not dispatched")
	}
}
