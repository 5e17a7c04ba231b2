package channel

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mnemochat/mnemo/internal/bus"
	"github.com/mnemochat/mnemo/internal/config"
)

// Manager owns every active channel and routes the outbound side of the bus
// to the matching channel's Send.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

func NewManager(cfg *config.Config, b *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	ch, err := NewTelegramChannel(cfg.Telegram, b)
	if err != nil {
		return nil, fmt.Errorf("init telegram channel: %w", err)
	}
	m.register(ch)

	return m, nil
}

// NewManagerWithChannels assembles a manager from prebuilt channels (for
// testing).
func NewManagerWithChannels(b *bus.MessageBus, chs ...Channel) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}
	for _, ch := range chs {
		m.register(ch)
	}
	return m
}

func (m *Manager) register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			slog.Error("channel send failed",
				"component", "channel", "channel", ch.Name(), "error", err)
		}
	})
}

// Get returns a channel by name, for callers needing more than Send.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) StartAll(ctx context.Context) error {
	// Start spawns consumer goroutines bound to ctx and returns, so the
	// group only collects startup errors. It must not derive its own
	// context: that one is cancelled as soon as Wait returns, which would
	// stop the consumers it just started.
	var g errgroup.Group
	for name, ch := range m.channels {
		g.Go(func() error {
			slog.Info("starting channel", "component", "channel", "channel", name)
			if err := ch.Start(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) StopAll() error {
	for name, ch := range m.channels {
		slog.Info("stopping channel", "component", "channel", "channel", name)
		if err := ch.Stop(); err != nil {
			slog.Warn("channel stop failed",
				"component", "channel", "channel", name, "error", err)
		}
	}
	return nil
}

func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
