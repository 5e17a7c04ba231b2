package channel

import (
	"context"

	"github.com/mnemochat/mnemo/internal/bus"
)

// Channel is one chat transport. Start begins relaying platform messages
// onto the bus; Send delivers one outbound message back to the platform.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// DraftSender is implemented by channels that can post a placeholder message
// and rewrite it in place while a response streams in.
type DraftSender interface {
	StartDraft(chatID, threadID string) (Draft, error)
}

// Draft is one in-place editable message. Update replaces the shown text;
// Close finalizes it with the definitive content, or removes the placeholder
// when the final text is empty.
type Draft interface {
	Update(text string) error
	Close(finalText string) error
}

// BaseChannel carries what every channel shares.
type BaseChannel struct {
	name string
	bus  *bus.MessageBus
}

func NewBaseChannel(name string, b *bus.MessageBus) BaseChannel {
	return BaseChannel{name: name, bus: b}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// Publish places an inbound message on the bus.
func (c *BaseChannel) Publish(msg bus.InboundMessage) {
	c.bus.Inbound <- msg
}
