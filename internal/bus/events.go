package bus

import "time"

type PartKind string

const (
	PartImage PartKind = "image"
)

// Part carries binary attachments alongside message text, inbound (downloaded
// photos) and outbound (generated images).
type Part struct {
	Kind PartKind
	MIME string
	Data []byte
}

// Button is rendered by the channel as an inline action; pressing it comes
// back as an InboundMessage carrying the Action in Command.
type Button struct {
	Label  string
	Action string
}

type InboundMessage struct {
	Channel     string
	SenderID    string
	SenderName  string
	ChatID      string
	ChatTitle   string
	ThreadID    string
	MessageID   string
	ReplyTo     string
	Command     string
	CommandArgs string
	Content     string
	Timestamp   time.Time
	Parts       []Part
}

// ThreadKey identifies one conversation thread. Rolling history and rate
// limiting are scoped by it; stores stay chat-scoped.
func (m *InboundMessage) ThreadKey() string {
	key := m.Channel + ":" + m.ChatID
	if m.ThreadID != "" {
		key += ":" + m.ThreadID
	}
	return key
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	ThreadID string
	Content  string
	ReplyTo  string
	Parts    []Part
	Buttons  [][]Button
}
