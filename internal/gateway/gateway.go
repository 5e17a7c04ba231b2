package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mnemochat/mnemo/internal/access"
	"github.com/mnemochat/mnemo/internal/bus"
	"github.com/mnemochat/mnemo/internal/channel"
	"github.com/mnemochat/mnemo/internal/chatcfg"
	"github.com/mnemochat/mnemo/internal/chatlog"
	"github.com/mnemochat/mnemo/internal/config"
	"github.com/mnemochat/mnemo/internal/conversation"
	"github.com/mnemochat/mnemo/internal/cron"
	"github.com/mnemochat/mnemo/internal/llm"
	"github.com/mnemochat/mnemo/internal/memory"
	"github.com/mnemochat/mnemo/internal/ratelimit"
)

const (
	botSender           = "assistant"
	logTimeFormat       = "2006-01-02 15:04"
	draftUpdateInterval = 1500 * time.Millisecond
)

const noAccessText = "This chat has no model access yet. Open /settings and add an API key to start chatting."

const noAnswerText = "Sorry, I couldn't generate a response. Please try again."

const startText = "Hi! I'm mnemo. I chat, remember facts you ask me to keep and summarize long conversations. Send /help for the command list."

const helpText = `Commands:
/remember <fact> - save a memory for this chat
/memories - list saved memories
/forget <id> - delete a memory
/image <prompt> - generate a picture
/settings - API access for this chat
/cancel - abort a pending setup step
/help - this message`

const defaultPersona = "You are mnemo, a helpful assistant living in a chat. " +
	"Keep replies short and conversational. Use the save_memory tool when " +
	"someone asks you to remember something and delete_memory when they ask " +
	"you to forget it."

// Options for creating a Gateway
type Options struct {
	Client     llm.Client
	DataDir    string
	SignalChan chan os.Signal // for testing signal handling
}

// Gateway wires the bus, the channels and the model backend together and owns
// every piece of per-chat state.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	channels   *channel.Manager
	client     llm.Client
	runner     *conversation.Runner
	history    *conversation.History
	caps       *conversation.CapabilityCache
	log        *chatlog.Log
	summarizer *chatlog.Summarizer
	memories   *memory.Store
	chatCfg    *chatcfg.Store
	wizard     *chatcfg.Wizard
	access     *access.Resolver
	limiter    *ratelimit.Limiter
	sweeper    *cron.Service
	persona    string
	signalChan chan os.Signal // for testing

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:         cfg,
		bus:         bus.NewMessageBus(config.DefaultBufSize),
		threadLocks: make(map[string]*sync.Mutex),
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = config.DataDir()
	}
	g.memories = memory.NewStore(filepath.Join(dataDir, "memories.json"))
	g.chatCfg = chatcfg.NewStore(filepath.Join(dataDir, "chat_config.json"))
	summaries := chatlog.NewSummaryStore(filepath.Join(dataDir, "summaries.json"))
	g.log = chatlog.NewLog(cfg.Chat.LogCapacity, cfg.Chat.LogRecent, cfg.Chat.SummaryInterval, summaries)

	g.client = opts.Client
	if g.client == nil {
		g.client = llm.NewOpenAI()
	}

	g.wizard = chatcfg.NewWizard(g.chatCfg)
	g.access = access.NewResolver(cfg.Access.AllowChats, llm.Credentials{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	}, g.chatCfg)

	g.runner = conversation.NewRunner(g.client, memory.NewTools(g.memories), cfg.Chat.MaxToolRounds)
	g.history = conversation.NewHistory(cfg.Chat.HistoryWindow)
	g.caps = conversation.NewCapabilityCache(g.client)
	g.summarizer = chatlog.NewSummarizer(g.client, cfg.LLM.Model, cfg.LLM.MaxTokens, g.log)
	g.limiter = ratelimit.NewLimiter(ratelimit.DefaultCooldown)
	g.persona = loadPersona(cfg.Workspace)

	mgr, err := channel.NewManager(cfg, g.bus)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = mgr

	g.sweeper = cron.NewService(cfg.Chat.SweepSchedule, g.sweepSummaries)

	g.signalChan = opts.SignalChan
	return g, nil
}

func loadPersona(workspace string) string {
	data, err := os.ReadFile(filepath.Join(workspace, "PERSONA.md"))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("read persona failed", "component", "gateway", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	slog.Info("channels started", "component", "gateway", "channels", g.channels.Names())

	if err := g.sweeper.Start(ctx); err != nil {
		slog.Warn("summary sweep disabled", "component", "gateway", "error", err)
	}

	go g.processLoop(ctx)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	slog.Info("shutting down", "component", "gateway")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	slog.Info("inbound message",
		"component", "gateway",
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"sender", msg.SenderID,
		"preview", truncate(msg.Content, 80))

	if msg.Command != "" {
		g.handleCommand(ctx, msg)
		return
	}

	// A chat mid-setup gets its next free-text message captured as the
	// pending config value instead of being answered.
	kind, err := g.wizard.Consume(msg.ChatID, msg.Content)
	if err != nil {
		slog.Warn("persist chat config failed", "component", "gateway", "error", err)
	}
	switch kind {
	case chatcfg.PendingAPIKey:
		g.reply(msg, "API key saved for this chat.")
		return
	case chatcfg.PendingBaseURL:
		g.reply(msg, "Base URL saved for this chat.")
		return
	}

	// Log and history land synchronously, before any model round trip.
	due := g.log.Append(msg.ChatID, logEntryFor(msg), msg.ChatTitle)
	g.history.Append(msg.ThreadKey(), userMessage(msg))

	creds, hasCreds := g.access.Resolve(msg.ChatID)
	if due && hasCreds {
		go g.summarizer.Summarize(ctx, msg.ChatID, creds)
	}

	if !hasCreds {
		if g.limiter.Allow(msg.ThreadKey()) {
			g.replyButtons(msg, noAccessText, settingsButtons())
		}
		return
	}

	if !g.limiter.Allow(msg.ThreadKey()) {
		return
	}

	go g.respond(ctx, msg, creds)
}

func (g *Gateway) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	switch msg.Command {
	case "start":
		g.reply(msg, startText)
	case "help":
		g.reply(msg, helpText)
	case "settings":
		g.replyButtons(msg, g.settingsText(msg.ChatID), settingsButtons())
	case "set_api_key":
		g.wizard.Begin(msg.ChatID, chatcfg.PendingAPIKey)
		g.reply(msg, "Send the API key for this chat as your next message, or /cancel to abort.")
	case "set_base_url":
		g.wizard.Begin(msg.ChatID, chatcfg.PendingBaseURL)
		g.reply(msg, "Send the base URL for this chat as your next message, or /cancel to abort.")
	case "clear_config":
		g.wizard.Cancel(msg.ChatID)
		cleared, err := g.chatCfg.Clear(msg.ChatID)
		if err != nil {
			slog.Warn("clear chat config failed", "component", "gateway", "error", err)
		}
		if cleared {
			g.reply(msg, "Chat API configuration cleared.")
		} else {
			g.reply(msg, "No chat API configuration to clear.")
		}
	case "cancel":
		if g.wizard.Cancel(msg.ChatID) {
			g.reply(msg, "Setup cancelled.")
		} else {
			g.reply(msg, "Nothing to cancel.")
		}
	case "remember":
		content := strings.TrimSpace(msg.CommandArgs)
		if content == "" {
			g.reply(msg, "Usage: /remember <fact to save>")
			return
		}
		entry, err := g.memories.Add(msg.ChatID, content)
		if err != nil {
			slog.Warn("save memory failed", "component", "gateway", "error", err)
			g.reply(msg, "Failed to save memory.")
			return
		}
		g.reply(msg, fmt.Sprintf("Memory saved with ID %s.", entry.ID))
	case "memories":
		entries := g.memories.List(msg.ChatID)
		if len(entries) == 0 {
			g.reply(msg, "No memories saved for this chat yet.")
			return
		}
		g.reply(msg, "Saved memories:\n"+memory.Format(entries))
	case "forget":
		id := strings.TrimSpace(msg.CommandArgs)
		if id == "" {
			g.reply(msg, "Usage: /forget <memory id>")
			return
		}
		found, err := g.memories.Delete(msg.ChatID, id)
		if err != nil {
			slog.Warn("delete memory failed", "component", "gateway", "error", err)
		}
		if found {
			g.reply(msg, fmt.Sprintf("Memory %s deleted.", id))
		} else {
			g.reply(msg, fmt.Sprintf("Memory %s not found.", id))
		}
	case "image":
		g.handleImage(ctx, msg)
	default:
		slog.Debug("unknown command", "component", "gateway", "command", msg.Command)
	}
}

func (g *Gateway) handleImage(ctx context.Context, msg bus.InboundMessage) {
	prompt := strings.TrimSpace(msg.CommandArgs)
	if prompt == "" {
		g.reply(msg, "Usage: /image <description of the picture>")
		return
	}

	creds, ok := g.access.Resolve(msg.ChatID)
	if !ok {
		if g.limiter.Allow(msg.ThreadKey()) {
			g.replyButtons(msg, noAccessText, settingsButtons())
		}
		return
	}
	if !g.limiter.Allow(msg.ThreadKey()) {
		return
	}

	go func() {
		data, err := g.client.GenerateImage(ctx, llm.ImageRequest{
			Creds:  creds,
			Model:  g.cfg.LLM.ImageModel,
			Prompt: prompt,
		})
		if err != nil {
			slog.Error("image generation failed", "component", "gateway", "error", err)
			g.reply(msg, "Sorry, image generation failed. Please try again.")
			return
		}
		g.send(bus.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			ThreadID: msg.ThreadID,
			Content:  prompt,
			Parts:    []bus.Part{{Kind: bus.PartImage, MIME: "image/png", Data: data}},
		})
	}()
}

// respond runs one model exchange for a thread. Completions for the same
// thread are serialized so replies land in submission order.
func (g *Gateway) respond(ctx context.Context, msg bus.InboundMessage, creds llm.Credentials) {
	key := msg.ThreadKey()
	lock := g.threadLock(key)
	lock.Lock()
	defer lock.Unlock()

	support := g.caps.ImageSupport(ctx, creds, g.cfg.LLM.Model)
	messages := conversation.SanitizeImages(g.history.Window(key), support)

	req := conversation.RunRequest{
		Creds:       creds,
		Model:       g.cfg.LLM.Model,
		System:      g.buildSystemPrompt(msg.ChatID),
		Messages:    messages,
		ChatID:      msg.ChatID,
		MaxTokens:   g.cfg.LLM.MaxTokens,
		Temperature: g.cfg.LLM.Temperature,
	}

	var draft channel.Draft
	if g.cfg.LLM.Streaming {
		if ds, ok := g.draftSender(msg.Channel); ok {
			d, err := ds.StartDraft(msg.ChatID, msg.ThreadID)
			if err != nil {
				slog.Warn("start draft failed", "component", "gateway", "error", err)
			} else {
				draft = d
				var lastUpdate time.Time
				req.OnDelta = func(cumulative string) {
					if time.Since(lastUpdate) < draftUpdateInterval {
						return
					}
					lastUpdate = time.Now()
					if err := draft.Update(cumulative); err != nil {
						slog.Debug("draft update failed", "component", "gateway", "error", err)
					}
				}
			}
		}
	}

	result, err := g.runner.Run(ctx, req)
	if err != nil {
		slog.Error("completion failed",
			"component", "gateway", "chat_id", msg.ChatID, "error", err)
		if draft != nil {
			if cerr := draft.Close(""); cerr != nil {
				slog.Debug("discard draft failed", "component", "gateway", "error", cerr)
			}
		}
		g.reply(msg, "Sorry, something went wrong while generating a reply. Please try again.")
		return
	}

	result = strings.TrimSpace(result)
	if result == "" {
		// Round cap hit or an empty reply. The user gets told, the
		// history does not record a turn that produced nothing.
		if draft != nil {
			if err := draft.Close(noAnswerText); err != nil {
				slog.Warn("finalize draft failed", "component", "gateway", "error", err)
				g.reply(msg, noAnswerText)
			}
			return
		}
		g.reply(msg, noAnswerText)
		return
	}

	g.history.Append(key, llm.Message{Role: llm.RoleAssistant, Content: result})
	assistantEntry := chatlog.Entry{
		Sender:    botSender,
		Timestamp: time.Now().Format(logTimeFormat),
		Type:      chatlog.TypeText,
		Content:   result,
	}
	if g.log.Append(msg.ChatID, assistantEntry, msg.ChatTitle) {
		go g.summarizer.Summarize(ctx, msg.ChatID, creds)
	}

	if draft != nil {
		if err := draft.Close(result); err != nil {
			slog.Warn("finalize draft failed", "component", "gateway", "error", err)
			g.deliver(msg, result)
		}
		return
	}
	g.deliver(msg, result)
}

// buildSystemPrompt assembles persona, saved memories and chat context for
// one chat.
func (g *Gateway) buildSystemPrompt(chatID string) string {
	var sb strings.Builder

	persona := g.persona
	if persona == "" {
		persona = defaultPersona
	}
	sb.WriteString(persona)
	sb.WriteString("\n\n")

	if entries := g.memories.List(chatID); len(entries) > 0 {
		sb.WriteString("# Saved Memories\n")
		sb.WriteString(memory.Format(entries))
		sb.WriteString("\n")
	}

	if chatCtx, ok := g.log.Context(chatID); ok {
		if chatCtx.Title != "" {
			fmt.Fprintf(&sb, "# Chat\n%s\n\n", chatCtx.Title)
		}
		if chatCtx.Summary != "" {
			sb.WriteString("# Summary of Earlier Conversation\n")
			sb.WriteString(chatCtx.Summary)
			sb.WriteString("\n\n")
		}
		if len(chatCtx.Recent) > 0 {
			sb.WriteString("# Recent Messages\n")
			sb.WriteString(chatlog.FormatEntries(chatCtx.Recent))
		}
	}

	return strings.TrimSpace(sb.String())
}

// sweepSummaries condenses every chat with unsummarized messages. Runs on the
// cron schedule so quiet chats still get their backlog folded in.
func (g *Gateway) sweepSummaries(ctx context.Context) {
	pending := g.log.PendingChats()
	for _, chatID := range pending {
		creds, ok := g.access.Resolve(chatID)
		if !ok {
			continue
		}
		g.summarizer.Summarize(ctx, chatID, creds)
	}
	if len(pending) > 0 {
		slog.Info("summary sweep finished", "component", "gateway", "chats", len(pending))
	}
}

func (g *Gateway) settingsText(chatID string) string {
	var sb strings.Builder
	sb.WriteString("API access for this chat:\n")
	if g.access.Allowed(chatID) {
		sb.WriteString("- Allow-listed: uses the operator credentials.\n")
	}
	cc := g.chatCfg.Get(chatID)
	if cc.APIKey != "" {
		fmt.Fprintf(&sb, "- API key: %s\n", maskKey(cc.APIKey))
	} else {
		sb.WriteString("- API key: not set\n")
	}
	if cc.BaseURL != "" {
		fmt.Fprintf(&sb, "- Base URL: %s\n", cc.BaseURL)
	} else {
		fmt.Fprintf(&sb, "- Base URL: default (%s)\n", g.cfg.LLM.BaseURL)
	}
	if !g.access.HasAccess(chatID) {
		sb.WriteString("\nNo model access yet. Set an API key to start chatting.")
	}
	return sb.String()
}

func settingsButtons() [][]bus.Button {
	return [][]bus.Button{
		{{Label: "Set API key", Action: "set_api_key"}, {Label: "Set base URL", Action: "set_base_url"}},
		{{Label: "Clear", Action: "clear_config"}, {Label: "Cancel", Action: "cancel"}},
	}
}

func (g *Gateway) threadLock(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.threadLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.threadLocks[key] = lock
	}
	return lock
}

func (g *Gateway) draftSender(channelName string) (channel.DraftSender, bool) {
	ch, ok := g.channels.Get(channelName)
	if !ok {
		return nil, false
	}
	ds, ok := ch.(channel.DraftSender)
	return ds, ok
}

func (g *Gateway) send(out bus.OutboundMessage) {
	g.bus.Outbound <- out
}

func (g *Gateway) reply(msg bus.InboundMessage, text string) {
	g.send(bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Content:  text,
	})
}

func (g *Gateway) replyButtons(msg bus.InboundMessage, text string, buttons [][]bus.Button) {
	g.send(bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Content:  text,
		Buttons:  buttons,
	})
}

// deliver sends the model reply, quoting the triggering message in group
// chats.
func (g *Gateway) deliver(msg bus.InboundMessage, text string) {
	out := bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		ThreadID: msg.ThreadID,
		Content:  text,
	}
	if msg.ChatTitle != "" {
		out.ReplyTo = msg.MessageID
	}
	g.send(out)
}

func (g *Gateway) Shutdown() error {
	g.sweeper.Stop()
	_ = g.channels.StopAll()
	slog.Info("shutdown complete", "component", "gateway")
	return nil
}

func logEntryFor(msg bus.InboundMessage) chatlog.Entry {
	entryType := chatlog.TypeText
	if len(msg.Parts) > 0 {
		entryType = chatlog.TypeImage
	}
	return chatlog.Entry{
		Sender:    msg.SenderName,
		Timestamp: msg.Timestamp.Format(logTimeFormat),
		Type:      entryType,
		Content:   msg.Content,
		ReplyTo:   msg.ReplyTo,
	}
}

// userMessage shapes an inbound chat message for the model, labeling the
// sender and inlining photos as data URLs.
func userMessage(msg bus.InboundMessage) llm.Message {
	text := strings.TrimSpace(msg.Content)
	if msg.SenderName != "" {
		if text == "" {
			text = msg.SenderName + " sent an image."
		} else {
			text = msg.SenderName + ": " + text
		}
	}

	if len(msg.Parts) == 0 {
		return llm.Message{Role: llm.RoleUser, Content: text}
	}

	var parts []llm.Part
	if text != "" {
		parts = append(parts, llm.Part{Kind: llm.PartText, Text: text})
	}
	for _, p := range msg.Parts {
		if p.Kind != bus.PartImage {
			continue
		}
		parts = append(parts, llm.Part{
			Kind:     llm.PartImage,
			ImageURL: dataURL(p.MIME, p.Data),
		})
	}
	return llm.Message{Role: llm.RoleUser, Parts: parts}
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
