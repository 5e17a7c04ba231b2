package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mnemochat/mnemo/internal/bus"
	"github.com/mnemochat/mnemo/internal/config"
)

const telegramChannelName = "telegram"

// Telegram caps messages at 4096 chars and photo captions at 1024.
const (
	maxMessageLen = 4000
	maxCaptionLen = 1024
)

const draftPlaceholder = "..."

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return w.bot.Request(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

func (w *tgBotWrapper) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	return w.bot.GetFile(config)
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

// defaultBotFactory creates real telegram bot
var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

type TelegramChannel struct {
	BaseChannel
	token      string
	bot        TelegramBot
	proxy      string
	httpClient *http.Client
	cancel     context.CancelFunc
	botFactory BotFactory
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	ch := &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		httpClient:  http.DefaultClient,
		botFactory:  factory,
	}
	return ch, nil
}

func (t *TelegramChannel) initBot() error {
	var client *http.Client
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	} else {
		client = http.DefaultClient
	}
	t.httpClient = client

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram authorized", "component", "telegram", "username", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				switch {
				case update.Message != nil:
					t.handleMessage(update.Message)
				case update.CallbackQuery != nil:
					t.handleCallback(update.CallbackQuery)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	slog.Info("telegram polling started", "component", "telegram")
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}

	var parts []bus.Part
	if len(msg.Photo) > 0 {
		// Telegram lists every thumbnail size; the last one is the original.
		photo := msg.Photo[len(msg.Photo)-1]
		data, err := t.downloadFileData(photo.FileID)
		if err != nil {
			slog.Warn("photo download failed",
				"component", "telegram", "file_id", photo.FileID, "error", err)
		} else {
			parts = append(parts, bus.Part{
				Kind: bus.PartImage,
				MIME: detectImageMIME(data),
				Data: data,
			})
		}
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		data, err := t.downloadFileData(msg.Document.FileID)
		if err != nil {
			slog.Warn("document download failed",
				"component", "telegram", "file_id", msg.Document.FileID, "error", err)
		} else {
			parts = append(parts, bus.Part{
				Kind: bus.PartImage,
				MIME: msg.Document.MimeType,
				Data: data,
			})
		}
	}

	if content == "" && len(parts) == 0 {
		return
	}

	in := bus.InboundMessage{
		Channel:    telegramChannelName,
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: displayName(msg.From),
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		ChatTitle:  msg.Chat.Title,
		MessageID:  strconv.Itoa(msg.MessageID),
		Content:    content,
		Timestamp:  time.Unix(int64(msg.Date), 0),
		Parts:      parts,
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
		in.CommandArgs = strings.TrimSpace(msg.CommandArguments())
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		in.ReplyTo = displayName(msg.ReplyToMessage.From)
	}

	t.Publish(in)
}

func (t *TelegramChannel) handleCallback(cb *tgbotapi.CallbackQuery) {
	if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		slog.Warn("callback ack failed", "component", "telegram", "error", err)
	}
	if cb.Message == nil || cb.From == nil {
		return
	}

	command, args, _ := strings.Cut(cb.Data, ":")
	t.Publish(bus.InboundMessage{
		Channel:     telegramChannelName,
		SenderID:    strconv.FormatInt(cb.From.ID, 10),
		SenderName:  displayName(cb.From),
		ChatID:      strconv.FormatInt(cb.Message.Chat.ID, 10),
		ChatTitle:   cb.Message.Chat.Title,
		Command:     command,
		CommandArgs: args,
		Timestamp:   time.Now(),
	})
}

func (t *TelegramChannel) downloadFileData(fileID string) ([]byte, error) {
	if t.bot == nil {
		return nil, fmt.Errorf("telegram bot not initialized")
	}

	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get telegram file: %w", err)
	}

	client := t.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(file.Link(t.token))
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download telegram file: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram file body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}

	return data, nil
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	slog.Info("telegram stopped", "component", "telegram")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	content := msg.Content
	if len(msg.Parts) > 0 {
		caption := content
		if len(caption) > maxCaptionLen {
			caption = ""
		} else {
			content = ""
		}
		for i, part := range msg.Parts {
			if part.Kind != bus.PartImage {
				continue
			}
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
				Name:  "image" + extForMIME(part.MIME),
				Bytes: part.Data,
			})
			if i == 0 {
				photo.Caption = caption
			}
			if _, err := t.bot.Send(photo); err != nil {
				return fmt.Errorf("send telegram photo: %w", err)
			}
		}
	}

	if content == "" {
		return nil
	}
	return t.sendText(chatID, content, msg.ReplyTo, msg.Buttons)
}

func (t *TelegramChannel) sendText(chatID int64, content, replyTo string, buttons [][]bus.Button) error {
	chunks := splitMessage(toTelegramHTML(content))
	for i, chunk := range chunks {
		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && replyTo != "" {
			if id, err := strconv.Atoi(replyTo); err == nil {
				tgMsg.ReplyToMessageID = id
			}
		}
		if i == len(chunks)-1 && len(buttons) > 0 {
			tgMsg.ReplyMarkup = toInlineKeyboard(buttons)
		}
		if _, err := t.bot.Send(tgMsg); err != nil {
			// Retry without HTML parse mode
			return t.sendPlain(chatID, content, buttons)
		}
	}
	return nil
}

func (t *TelegramChannel) sendPlain(chatID int64, content string, buttons [][]bus.Button) error {
	chunks := splitMessage(content)
	for i, chunk := range chunks {
		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		if i == len(chunks)-1 && len(buttons) > 0 {
			tgMsg.ReplyMarkup = toInlineKeyboard(buttons)
		}
		if _, err := t.bot.Send(tgMsg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// StartDraft posts a placeholder message that streaming updates then edit in
// place.
func (t *TelegramChannel) StartDraft(chatID, threadID string) (Draft, error) {
	if t.bot == nil {
		return nil, fmt.Errorf("telegram bot not initialized")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	sent, err := t.bot.Send(tgbotapi.NewMessage(id, draftPlaceholder))
	if err != nil {
		return nil, fmt.Errorf("send draft message: %w", err)
	}
	return &telegramDraft{ch: t, chatID: id, messageID: sent.MessageID}, nil
}

type telegramDraft struct {
	ch        *TelegramChannel
	chatID    int64
	messageID int
	lastText  string
}

// Update rewrites the draft with the text so far. Partial markdown renders
// plain; formatting happens once in Close.
func (d *telegramDraft) Update(text string) error {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	if text == "" || text == d.lastText {
		return nil
	}
	d.lastText = text

	edit := tgbotapi.NewEditMessageText(d.chatID, d.messageID, text)
	_, err := d.ch.bot.Send(edit)
	return err
}

func (d *telegramDraft) Close(finalText string) error {
	if finalText == "" {
		_, err := d.ch.bot.Request(tgbotapi.NewDeleteMessage(d.chatID, d.messageID))
		return err
	}

	chunks := splitMessage(toTelegramHTML(finalText))
	edit := tgbotapi.NewEditMessageText(d.chatID, d.messageID, chunks[0])
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := d.ch.bot.Send(edit); err != nil {
		plain := splitMessage(finalText)
		edit.ParseMode = ""
		edit.Text = plain[0]
		if _, err := d.ch.bot.Send(edit); err != nil {
			return fmt.Errorf("finalize draft: %w", err)
		}
		chunks = plain
	}
	for _, chunk := range chunks[1:] {
		tgMsg := tgbotapi.NewMessage(d.chatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if _, err := d.ch.bot.Send(tgMsg); err != nil {
			tgMsg.ParseMode = ""
			if _, err := d.ch.bot.Send(tgMsg); err != nil {
				return fmt.Errorf("send draft overflow: %w", err)
			}
		}
	}
	return nil
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

func detectImageMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if mime == "application/octet-stream" {
		mime = "image/jpeg"
	}
	return mime
}

func extForMIME(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func toInlineKeyboard(rows [][]bus.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		kb = append(kb, r)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

// splitMessage cuts content into chunks under the message size limit,
// preferring newline boundaries.
func splitMessage(content string) []string {
	var chunks []string
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxMessageLen {
			chunk = chunk[:maxMessageLen]
			if idx := strings.LastIndex(chunk, "\n"); idx > 0 {
				chunk = chunk[:idx]
			}
		}
		chunks = append(chunks, chunk)
		content = strings.TrimPrefix(content[len(chunk):], "\n")
	}
	return chunks
}

// toTelegramHTML converts basic markdown to Telegram HTML.
func toTelegramHTML(s string) string {
	// Escape HTML entities first
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	// Code blocks: ```...``` -> <pre>...</pre>
	for {
		start := strings.Index(s, "```")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+3:], "```")
		if end == -1 {
			break
		}
		end += start + 3
		code := s[start+3 : end]
		// Strip optional language tag on first line
		if nl := strings.Index(code, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(code[:nl])
			if len(firstLine) > 0 && !strings.Contains(firstLine, " ") {
				code = code[nl+1:]
			}
		}
		s = s[:start] + "<pre>" + code + "</pre>" + s[end+3:]
	}

	// Inline code: `...` -> <code>...</code>
	for {
		start := strings.Index(s, "`")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+1:], "`")
		if end == -1 {
			break
		}
		end += start + 1
		s = s[:start] + "<code>" + s[start+1:end] + "</code>" + s[end+1:]
	}

	// Bold: **...** -> <b>...</b>
	for {
		start := strings.Index(s, "**")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+2:], "**")
		if end == -1 {
			break
		}
		end += start + 2
		s = s[:start] + "<b>" + s[start+2:end] + "</b>" + s[end+2:]
	}

	// Italic: *...* -> <i>...</i> (after bold to avoid conflicts)
	for {
		start := strings.Index(s, "*")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+1:], "*")
		if end == -1 {
			break
		}
		end += start + 1
		s = s[:start] + "<i>" + s[start+1:end] + "</i>" + s[end+1:]
	}

	return s
}
