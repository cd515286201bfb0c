package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/sentinel/internal/settings"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	stallAfter = 150 * time.Second
)

// telegramBotClient implements BotClient over the Bot HTTP API.
type telegramBotClient struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewBotClientFactory returns a BotClientFactory backed by
// telegram-bot-api/v5.
func NewBotClientFactory(logger *slog.Logger) BotClientFactory {
	return func(s settings.Settings) (BotClient, error) {
		if s.BotToken == "" {
			return nil, fmt.Errorf("bot mode requires a bot token")
		}
		api, err := tgbotapi.NewBotAPI(s.BotToken)
		if err != nil {
			return nil, fmt.Errorf("construct bot client: %w", err)
		}
		return &telegramBotClient{api: api, logger: logger}, nil
	}
}

// Start begins long-polling for updates and invokes handler for every
// message that falls within targetChats (or every message when targetChats
// is empty). The reconnect loop backs off exponentially up to maxBackoff,
// mirroring the pattern used by this project's previous bot poller.
func (c *telegramBotClient) Start(ctx context.Context, handler EventHandler, targetChats []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	allowed := make(map[string]struct{}, len(targetChats))
	for _, id := range targetChats {
		allowed[id] = struct{}{}
	}

	go c.pollLoop(runCtx, handler, allowed)
	return nil
}

func (c *telegramBotClient) pollLoop(ctx context.Context, handler EventHandler, allowed map[string]struct{}) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.poll(ctx, handler, allowed); err != nil {
			c.logger.Warn("bot update stream ended, reconnecting", "error", err.Error(), "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff
	}
}

func (c *telegramBotClient) poll(ctx context.Context, handler EventHandler, allowed map[string]struct{}) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	idle := time.NewTimer(stallAfter)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
			return fmt.Errorf("no updates received for %s", stallAfter)
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(stallAfter)
			c.handleUpdate(ctx, update, handler, allowed)
		}
	}
}

func (c *telegramBotClient) handleUpdate(ctx context.Context, update tgbotapi.Update, handler EventHandler, allowed map[string]struct{}) {
	if update.Message == nil {
		return
	}
	chatID := fmt.Sprintf("%d", update.Message.Chat.ID)
	if len(allowed) > 0 {
		if _, ok := allowed[chatID]; !ok {
			return
		}
	}

	sender := update.Message.From.UserName
	if sender == "" {
		sender = update.Message.From.FirstName
	}

	handler(ctx, IncomingMessage{
		Text:              update.Message.Text,
		SenderDisplay:     sender,
		ChatTitle:         update.Message.Chat.Title,
		ChatID:            chatID,
		TelegramMessageID: ptrInt64(int64(update.Message.MessageID)),
		Timestamp:         time.Unix(int64(update.Message.Date), 0),
	})
}

func (c *telegramBotClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// ListChats seeds the result with the persisted bot targets, augments it
// with chats seen in the pending update backlog, and resolves titles and
// profile photos through getChat/getFile, per the telegram/chats contract.
func (c *telegramBotClient) ListChats(ctx context.Context, seed []string) ([]ChatSummary, error) {
	ids := make([]string, 0, len(seed))
	seen := make(map[string]struct{}, len(seed))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range seed {
		add(id)
	}

	if updates, err := c.api.GetUpdates(tgbotapi.UpdateConfig{Limit: 100}); err == nil {
		for _, u := range updates {
			if chat := u.FromChat(); chat != nil {
				add(fmt.Sprintf("%d", chat.ID))
			}
		}
	}

	out := make([]ChatSummary, 0, len(ids))
	for _, id := range ids {
		chatID, err := parseChatID(id)
		if err != nil {
			continue
		}
		chat, err := c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
		if err != nil {
			out = append(out, ChatSummary{ID: id, Title: id})
			continue
		}
		title := chat.Title
		if title == "" {
			title = chat.UserName
		}
		summary := ChatSummary{ID: id, Title: title}
		if chat.Photo != nil && chat.Photo.SmallFileID != "" {
			if f, err := c.api.GetFile(tgbotapi.FileConfig{FileID: chat.Photo.SmallFileID}); err == nil {
				summary.Photo = f.Link(c.api.Token)
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func parseChatID(id string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(id, "%d", &v)
	return v, err
}

func ptrInt64(v int64) *int64 { return &v }
