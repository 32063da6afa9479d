// Package telegram delivers portfolio payloads to the owner's Telegram chat and turns
// chat commands into dispatcher triggers.
package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/internal/dispatcher"
	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const pollTimeout = 60

// API is the subset of the Bot API client used by the notifier.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Submitter queues triggers.
type Submitter interface {
	Submit(kind dispatcher.CommandKind, source string) bool
}

// NewAPI creates a Bot API client for token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot api")
	}
	return api, nil
}

// Bot accepts commands from a single chat and sends rendered payloads back to it.
type Bot struct {
	l         *zap.Logger
	api       API
	chatID    int64
	renderer  *Renderer
	submitter Submitter
}

// NewBot creates a bot bound to chatID.
func NewBot(l *zap.Logger, api API, chatID int64, renderer *Renderer, submitter Submitter) *Bot {
	return &Bot{
		l:         l,
		api:       api,
		chatID:    chatID,
		renderer:  renderer,
		submitter: submitter,
	}
}

// HandleUpdate routes an incoming update. Messages from other chats are ignored.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != b.chatID {
		b.l.Warn("ignoring message from unknown chat", zap.Int64("chat_id", msg.Chat.ID))
		return
	}

	kind, ok := commandKind(msg)
	if !ok {
		b.l.Debug("ignoring message", zap.String("text", msg.Text))
		return
	}

	if !b.submitter.Submit(kind, domain.SourceTelegram) {
		b.l.Warn("telegram command dropped", zap.String("kind", string(kind)))
	}
}

func commandKind(msg *tgbotapi.Message) (dispatcher.CommandKind, bool) {
	cmd := msg.Command()
	if cmd == "" {
		cmd = strings.TrimPrefix(strings.TrimSpace(msg.Text), "/")
	}

	switch strings.ToLower(cmd) {
	case string(dispatcher.CommandStart):
		return dispatcher.CommandStart, true
	case string(dispatcher.CommandInfo):
		return dispatcher.CommandInfo, true
	default:
		return "", false
	}
}

// Notify renders and sends the event to the owner's chat.
func (b *Bot) Notify(e domain.Event) error {
	text, ok := b.renderer.Event(e)
	if !ok {
		return nil
	}

	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return errors.Wrapf(err, "failed to send %s message", e.Kind)
	}
	return nil
}

// Consume sends events to the chat until ctx is done or the channel is closed.
// Scheduled valuations are left to the journal and the websocket stream.
func (b *Bot) Consume(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Source == domain.SourceScheduler {
				b.l.Debug("skipping scheduled event", zap.String("kind", string(e.Kind)))
				continue
			}
			if err := b.Notify(e); err != nil {
				b.l.Error("failed to notify", zap.Error(err))
			}
		}
	}
}

// Poll receives updates with long polling until ctx is done. Any registered webhook is removed first.
func (b *Bot) Poll(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return errors.Wrap(err, "failed to delete webhook")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.l.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(update)
		}
	}
}

// RegisterWebhook points Telegram at publicURL + "/bot".
func (b *Bot) RegisterWebhook(publicURL string) error {
	link := strings.TrimRight(publicURL, "/") + "/bot"
	wh, err := tgbotapi.NewWebhook(link)
	if err != nil {
		return errors.Wrap(err, "invalid webhook url")
	}
	if _, err := b.api.Request(wh); err != nil {
		return errors.Wrap(err, "failed to set webhook")
	}

	b.l.Info("telegram webhook registered", zap.String("url", link))
	return nil
}
