package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"face-attendance/internal/logger"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/services"
)

// sender is the part of the Telegram API the bot writes through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Reports is the analytics the bot can answer with
type Reports interface {
	Window(ctx context.Context, q services.AnalyticsQuery) (*models.AnalyticsWindow, error)
	DailyRoster(ctx context.Context, date time.Time) (*models.DailyRoster, error)
}

// Deps are the stores the bot reads from
type Deps struct {
	Directory repository.Directory
	Ledger    repository.Ledger
	Alerts    repository.AlertStore
	Reports   Reports
	Location  *time.Location
}

// Bot serves attendance commands and pushes notices to employees and the admin chat
type Bot struct {
	api         *tgbotapi.BotAPI
	send        sender
	adminChatID int64
	deps        Deps
	log         *logger.Logger
	now         func() time.Time
}

// New initializes the Telegram Bot
func New(token, authorizedChatID string, deps Deps, log *logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false

	b := newBot(api, parseChatID(authorizedChatID), deps, log)
	b.api = api
	b.log.Info("authorized on account", "username", api.Self.UserName)
	return b, nil
}

func newBot(s sender, adminChatID int64, deps Deps, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Bot{
		send:        s,
		adminChatID: adminChatID,
		deps:        deps,
		log:         log.Named("telegram"),
		now:         time.Now,
	}
}

func parseChatID(s string) int64 {
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Run starts the update loop and stops it when ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		callback := tgbotapi.NewCallback(update.CallbackQuery.ID, "OK")
		if _, err := b.send.Request(callback); err != nil {
			b.log.Warn("callback answer failed", "error", err)
		}
		return
	}

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, b.handleCommand(ctx, update.Message))
	msg.ParseMode = "Markdown"
	if _, err := b.send.Send(msg); err != nil {
		b.log.Error("bot send error", "chat_id", update.Message.Chat.ID, "error", err)
	}
}

func (b *Bot) isAdmin(chatID int64) bool {
	return b.adminChatID != 0 && chatID == b.adminChatID
}
