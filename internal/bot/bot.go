// Package bot implements the Telegram presentation layer of the ConsultOS
// intake flow: tariff selection, payment, questionnaire traversal, and slot
// booking.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/booking"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/payment"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/questionnaire"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/store"
)

// DefaultUpdateTimeout is the long-poll timeout for getUpdates, in seconds.
const DefaultUpdateTimeout = 30

// Opts holds configuration options for the Telegram bot.
type Opts struct {
	Token string
	Debug bool
}

// Option defines a configuration option for the Telegram bot.
type Option func(*Opts)

// WithToken sets the Telegram bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithDebug enables the Telegram library's request logging.
func WithDebug(debug bool) Option {
	return func(o *Opts) { o.Debug = debug }
}

// Bot drives the chat flow over the Telegram Bot API.
type Bot struct {
	api      *tgbotapi.BotAPI
	ctrl     *questionnaire.Controller
	store    store.Store
	payments payment.Provider
	booking  *booking.Service
}

// NewBot creates the Telegram bot based on provided options.
func NewBot(ctrl *questionnaire.Controller, st store.Store, payments payment.Provider, bookings *booking.Service, opts ...Option) (*Bot, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	slog.Debug("Telegram bot config loaded", "Token_set", cfg.Token != "", "Debug", cfg.Debug)

	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		slog.Error("Failed to create Telegram bot API", "error", err)
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	api.Debug = cfg.Debug
	slog.Info("Telegram bot authorized", "username", api.Self.UserName)

	return &Bot{
		api:      api,
		ctrl:     ctrl,
		store:    st,
		payments: payments,
		booking:  bookings,
	}, nil
}

// Run consumes Telegram updates until the context is canceled. Updates for
// one chat are serialized by the controller's per-session locking, so
// dispatching each update on its own goroutine is safe.
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = DefaultUpdateTimeout
	updates := b.api.GetUpdatesChan(updateCfg)

	slog.Info("Telegram update loop started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			slog.Info("Telegram update loop stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while handling update", "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// send delivers a prepared message, logging failures instead of propagating
// them; Telegram delivery errors must not corrupt session state.
func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		slog.Error("Telegram send failed", "error", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}
