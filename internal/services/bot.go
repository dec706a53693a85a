package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/samber/do"
	tele "gopkg.in/telebot.v3"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"telemint/internal/models"
)

const initDataTTL = 24 * time.Hour

type Bot struct {
	token     string
	apiURL    string
	channelID int64
	webAppURL string

	once sync.Once
	bot  *tele.Bot
	err  error
}

func NewBot(container *do.Injector) (*Bot, error) {
	config, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}
	return &Bot{token: config.BotToken, channelID: config.ChannelID, webAppURL: config.WebAppURL}, nil
}

func (bot *Bot) client() (*tele.Bot, error) {
	bot.once.Do(func() {
		bot.bot, bot.err = tele.NewBot(tele.Settings{
			URL:     bot.apiURL,
			Token:   bot.token,
			Offline: true,
		})
	})
	return bot.bot, bot.err
}

// TelegramUserID validates Mini App init data and returns the user it was
// issued to.
func (bot *Bot) TelegramUserID(raw string) (int64, error) {
	if bot.token != "" {
		if err := initdata.Validate(raw, bot.token, initDataTTL); err != nil {
			return 0, err
		}
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return 0, err
	}
	return data.User.ID, nil
}

func mintedText(req *models.MintRequest) string {
	text := fmt.Sprintf("✅ <b>NFT minted</b>\n\nOwner: <code>%s</code>\nMetadata: %s",
		html.EscapeString(req.UserAddress), html.EscapeString(req.MetadataURI))
	if req.ConfirmedItemAddress != "" {
		text += fmt.Sprintf("\nItem: <code>%s</code>", html.EscapeString(req.ConfirmedItemAddress))
	} else if req.PredictedItemAddress != "" {
		text += fmt.Sprintf("\nItem: <code>%s</code>", html.EscapeString(req.PredictedItemAddress))
	}
	return text
}

// NotifyMinted posts to the channel and messages the requester. Missing
// recipients are skipped.
func (bot *Bot) NotifyMinted(ctx context.Context, req *models.MintRequest) error {
	if bot.token == "" {
		return nil
	}
	b, err := bot.client()
	if err != nil {
		return err
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if bot.webAppURL != "" {
		opts.ReplyMarkup = &tele.ReplyMarkup{
			InlineKeyboard: [][]tele.InlineButton{
				{{Text: "🖼 Open gallery", WebApp: &tele.WebApp{URL: bot.webAppURL}}},
			},
		}
	}

	var errs []error
	text := mintedText(req)
	if bot.channelID != 0 {
		if _, err := b.Send(&tele.Chat{ID: bot.channelID}, text, opts); err != nil {
			errs = append(errs, fmt.Errorf("channel: %w", err))
		}
	}
	if ctx.Err() == nil && req.TelegramUserID != 0 {
		if _, err := b.Send(&tele.User{ID: req.TelegramUserID}, text, opts); err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", req.TelegramUserID, err))
		}
	}
	return errors.Join(errs...)
}
