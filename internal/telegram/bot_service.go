// Package telegram delivers feed notifications to members through a Telegram bot.
// It is responsible for linking Telegram chats to chat profiles and for
// sending notices about messages a member missed while offline.
package telegram

import (
	"context"
	"fmt"
	"log"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/localization"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotService receives Telegram updates and handles the link commands.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Store     kvstore.Store
	Localizer *localization.Localizer
	Notifier  *TelegramNotifier
}

// NewBotService creates a new BotService instance.
func NewBotService(token string, store kvstore.Store, localizer *localization.Localizer, lang string) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false
	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	return &BotService{
		BotAPI:    bot,
		Store:     store,
		Localizer: localizer,
		Notifier:  NewTelegramNotifier(bot, store, localizer, lang),
	}, nil
}

// Run is the main loop for receiving Telegram updates. It returns when ctx
// is cancelled.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !HandleLinkCommand(ctx, &update, s.Store, s.BotAPI, s.Localizer) {
				// невідома команда, підказуємо як прив'язати чат
				reply := tgbotapi.NewMessage(update.Message.Chat.ID, s.Localizer.GetString(localization.DefaultLanguage, "notify_open_app"))
				if _, err := s.BotAPI.Send(reply); err != nil {
					log.Printf("Error sending reply: %v", err)
				}
			}
		}
	}
}
