package telegram

import (
	"context"
	"errors"
	"fmt"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/localization"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// ErrNotLinked means the profile has not linked a Telegram chat.
var ErrNotLinked = errors.New("profile has no linked telegram chat")

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notice describes a message a member missed while offline.
type Notice struct {
	ProfileID  int64
	RoomID     int64
	RoomTitle  string
	SenderName string
	Text       string
	Lang       string
}

// Notifier delivers notices to offline members.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Nop drops every notice. It is used when no bot token is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Notice) error { return nil }

// ChatKey is the key-value key holding the Telegram chat of a profile.
func ChatKey(profileID int64) string {
	return "telegram_chat:" + strconv.FormatInt(profileID, 10)
}

// LinkChat stores chatID as the notification target of profileID.
func LinkChat(ctx context.Context, store kvstore.Store, profileID, chatID int64) error {
	return store.Set(ctx, ChatKey(profileID), strconv.FormatInt(chatID, 10), 0)
}

// LinkedChat returns the Telegram chat linked to profileID or ErrNotLinked.
func LinkedChat(ctx context.Context, store kvstore.Store, profileID int64) (int64, error) {
	val, err := store.Get(ctx, ChatKey(profileID))
	if errors.Is(err, kvstore.ErrMiss) {
		return 0, ErrNotLinked
	}
	if err != nil {
		return 0, err
	}
	chatID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat of profile %d: %w", profileID, err)
	}
	return chatID, nil
}

// TelegramNotifier sends notices through a Telegram bot.
type TelegramNotifier struct {
	bot         Sender
	store       kvstore.Store
	localizer   *localization.Localizer
	defaultLang string
	limiter     *rate.Limiter
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier returns a notifier that stays under Telegram's
// global send limit.
func NewTelegramNotifier(bot Sender, store kvstore.Store, localizer *localization.Localizer, defaultLang string) *TelegramNotifier {
	if defaultLang == "" {
		defaultLang = localization.DefaultLanguage
	}
	return &TelegramNotifier{
		bot:         bot,
		store:       store,
		localizer:   localizer,
		defaultLang: defaultLang,
		limiter:     rate.NewLimiter(rate.Limit(25), 5),
	}
}

// Notify sends n to the chat linked to its profile. Profiles without a
// linked chat yield ErrNotLinked.
func (t *TelegramNotifier) Notify(ctx context.Context, n Notice) error {
	chatID, err := LinkedChat(ctx, t.store, n.ProfileID)
	if err != nil {
		return err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, t.render(n))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram notice to profile %d: %w", n.ProfileID, err)
	}
	return nil
}

func (t *TelegramNotifier) render(n Notice) string {
	lang := n.Lang
	if lang == "" {
		lang = t.defaultLang
	}
	var body string
	if n.SenderName == "" {
		body = t.localizer.Format(lang, "notify_new_message_system", n.RoomTitle)
	} else {
		body = t.localizer.Format(lang, "notify_new_message", n.SenderName, n.Text)
	}
	return body + "\n\n" + t.localizer.GetString(lang, "notify_open_app")
}
