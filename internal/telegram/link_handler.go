package telegram

import (
	"context"
	"errors"
	"log"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/localization"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// LinkCodeTTL is how long a code from CreateLinkCode stays valid.
const LinkCodeTTL = time.Hour

func linkCodeKey(code string) string { return "telegram_link:" + code }

// CreateLinkCode issues a one-time code that links the Telegram chat which
// sends it to profileID.
func CreateLinkCode(ctx context.Context, store kvstore.Store, profileID int64) (string, error) {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := store.Set(ctx, linkCodeKey(code), strconv.FormatInt(profileID, 10), LinkCodeTTL); err != nil {
		return "", err
	}
	return code, nil
}

// HandleLinkCommand processes /start <code> and /link <code>.
// It links the sending chat to the profile the code was issued for and
// replies with a confirmation.
func HandleLinkCommand(ctx context.Context, update *tgbotapi.Update, store kvstore.Store, bot Sender, localizer *localization.Localizer) bool {
	if update.Message == nil {
		return false
	}
	switch update.Message.Command() {
	case "start", "link":
	default:
		return false
	}

	code := strings.TrimSpace(update.Message.CommandArguments())
	if code == "" {
		return false
	}

	lang := localization.DefaultLanguage
	if update.Message.From != nil && update.Message.From.LanguageCode != "" {
		lang = update.Message.From.LanguageCode
	}

	val, err := store.GetDel(ctx, linkCodeKey(code))
	if errors.Is(err, kvstore.ErrMiss) {
		log.Printf("WARN: unknown or expired telegram link code from chat %d", update.Message.Chat.ID)
		return true
	}
	if err != nil {
		log.Printf("ERROR: reading telegram link code: %v", err)
		return true
	}
	profileID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.Printf("ERROR: bad profile id %q behind link code: %v", val, err)
		return true
	}

	if err := LinkChat(ctx, store, profileID, update.Message.Chat.ID); err != nil {
		log.Printf("ERROR: linking chat %d to profile %d: %v", update.Message.Chat.ID, profileID, err)
		return true
	}
	log.Printf("INFO: telegram chat %d linked to profile %d", update.Message.Chat.ID, profileID)

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, localizer.GetString(lang, "link_telegram_done"))
	if _, err := bot.Send(msg); err != nil {
		log.Printf("Error sending link confirmation: %v", err)
	}
	return true
}
