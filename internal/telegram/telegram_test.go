package telegram_test

import (
	"context"
	"errors"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/localization"
	"spacechat/backend/internal/telegram"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newLocalizer(t *testing.T) *localization.Localizer {
	t.Helper()
	l, err := localization.NewEmbedded()
	require.NoError(t, err)
	return l
}

func commandUpdate(chatID int64, text string) *tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
			From:     &tgbotapi.User{ID: chatID},
			Chat:     tgbotapi.Chat{ID: chatID},
		},
	}
}

func TestNotify_NotLinked(t *testing.T) {
	bot := &fakeSender{}
	n := telegram.NewTelegramNotifier(bot, kvstore.NewMemoryStore(), newLocalizer(t), "en")

	err := n.Notify(context.Background(), telegram.Notice{ProfileID: 7, SenderName: "Ann", Text: "hi"})
	assert.ErrorIs(t, err, telegram.ErrNotLinked)
	assert.Empty(t, bot.texts())
}

func TestNotify_SendsLocalizedNotice(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, telegram.LinkChat(ctx, store, 7, 555))

	bot := &fakeSender{}
	n := telegram.NewTelegramNotifier(bot, store, newLocalizer(t), "en")

	require.NoError(t, n.Notify(ctx, telegram.Notice{ProfileID: 7, RoomTitle: "Ann", SenderName: "Ann", Text: "hi there"}))
	require.Len(t, bot.texts(), 1)
	assert.Contains(t, bot.texts()[0], "New message from Ann:\nhi there")
	assert.Contains(t, bot.texts()[0], "Open the app to reply.")
}

func TestNotify_SendError(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, telegram.LinkChat(ctx, store, 7, 555))

	bot := &fakeSender{err: errors.New("blocked by user")}
	n := telegram.NewTelegramNotifier(bot, store, newLocalizer(t), "")

	err := n.Notify(ctx, telegram.Notice{ProfileID: 7, SenderName: "Ann", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked by user")
}

func TestHandleLinkCommand(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	bot := &fakeSender{}
	l := newLocalizer(t)

	code, err := telegram.CreateLinkCode(ctx, store, 42)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	handled := telegram.HandleLinkCommand(ctx, commandUpdate(12345, "/start "+code), store, bot, l)
	assert.True(t, handled)

	chatID, err := telegram.LinkedChat(ctx, store, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), chatID)
	assert.Equal(t, []string{l.GetString("en", "link_telegram_done")}, bot.texts())

	// код одноразовий
	handled = telegram.HandleLinkCommand(ctx, commandUpdate(999, "/link "+code), store, bot, l)
	assert.True(t, handled)
	chatID, err = telegram.LinkedChat(ctx, store, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), chatID)
	assert.Len(t, bot.texts(), 1)
}

func TestHandleLinkCommand_ConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	bot := &fakeSender{}
	l := newLocalizer(t)

	code, err := telegram.CreateLinkCode(ctx, store, 42)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for chat := int64(1); chat <= 20; chat++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			telegram.HandleLinkCommand(ctx, commandUpdate(chat, "/link "+code), store, bot, l)
		}(chat)
	}
	wg.Wait()

	assert.Len(t, bot.texts(), 1, "a code links exactly one chat")
	_, err = telegram.LinkedChat(ctx, store, 42)
	assert.NoError(t, err)
}

func TestHandleLinkCommand_Ignored(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	bot := &fakeSender{}
	l := newLocalizer(t)

	assert.False(t, telegram.HandleLinkCommand(ctx, commandUpdate(1, "/help"), store, bot, l))
	assert.False(t, telegram.HandleLinkCommand(ctx, commandUpdate(1, "/start"), store, bot, l))
	assert.False(t, telegram.HandleLinkCommand(ctx, &tgbotapi.Update{}, store, bot, l))
	assert.Empty(t, bot.texts())
}

func TestNop(t *testing.T) {
	var n telegram.Notifier = telegram.Nop{}
	assert.NoError(t, n.Notify(context.Background(), telegram.Notice{ProfileID: 1}))
}
