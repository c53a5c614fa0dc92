// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"

	"treatment_slot_service/internal/domain/push"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the push.Client interface using the
// gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// Send delivers one push message to the recipient's direct chat. telebot has
// no context plumbing, so the API call runs in its own goroutine and the
// deadline is enforced here: when the context expires first, Send reports a
// delivery failure and the abandoned call is bounded by the bot's HTTP client
// timeout. Telegram offers no side-channel for structured payloads, so
// msg.Metadata stays at the adapter boundary; transports with a data field
// would forward it.
func (tba *TelebotAdapter) Send(ctx context.Context, msg push.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivery aborted before send: %w", err)
	}

	recipient := &telebot.User{ID: msg.ChatID}
	text := msg.Body
	if msg.Title != "" {
		text = fmt.Sprintf("*%s*\n\n%s", msg.Title, msg.Body)
	}

	done := make(chan error, 1)
	go func() {
		_, err := tba.bot.Send(recipient, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("delivery timed out: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

var _ push.Client = (*TelebotAdapter)(nil)
