package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"contentgate/internal/ports"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends approval requests to one chat.
type Telegram struct {
	api    telegramSender
	chatID int64
}

var _ ports.Notifier = (*Telegram)(nil)

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat_id are required")
	}
	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) NotifyApprovalRequested(ctx context.Context, req ports.ApprovalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := "<b>" + html.EscapeString(approvalTitle(req)) + "</b>\n" + html.EscapeString(approvalMessage(req))
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) Close() error { return nil }
