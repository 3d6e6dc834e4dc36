package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID string
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. The chat ID is either numeric or a "@channel" username. No request is
// made until the first Send.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return NewTelegramSenderWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewTelegramSenderWithEndpoint is NewTelegramSender against a custom Bot API
// endpoint of the form "https://host/bot%s/%s".
func NewTelegramSenderWithEndpoint(token, chatID, endpoint string) *TelegramSender {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: 10 * time.Second},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(endpoint)
	return &TelegramSender{bot: bot, chatID: strings.TrimSpace(chatID)}
}

// Send posts a plain-text message to the configured chat. Messages carry
// dollar amounts and underscores, so no parse mode is set.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	// The Bot API client has no context support; honour cancellation up front
	// and rely on the HTTP client timeout for the call itself.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	text := message
	if title != "" {
		text = title + "\n" + message
	}

	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(t.chatID, text)
	}
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
