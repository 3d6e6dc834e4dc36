package notify

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// discordMaxContent is Discord's limit on a webhook message body.
const discordMaxContent = 2000

// discordMessage is the webhook execute payload.
type discordMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	http       *resty.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. Posts
// time out after 10 seconds and are not retried.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   "CryptoBear",
		http:       resty.New().SetTimeout(10 * time.Second),
	}
}

// Send posts a message to the Discord webhook. A non-empty title is rendered
// in bold using Discord markdown syntax.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := message
	if title != "" {
		content = fmt.Sprintf("**%s**\n%s", title, message)
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(discordMessage{Content: truncate(content, discordMaxContent), Username: d.username}).
		Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}

	// 204 No Content on success.
	if resp.IsError() {
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
