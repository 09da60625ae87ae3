package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	apiURL string
	token  string
	chatID string
	rc     *resty.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. An empty apiURL uses DefaultTelegramAPI.
func NewTelegramSender(rc *resty.Client, apiURL, token, chatID string) *TelegramSender {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	return &TelegramSender{apiURL: apiURL, token: token, chatID: chatID, rc: rc}
}

// Send posts a message to the configured chat using sendMessage. Text is sent
// without a parse mode so market titles need no escaping.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	resp, err := t.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("token", t.token).
		SetBody(map[string]any{
			"chat_id":                  t.chatID,
			"text":                     title + "\n" + message,
			"disable_web_page_preview": true,
		}).
		Post(t.apiURL + "/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode(), truncate(resp.String(), 1024))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
