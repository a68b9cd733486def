package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// TelegramNotifier delivers alert notifications through the Telegram
// bot API. The target is the chat id configured on the account.
type TelegramNotifier struct {
	client   *resty.Client
	logger   *zap.Logger
	botToken string
}

// NewTelegramNotifier creates a notifier using the given bot token.
func NewTelegramNotifier(apiBase, botToken string, timeout time.Duration, logger *zap.Logger) *TelegramNotifier {
	client := resty.New().
		SetBaseURL(apiBase).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &TelegramNotifier{
		client:   client,
		logger:   logger,
		botToken: botToken,
	}
}

// Notify sends one alert message to the target chat. Failures are
// returned to the caller, which treats delivery as best effort.
func (n *TelegramNotifier) Notify(ctx context.Context, target string, alert *core.Alert, msg *core.Message) error {
	if target == "" {
		return nil
	}

	text := fmt.Sprintf("⚠️ %s alert: %s message from %s\nConfidence %.0f%%\n%s",
		alert.Severity, alert.Emotion, msg.Sender,
		msg.Confidence*100, snippet(msg.Text, 200))

	var result sendMessageResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: target, Text: text}).
		SetResult(&result).
		SetError(&result).
		// The bot API always answers JSON; decode it even when a proxy
		// strips the content type.
		ForceContentType("application/json").
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))
	if err != nil {
		return core.NewTransportError("send telegram alert", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode(), result.Description)
	}

	n.logger.Debug("Sent alert notification",
		zap.String("alert_id", alert.AlertID),
		zap.String("severity", string(alert.Severity)))

	return nil
}

func snippet(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
