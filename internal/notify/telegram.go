// Package notify pushes operator alerts to a Telegram admin chat so the
// sales team hears about conversions without watching the logs.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/diasbot/insta-consultant/internal/models"
)

type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram notifier: %w", err)
	}

	return &TelegramNotifier{
		api:    api,
		chatID: chatID,
		logger: logger,
	}, nil
}

// LeadConverted announces a decision or payment change on a lead.
func (n *TelegramNotifier) LeadConverted(lead *models.Lead) {
	text := fmt.Sprintf("Lead update for %s\nName: %s\nDecision: %s\nPaid: %v",
		lead.InstagramID, orDash(lead.Name), orDash(lead.FinalDecision), lead.Paid)

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send operator alert",
			zap.Error(err),
			zap.String("instagram_id", lead.InstagramID))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
