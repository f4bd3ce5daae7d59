// Package notify pushes refill events to operator chat channels.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

// MessageSender is the subset of *bot.Bot the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram implements ports.RefillNotifier by messaging one chat.
type Telegram struct {
	sender  MessageSender
	chatID  int64
	network domain.Network
	log     zerolog.Logger
}

// NewTelegramBot creates the bot client for token.
func NewTelegramBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return b, nil
}

// NewTelegram creates a notifier posting to chatID.
func NewTelegram(sender MessageSender, chatID int64, network domain.Network, log zerolog.Logger) *Telegram {
	return &Telegram{sender: sender, chatID: chatID, network: network, log: log}
}

// NotifyRefill implements ports.RefillNotifier.
func (t *Telegram) NotifyRefill(ctx context.Context, event domain.RefillEvent) error {
	disablePreview := true
	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      FormatRefill(event, t.network),
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	if err != nil {
		t.log.Error().Err(err).Int64("chat_id", t.chatID).Msg("telegram: send refill notification")
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// FormatRefill renders event as Telegram HTML.
func FormatRefill(event domain.RefillEvent, network domain.Network) string {
	var sb strings.Builder
	if event.Success {
		sb.WriteString("✅ <b>Wallet refilled</b>\n\n")
	} else {
		sb.WriteString("⚠️ <b>Wallet refill failed</b>\n\n")
	}
	fmt.Fprintf(&sb, "Wallet: <code>%s</code>\n", html.EscapeString(event.WalletAddress))
	fmt.Fprintf(&sb, "Amount: <b>%s %s</b>\n", event.Amount.String(), domain.AptosCoinSymbol)
	fmt.Fprintf(&sb, "Reason: %s\n", html.EscapeString(string(event.Reason)))
	if event.TransactionID != "" {
		fmt.Fprintf(&sb, "Tx: <a href=\"https://explorer.aptoslabs.com/txn/%s?network=%s\">%s</a>\n",
			html.EscapeString(event.TransactionID), network, shortHash(event.TransactionID))
	}
	if event.Error != "" {
		fmt.Fprintf(&sb, "Error: <i>%s</i>\n", html.EscapeString(event.Error))
	}
	fmt.Fprintf(&sb, "Time: %s", event.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	return sb.String()
}

func shortHash(h string) string {
	h = html.EscapeString(h)
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-6:]
}
