package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/chainpay/internal/payment"
)

// Sender is the part of *bot.Bot the notifier needs
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier tells users over Telegram that their payment went through
type Notifier struct {
	sender      Sender
	explorerURL string
	log         *slog.Logger
}

// New creates a new Notifier. explorerURL, if set, is the transaction page
// prefix, e.g. "https://etherscan.io/tx/".
func New(sender Sender, explorerURL string, log *slog.Logger) *Notifier {
	return &Notifier{
		sender:      sender,
		explorerURL: explorerURL,
		log:         log,
	}
}

// PaymentConfirmed sends the confirmation message to the payer's chat
func (n *Notifier) PaymentConfirmed(ctx context.Context, e payment.LedgerEntry) error {
	if e.UserID == 0 {
		n.log.Debug("skip notification without user", "payment_id", e.PaymentID)
		return nil
	}

	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    e.UserID,
		Text:      n.formatConfirmed(e),
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}

	if _, err := n.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send confirmation to %d: %w", e.UserID, err)
	}

	n.log.Debug("confirmation sent", "payment_id", e.PaymentID, "user_id", e.UserID)
	return nil
}

func (n *Notifier) formatConfirmed(e payment.LedgerEntry) string {
	tx := fmt.Sprintf("<code>%s</code>", shortHash(e.TxHash))
	if n.explorerURL != "" && e.TxHash != "" {
		tx = fmt.Sprintf("<a href='%s%s'>%s</a>", n.explorerURL, e.TxHash, shortHash(e.TxHash))
	}

	lines := []string{
		"✅ <b>Payment confirmed</b>",
		"",
		fmt.Sprintf("Tariff: <b>%s</b>", e.TariffID),
		fmt.Sprintf("Amount: <b>%s</b>", e.PaidAmount),
		fmt.Sprintf("Active until: <b>%s</b>", e.ExpiresAt.UTC().Format("02.01.2006 15:04 UTC")),
		"",
		"Tx: " + tx,
	}
	return strings.Join(lines, "\n")
}

// shortHash keeps the first and last 6 hex digits of a 0x hash
func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:8] + "…" + h[len(h)-6:]
}
