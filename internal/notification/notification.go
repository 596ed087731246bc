package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTopup announces coins credited from a settled topup.
	KindTopup = "coin_topup"
	// KindChapterSold tells a poster their chapter was purchased.
	KindChapterSold = "chapter_sold"
	// KindGiftReceived tells a poster they received a coin gift.
	KindGiftReceived = "gift_received"
)

// Message describes a user-facing notification. Delivery is best-effort:
// senders log failures and move on, never rolling back the money movement
// that triggered them.
type Message struct {
	RecipientID string
	Kind        string
	Title       string
	Body        string
	NovelID     string
	ChapterID   string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LogNotifier writes notifications to the structured logger. Used in tests
// and as the fallback when no durable store is wired.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a logging notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LogNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"recipient", message.RecipientID,
		"title", message.Title,
		"body", message.Body,
	)
	return nil
}
