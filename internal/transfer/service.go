package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/novelink/novelink/internal/catalog"
	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/metrics"
	"github.com/novelink/novelink/internal/notification"
)

var (
	// ErrSelfGift occurs when a user tries to gift coins on their own chapter.
	ErrSelfGift = errors.New("cannot gift coins on your own chapter")

	// ErrInvalidGiftAmount occurs when a gift is outside the configured bounds.
	ErrInvalidGiftAmount = errors.New("invalid gift amount")
)

// Config bounds the gift amounts accepted per request.
type Config struct {
	MinGiftCoins int64
	MaxGiftCoins int64
}

// Service moves coins between users: chapter purchases and reader gifts.
// Both ride the ledger's atomic transfer, which writes the matched
// debit/credit pair and refuses overdraft.
type Service struct {
	cfg      Config
	store    ledger.Store
	catalog  catalog.Repository
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService constructs the transfer service.
func NewService(cfg Config, store ledger.Store, cat catalog.Repository, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.MinGiftCoins <= 0 {
		cfg.MinGiftCoins = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, store: store, catalog: cat, notifier: notifier, metrics: m, logger: logger}
}

// PurchaseResult reports a purchase outcome. Charged is false when access
// was granted without moving coins: the chapter is free, already unlocked,
// or the buyer posted it.
type PurchaseResult struct {
	Charged     bool
	AmountCoins int64
	Debit       *ledger.Entry
	Balance     *int64
}

// GiftResult reports a completed gift.
type GiftResult struct {
	Debit   ledger.Entry
	Balance int64
}

// PurchaseChapter unlocks a chapter for the buyer, charging the chapter's
// live price and crediting the poster. The operation is a no-op success
// when no charge applies; a replayed purchase never charges twice.
func (s *Service) PurchaseChapter(ctx context.Context, buyerID, chapterID string) (PurchaseResult, error) {
	chapter, err := s.catalog.GetChapter(ctx, chapterID)
	if err != nil {
		return PurchaseResult{}, err
	}

	if chapter.PosterID == buyerID {
		return PurchaseResult{}, nil
	}

	unlocked, err := s.catalog.IsUnlocked(ctx, buyerID, chapter.ID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if unlocked {
		return PurchaseResult{}, nil
	}

	if !chapter.Locked || chapter.PriceCoins <= 0 {
		if err := s.catalog.GrantUnlock(ctx, buyerID, chapter.ID); err != nil {
			return PurchaseResult{}, err
		}
		return PurchaseResult{}, nil
	}

	moved, err := s.store.Transfer(ctx, ledger.TransferSpec{
		FromUserID:  buyerID,
		ToUserID:    chapter.PosterID,
		Kind:        ledger.KindPurchase,
		AmountCoins: chapter.PriceCoins,
		ChapterID:   chapter.ID,
		NovelID:     chapter.NovelID,
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	if err := s.catalog.GrantUnlock(ctx, buyerID, chapter.ID); err != nil {
		// Coins already moved; surface the failure so it can be reconciled
		// rather than silently selling a locked chapter.
		s.logger.Error("unlock grant failed after charge",
			"buyer_id", buyerID, "chapter_id", chapter.ID, "debit_id", moved.Debit.ID, "error", err)
		return PurchaseResult{}, err
	}

	s.metrics.TransferCompleted(ledger.KindPurchase)
	s.logger.Info("chapter purchased",
		"buyer_id", buyerID, "chapter_id", chapter.ID, "amount_coins", chapter.PriceCoins)
	s.notify(ctx, notification.Message{
		RecipientID: chapter.PosterID,
		Kind:        notification.KindChapterSold,
		Title:       "Chapter sold",
		Body:        fmt.Sprintf("A reader unlocked %q for %d coins.", chapter.Title, chapter.PriceCoins),
		NovelID:     chapter.NovelID,
		ChapterID:   chapter.ID,
	})

	balance := moved.FromBalance
	return PurchaseResult{
		Charged:     true,
		AmountCoins: chapter.PriceCoins,
		Debit:       &moved.Debit,
		Balance:     &balance,
	}, nil
}

// GiftChapter sends coins to a chapter's poster as appreciation. Gifts
// grant no access and are not allowed on the gifter's own chapters.
func (s *Service) GiftChapter(ctx context.Context, gifterID, chapterID string, amountCoins int64) (GiftResult, error) {
	if amountCoins < s.cfg.MinGiftCoins || (s.cfg.MaxGiftCoins > 0 && amountCoins > s.cfg.MaxGiftCoins) {
		return GiftResult{}, ErrInvalidGiftAmount
	}

	chapter, err := s.catalog.GetChapter(ctx, chapterID)
	if err != nil {
		return GiftResult{}, err
	}
	if chapter.PosterID == gifterID {
		return GiftResult{}, ErrSelfGift
	}

	moved, err := s.store.Transfer(ctx, ledger.TransferSpec{
		FromUserID:  gifterID,
		ToUserID:    chapter.PosterID,
		Kind:        ledger.KindGift,
		AmountCoins: amountCoins,
		ChapterID:   chapter.ID,
		NovelID:     chapter.NovelID,
	})
	if err != nil {
		return GiftResult{}, err
	}

	s.metrics.TransferCompleted(ledger.KindGift)
	s.logger.Info("gift sent",
		"gifter_id", gifterID, "chapter_id", chapter.ID, "amount_coins", amountCoins)
	s.notify(ctx, notification.Message{
		RecipientID: chapter.PosterID,
		Kind:        notification.KindGiftReceived,
		Title:       "Gift received",
		Body:        fmt.Sprintf("A reader sent %d coins on %q.", amountCoins, chapter.Title),
		NovelID:     chapter.NovelID,
		ChapterID:   chapter.ID,
	})

	return GiftResult{Debit: moved.Debit, Balance: moved.FromBalance}, nil
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.Warn("notification delivery failed", "kind", message.Kind, "recipient", message.RecipientID, "error", err)
	}
}
