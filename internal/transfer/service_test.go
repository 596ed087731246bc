package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/novelink/novelink/internal/catalog"
	"github.com/novelink/novelink/internal/ledger"
)

func newTestService() (*Service, ledger.Store, *catalog.MemoryRepository) {
	store := ledger.NewInMemory()
	cat := catalog.NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(Config{MinGiftCoins: 1, MaxGiftCoins: 1_000}, store, cat, nil, nil, logger)
	return service, store, cat
}

func seedChapter(cat *catalog.MemoryRepository, posterID string, price int64) catalog.Chapter {
	novelID := uuid.NewString()
	cat.AddNovel(catalog.Novel{ID: novelID, PosterID: posterID, Title: "Ash and Ember"})
	ch := catalog.Chapter{
		ID:         uuid.NewString(),
		NovelID:    novelID,
		PosterID:   posterID,
		Title:      "Chapter 12",
		PriceCoins: price,
		Locked:     price > 0,
	}
	cat.AddChapter(ch)
	return ch
}

func TestPurchaseChapter(t *testing.T) {
	ctx := context.Background()
	service, store, cat := newTestService()

	buyerID := uuid.NewString()
	posterID := uuid.NewString()
	ledger.SeedBalance(store, buyerID, 50)
	chapter := seedChapter(cat, posterID, 10)

	result, err := service.PurchaseChapter(ctx, buyerID, chapter.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !result.Charged {
		t.Fatal("expected a charged purchase")
	}
	if result.Balance == nil || *result.Balance != 40 {
		t.Fatalf("expected buyer balance 40, got %v", result.Balance)
	}
	if result.Debit == nil || result.Debit.Status != ledger.StatusSuccess {
		t.Fatalf("expected a success debit entry, got %+v", result.Debit)
	}

	posterBalance, _ := store.Balance(ctx, posterID)
	if posterBalance != 10 {
		t.Fatalf("expected poster balance 10, got %d", posterBalance)
	}

	unlocked, _ := cat.IsUnlocked(ctx, buyerID, chapter.ID)
	if !unlocked {
		t.Fatal("expected the chapter to be unlocked")
	}

	// A replayed purchase grants access again without charging.
	again, err := service.PurchaseChapter(ctx, buyerID, chapter.ID)
	if err != nil {
		t.Fatalf("repeat purchase: %v", err)
	}
	if again.Charged {
		t.Fatal("repeat purchase must not charge")
	}
	buyerBalance, _ := store.Balance(ctx, buyerID)
	if buyerBalance != 40 {
		t.Fatalf("repeat purchase moved coins, balance %d", buyerBalance)
	}
}

func TestPurchaseChapterInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	service, store, cat := newTestService()

	buyerID := uuid.NewString()
	posterID := uuid.NewString()
	ledger.SeedBalance(store, buyerID, 5)
	chapter := seedChapter(cat, posterID, 10)

	if _, err := service.PurchaseChapter(ctx, buyerID, chapter.ID); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	buyerBalance, _ := store.Balance(ctx, buyerID)
	posterBalance, _ := store.Balance(ctx, posterID)
	if buyerBalance != 5 || posterBalance != 0 {
		t.Fatalf("failed purchase moved coins: buyer %d poster %d", buyerBalance, posterBalance)
	}
	unlocked, _ := cat.IsUnlocked(ctx, buyerID, chapter.ID)
	if unlocked {
		t.Fatal("failed purchase granted access")
	}
}

func TestPurchaseChapterOwnerAndFree(t *testing.T) {
	ctx := context.Background()
	service, store, cat := newTestService()

	posterID := uuid.NewString()
	ledger.SeedBalance(store, posterID, 100)
	chapter := seedChapter(cat, posterID, 10)

	result, err := service.PurchaseChapter(ctx, posterID, chapter.ID)
	if err != nil {
		t.Fatalf("owner purchase: %v", err)
	}
	if result.Charged {
		t.Fatal("posters are never charged for their own chapters")
	}
	balance, _ := store.Balance(ctx, posterID)
	if balance != 100 {
		t.Fatalf("owner purchase moved coins, balance %d", balance)
	}

	readerID := uuid.NewString()
	free := seedChapter(cat, posterID, 0)
	result, err = service.PurchaseChapter(ctx, readerID, free.ID)
	if err != nil {
		t.Fatalf("free purchase: %v", err)
	}
	if result.Charged {
		t.Fatal("free chapters must not charge")
	}
	unlocked, _ := cat.IsUnlocked(ctx, readerID, free.ID)
	if !unlocked {
		t.Fatal("free purchase should still record access")
	}
}

func TestPurchaseChapterNotFound(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	if _, err := service.PurchaseChapter(ctx, uuid.NewString(), uuid.NewString()); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected catalog.ErrNotFound, got %v", err)
	}
}

func TestPurchaseEntriesArePaired(t *testing.T) {
	ctx := context.Background()
	service, store, cat := newTestService()

	buyerID := uuid.NewString()
	posterID := uuid.NewString()
	ledger.SeedBalance(store, buyerID, 50)
	chapter := seedChapter(cat, posterID, 10)

	result, err := service.PurchaseChapter(ctx, buyerID, chapter.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	debit := *result.Debit
	if debit.PairID == "" {
		t.Fatal("expected a pair id on the debit leg")
	}

	posterEntries, err := store.ListByUser(ctx, posterID, 10, 0)
	if err != nil {
		t.Fatalf("poster entries: %v", err)
	}
	if len(posterEntries) != 1 {
		t.Fatalf("expected one credit leg, got %d", len(posterEntries))
	}
	credit := posterEntries[0]
	if credit.Direction != ledger.DirectionCredit || credit.Kind != ledger.KindPurchase {
		t.Fatalf("unexpected credit leg: %+v", credit)
	}
	if credit.PairID != debit.PairID {
		t.Fatalf("legs not linked: %q vs %q", credit.PairID, debit.PairID)
	}
	if debit.ChapterID != chapter.ID || credit.ChapterID != chapter.ID {
		t.Fatal("both legs must record the chapter")
	}
}

func TestGiftChapter(t *testing.T) {
	ctx := context.Background()
	service, store, cat := newTestService()

	gifterID := uuid.NewString()
	posterID := uuid.NewString()
	ledger.SeedBalance(store, gifterID, 200)
	chapter := seedChapter(cat, posterID, 10)

	result, err := service.GiftChapter(ctx, gifterID, chapter.ID, 50)
	if err != nil {
		t.Fatalf("gift: %v", err)
	}
	if result.Balance != 150 {
		t.Fatalf("expected gifter balance 150, got %d", result.Balance)
	}
	if result.Debit.Kind != ledger.KindGift {
		t.Fatalf("expected gift kind, got %s", result.Debit.Kind)
	}

	posterBalance, _ := store.Balance(ctx, posterID)
	if posterBalance != 50 {
		t.Fatalf("expected poster balance 50, got %d", posterBalance)
	}

	// Gifts grant no access.
	unlocked, _ := cat.IsUnlocked(ctx, gifterID, chapter.ID)
	if unlocked {
		t.Fatal("a gift must not unlock the chapter")
	}
}

func TestGiftChapterValidation(t *testing.T) {
	ctx := context.Background()
	service, store, cat := newTestService()

	gifterID := uuid.NewString()
	posterID := uuid.NewString()
	ledger.SeedBalance(store, gifterID, 200)
	ledger.SeedBalance(store, posterID, 0)
	chapter := seedChapter(cat, posterID, 10)

	if _, err := service.GiftChapter(ctx, gifterID, chapter.ID, 0); !errors.Is(err, ErrInvalidGiftAmount) {
		t.Fatalf("expected ErrInvalidGiftAmount, got %v", err)
	}
	if _, err := service.GiftChapter(ctx, gifterID, chapter.ID, 5_000); !errors.Is(err, ErrInvalidGiftAmount) {
		t.Fatalf("expected ErrInvalidGiftAmount above max, got %v", err)
	}
	if _, err := service.GiftChapter(ctx, posterID, chapter.ID, 10); !errors.Is(err, ErrSelfGift) {
		t.Fatalf("expected ErrSelfGift, got %v", err)
	}
	if _, err := service.GiftChapter(ctx, gifterID, chapter.ID, 201); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := store.Balance(ctx, gifterID)
	if balance != 200 {
		t.Fatalf("rejected gifts moved coins, balance %d", balance)
	}
}
