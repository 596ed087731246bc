package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/provider"
	"github.com/novelink/novelink/internal/topup"
)

type stubAdapter struct {
	state provider.SessionState
}

func (s *stubAdapter) Name() string            { return "payvia" }
func (s *stubAdapter) HasWebhookSupport() bool { return true }

func (s *stubAdapter) CreateSession(_ context.Context, input provider.CreateSessionInput) (provider.Session, error) {
	return provider.Session{RedirectURL: "https://pay.example/" + input.OrderCode, SessionRef: "sess-" + input.OrderCode}, nil
}

func (s *stubAdapter) RetrieveSession(_ context.Context, _ string) (provider.SessionState, error) {
	return s.state, nil
}

func (s *stubAdapter) VerifyCallback(_ provider.CallbackPayload) (provider.Callback, error) {
	return provider.Callback{}, provider.ErrSignatureInvalid
}

func newTestService(adapter *stubAdapter) (*Service, ledger.Store, *topup.Service) {
	store := ledger.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	topups := topup.NewService(topup.Config{
		ExchangeRate: 250,
		MinCoins:     10,
		MaxCoins:     10_000,
		StepCoins:    10,
	}, store, provider.NewRegistry(adapter), nil, nil, logger)
	return NewService(store, topups), store, topups
}

func TestListEntriesClampsPaging(t *testing.T) {
	ctx := context.Background()
	service, _, topups := newTestService(&stubAdapter{})

	for i := 0; i < 3; i++ {
		if _, err := topups.CreateSession(ctx, topup.CreateSessionInput{UserID: uuid.NewString(), Provider: "payvia", AmountCoins: 100}); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	entries, summary, err := service.ListEntries(ctx, ledger.Filter{Limit: -5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if summary.CountByStatus[ledger.StatusPending] != 3 {
		t.Fatalf("expected 3 pending in summary, got %d", summary.CountByStatus[ledger.StatusPending])
	}

	page, _, err := service.ListEntries(ctx, ledger.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}

func TestResolveRequiresReason(t *testing.T) {
	ctx := context.Background()
	service, _, topups := newTestService(&stubAdapter{})

	created, err := topups.CreateSession(ctx, topup.CreateSessionInput{UserID: uuid.NewString(), Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := service.Resolve(ctx, created.Entry.ID, ledger.StatusSuccess, ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
}

func TestResolveSettles(t *testing.T) {
	ctx := context.Background()
	service, store, topups := newTestService(&stubAdapter{})

	userID := uuid.NewString()
	created, err := topups.CreateSession(ctx, topup.CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result, err := service.Resolve(ctx, created.Entry.ID, ledger.StatusSuccess, "statement line 412")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Entry.Status != ledger.StatusSuccess {
		t.Fatalf("expected success, got %s", result.Entry.Status)
	}
	if result.Balance == nil || *result.Balance != 100 {
		t.Fatalf("expected balance 100, got %v", result.Balance)
	}

	balance, _ := store.Balance(ctx, userID)
	if balance != 100 {
		t.Fatalf("expected 100 coins, got %d", balance)
	}
}

func TestSyncConverges(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{}
	service, store, topups := newTestService(adapter)

	userID := uuid.NewString()
	created, err := topups.CreateSession(ctx, topup.CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.state = provider.SessionState{
		Status:    provider.PaymentCaptured,
		OrderCode: created.Entry.OrderCode,
		EntryID:   created.Entry.ID,
		ChargeRef: "ch_admin",
	}
	result, err := service.Sync(ctx, created.Entry.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Entry.Status != ledger.StatusSuccess {
		t.Fatalf("expected success, got %s", result.Entry.Status)
	}
	if result.Entry.ChargeRef != "ch_admin" {
		t.Fatalf("charge ref not recorded: %q", result.Entry.ChargeRef)
	}

	balance, _ := store.Balance(ctx, userID)
	if balance != 100 {
		t.Fatalf("expected 100 coins, got %d", balance)
	}

	if _, err := service.Sync(ctx, uuid.NewString()); !errors.Is(err, ledger.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}
