package topup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/notification"
	"github.com/novelink/novelink/internal/provider"
)

// fakeAdapter is a scriptable payment provider for orchestration tests.
type fakeAdapter struct {
	mu        sync.Mutex
	name      string
	created   []provider.CreateSessionInput
	state     provider.SessionState
	stateErr  error
	callback  provider.Callback
	verifyErr error
}

func (f *fakeAdapter) Name() string            { return f.name }
func (f *fakeAdapter) HasWebhookSupport() bool { return true }

func (f *fakeAdapter) CreateSession(_ context.Context, input provider.CreateSessionInput) (provider.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, input)
	return provider.Session{
		RedirectURL: "https://pay.example/checkout/" + input.OrderCode,
		SessionRef:  "sess-" + input.OrderCode,
	}, nil
}

func (f *fakeAdapter) RetrieveSession(_ context.Context, _ string) (provider.SessionState, error) {
	if f.stateErr != nil {
		return provider.SessionState{}, f.stateErr
	}
	return f.state, nil
}

func (f *fakeAdapter) VerifyCallback(_ provider.CallbackPayload) (provider.Callback, error) {
	if f.verifyErr != nil {
		return provider.Callback{}, f.verifyErr
	}
	return f.callback, nil
}

// countingNotifier records deliveries so tests can assert one-shot effects.
type countingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *countingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func testConfig() Config {
	return Config{
		ExchangeRate: 250,
		MinCoins:     10,
		MaxCoins:     10_000,
		StepCoins:    10,
		ReturnURL:    "https://novelink.example/topup/return",
		CancelURL:    "https://novelink.example/topup/cancel",
	}
}

func newTestService(adapter *fakeAdapter) (*Service, ledger.Store) {
	store := ledger.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(testConfig(), store, provider.NewRegistry(adapter), nil, nil, logger)
	return service, store
}

func TestCreateSessionValidatesAmount(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, _ := newTestService(adapter)

	for _, coins := range []int64{0, 5, 15_000, 123} {
		if _, err := service.CreateSession(ctx, CreateSessionInput{UserID: uuid.NewString(), Provider: "payvia", AmountCoins: coins}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", coins, err)
		}
	}
	if len(adapter.created) != 0 {
		t.Fatalf("no session should be opened for invalid amounts, got %d", len(adapter.created))
	}

	if _, err := service.CreateSession(ctx, CreateSessionInput{UserID: uuid.NewString(), Provider: "nope", AmountCoins: 100}); !errors.Is(err, provider.ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestCreateSessionPersistsPendingEntry(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	result, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	entry := result.Entry
	if entry.Status != ledger.StatusPending {
		t.Fatalf("expected pending, got %s", entry.Status)
	}
	if entry.AmountFiat != 25_000 {
		t.Fatalf("expected fiat 25000, got %d", entry.AmountFiat)
	}
	if entry.SessionRef != "sess-"+entry.OrderCode {
		t.Fatalf("session ref not recorded: %q", entry.SessionRef)
	}
	if result.RedirectURL == "" {
		t.Fatal("expected redirect URL")
	}

	if len(adapter.created) != 1 {
		t.Fatalf("expected one provider session, got %d", len(adapter.created))
	}
	if adapter.created[0].EntryID != entry.ID {
		t.Fatalf("provider session must carry the entry id, got %q", adapter.created[0].EntryID)
	}

	balance, _ := store.Balance(ctx, userID)
	if balance != 0 {
		t.Fatalf("pending entry must not credit coins, balance %d", balance)
	}
}

func TestWebhookSettlesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.callback = provider.Callback{
		Event:      "checkout.session.completed",
		Status:     provider.PaymentCaptured,
		OrderCode:  created.Entry.OrderCode,
		EntryID:    created.Entry.ID,
		AmountFiat: created.Entry.AmountFiat,
		ChargeRef:  "ch_123",
		Raw:        json.RawMessage(`{"id":"evt_1"}`),
	}

	for i := 0; i < 3; i++ {
		result, err := service.HandleWebhook(ctx, "payvia", provider.CallbackPayload{})
		if err != nil {
			t.Fatalf("webhook %d: %v", i, err)
		}
		if result.Entry.Status != ledger.StatusSuccess {
			t.Fatalf("webhook %d: expected success, got %s", i, result.Entry.Status)
		}
		if result.Entry.ChargeRef != "ch_123" {
			t.Fatalf("charge ref not recorded: %q", result.Entry.ChargeRef)
		}
	}

	balance, _ := store.Balance(ctx, userID)
	if balance != 100 {
		t.Fatalf("expected exactly 100 coins after replays, got %d", balance)
	}
}

func TestWebhookConcurrentDelivery(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	store := ledger.NewInMemory()
	notifier := &countingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(testConfig(), store, provider.NewRegistry(adapter), notifier, nil, logger)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 500})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	adapter.callback = provider.Callback{
		Event:      "checkout.session.completed",
		Status:     provider.PaymentCaptured,
		OrderCode:  created.Entry.OrderCode,
		EntryID:    created.Entry.ID,
		AmountFiat: created.Entry.AmountFiat,
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.HandleWebhook(ctx, "payvia", provider.CallbackPayload{}); err != nil {
				t.Errorf("webhook: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, _ := store.Balance(ctx, userID)
	if balance != 500 {
		t.Fatalf("expected exactly 500 coins, got %d", balance)
	}
	if n := notifier.count(); n != 1 {
		t.Fatalf("expected exactly one notification across racing deliveries, got %d", n)
	}
}

func TestWebhookSignatureRejection(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia", verifyErr: provider.ErrSignatureInvalid}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := service.HandleWebhook(ctx, "payvia", provider.CallbackPayload{Body: []byte(`{}`)}); !errors.Is(err, provider.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	entry, _ := store.Get(ctx, created.Entry.ID)
	if entry.Status != ledger.StatusPending {
		t.Fatalf("rejected callback must not touch the entry, status %s", entry.Status)
	}
	balance, _ := store.Balance(ctx, userID)
	if balance != 0 {
		t.Fatalf("rejected callback must not credit coins, balance %d", balance)
	}
}

func TestWebhookExpiredAfterSuccessIsIgnored(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.callback = provider.Callback{
		Event:      "checkout.session.completed",
		Status:     provider.PaymentCaptured,
		OrderCode:  created.Entry.OrderCode,
		EntryID:    created.Entry.ID,
		AmountFiat: created.Entry.AmountFiat,
	}
	if _, err := service.HandleWebhook(ctx, "payvia", provider.CallbackPayload{}); err != nil {
		t.Fatalf("settle webhook: %v", err)
	}

	adapter.callback = provider.Callback{
		Event:     "checkout.session.expired",
		Status:    provider.PaymentExpired,
		OrderCode: created.Entry.OrderCode,
		EntryID:   created.Entry.ID,
	}
	result, err := service.HandleWebhook(ctx, "payvia", provider.CallbackPayload{})
	if err != nil {
		t.Fatalf("expired webhook: %v", err)
	}
	if result.Entry.Status != ledger.StatusSuccess {
		t.Fatalf("late expiry must not downgrade success, got %s", result.Entry.Status)
	}
	balance, _ := store.Balance(ctx, userID)
	if balance != 100 {
		t.Fatalf("balance changed by late expiry: %d", balance)
	}
}

func TestWebhookUnknownEventIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: uuid.NewString(), Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.callback = provider.Callback{
		Event:     "checkout.session.updated",
		Status:    provider.PaymentPending,
		OrderCode: created.Entry.OrderCode,
		EntryID:   created.Entry.ID,
	}
	result, err := service.HandleWebhook(ctx, "payvia", provider.CallbackPayload{})
	if err != nil {
		t.Fatalf("unknown event: %v", err)
	}
	if result.Entry.Status != ledger.StatusPending {
		t.Fatalf("unknown event must leave the entry pending, got %s", result.Entry.Status)
	}

	entry, _ := store.Get(ctx, created.Entry.ID)
	if entry.Status != ledger.StatusPending {
		t.Fatalf("entry mutated by unknown event: %s", entry.Status)
	}
}

func TestGatewayReturnAmountMismatch(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "seapay"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "seapay", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.callback = provider.Callback{
		Event:        "gateway.return",
		Status:       provider.PaymentCaptured,
		OrderCode:    created.Entry.OrderCode,
		AmountFiat:   created.Entry.AmountFiat + 1,
		ResponseCode: "00",
	}
	if _, err := service.HandleGatewayReturn(ctx, "seapay", map[string]string{}); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	entry, _ := store.Get(ctx, created.Entry.ID)
	if entry.Status != ledger.StatusPending {
		t.Fatalf("mismatched amount must leave the entry pending, got %s", entry.Status)
	}
	balance, _ := store.Balance(ctx, userID)
	if balance != 0 {
		t.Fatalf("mismatched amount credited coins: %d", balance)
	}
}

func TestGatewayReturnResponseCodes(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		status     string
		code       string
		wantStatus string
	}{
		{"captured", provider.PaymentCaptured, "00", ledger.StatusSuccess},
		{"customer cancel", provider.PaymentCanceled, "24", ledger.StatusCanceled},
		{"declined", provider.PaymentFailed, "51", ledger.StatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter := &fakeAdapter{name: "seapay"}
			service, store := newTestService(adapter)

			userID := uuid.NewString()
			created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "seapay", AmountCoins: 100})
			if err != nil {
				t.Fatalf("create session: %v", err)
			}

			adapter.callback = provider.Callback{
				Event:        "gateway.return",
				Status:       tc.status,
				OrderCode:    created.Entry.OrderCode,
				AmountFiat:   created.Entry.AmountFiat,
				ResponseCode: tc.code,
			}
			result, err := service.HandleGatewayReturn(ctx, "seapay", map[string]string{})
			if err != nil {
				t.Fatalf("gateway return: %v", err)
			}
			if result.Entry.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s", tc.wantStatus, result.Entry.Status)
			}

			balance, _ := store.Balance(ctx, userID)
			if tc.wantStatus == ledger.StatusSuccess && balance != 100 {
				t.Fatalf("expected 100 coins, got %d", balance)
			}
			if tc.wantStatus != ledger.StatusSuccess {
				if balance != 0 {
					t.Fatalf("non-success outcome credited coins: %d", balance)
				}
				if result.Entry.StatusReason == "" {
					t.Fatal("expected the gateway code in the status reason")
				}
			}
		})
	}
}

func TestConfirmReturnFollowsProviderTruth(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Provider still reports pending: nothing changes regardless of what the
	// client claims.
	adapter.state = provider.SessionState{
		Status:    provider.PaymentPending,
		OrderCode: created.Entry.OrderCode,
		EntryID:   created.Entry.ID,
	}
	result, err := service.ConfirmReturn(ctx, userID, created.Entry.ID, "")
	if err != nil {
		t.Fatalf("confirm pending: %v", err)
	}
	if result.Entry.Status != ledger.StatusPending {
		t.Fatalf("expected pending, got %s", result.Entry.Status)
	}

	adapter.state.Status = provider.PaymentCaptured
	adapter.state.ChargeRef = "ch_9"
	result, err = service.ConfirmReturn(ctx, userID, created.Entry.ID, "")
	if err != nil {
		t.Fatalf("confirm captured: %v", err)
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

func TestConfirmReturnCorrelationMismatch(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.state = provider.SessionState{
		Status:    provider.PaymentCaptured,
		OrderCode: created.Entry.OrderCode,
		EntryID:   uuid.NewString(),
	}
	if _, err := service.ConfirmReturn(ctx, userID, created.Entry.ID, ""); !errors.Is(err, ErrCorrelationMismatch) {
		t.Fatalf("expected ErrCorrelationMismatch, got %v", err)
	}

	balance, _ := store.Balance(ctx, userID)
	if balance != 0 {
		t.Fatalf("foreign session credited coins: %d", balance)
	}
}

func TestConfirmReturnOwnershipCheck(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, _ := newTestService(adapter)

	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: uuid.NewString(), Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := service.ConfirmReturn(ctx, uuid.NewString(), created.Entry.ID, ""); !errors.Is(err, ledger.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for a foreign user, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result, err := service.Resolve(ctx, created.Entry.ID, ledger.StatusSuccess, "bank statement matched")
	if err != nil {
		t.Fatalf("resolve success: %v", err)
	}
	if result.Entry.Status != ledger.StatusSuccess {
		t.Fatalf("expected success, got %s", result.Entry.Status)
	}
	balance, _ := store.Balance(ctx, userID)
	if balance != 100 {
		t.Fatalf("expected 100 coins, got %d", balance)
	}

	// Downgrading a settled entry is an operator mistake, not a no-op.
	if _, err := service.Resolve(ctx, created.Entry.ID, ledger.StatusFailed, "oops"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := service.Resolve(ctx, created.Entry.ID, "refunded", "unsupported"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unknown status, got %v", err)
	}
}

func TestSyncConvergesStalePending(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{name: "payvia"}
	service, store := newTestService(adapter)

	userID := uuid.NewString()
	created, err := service.CreateSession(ctx, CreateSessionInput{UserID: userID, Provider: "payvia", AmountCoins: 100})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	adapter.state = provider.SessionState{
		Status:    provider.PaymentExpired,
		OrderCode: created.Entry.OrderCode,
		EntryID:   created.Entry.ID,
	}
	result, err := service.Sync(ctx, created.Entry.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Entry.Status != ledger.StatusCanceled {
		t.Fatalf("expected canceled, got %s", result.Entry.Status)
	}

	balance, _ := store.Balance(ctx, userID)
	if balance != 0 {
		t.Fatalf("expired session credited coins: %d", balance)
	}
}
