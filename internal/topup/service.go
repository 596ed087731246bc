package topup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/metrics"
	"github.com/novelink/novelink/internal/notification"
	"github.com/novelink/novelink/internal/provider"
)

var (
	// ErrInvalidAmount occurs when the requested coin amount is outside the
	// configured bounds or not a multiple of the step.
	ErrInvalidAmount = errors.New("invalid topup amount")

	// ErrCorrelationMismatch indicates the provider's session does not belong
	// to the ledger entry the caller named.
	ErrCorrelationMismatch = errors.New("session correlation mismatch")

	// ErrAmountMismatch indicates a verified callback echoed a fiat amount
	// different from the stored entry. Hard failure; the entry stays pending.
	ErrAmountMismatch = errors.New("callback amount mismatch")
)

// Config carries the coin economy settings. Passed in at construction so
// rate changes are a config rollout, not a code change.
type Config struct {
	// ExchangeRate is fiat minor units per coin.
	ExchangeRate int64
	MinCoins     int64
	MaxCoins     int64
	StepCoins    int64
	ReturnURL    string
	CancelURL    string
}

// Service drives the buy-coins flow: session creation, client-reported
// confirmation, provider webhooks, gateway returns and the admin
// reconciliation actions, all converging on one idempotent settle routine.
type Service struct {
	cfg       Config
	store     ledger.Store
	providers *provider.Registry
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService constructs the orchestrator.
func NewService(cfg Config, store ledger.Store, providers *provider.Registry, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if cfg.StepCoins <= 0 {
		cfg.StepCoins = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, store: store, providers: providers, notifier: notifier, metrics: m, logger: logger}
}

// CreateSessionInput captures a user's request to buy coins.
type CreateSessionInput struct {
	UserID      string
	Provider    string
	AmountCoins int64
	ClientIP    string
}

// SessionResult returns the pending entry plus the provider redirect.
type SessionResult struct {
	Entry       ledger.Entry
	RedirectURL string
}

// Result is the outcome of any reconciliation entry point. Balance is nil
// when the operation did not touch the owner's balance.
type Result struct {
	Entry   ledger.Entry
	Balance *int64
}

// CreateSession validates the amount, opens a provider session and persists
// the pending entry recording the session reference.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (SessionResult, error) {
	if input.AmountCoins < s.cfg.MinCoins || input.AmountCoins > s.cfg.MaxCoins || input.AmountCoins%s.cfg.StepCoins != 0 {
		return SessionResult{}, ErrInvalidAmount
	}

	adapter, err := s.providers.Get(input.Provider)
	if err != nil {
		return SessionResult{}, err
	}

	// Identity is assigned up front so the provider session can carry it as
	// correlation metadata before the row exists.
	entryID := uuid.NewString()
	orderCode := "tp-" + uuid.NewString()
	amountFiat := input.AmountCoins * s.cfg.ExchangeRate

	session, err := adapter.CreateSession(ctx, provider.CreateSessionInput{
		AmountFiat: amountFiat,
		OrderCode:  orderCode,
		EntryID:    entryID,
		SuccessURL: s.cfg.ReturnURL,
		CancelURL:  s.cfg.CancelURL,
		ClientIP:   input.ClientIP,
	})
	if err != nil {
		return SessionResult{}, err
	}

	entry, err := s.store.Create(ctx, ledger.Entry{
		ID:          entryID,
		UserID:      input.UserID,
		Kind:        ledger.KindTopup,
		AmountCoins: input.AmountCoins,
		AmountFiat:  amountFiat,
		Provider:    adapter.Name(),
		Status:      ledger.StatusPending,
		OrderCode:   orderCode,
		SessionRef:  session.SessionRef,
	})
	if err != nil {
		return SessionResult{}, err
	}

	s.metrics.TopupSessionCreated(adapter.Name())
	s.logger.Info("topup session created",
		"entry_id", entry.ID,
		"provider", adapter.Name(),
		"order_code", orderCode,
		"amount_coins", input.AmountCoins,
	)
	return SessionResult{Entry: entry, RedirectURL: session.RedirectURL}, nil
}

// ConfirmReturn handles the client-reported return: the provider is re-asked
// for the session's truth, never the client.
func (s *Service) ConfirmReturn(ctx context.Context, userID, entryID, sessionRef string) (Result, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return Result{}, err
	}
	if userID != "" && entry.UserID != userID {
		return Result{}, ledger.ErrEntryNotFound
	}
	return s.converge(ctx, entry, sessionRef)
}

// Sync is the admin re-poll: re-runs the same convergence used by the client
// confirmation path, for entries whose automatic paths never fired.
func (s *Service) Sync(ctx context.Context, entryID string) (Result, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return Result{}, err
	}
	return s.converge(ctx, entry, "")
}

func (s *Service) converge(ctx context.Context, entry ledger.Entry, sessionRefOverride string) (Result, error) {
	if entry.Kind != ledger.KindTopup {
		return Result{}, ledger.ErrInvalidEntry
	}
	adapter, err := s.providers.Get(entry.Provider)
	if err != nil {
		return Result{}, err
	}

	ref := entry.SessionRef
	if ref == "" {
		ref = sessionRefOverride
	}
	if ref == "" {
		return Result{}, provider.ErrSessionNotFound
	}

	state, err := adapter.RetrieveSession(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if state.EntryID != "" && state.EntryID != entry.ID {
		return Result{}, ErrCorrelationMismatch
	}
	if state.OrderCode != "" && state.OrderCode != entry.OrderCode {
		return Result{}, ErrCorrelationMismatch
	}

	switch state.Status {
	case provider.PaymentCaptured:
		return s.applySuccess(ctx, entry, state.ChargeRef, "session_sync", state.Raw)
	case provider.PaymentCanceled, provider.PaymentExpired:
		return s.markTerminal(ctx, entry, ledger.StatusCanceled, state.Status, "session_sync", state.Raw)
	case provider.PaymentFailed:
		return s.markTerminal(ctx, entry, ledger.StatusFailed, state.Status, "session_sync", state.Raw)
	default:
		// Genuinely pending at the provider; leave the entry untouched.
		return Result{Entry: entry}, nil
	}
}

// HandleWebhook verifies and applies one asynchronous provider event.
// Unknown event types are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, payload provider.CallbackPayload) (Result, error) {
	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return Result{}, err
	}
	if !adapter.HasWebhookSupport() {
		return Result{}, provider.ErrUnsupportedProvider
	}

	cb, err := adapter.VerifyCallback(payload)
	if err != nil {
		s.metrics.CallbackRejected(providerName, "signature")
		return Result{}, err
	}

	entry, err := s.lookupEntry(ctx, cb)
	if err != nil {
		return Result{}, err
	}
	if cb.OrderCode != "" && cb.OrderCode != entry.OrderCode {
		s.metrics.CallbackRejected(providerName, "correlation")
		return Result{}, ErrCorrelationMismatch
	}

	switch cb.Status {
	case provider.PaymentCaptured:
		if cb.AmountFiat != 0 && cb.AmountFiat != entry.AmountFiat {
			s.metrics.CallbackRejected(providerName, "amount")
			return Result{}, ErrAmountMismatch
		}
		return s.applySuccess(ctx, entry, cb.ChargeRef, "webhook:"+cb.Event, cb.Raw)
	case provider.PaymentCanceled, provider.PaymentExpired:
		return s.markTerminal(ctx, entry, ledger.StatusCanceled, cb.Event, "webhook:"+cb.Event, cb.Raw)
	default:
		// Unknown or uninteresting event; record nothing, fail nothing.
		return Result{Entry: entry}, nil
	}
}

// HandleGatewayReturn verifies a signed return redirect and converges the
// entry per the gateway's response code. The echoed amount must match the
// stored entry exactly.
func (s *Service) HandleGatewayReturn(ctx context.Context, providerName string, params map[string]string) (Result, error) {
	adapter, err := s.providers.Get(providerName)
	if err != nil {
		return Result{}, err
	}

	cb, err := adapter.VerifyCallback(provider.CallbackPayload{Params: params})
	if err != nil {
		s.metrics.CallbackRejected(providerName, "signature")
		return Result{}, err
	}

	entry, err := s.lookupEntry(ctx, cb)
	if err != nil {
		return Result{}, err
	}
	if cb.AmountFiat != entry.AmountFiat {
		s.metrics.CallbackRejected(providerName, "amount")
		return Result{}, ErrAmountMismatch
	}

	switch cb.Status {
	case provider.PaymentCaptured:
		return s.applySuccess(ctx, entry, cb.ChargeRef, "gateway_return", cb.Raw)
	case provider.PaymentCanceled:
		return s.markTerminal(ctx, entry, ledger.StatusCanceled, "gateway code "+cb.ResponseCode, "gateway_return", cb.Raw)
	default:
		return s.markTerminal(ctx, entry, ledger.StatusFailed, "gateway code "+cb.ResponseCode, "gateway_return", cb.Raw)
	}
}

// Resolve force-sets a terminal status on behalf of an operator, still
// through the same transition guard and settle routine.
func (s *Service) Resolve(ctx context.Context, entryID, status, reason string) (Result, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return Result{}, err
	}
	if entry.Kind != ledger.KindTopup {
		return Result{}, ledger.ErrInvalidEntry
	}

	note, _ := json.Marshal(map[string]string{
		"reason": reason,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})

	switch status {
	case ledger.StatusSuccess:
		return s.applySuccess(ctx, entry, "", "admin_resolve", note)
	case ledger.StatusFailed, ledger.StatusCanceled:
		result, err := s.markTerminal(ctx, entry, status, reason, "admin_resolve", note)
		if err != nil {
			return Result{}, err
		}
		// An operator downgrading a settled entry is an error, not a no-op.
		if result.Entry.Status == ledger.StatusSuccess {
			return Result{}, ledger.ErrInvalidTransition
		}
		return result, nil
	default:
		return Result{}, ledger.ErrInvalidTransition
	}
}

func (s *Service) lookupEntry(ctx context.Context, cb provider.Callback) (ledger.Entry, error) {
	if cb.EntryID != "" {
		if entry, err := s.store.Get(ctx, cb.EntryID); err == nil {
			return entry, nil
		}
	}
	if cb.OrderCode == "" {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return s.store.FindByOrderCode(ctx, cb.OrderCode)
}

// applySuccess is the only code path that credits a topup. The store makes
// the status flip and the balance credit one atomic unit; replays and races
// simply read the terminal row.
func (s *Service) applySuccess(ctx context.Context, entry ledger.Entry, chargeRef, metaKey string, raw json.RawMessage) (Result, error) {
	settled, balance, credited, err := s.store.SettleTopup(ctx, entry.ID, chargeRef, metaKey, raw)
	if err != nil {
		return Result{}, err
	}

	// The store reports which caller performed the credit, so racing
	// deliveries emit the metric and notification exactly once.
	if credited {
		s.metrics.TopupSettled(settled.Provider, ledger.StatusSuccess)
		s.logger.Info("topup settled",
			"entry_id", settled.ID,
			"provider", settled.Provider,
			"amount_coins", settled.AmountCoins,
			"trigger", metaKey,
		)
		s.notify(ctx, notification.Message{
			RecipientID: settled.UserID,
			Kind:        notification.KindTopup,
			Title:       "Coins added",
			Body:        fmt.Sprintf("%d coins were added to your balance.", settled.AmountCoins),
		})
	}
	return Result{Entry: settled, Balance: &balance}, nil
}

func (s *Service) markTerminal(ctx context.Context, entry ledger.Entry, status, reason, metaKey string, raw json.RawMessage) (Result, error) {
	// Never downgrade a settled entry from a late or duplicate signal.
	if entry.Status == ledger.StatusSuccess {
		return Result{Entry: entry}, nil
	}

	wasPending := entry.Status == ledger.StatusPending
	updated, err := s.store.Transition(ctx, entry.ID, status, reason, metaKey, raw)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			// A concurrent path reached a terminal state first; report its truth.
			if current, gerr := s.store.Get(ctx, entry.ID); gerr == nil {
				return Result{Entry: current}, nil
			}
		}
		return Result{}, err
	}

	if wasPending && updated.Status == status {
		s.metrics.TopupSettled(updated.Provider, status)
		s.logger.Info("topup closed", "entry_id", updated.ID, "status", status, "reason", reason)
	}
	return Result{Entry: updated}, nil
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.Warn("notification delivery failed", "kind", message.Kind, "recipient", message.RecipientID, "error", err)
	}
}
