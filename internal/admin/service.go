package admin

import (
	"context"
	"errors"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/topup"
)

// ErrReasonRequired occurs when an operator resolves an entry without
// stating why. The reason lands in the entry's audit trail.
var ErrReasonRequired = errors.New("a resolution reason is required")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service is the operator-facing reconciliation surface: browse the ledger,
// force-resolve stuck topups and re-poll providers.
type Service struct {
	store  ledger.Store
	topups *topup.Service
}

// NewService constructs the admin service.
func NewService(store ledger.Store, topups *topup.Service) *Service {
	return &Service{store: store, topups: topups}
}

// ListEntries returns a filtered ledger page plus aggregates over the whole
// filtered set.
func (s *Service) ListEntries(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, ledger.Summary, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.List(ctx, filter)
}

// GetEntry fetches one entry by id.
func (s *Service) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	return s.store.Get(ctx, id)
}

// Resolve force-sets a topup's terminal status with an audit reason.
func (s *Service) Resolve(ctx context.Context, entryID, status, reason string) (topup.Result, error) {
	if reason == "" {
		return topup.Result{}, ErrReasonRequired
	}
	return s.topups.Resolve(ctx, entryID, status, reason)
}

// Sync re-asks the provider for a topup session's current state and
// converges the entry.
func (s *Service) Sync(ctx context.Context, entryID string) (topup.Result, error) {
	return s.topups.Sync(ctx, entryID)
}
