package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrInvalidEntry occurs when an entry fails validation (non-positive
	// amount or an invalid kind/direction/provider combination).
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrEntryNotFound indicates the requested entry does not exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInvalidTransition indicates an attempt to move a terminal entry to a
	// different status. Re-asserting the current terminal status is a no-op,
	// not an error.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInsufficientFunds occurs when a debit would take a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateOrderCode indicates the order code is already taken by
	// another topup attempt.
	ErrDuplicateOrderCode = errors.New("duplicate order code")

	// ErrUserNotFound indicates the balance owner does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// TransferSpec describes a synchronous coin movement between two users.
type TransferSpec struct {
	FromUserID  string
	ToUserID    string
	Kind        string
	AmountCoins int64
	ChapterID   string
	NovelID     string
}

// TransferResult carries the matched debit/credit pair and both balances
// observed immediately after the movement.
type TransferResult struct {
	Debit       Entry
	Credit      Entry
	FromBalance int64
	ToBalance   int64
}

// Filter narrows List to a subset of entries. Zero values mean "any".
type Filter struct {
	Status   string
	Provider string
	Kind     string
	// Search matches the order code exactly or the owning user's pen name.
	Search string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Summary aggregates the filtered set, not the whole table.
type Summary struct {
	TotalSettledFiat int64
	CountByStatus    map[string]int64
	CountByProvider  map[string]int64
}

// Store is the single source of truth for coin movements and user balances.
// Implementations must make SettleTopup and Transfer atomic: a balance delta
// is never observable without its entry status flip, and vice versa.
type Store interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	FindByOrderCode(ctx context.Context, code string) (Entry, error)

	// Transition moves an entry forward along pending -> terminal. Asking a
	// terminal entry for the status it already holds returns the current row
	// unchanged so redundant callback paths stay cheap and safe.
	Transition(ctx context.Context, id, status, reason string, metaKey string, metaPayload json.RawMessage) (Entry, error)
	AppendMetadata(ctx context.Context, id, key string, payload json.RawMessage) error

	Balance(ctx context.Context, userID string) (int64, error)
	// AdjustBalance applies a delta to one user's balance, rejecting overdraft.
	AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error)

	// SettleTopup flips a pending topup to success, records the provider's
	// charge reference and credits the owner's balance as one unit. Invoking
	// it on an already-success entry returns the row and current balance
	// without side effects. The bool reports whether this call performed the
	// credit, so callers can fire one-shot effects exactly once under
	// concurrent delivery.
	SettleTopup(ctx context.Context, id, chargeRef, metaKey string, metaPayload json.RawMessage) (Entry, int64, bool, error)

	// Transfer debits one user, credits another and writes the linked entry
	// pair, all already in status success.
	Transfer(ctx context.Context, spec TransferSpec) (TransferResult, error)

	List(ctx context.Context, filter Filter) ([]Entry, Summary, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Entry, error)
}
