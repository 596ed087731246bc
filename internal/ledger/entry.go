package ledger

import (
	"encoding/json"
	"time"
)

const (
	// KindTopup is a coin purchase settled by an external payment provider.
	KindTopup = "topup"
	// KindPurchase is a chapter unlock paid from one user's balance to another's.
	KindPurchase = "purchase"
	// KindGift is a voluntary coin transfer to a chapter's poster.
	KindGift = "gift"
	// KindWithdraw is reserved; no flow creates it yet.
	KindWithdraw = "withdraw"
)

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

const (
	StatusPending  = "pending"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

const (
	// ProviderInternal marks entries settled entirely within the platform.
	ProviderInternal = "internal"
)

// Entry is one record of a coin movement. Once a terminal status is reached
// the row is immutable except for metadata appends.
type Entry struct {
	ID             string
	UserID         string
	Kind           string
	Direction      string
	AmountCoins    int64
	AmountFiat     int64
	Provider       string
	Status         string
	StatusReason   string
	OrderCode      string
	SessionRef     string
	ChargeRef      string
	ChapterID      string
	NovelID        string
	CounterpartyID string
	PairID         string
	Metadata       map[string]json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the entry's status permits no further transition.
func (e Entry) Terminal() bool {
	switch e.Status {
	case StatusSuccess, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusSuccess, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

func validate(e Entry) error {
	if e.AmountCoins <= 0 {
		return ErrInvalidEntry
	}
	if e.UserID == "" {
		return ErrInvalidEntry
	}
	if !validStatus(e.Status) {
		return ErrInvalidEntry
	}
	switch e.Kind {
	case KindTopup:
		// Topups are credit-only; direction stays implicit.
		if e.Direction != "" && e.Direction != DirectionCredit {
			return ErrInvalidEntry
		}
		if e.Provider == "" || e.Provider == ProviderInternal {
			return ErrInvalidEntry
		}
		if e.OrderCode == "" {
			return ErrInvalidEntry
		}
	case KindPurchase, KindGift:
		if e.Direction != DirectionDebit && e.Direction != DirectionCredit {
			return ErrInvalidEntry
		}
		if e.Provider != ProviderInternal {
			return ErrInvalidEntry
		}
	case KindWithdraw:
		if e.Direction != DirectionDebit {
			return ErrInvalidEntry
		}
	default:
		return ErrInvalidEntry
	}
	return nil
}
