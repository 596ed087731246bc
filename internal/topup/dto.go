package topup

import "time"

// CreateSessionRequest captures a user's request to buy coins.
type CreateSessionRequest struct {
	Provider    string `json:"provider"`
	AmountCoins int64  `json:"amount_coins"`
}

// ConfirmRequest carries the client-reported session reference. It is only
// used as a fallback lookup key; the provider remains the source of truth.
type ConfirmRequest struct {
	SessionRef string `json:"session_ref"`
}

// SessionResponse is returned when a checkout session is opened.
type SessionResponse struct {
	EntryID     string `json:"entry_id"`
	OrderCode   string `json:"order_code"`
	Provider    string `json:"provider"`
	AmountCoins int64  `json:"amount_coins"`
	AmountFiat  int64  `json:"amount_fiat"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

// EntryResponse represents one ledger entry on the wire.
type EntryResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Direction    string    `json:"direction,omitempty"`
	AmountCoins  int64     `json:"amount_coins"`
	AmountFiat   int64     `json:"amount_fiat,omitempty"`
	Provider     string    `json:"provider"`
	Status       string    `json:"status"`
	StatusReason string    `json:"status_reason,omitempty"`
	OrderCode    string    `json:"order_code,omitempty"`
	ChargeRef    string    `json:"charge_ref,omitempty"`
	Balance      *int64    `json:"balance_coins,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSessionResponse(result SessionResult) SessionResponse {
	return SessionResponse{
		EntryID:     result.Entry.ID,
		OrderCode:   result.Entry.OrderCode,
		Provider:    result.Entry.Provider,
		AmountCoins: result.Entry.AmountCoins,
		AmountFiat:  result.Entry.AmountFiat,
		Status:      result.Entry.Status,
		RedirectURL: result.RedirectURL,
	}
}

func toEntryResponse(result Result) EntryResponse {
	entry := result.Entry
	return EntryResponse{
		ID:           entry.ID,
		Kind:         entry.Kind,
		Direction:    entry.Direction,
		AmountCoins:  entry.AmountCoins,
		AmountFiat:   entry.AmountFiat,
		Provider:     entry.Provider,
		Status:       entry.Status,
		StatusReason: entry.StatusReason,
		OrderCode:    entry.OrderCode,
		ChargeRef:    entry.ChargeRef,
		Balance:      result.Balance,
		CreatedAt:    entry.CreatedAt,
		UpdatedAt:    entry.UpdatedAt,
	}
}
