package admin

import (
	"time"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/topup"
)

// ResolveRequest carries an operator's forced resolution.
type ResolveRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// EntryResponse is the operator view of a ledger entry.
type EntryResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	Direction      string    `json:"direction,omitempty"`
	AmountCoins    int64     `json:"amount_coins"`
	AmountFiat     int64     `json:"amount_fiat,omitempty"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	StatusReason   string    `json:"status_reason,omitempty"`
	OrderCode      string    `json:"order_code,omitempty"`
	SessionRef     string    `json:"session_ref,omitempty"`
	ChargeRef      string    `json:"charge_ref,omitempty"`
	ChapterID      string    `json:"chapter_id,omitempty"`
	NovelID        string    `json:"novel_id,omitempty"`
	CounterpartyID string    `json:"counterparty_id,omitempty"`
	PairID         string    `json:"pair_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SummaryResponse aggregates the filtered set.
type SummaryResponse struct {
	TotalSettledFiat int64            `json:"total_settled_fiat"`
	CountByStatus    map[string]int64 `json:"count_by_status"`
	CountByProvider  map[string]int64 `json:"count_by_provider"`
}

// ListResponse is one page of entries plus the filter-wide summary.
type ListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Summary SummaryResponse `json:"summary"`
}

// ActionResponse is the outcome of a resolve or sync action. Balance is set
// only when the action credited the owner.
type ActionResponse struct {
	Entry   EntryResponse `json:"entry"`
	Balance *int64        `json:"balance_coins,omitempty"`
}

func toEntryResponse(entry ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:             entry.ID,
		UserID:         entry.UserID,
		Kind:           entry.Kind,
		Direction:      entry.Direction,
		AmountCoins:    entry.AmountCoins,
		AmountFiat:     entry.AmountFiat,
		Provider:       entry.Provider,
		Status:         entry.Status,
		StatusReason:   entry.StatusReason,
		OrderCode:      entry.OrderCode,
		SessionRef:     entry.SessionRef,
		ChargeRef:      entry.ChargeRef,
		ChapterID:      entry.ChapterID,
		NovelID:        entry.NovelID,
		CounterpartyID: entry.CounterpartyID,
		PairID:         entry.PairID,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	}
}

func toListResponse(entries []ledger.Entry, summary ledger.Summary) ListResponse {
	out := ListResponse{
		Entries: make([]EntryResponse, 0, len(entries)),
		Summary: SummaryResponse{
			TotalSettledFiat: summary.TotalSettledFiat,
			CountByStatus:    summary.CountByStatus,
			CountByProvider:  summary.CountByProvider,
		},
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, toEntryResponse(e))
	}
	return out
}

func toActionResponse(result topup.Result) ActionResponse {
	return ActionResponse{Entry: toEntryResponse(result.Entry), Balance: result.Balance}
}
