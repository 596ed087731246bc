package transfer

// GiftRequest captures a reader's gift on a chapter.
type GiftRequest struct {
	AmountCoins int64 `json:"amount_coins"`
}

// PurchaseResponse is returned for a chapter purchase.
type PurchaseResponse struct {
	Charged      bool   `json:"charged"`
	AmountCoins  int64  `json:"amount_coins"`
	EntryID      string `json:"entry_id,omitempty"`
	BalanceCoins *int64 `json:"balance_coins,omitempty"`
}

// GiftResponse is returned for a completed gift.
type GiftResponse struct {
	EntryID      string `json:"entry_id"`
	AmountCoins  int64  `json:"amount_coins"`
	BalanceCoins int64  `json:"balance_coins"`
}

func toPurchaseResponse(result PurchaseResult) PurchaseResponse {
	resp := PurchaseResponse{
		Charged:      result.Charged,
		AmountCoins:  result.AmountCoins,
		BalanceCoins: result.Balance,
	}
	if result.Debit != nil {
		resp.EntryID = result.Debit.ID
	}
	return resp
}

func toGiftResponse(result GiftResult) GiftResponse {
	return GiftResponse{
		EntryID:      result.Debit.ID,
		AmountCoins:  result.Debit.AmountCoins,
		BalanceCoins: result.Balance,
	}
}
