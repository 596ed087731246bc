package user

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/ledger"
)

// Handler exposes the authenticated user's own coin surface.
type Handler struct {
	users Repository
	store ledger.Store
}

// NewHandler constructs a user handler.
func NewHandler(users Repository, store ledger.Store) *Handler {
	return &Handler{users: users, store: store}
}

// BalanceResponse is the user's coin balance.
type BalanceResponse struct {
	UserID       string `json:"user_id"`
	PenName      string `json:"pen_name"`
	BalanceCoins int64  `json:"balance_coins"`
}

// TransactionResponse is one ledger entry seen by its owner. Provider-side
// references stay internal.
type TransactionResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Direction    string    `json:"direction,omitempty"`
	AmountCoins  int64     `json:"amount_coins"`
	Status       string    `json:"status"`
	StatusReason string    `json:"status_reason,omitempty"`
	ChapterID    string    `json:"chapter_id,omitempty"`
	NovelID      string    `json:"novel_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Balance returns the caller's current coin balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	id, _ := c.Locals("user_id").(string)

	record, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	balance, err := h.store.Balance(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(BalanceResponse{
		UserID:       record.ID,
		PenName:      record.PenName,
		BalanceCoins: balance,
	})
}

// Transactions returns the caller's own ledger history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	id, _ := c.Locals("user_id").(string)

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := c.QueryInt("offset")
	if offset < 0 {
		offset = 0
	}

	entries, err := h.store.ListByUser(c.UserContext(), id, limit, offset)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]TransactionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TransactionResponse{
			ID:           e.ID,
			Kind:         e.Kind,
			Direction:    e.Direction,
			AmountCoins:  e.AmountCoins,
			Status:       e.Status,
			StatusReason: e.StatusReason,
			ChapterID:    e.ChapterID,
			NovelID:      e.NovelID,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}
