package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/catalog"
	"github.com/novelink/novelink/internal/ledger"
)

// Handler exposes HTTP endpoints for chapter purchases and gifts.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Purchase unlocks a chapter for the authenticated user.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	result, err := h.service.PurchaseChapter(c.UserContext(), userID(c), c.Params("chapterId"))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		case errors.Is(err, ledger.ErrUserNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	status := http.StatusOK
	if result.Charged {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(toPurchaseResponse(result))
}

// Gift sends coins to a chapter's poster.
func (h *Handler) Gift(c *fiber.Ctx) error {
	var req GiftRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.GiftChapter(c.UserContext(), userID(c), c.Params("chapterId"), req.AmountCoins)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidGiftAmount), errors.Is(err, ErrSelfGift):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, catalog.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		case errors.Is(err, ledger.ErrUserNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toGiftResponse(result))
}

func userID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}
