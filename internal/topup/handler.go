package topup

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/provider"
)

// signatureHeader carries the webhook body signature for providers that
// sign the raw payload.
const signatureHeader = "X-Webhook-Signature"

// Handler exposes HTTP endpoints for the buy-coins flow and the provider
// callback surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a topup handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// CreateSession opens a checkout session for the authenticated user.
func (h *Handler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.CreateSession(c.UserContext(), CreateSessionInput{
		UserID:      userID(c),
		Provider:    req.Provider,
		AmountCoins: req.AmountCoins,
		ClientIP:    c.IP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, provider.ErrUnsupportedProvider):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrProviderUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toSessionResponse(result))
}

// Confirm handles the browser landing back from checkout. The reported
// session reference is cross-checked against the provider before anything
// is applied.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.ConfirmReturn(c.UserContext(), userID(c), c.Params("entryId"), req.SessionRef)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrEntryNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrCorrelationMismatch):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, provider.ErrSessionNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, provider.ErrProviderUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(toEntryResponse(result))
}

// Webhook receives asynchronous provider events. Rejections are logged with
// the raw payload for operators but answered with a generic error.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	result, err := h.service.HandleWebhook(c.UserContext(), providerName, provider.CallbackPayload{
		Body:      body,
		Signature: c.Get(signatureHeader),
	})
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrSignatureInvalid):
			h.logger.Warn("webhook rejected", "provider", providerName, "reason", "signature", "payload", string(body))
			return fiber.NewError(http.StatusBadRequest, "callback rejected")
		case errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrCorrelationMismatch):
			h.logger.Warn("webhook rejected", "provider", providerName, "reason", err.Error(), "payload", string(body))
			return fiber.NewError(http.StatusBadRequest, "callback rejected")
		case errors.Is(err, provider.ErrUnsupportedProvider), errors.Is(err, ledger.ErrEntryNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"received": true,
		"status":   result.Entry.Status,
	})
}

// GatewayReturn handles the signed redirect from query-string gateways.
func (h *Handler) GatewayReturn(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	params := c.Queries()

	result, err := h.service.HandleGatewayReturn(c.UserContext(), providerName, params)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrSignatureInvalid):
			h.logger.Warn("gateway return rejected", "provider", providerName, "reason", "signature", "query", string(c.Request().URI().QueryString()))
			return fiber.NewError(http.StatusBadRequest, "callback rejected")
		case errors.Is(err, ErrAmountMismatch):
			h.logger.Warn("gateway return rejected", "provider", providerName, "reason", "amount mismatch", "query", string(c.Request().URI().QueryString()))
			return fiber.NewError(http.StatusBadRequest, "callback rejected")
		case errors.Is(err, provider.ErrUnsupportedProvider), errors.Is(err, ledger.ErrEntryNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(toEntryResponse(result))
}

func userID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}
