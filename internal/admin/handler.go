package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/ledger"
	"github.com/novelink/novelink/internal/provider"
	"github.com/novelink/novelink/internal/topup"
)

// Handler exposes the operator reconciliation endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an admin handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns a filtered ledger page with aggregates.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := ledger.Filter{
		Status:   c.Query("status"),
		Provider: c.Query("provider"),
		Kind:     c.Query("kind"),
		Search:   c.Query("search"),
		Limit:    c.QueryInt("limit"),
		Offset:   c.QueryInt("offset"),
	}
	var err error
	if filter.From, err = parseTime(c.Query("from")); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid from timestamp")
	}
	if filter.To, err = parseTime(c.Query("to")); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid to timestamp")
	}

	entries, summary, err := h.service.ListEntries(c.UserContext(), filter)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toListResponse(entries, summary))
}

// Get returns one entry by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	entry, err := h.service.GetEntry(c.UserContext(), c.Params("entryId"))
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

// Resolve force-sets a topup's terminal status.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Resolve(c.UserContext(), c.Params("entryId"), req.Status, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrReasonRequired), errors.Is(err, ledger.ErrInvalidEntry):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrEntryNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInvalidTransition):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toActionResponse(result))
}

// Sync re-polls the provider for a stuck topup.
func (h *Handler) Sync(c *fiber.Ctx) error {
	result, err := h.service.Sync(c.UserContext(), c.Params("entryId"))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrEntryNotFound), errors.Is(err, provider.ErrSessionNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInvalidEntry):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, topup.ErrCorrelationMismatch):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, provider.ErrProviderUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toActionResponse(result))
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
