package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/admin"
)

// RegisterAdminRoutes wires the operator reconciliation surface. The group
// must already be gated by JWTAuth plus RequireRole.
func RegisterAdminRoutes(router fiber.Router, h *admin.Handler) {
	router.Get("/ledger", h.List)
	router.Get("/ledger/:entryId", h.Get)
	router.Post("/ledger/:entryId/resolve", h.Resolve)
	router.Post("/ledger/:entryId/sync", h.Sync)
}
