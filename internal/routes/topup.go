package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/topup"
)

// RegisterTopupRoutes wires the authenticated buy-coins endpoints.
func RegisterTopupRoutes(router fiber.Router, h *topup.Handler) {
	router.Post("/topups", h.CreateSession)
	router.Post("/topups/:entryId/confirm", h.Confirm)
}

// RegisterCallbackRoutes wires the unauthenticated provider callback
// surface. Signature verification happens inside the handlers.
func RegisterCallbackRoutes(router fiber.Router, h *topup.Handler, rateLimit fiber.Handler) {
	router.Post("/callbacks/:provider/webhook", rateLimit, h.Webhook)
	router.Get("/callbacks/:provider/return", rateLimit, h.GatewayReturn)
}
