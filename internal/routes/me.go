package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/user"
)

// RegisterMeRoutes wires the caller's own coin surface.
func RegisterMeRoutes(router fiber.Router, h *user.Handler) {
	router.Get("/me/balance", h.Balance)
	router.Get("/me/transactions", h.Transactions)
}
