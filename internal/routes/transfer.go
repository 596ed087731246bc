package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/novelink/novelink/internal/transfer"
)

// RegisterTransferRoutes wires chapter purchases and gifts.
func RegisterTransferRoutes(router fiber.Router, h *transfer.Handler) {
	router.Post("/chapters/:chapterId/purchase", h.Purchase)
	router.Post("/chapters/:chapterId/gift", h.Gift)
}
