package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// ReconcileHandler exposes the on-demand reconciliation trigger.
type ReconcileHandler struct {
	reconciler *service.ReconciliationService
}

// NewReconcileHandler constructs handler.
func NewReconcileHandler(reconciler *service.ReconciliationService) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

// Run POST /reconcile.
func (h *ReconcileHandler) Run(c *fiber.Ctx) error {
	repaired := h.reconciler.Reconcile(c.UserContext())
	return c.JSON(fiber.Map{"data": dto.ReconcileResponse{Repaired: repaired}})
}
