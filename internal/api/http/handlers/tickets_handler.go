package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/store"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle over HTTP.
type TicketsHandler struct {
	lifecycle *service.TicketLifecycle
	ratings   *service.RatingWorkflow
	store     *store.TicketStore
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.TicketLifecycle, ratings *service.RatingWorkflow, tickets *store.TicketStore) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, ratings: ratings, store: tickets}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if principal.Role == auth.RoleOwner {
		req.OwnerID = principal.ID
	}
	if req.OwnerID == "" {
		return apperrors.NewValidationError("owner_id required", nil)
	}

	ticket, err := h.lifecycle.Create(c.UserContext(), service.CreateTicketInput{
		OwnerID:     req.OwnerID,
		WorkspaceID: req.WorkspaceID,
		Category:    req.Category,
		InvoiceID:   req.InvoiceID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	openOnly := strings.EqualFold(c.Query("state"), "open")
	items := make([]dto.TicketResponse, 0)
	for _, ticket := range h.store.ListAll() {
		if openOnly && ticket.Closed {
			continue
		}
		if principal.Role == auth.RoleOwner && ticket.OwnerID != principal.ID {
			continue
		}
		items = append(items, dto.TicketFromDomain(ticket))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.store.Get(c.Params("id"))
	if err != nil {
		return err
	}
	if principal.Role == auth.RoleOwner && ticket.OwnerID != principal.ID {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": c.Params("id")})
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// ClaimTicket POST /tickets/:id/claim.
func (h *TicketsHandler) ClaimTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ClaimRequest
	_ = c.BodyParser(&req)

	staffID := principal.ID
	if principal.Role == auth.RoleService {
		if req.StaffID == "" {
			return apperrors.NewValidationError("staff_id required", nil)
		}
		staffID = req.StaffID
	}

	result, err := h.lifecycle.Claim(c.UserContext(), c.Params("id"), staffID)
	if err != nil {
		return err
	}
	if !result.Claimed {
		return apperrors.NewAlreadyClaimed(result.ClaimedBy)
	}
	return c.JSON(fiber.Map{"data": dto.ClaimResponse{Claimed: result.Claimed, ClaimedBy: result.ClaimedBy}})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CloseRequest
	_ = c.BodyParser(&req)

	closer := service.Closer{ID: principal.ID, Role: closerRole(principal.Role)}
	if err := h.lifecycle.Close(c.UserContext(), c.Params("id"), closer, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "accepted"}})
}

// RateService POST /tickets/:id/ratings/service.
func (h *TicketsHandler) RateService(c *fiber.Ctx) error {
	raterID, req, err := h.parseRating(c)
	if err != nil {
		return err
	}
	if err := h.ratings.SubmitServiceRating(c.UserContext(), c.Params("id"), raterID, req.Score); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "recorded"}})
}

// RateStaff POST /tickets/:id/ratings/staff.
func (h *TicketsHandler) RateStaff(c *fiber.Ctx) error {
	raterID, req, err := h.parseRating(c)
	if err != nil {
		return err
	}
	if err := h.ratings.SubmitStaffRating(c.UserContext(), c.Params("id"), raterID, req.Score, req.Comment); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "recorded"}})
}

// InboundMessage POST /platform/messages. The platform bridge relays every
// channel message here so satisfaction phrases can trigger close handling.
func (h *TicketsHandler) InboundMessage(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelID == "" || req.AuthorID == "" {
		return apperrors.NewValidationError("channel_id and author_id required", nil)
	}
	if err := h.lifecycle.HandleChannelMessage(c.UserContext(), req.ChannelID, req.AuthorID, req.Content); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "processed"}})
}

func (h *TicketsHandler) parseRating(c *fiber.Ctx) (string, dto.RatingRequest, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return "", dto.RatingRequest{}, apperrors.NewUnauthorized("authentication required")
	}
	var req dto.RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return "", dto.RatingRequest{}, apperrors.NewValidationError("invalid payload", nil)
	}
	raterID := principal.ID
	if principal.Role == auth.RoleService && req.RaterID != "" {
		raterID = req.RaterID
	}
	return raterID, req, nil
}

func closerRole(role auth.Role) domain.CloserRole {
	switch role {
	case auth.RoleAdmin:
		return domain.CloserRoleAdmin
	case auth.RoleStaff:
		return domain.CloserRoleStaff
	case auth.RoleService:
		return domain.CloserRoleSystem
	default:
		return domain.CloserRoleOwner
	}
}
