package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	OwnerID     string `json:"owner_id"`
	WorkspaceID string `json:"workspace_id"`
	Category    string `json:"category"`
	InvoiceID   string `json:"invoice_id,omitempty"`
}

// ClaimRequest payload. StaffID is optional; staff principals claim for
// themselves, service principals must name the staff member.
type ClaimRequest struct {
	StaffID string `json:"staff_id,omitempty"`
}

// CloseRequest payload.
type CloseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RatingRequest payload. RaterID is honored only for service principals
// relaying a rating collected on the platform; everyone else rates as
// themselves.
type RatingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
	RaterID string `json:"rater_id,omitempty"`
}

// InboundMessageRequest is a channel message relayed by the platform bridge.
type InboundMessageRequest struct {
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
}

// ClaimResponse reports claim outcome.
type ClaimResponse struct {
	Claimed   bool   `json:"claimed"`
	ClaimedBy string `json:"claimed_by"`
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	OwnerID      string     `json:"owner_id"`
	ChannelID    string     `json:"channel_id"`
	Category     string     `json:"category"`
	InvoiceID    string     `json:"invoice_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ClaimedBy    *string    `json:"claimed_by,omitempty"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	PendingClose bool       `json:"pending_close"`
	Closed       bool       `json:"closed"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedBy     *string    `json:"closed_by,omitempty"`
	CloseReason  string     `json:"close_reason,omitempty"`
}

// TicketFromDomain maps a domain ticket onto the wire shape.
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		WorkspaceID:  t.WorkspaceID,
		OwnerID:      t.OwnerID,
		ChannelID:    t.ChannelID,
		Category:     t.Category,
		InvoiceID:    t.InvoiceID,
		CreatedAt:    t.CreatedAt,
		ClaimedBy:    t.ClaimedBy,
		ClaimedAt:    t.ClaimedAt,
		PendingClose: t.PendingClose,
		Closed:       t.Closed,
		ClosedAt:     t.ClosedAt,
		ClosedBy:     t.ClosedBy,
		CloseReason:  t.CloseReason,
	}
}

// ReconcileResponse reports a manual reconciliation pass.
type ReconcileResponse struct {
	Repaired int `json:"repaired"`
}
