package events

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened       EventType = "ticket_opened"
	EventTicketClaimed      EventType = "ticket_claimed"
	EventCloseInitiated     EventType = "ticket_close_initiated"
	EventRatingRecorded     EventType = "ticket_rating_recorded"
	EventTicketClosed       EventType = "ticket_closed"
	EventTranscriptArchived EventType = "ticket_transcript_archived"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string            `json:"id"`
	Role domain.CloserRole `json:"role"`
}

// Event represents a domain event emitted by the lifecycle services. Events
// are the consumption surface for external analytics/reporting; nothing in
// this engine learns from them.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	TicketID    string      `json:"ticket_id"`
	WorkspaceID string      `json:"workspace_id"`
	Actor       Actor       `json:"actor"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	OwnerID   string `json:"owner_id"`
	Category  string `json:"category"`
	ChannelID string `json:"channel_id"`
	InvoiceID string `json:"invoice_id,omitempty"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	StaffID string `json:"staff_id"`
}

// CloseInitiatedPayload payload.
type CloseInitiatedPayload struct {
	Reason string `json:"reason"`
}

// RatingRecordedPayload payload.
type RatingRecordedPayload struct {
	Kind    string `json:"kind"` // "service" or "staff"
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Reason        string `json:"reason"`
	ServiceRating *int   `json:"service_rating,omitempty"`
	StaffRating   *int   `json:"staff_rating,omitempty"`
}

// TranscriptArchivedPayload payload.
type TranscriptArchivedPayload struct {
	MessageCount int      `json:"message_count"`
	Participants []string `json:"participants"`
}
