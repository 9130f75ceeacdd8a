package domain

import "time"

// CloserRole identifies the capability under which a close was requested.
type CloserRole string

const (
	CloserRoleOwner  CloserRole = "owner"
	CloserRoleStaff  CloserRole = "staff"
	CloserRoleAdmin  CloserRole = "admin"
	CloserRoleSystem CloserRole = "system"
)

// Ticket is the aggregate for support requests. A ticket owns exactly one
// platform channel while open; claim and rating state live on the record
// itself. JSON tags define the persisted document layout.
type Ticket struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	OwnerID     string    `json:"ownerId"`
	ChannelID   string    `json:"channelId"`
	Category    string    `json:"category"`
	InvoiceID   string    `json:"invoiceId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	ClaimedBy *string    `json:"claimedBy,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`

	Closed       bool       `json:"closed"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
	ClosedBy     *string    `json:"closedBy,omitempty"`
	ClosedByRole CloserRole `json:"closedByRole,omitempty"`
	CloseReason  string     `json:"closeReason,omitempty"`

	PendingClose       bool       `json:"pendingClose"`
	ServiceRating      *int       `json:"serviceRating,omitempty"`
	StaffRating        *int       `json:"staffRating,omitempty"`
	StaffRatingComment string     `json:"staffRatingComment,omitempty"`
	RatingStartedAt    *time.Time `json:"ratingStartedAt,omitempty"`
}

// Open reports whether the ticket still occupies its owner's open slot.
func (t *Ticket) Open() bool {
	return !t.Closed
}

// RatingsComplete reports whether both satisfaction scores are recorded.
func (t *Ticket) RatingsComplete() bool {
	return t.ServiceRating != nil && t.StaffRating != nil
}

// Clone returns a deep copy so callers can mutate without aliasing the
// store's cached record.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	copied := *t
	copied.ClaimedBy = clonePtr(t.ClaimedBy)
	copied.ClaimedAt = clonePtr(t.ClaimedAt)
	copied.ClosedAt = clonePtr(t.ClosedAt)
	copied.ClosedBy = clonePtr(t.ClosedBy)
	copied.ServiceRating = clonePtr(t.ServiceRating)
	copied.StaffRating = clonePtr(t.StaffRating)
	copied.RatingStartedAt = clonePtr(t.RatingStartedAt)
	return &copied
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
