package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/category"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/scheduler"
	"github.com/spec-kit/ticket-engine/internal/store"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

const (
	// closeReasonStaleChannel marks tickets force-closed because their
	// backing channel disappeared.
	closeReasonStaleChannel = "channel deleted"
	// closeReasonReconciled marks tickets closed by the reconciliation sweep.
	closeReasonReconciled = "channel deleted or process restarted"
	// closeReasonSystem is the fixed text for automated closes.
	closeReasonSystem = "closed automatically"

	// closeNoticeMarker appears in every bot close/rating message; the
	// satisfaction-phrase path scans recent history for it to avoid
	// re-triggering an in-progress close.
	closeNoticeMarker = "closing this ticket"
)

// Closer identifies who requested a close and under which capability.
type Closer struct {
	ID   string
	Role domain.CloserRole
}

// ClaimResult is the non-throwing outcome of a claim attempt.
type ClaimResult struct {
	Claimed   bool
	ClaimedBy string
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	OwnerID     string
	WorkspaceID string
	Category    string
	InvoiceID   string
}

// TicketLifecycle coordinates create/claim/close and enforces the
// one-open-ticket-per-owner invariant.
type TicketLifecycle struct {
	store      *store.TicketStore
	resolver   *category.Resolver
	gateway    platform.Gateway
	notifier   Notifier
	dispatcher events.Dispatcher
	finalizer  *Finalizer
	ratings    *RatingWorkflow
	logger     *zap.Logger
	clock      scheduler.Clock
	sleep      func(time.Duration)

	workspaceID string
	staffRoleID string
	adminRoleID string
	opDelay     time.Duration
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store      *store.TicketStore
	Resolver   *category.Resolver
	Gateway    platform.Gateway
	Notifier   Notifier
	Dispatcher events.Dispatcher
	Finalizer  *Finalizer
	Ratings    *RatingWorkflow
	Logger     *zap.Logger
	Clock      scheduler.Clock
	Sleep      func(time.Duration)

	WorkspaceID string
	StaffRoleID string
	AdminRoleID string
	OpDelay     time.Duration
}

// NewTicketLifecycle constructs the service.
func NewTicketLifecycle(deps LifecycleDependencies) *TicketLifecycle {
	l := &TicketLifecycle{
		store:       deps.Store,
		resolver:    deps.Resolver,
		gateway:     deps.Gateway,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		finalizer:   deps.Finalizer,
		ratings:     deps.Ratings,
		logger:      deps.Logger,
		clock:       deps.Clock,
		sleep:       deps.Sleep,
		workspaceID: deps.WorkspaceID,
		staffRoleID: deps.StaffRoleID,
		adminRoleID: deps.AdminRoleID,
		opDelay:     deps.OpDelay,
	}
	if l.clock == nil {
		l.clock = scheduler.RealClock{}
	}
	if l.sleep == nil {
		l.sleep = time.Sleep
	}
	return l
}

// Create opens a ticket: it heals stale open tickets for the owner, enforces
// the single-open-ticket invariant, resolves the category container, creates
// the channel with its ACL and verifies the channel actually landed under the
// resolved container.
func (l *TicketLifecycle) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	if input.WorkspaceID == "" {
		input.WorkspaceID = l.workspaceID
	}
	if input.WorkspaceID == "" {
		return nil, apperrors.NewValidationError("workspace required", nil)
	}
	l.store.Reload(ctx)

	for _, open := range l.store.GetByOwner(input.OwnerID, input.WorkspaceID) {
		channel, err := l.gateway.FetchChannel(ctx, open.ChannelID)
		if err != nil {
			l.logger.Warn("channel check failed during create",
				zap.String("ticket_id", open.ID),
				zap.Error(err))
			continue
		}
		if channel == nil {
			if err := l.forceCloseStale(ctx, open, closeReasonStaleChannel); err != nil {
				l.logger.Warn("stale ticket close failed",
					zap.String("ticket_id", open.ID),
					zap.Error(err))
			}
		}
	}

	if remaining := l.store.GetByOwner(input.OwnerID, input.WorkspaceID); len(remaining) > 0 {
		return nil, apperrors.NewDuplicateOpenTicket(remaining[0].ID)
	}

	containerID, err := l.resolver.Resolve(ctx, input.WorkspaceID, input.Category)
	if err != nil {
		return nil, err
	}

	id := l.store.NextID()
	acl := l.ticketACL(input.OwnerID, false)
	channel, err := l.gateway.CreateChannel(ctx, input.WorkspaceID, strings.ToLower(id), containerID, acl)
	if err != nil {
		return nil, apperrors.NewCategoryResolution("cannot create ticket channel", err)
	}
	l.sleep(l.opDelay)

	if err := l.verifyChannelParent(ctx, channel.ID, containerID); err != nil {
		return nil, err
	}

	def := l.resolver.Definition(input.Category)
	now := l.clock.Now()
	ticket := &domain.Ticket{
		ID:          id,
		WorkspaceID: input.WorkspaceID,
		OwnerID:     input.OwnerID,
		ChannelID:   channel.ID,
		Category:    def.Display,
		InvoiceID:   input.InvoiceID,
		CreatedAt:   now,
	}
	if err := l.store.Upsert(ctx, ticket); err != nil {
		return nil, err
	}

	opened := fmt.Sprintf("Ticket %s opened. <@%s>, a staff member will be with you shortly.", ticket.ID, ticket.OwnerID)
	if _, err := l.gateway.SendMessage(ctx, channel.ID, opened); err != nil {
		l.logger.Warn("opened notice delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	l.notifier.NotifyOpen(ctx, ticket)
	l.publish(ctx, events.Event{
		Type:        events.EventTicketOpened,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: ticket.OwnerID, Role: domain.CloserRoleOwner},
		Payload: events.TicketOpenedPayload{
			OwnerID:   ticket.OwnerID,
			Category:  ticket.Category,
			ChannelID: ticket.ChannelID,
			InvoiceID: ticket.InvoiceID,
		},
	})
	return ticket, nil
}

// verifyChannelParent re-fetches the created channel and repairs or rolls
// back a misparented one. A ticket channel must never live outside its
// category container.
func (l *TicketLifecycle) verifyChannelParent(ctx context.Context, channelID, containerID string) error {
	fetched, err := l.gateway.FetchChannel(ctx, channelID)
	if err != nil || fetched == nil {
		l.rollbackChannel(ctx, channelID)
		return apperrors.NewCategoryResolution("cannot verify ticket channel", err)
	}
	if fetched.ParentID == containerID {
		return nil
	}

	l.logger.Warn("ticket channel misparented, attempting corrective move",
		zap.String("channel_id", channelID),
		zap.String("expected_parent", containerID),
		zap.String("actual_parent", fetched.ParentID))
	if err := l.gateway.MoveChannel(ctx, channelID, containerID); err == nil {
		l.sleep(l.opDelay)
		if fetched, err = l.gateway.FetchChannel(ctx, channelID); err == nil && fetched != nil && fetched.ParentID == containerID {
			return nil
		}
	}

	l.rollbackChannel(ctx, channelID)
	return apperrors.NewCategoryResolution("ticket channel could not be placed under its container", nil)
}

func (l *TicketLifecycle) rollbackChannel(ctx context.Context, channelID string) {
	if err := l.gateway.DeleteChannel(ctx, channelID); err != nil {
		l.logger.Warn("orphaned channel cleanup failed",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

// Claim records staff ownership of a ticket. An already-claimed ticket is a
// result, not an error; the first claimant always wins.
func (l *TicketLifecycle) Claim(ctx context.Context, ticketID, staffID string) (*ClaimResult, error) {
	l.store.Reload(ctx)
	ticket, err := l.store.Get(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Closed {
		return nil, apperrors.NewNotFound("open ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.ClaimedBy != nil {
		return &ClaimResult{Claimed: false, ClaimedBy: *ticket.ClaimedBy}, nil
	}

	now := l.clock.Now()
	ticket.ClaimedBy = &staffID
	ticket.ClaimedAt = &now
	if err := l.store.Upsert(ctx, ticket); err != nil {
		return nil, err
	}

	if _, err := l.gateway.SendMessage(ctx, ticket.ChannelID, fmt.Sprintf("<@%s> has claimed this ticket.", staffID)); err != nil {
		l.logger.Warn("claim notice delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	l.publish(ctx, events.Event{
		Type:        events.EventTicketClaimed,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: staffID, Role: domain.CloserRoleStaff},
		Payload:     events.TicketClaimedPayload{StaffID: staffID},
	})
	return &ClaimResult{Claimed: true, ClaimedBy: staffID}, nil
}

// Close routes a close request by the closer's capability: admin and system
// closes finalize directly, staff and owner closes require a reason and go
// through the rating workflow.
func (l *TicketLifecycle) Close(ctx context.Context, ticketID string, closer Closer, reason string) error {
	l.store.Reload(ctx)
	ticket, err := l.store.Get(ticketID)
	if err != nil {
		return err
	}
	if ticket.Closed {
		return apperrors.NewNotFound("open ticket", map[string]any{"ticket_id": ticketID})
	}

	switch closer.Role {
	case domain.CloserRoleAdmin:
		return l.finalizer.FinalizeClose(ctx, ticketID, closer.ID, closer.Role, reason)
	case domain.CloserRoleSystem:
		if reason == "" {
			reason = closeReasonSystem
		}
		return l.finalizer.FinalizeClose(ctx, ticketID, closer.ID, closer.Role, reason)
	case domain.CloserRoleOwner:
		if ticket.OwnerID != closer.ID {
			return apperrors.NewPermission("only the ticket owner may self-close")
		}
		if strings.TrimSpace(reason) == "" {
			return apperrors.NewValidationError("close reason required", nil)
		}
		return l.ratings.InitiateClose(ctx, ticketID, closer, reason)
	case domain.CloserRoleStaff:
		if strings.TrimSpace(reason) == "" {
			return apperrors.NewValidationError("close reason required", nil)
		}
		if err := l.requireRole(ctx, ticket.WorkspaceID, closer.ID, l.staffRoleID); err != nil {
			return err
		}
		return l.ratings.InitiateClose(ctx, ticketID, closer, reason)
	default:
		return apperrors.NewValidationError("unknown closer role", map[string]any{"role": string(closer.Role)})
	}
}

// HandleChannelMessage reacts to an inbound channel message: a satisfaction
// phrase from the owner or a staff member triggers the close path for the
// speaker's role, unless a close is already underway.
func (l *TicketLifecycle) HandleChannelMessage(ctx context.Context, channelID, authorID, content string) error {
	if !containsSatisfactionPhrase(content) {
		return nil
	}

	l.store.Reload(ctx)
	ticket, err := l.store.GetByChannel(channelID)
	if err != nil {
		return nil // not a ticket channel
	}
	if ticket.Closed || ticket.PendingClose {
		return nil
	}
	if l.closeAlreadyAnnounced(ctx, channelID) {
		return nil
	}

	reason := "resolved (satisfaction message)"
	switch {
	case authorID == ticket.OwnerID:
		return l.ratings.InitiateClose(ctx, ticket.ID, Closer{ID: authorID, Role: domain.CloserRoleOwner}, reason)
	case l.hasRole(ctx, ticket.WorkspaceID, authorID, l.staffRoleID):
		return l.ratings.InitiateClose(ctx, ticket.ID, Closer{ID: authorID, Role: domain.CloserRoleStaff}, reason)
	default:
		return nil
	}
}

// closeAlreadyAnnounced checks recent bot messages for a close notice so a
// second thank-you does not re-trigger the workflow.
func (l *TicketLifecycle) closeAlreadyAnnounced(ctx context.Context, channelID string) bool {
	recent, err := l.gateway.FetchMessages(ctx, channelID, platform.FetchMessagesOptions{Limit: 10})
	if err != nil {
		l.logger.Warn("recent message scan failed", zap.String("channel_id", channelID), zap.Error(err))
		return false
	}
	for _, msg := range recent {
		if msg.Bot && strings.Contains(strings.ToLower(msg.Content), closeNoticeMarker) {
			return true
		}
	}
	return false
}

var satisfactionPhrases = []string{
	"thank you",
	"thanks",
	"thx",
	"that solved it",
	"problem solved",
	"all good now",
}

func containsSatisfactionPhrase(content string) bool {
	lowered := strings.ToLower(content)
	for _, phrase := range satisfactionPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// forceCloseStale closes a ticket whose channel no longer exists. No
// transcript is possible; the record is closed in place.
func (l *TicketLifecycle) forceCloseStale(ctx context.Context, ticket *domain.Ticket, reason string) error {
	now := l.clock.Now()
	system := "system"
	ticket.Closed = true
	ticket.PendingClose = false
	ticket.ClosedAt = &now
	ticket.ClosedBy = &system
	ticket.ClosedByRole = domain.CloserRoleSystem
	ticket.CloseReason = reason
	if err := l.store.Upsert(ctx, ticket); err != nil {
		return err
	}
	l.notifier.NotifyClose(ctx, ticket, reason)
	l.publish(ctx, events.Event{
		Type:        events.EventTicketClosed,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: system, Role: domain.CloserRoleSystem},
		Payload:     events.TicketClosedPayload{Reason: reason},
	})
	return nil
}

func (l *TicketLifecycle) requireRole(ctx context.Context, workspaceID, memberID, roleID string) error {
	if roleID == "" {
		return nil // role enforcement disabled when no role is configured
	}
	if !l.hasRole(ctx, workspaceID, memberID, roleID) {
		return apperrors.NewPermission("caller lacks the required role")
	}
	return nil
}

func (l *TicketLifecycle) hasRole(ctx context.Context, workspaceID, memberID, roleID string) bool {
	if roleID == "" {
		return false
	}
	member, err := l.gateway.FetchMember(ctx, workspaceID, memberID)
	if err != nil {
		l.logger.Warn("member lookup failed",
			zap.String("member_id", memberID),
			zap.Error(err))
		return false
	}
	return platform.MemberHasRole(member, roleID)
}

// ticketACL builds the channel grant set. During pendingClose the owner
// keeps view but loses send.
func (l *TicketLifecycle) ticketACL(ownerID string, pendingClose bool) []platform.ACLEntry {
	return buildTicketACL(ownerID, l.staffRoleID, l.adminRoleID, pendingClose)
}

func buildTicketACL(ownerID, staffRoleID, adminRoleID string, pendingClose bool) []platform.ACLEntry {
	ownerAllow := []platform.Permission{
		platform.PermView,
		platform.PermReadHistory,
		platform.PermAttachFiles,
		platform.PermEmbedLinks,
	}
	var ownerDeny []platform.Permission
	if pendingClose {
		ownerDeny = []platform.Permission{platform.PermSend}
	} else {
		ownerAllow = append(ownerAllow, platform.PermSend)
	}

	entries := []platform.ACLEntry{
		{TargetType: platform.TargetEveryone, Deny: []platform.Permission{platform.PermView}},
		{TargetID: ownerID, TargetType: platform.TargetMember, Allow: ownerAllow, Deny: ownerDeny},
	}
	if staffRoleID != "" {
		entries = append(entries, platform.ACLEntry{
			TargetID:   staffRoleID,
			TargetType: platform.TargetRole,
			Allow: []platform.Permission{
				platform.PermView,
				platform.PermSend,
				platform.PermReadHistory,
				platform.PermAttachFiles,
				platform.PermEmbedLinks,
			},
		})
	}
	if adminRoleID != "" {
		entries = append(entries, platform.ACLEntry{
			TargetID:   adminRoleID,
			TargetType: platform.TargetRole,
			Allow: []platform.Permission{
				platform.PermView,
				platform.PermSend,
				platform.PermReadHistory,
				platform.PermAttachFiles,
				platform.PermEmbedLinks,
				platform.PermManageChannel,
			},
		})
	}
	return entries
}

func (l *TicketLifecycle) publish(ctx context.Context, event events.Event) {
	if l.dispatcher == nil {
		return
	}
	publishEvent(ctx, l.dispatcher, l.clock, event)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, clock scheduler.Clock, event events.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clock.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}
