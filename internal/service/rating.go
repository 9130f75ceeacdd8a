package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/scheduler"
	"github.com/spec-kit/ticket-engine/internal/store"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// RatingPolicy parameterizes the mandatory two-step rating collection.
type RatingPolicy struct {
	// Timeout is how long a pendingClose ticket may wait for ratings before
	// the sweep escalates it.
	Timeout time.Duration
	// TimeoutDefaultScore fills missing ratings on escalation. Defaulting to
	// the maximum is inherited behavior, kept tunable rather than hard-coded.
	TimeoutDefaultScore int
}

// RatingWorkflow collects the two satisfaction ratings between close
// initiation and finalization.
type RatingWorkflow struct {
	store      *store.TicketStore
	gateway    platform.Gateway
	notifier   Notifier
	dispatcher events.Dispatcher
	finalizer  *Finalizer
	logger     *zap.Logger
	clock      scheduler.Clock
	policy     RatingPolicy

	staffRoleID string
	adminRoleID string
}

// RatingDependencies bundles collaborators for the rating workflow.
type RatingDependencies struct {
	Store      *store.TicketStore
	Gateway    platform.Gateway
	Notifier   Notifier
	Dispatcher events.Dispatcher
	Finalizer  *Finalizer
	Logger     *zap.Logger
	Clock      scheduler.Clock
	Policy     RatingPolicy

	StaffRoleID string
	AdminRoleID string
}

// NewRatingWorkflow constructs the workflow.
func NewRatingWorkflow(deps RatingDependencies) *RatingWorkflow {
	w := &RatingWorkflow{
		store:       deps.Store,
		gateway:     deps.Gateway,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		finalizer:   deps.Finalizer,
		logger:      deps.Logger,
		clock:       deps.Clock,
		policy:      deps.Policy,
		staffRoleID: deps.StaffRoleID,
		adminRoleID: deps.AdminRoleID,
	}
	if w.clock == nil {
		w.clock = scheduler.RealClock{}
	}
	if w.policy.Timeout <= 0 {
		w.policy.Timeout = 24 * time.Hour
	}
	if w.policy.TimeoutDefaultScore < 1 || w.policy.TimeoutDefaultScore > 5 {
		w.policy.TimeoutDefaultScore = 5
	}
	return w
}

// InitiateClose records the closer, flips the ticket to pendingClose, locks
// the owner's send permission and posts the service-rating prompt.
func (w *RatingWorkflow) InitiateClose(ctx context.Context, ticketID string, closer Closer, reason string) error {
	w.store.Reload(ctx)
	ticket, err := w.store.Get(ticketID)
	if err != nil {
		return err
	}
	if ticket.Closed {
		return apperrors.NewNotFound("open ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.PendingClose {
		return apperrors.NewOutOfOrder("close already in progress")
	}
	if strings.TrimSpace(reason) == "" {
		return apperrors.NewValidationError("close reason required", nil)
	}

	now := w.clock.Now()
	ticket.PendingClose = true
	ticket.RatingStartedAt = &now
	ticket.ClosedBy = &closer.ID
	ticket.ClosedByRole = closer.Role
	ticket.CloseReason = reason
	if err := w.store.Upsert(ctx, ticket); err != nil {
		return err
	}

	acl := buildTicketACL(ticket.OwnerID, w.staffRoleID, w.adminRoleID, true)
	if err := w.gateway.SetChannelACL(ctx, ticket.ChannelID, acl); err != nil {
		w.logger.Warn("rating lockdown ACL failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}

	prompt := fmt.Sprintf(
		"<@%s> is closing this ticket (%s). <@%s>, please rate our service from 1 to 5 before the ticket closes.",
		closer.ID, reason, ticket.OwnerID)
	if _, err := w.gateway.SendMessage(ctx, ticket.ChannelID, prompt); err != nil {
		w.logger.Warn("service rating prompt failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}

	w.publish(ctx, events.Event{
		Type:        events.EventCloseInitiated,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: closer.ID, Role: closer.Role},
		Payload:     events.CloseInitiatedPayload{Reason: reason},
	})
	return nil
}

// SubmitServiceRating records the first rating. Only the ticket owner's
// response is accepted, and only while a close is in progress.
func (w *RatingWorkflow) SubmitServiceRating(ctx context.Context, ticketID, raterID string, score int) error {
	if err := validScore(score); err != nil {
		return err
	}
	w.store.Reload(ctx)
	ticket, err := w.store.Get(ticketID)
	if err != nil {
		return err
	}
	if !ticket.PendingClose {
		return apperrors.NewOutOfOrder("no close in progress")
	}
	if raterID != ticket.OwnerID {
		return apperrors.NewPermission("only the ticket owner may rate the service")
	}
	if ticket.ServiceRating != nil {
		return apperrors.NewOutOfOrder("service rating already recorded")
	}

	ticket.ServiceRating = &score
	if err := w.store.Upsert(ctx, ticket); err != nil {
		return err
	}

	prompt := fmt.Sprintf(
		"Thank you. We are still closing this ticket. <@%s>, please also rate the staff member who helped you (1 to 5), optionally with a comment.",
		ticket.OwnerID)
	if _, err := w.gateway.SendMessage(ctx, ticket.ChannelID, prompt); err != nil {
		w.logger.Warn("staff rating prompt failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}

	w.publish(ctx, events.Event{
		Type:        events.EventRatingRecorded,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: raterID, Role: domain.CloserRoleOwner},
		Payload:     events.RatingRecordedPayload{Kind: "service", Score: score},
	})
	return nil
}

// SubmitStaffRating records the second rating and, with both present,
// finalizes the close. The staff rating cannot complete before the service
// rating exists.
func (w *RatingWorkflow) SubmitStaffRating(ctx context.Context, ticketID, raterID string, score int, comment string) error {
	if err := validScore(score); err != nil {
		return err
	}
	w.store.Reload(ctx)
	ticket, err := w.store.Get(ticketID)
	if err != nil {
		return err
	}
	if !ticket.PendingClose {
		return apperrors.NewOutOfOrder("no close in progress")
	}
	if raterID != ticket.OwnerID {
		return apperrors.NewPermission("only the ticket owner may rate the staff member")
	}
	if ticket.ServiceRating == nil {
		return apperrors.NewOutOfOrder("service rating must be recorded first")
	}

	ticket.StaffRating = &score
	ticket.StaffRatingComment = strings.TrimSpace(comment)
	if err := w.store.Upsert(ctx, ticket); err != nil {
		return err
	}

	w.publish(ctx, events.Event{
		Type:        events.EventRatingRecorded,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: raterID, Role: domain.CloserRoleOwner},
		Payload:     events.RatingRecordedPayload{Kind: "staff", Score: score, Comment: ticket.StaffRatingComment},
	})

	closedBy := ticket.OwnerID
	if ticket.ClosedBy != nil {
		closedBy = *ticket.ClosedBy
	}
	return w.finalizer.FinalizeClose(ctx, ticket.ID, closedBy, ticket.ClosedByRole, ticket.CloseReason)
}

// SweepExpiredRatings escalates pendingClose tickets whose rating window has
// elapsed: missing scores are defaulted and the ticket is force-finalized.
// Returns how many tickets were escalated.
func (w *RatingWorkflow) SweepExpiredRatings(ctx context.Context) int {
	w.store.Reload(ctx)
	escalated := 0
	for _, ticket := range w.store.ListAll() {
		if !ticket.PendingClose || ticket.Closed || ticket.RatingStartedAt == nil {
			continue
		}
		if w.clock.Now().Sub(*ticket.RatingStartedAt) < w.policy.Timeout {
			continue
		}
		if ticket.RatingsComplete() {
			continue
		}

		if ticket.ServiceRating == nil {
			score := w.policy.TimeoutDefaultScore
			ticket.ServiceRating = &score
			w.logger.Info("service rating defaulted on timeout",
				zap.String("ticket_id", ticket.ID),
				zap.Int("score", score))
		}
		if ticket.StaffRating == nil {
			score := w.policy.TimeoutDefaultScore
			ticket.StaffRating = &score
			w.logger.Info("staff rating defaulted on timeout",
				zap.String("ticket_id", ticket.ID),
				zap.Int("score", score))
		}
		if err := w.store.Upsert(ctx, ticket); err != nil {
			w.logger.Warn("rating timeout persistence failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			continue
		}

		closedBy := "system"
		if ticket.ClosedBy != nil {
			closedBy = *ticket.ClosedBy
		}
		reason := ticket.CloseReason
		if reason == "" {
			reason = "rating timeout"
		}
		if err := w.finalizer.FinalizeClose(ctx, ticket.ID, closedBy, ticket.ClosedByRole, reason); err != nil {
			w.logger.Warn("rating timeout finalize failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			continue
		}
		escalated++
	}
	return escalated
}

func validScore(score int) error {
	if score < 1 || score > 5 {
		return apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"score": score})
	}
	return nil
}

func (w *RatingWorkflow) publish(ctx context.Context, event events.Event) {
	if w.dispatcher == nil {
		return
	}
	publishEvent(ctx, w.dispatcher, w.clock, event)
}
