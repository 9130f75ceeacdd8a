package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/store"
)

// ReconciliationService resynchronizes persisted ticket records with the
// live platform: it backfills missing workspace ids, force-closes tickets
// whose channel disappeared, and repairs ticket-channel ACLs. It also hosts
// the hourly rating-timeout sweep.
type ReconciliationService struct {
	store     *store.TicketStore
	gateway   platform.Gateway
	lifecycle *TicketLifecycle
	ratings   *RatingWorkflow
	metrics   *observability.Metrics
	logger    *zap.Logger

	workspaceID string
	staffRoleID string
	adminRoleID string
}

// ReconciliationDependencies bundles collaborators.
type ReconciliationDependencies struct {
	Store     *store.TicketStore
	Gateway   platform.Gateway
	Lifecycle *TicketLifecycle
	Ratings   *RatingWorkflow
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	WorkspaceID string
	StaffRoleID string
	AdminRoleID string
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	return &ReconciliationService{
		store:       deps.Store,
		gateway:     deps.Gateway,
		lifecycle:   deps.Lifecycle,
		ratings:     deps.Ratings,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		workspaceID: deps.WorkspaceID,
		staffRoleID: deps.StaffRoleID,
		adminRoleID: deps.AdminRoleID,
	}
}

// Run executes one full pass: reconciliation plus the rating-timeout sweep.
// Used at process start and by the hourly schedule.
func (s *ReconciliationService) Run(ctx context.Context) {
	repaired := s.Reconcile(ctx)
	s.metrics.RecordSweep("reconcile", repaired)

	escalated := s.ratings.SweepExpiredRatings(ctx)
	s.metrics.RecordSweep("rating_timeout", escalated)
}

// Reconcile walks every persisted ticket. Per-ticket failures are logged and
// never abort the pass for the remaining tickets. Returns how many tickets
// were mutated.
func (s *ReconciliationService) Reconcile(ctx context.Context) int {
	s.store.Reload(ctx)
	mutated := 0
	for _, ticket := range s.store.ListAll() {
		if ticket.Closed {
			continue
		}
		// Records from other workspaces are left alone; records missing a
		// workspace id still pass through for the backfill below.
		if s.workspaceID != "" && ticket.WorkspaceID != "" && ticket.WorkspaceID != s.workspaceID {
			continue
		}
		changed, err := s.reconcileTicket(ctx, ticket)
		if err != nil {
			s.logger.Warn("ticket reconciliation failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			continue
		}
		if changed {
			mutated++
		}
	}
	return mutated
}

func (s *ReconciliationService) reconcileTicket(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	channel, err := s.gateway.FetchChannel(ctx, ticket.ChannelID)
	if err != nil {
		return false, err
	}

	if channel == nil {
		if err := s.lifecycle.forceCloseStale(ctx, ticket, closeReasonReconciled); err != nil {
			return false, err
		}
		s.logger.Info("stale ticket closed by reconciliation",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_id", ticket.ChannelID))
		return true, nil
	}

	changed := false
	if ticket.WorkspaceID == "" && channel.WorkspaceID != "" {
		ticket.WorkspaceID = channel.WorkspaceID
		if err := s.store.Upsert(ctx, ticket); err != nil {
			return false, err
		}
		s.logger.Info("workspace id backfilled",
			zap.String("ticket_id", ticket.ID),
			zap.String("workspace_id", ticket.WorkspaceID))
		changed = true
	}

	repairedACL, err := s.repairACL(ctx, ticket, channel)
	if err != nil {
		return changed, err
	}
	return changed || repairedACL, nil
}

// repairACL adds grants the ticket channel is missing for the owner and the
// configured roles. Unrelated entries are never removed.
func (s *ReconciliationService) repairACL(ctx context.Context, ticket *domain.Ticket, channel *platform.Channel) (bool, error) {
	expected := buildTicketACL(ticket.OwnerID, s.staffRoleID, s.adminRoleID, ticket.PendingClose)
	merged, changed := mergeACL(channel.ACL, expected)
	if !changed {
		return false, nil
	}
	if err := s.gateway.SetChannelACL(ctx, channel.ID, merged); err != nil {
		return false, err
	}
	s.logger.Info("channel ACL repaired",
		zap.String("ticket_id", ticket.ID),
		zap.String("channel_id", channel.ID))
	return true, nil
}

// mergeACL unions expected grants into existing entries. Existing allows and
// denies stay untouched; only missing allows are added.
func mergeACL(existing, expected []platform.ACLEntry) ([]platform.ACLEntry, bool) {
	merged := append([]platform.ACLEntry{}, existing...)
	changed := false

	for _, want := range expected {
		idx := -1
		for i, have := range merged {
			if have.TargetID == want.TargetID && have.TargetType == want.TargetType {
				idx = i
				break
			}
		}
		if idx == -1 {
			merged = append(merged, want)
			changed = true
			continue
		}
		for _, perm := range want.Allow {
			if merged[idx].Allows(perm) || denies(merged[idx], perm) {
				continue
			}
			merged[idx].Allow = append(merged[idx].Allow, perm)
			changed = true
		}
	}
	return merged, changed
}

func denies(entry platform.ACLEntry, p platform.Permission) bool {
	for _, perm := range entry.Deny {
		if perm == p {
			return true
		}
	}
	return false
}
