package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
)

// Notifier delivers best-effort workspace notifications. Implementations log
// failures and never propagate them; ticket state must not depend on
// notification delivery.
type Notifier interface {
	NotifyOpen(ctx context.Context, ticket *domain.Ticket)
	NotifyClose(ctx context.Context, ticket *domain.Ticket, reason string)
	DeliverTranscript(ctx context.Context, ticket *domain.Ticket, documentPath, summary string)
	DeliverRatingSummary(ctx context.Context, ticket *domain.Ticket)
}

// PlatformNotifier posts notifications to the workspace log channel and
// transcripts to the archive channel.
type PlatformNotifier struct {
	gateway          platform.Gateway
	logChannelID     string
	archiveChannelID string
	logger           *zap.Logger
}

// NewPlatformNotifier constructs the notifier. Either channel id may be
// empty, which disables that delivery target.
func NewPlatformNotifier(gateway platform.Gateway, logChannelID, archiveChannelID string, logger *zap.Logger) *PlatformNotifier {
	return &PlatformNotifier{
		gateway:          gateway,
		logChannelID:     logChannelID,
		archiveChannelID: archiveChannelID,
		logger:           logger,
	}
}

func (n *PlatformNotifier) NotifyOpen(ctx context.Context, ticket *domain.Ticket) {
	content := fmt.Sprintf("Ticket %s opened by <@%s> in %s", ticket.ID, ticket.OwnerID, ticket.Category)
	if ticket.InvoiceID != "" {
		content += fmt.Sprintf(" (invoice %s)", ticket.InvoiceID)
	}
	n.post(ctx, n.logChannelID, content)
}

func (n *PlatformNotifier) NotifyClose(ctx context.Context, ticket *domain.Ticket, reason string) {
	content := fmt.Sprintf("Ticket %s closed (%s): %s", ticket.ID, ticket.ClosedByRole, reason)
	n.post(ctx, n.logChannelID, content)
}

func (n *PlatformNotifier) DeliverTranscript(ctx context.Context, ticket *domain.Ticket, documentPath, summary string) {
	if n.archiveChannelID == "" {
		return
	}
	content, err := os.ReadFile(documentPath)
	if err != nil {
		n.logger.Warn("transcript artifact unreadable",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return
	}
	fileName := fmt.Sprintf("transcript-%s.md", ticket.ID)
	if _, err := n.gateway.SendFile(ctx, n.archiveChannelID, fileName, content, summary); err != nil {
		n.logger.Warn("transcript delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func (n *PlatformNotifier) DeliverRatingSummary(ctx context.Context, ticket *domain.Ticket) {
	if ticket.ServiceRating == nil && ticket.StaffRating == nil {
		return
	}
	content := fmt.Sprintf("Ratings for %s:", ticket.ID)
	if ticket.ServiceRating != nil {
		content += fmt.Sprintf(" service %d/5", *ticket.ServiceRating)
	}
	if ticket.StaffRating != nil {
		content += fmt.Sprintf(" staff %d/5", *ticket.StaffRating)
		if ticket.StaffRatingComment != "" {
			content += fmt.Sprintf(" (%q)", ticket.StaffRatingComment)
		}
	}
	n.post(ctx, n.logChannelID, content)
}

func (n *PlatformNotifier) post(ctx context.Context, channelID, content string) {
	if channelID == "" {
		return
	}
	if _, err := n.gateway.SendMessage(ctx, channelID, content); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
}

var _ Notifier = (*PlatformNotifier)(nil)
