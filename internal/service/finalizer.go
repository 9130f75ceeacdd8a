package service

import (
	"context"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/archive"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/scheduler"
	"github.com/spec-kit/ticket-engine/internal/store"
)

// Finalizer owns the terminal close path shared by all close entry points:
// transcript generation, archival, the closed-record write and the delayed
// channel deletion.
type Finalizer struct {
	store       *store.TicketStore
	gateway     platform.Gateway
	transcripts *TranscriptGenerator
	archive     archive.TranscriptRepository
	notifier    Notifier
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	clock       scheduler.Clock

	graceMin time.Duration
	graceMax time.Duration
	sleep    func(time.Duration)
	spawn    func(func())
}

// FinalizerDependencies bundles collaborators for the finalizer.
type FinalizerDependencies struct {
	Store       *store.TicketStore
	Gateway     platform.Gateway
	Transcripts *TranscriptGenerator
	Archive     archive.TranscriptRepository // optional
	Notifier    Notifier
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       scheduler.Clock
	GraceMin    time.Duration
	GraceMax    time.Duration
	// Sleep and Spawn are injectable for tests; defaults are time.Sleep and
	// `go fn()`.
	Sleep func(time.Duration)
	Spawn func(func())
}

// NewFinalizer constructs the finalizer.
func NewFinalizer(deps FinalizerDependencies) *Finalizer {
	f := &Finalizer{
		store:       deps.Store,
		gateway:     deps.Gateway,
		transcripts: deps.Transcripts,
		archive:     deps.Archive,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		clock:       deps.Clock,
		graceMin:    deps.GraceMin,
		graceMax:    deps.GraceMax,
		sleep:       deps.Sleep,
		spawn:       deps.Spawn,
	}
	if f.clock == nil {
		f.clock = scheduler.RealClock{}
	}
	if f.sleep == nil {
		f.sleep = time.Sleep
	}
	if f.spawn == nil {
		f.spawn = func(fn func()) { go fn() }
	}
	return f
}

// FinalizeClose archives and closes the ticket. Transcript and notification
// failures are logged and do not block the close; only the closed-record
// write itself can fail the operation.
func (f *Finalizer) FinalizeClose(ctx context.Context, ticketID, closedBy string, role domain.CloserRole, reason string) error {
	f.store.Reload(ctx)
	ticket, err := f.store.Get(ticketID)
	if err != nil {
		return err
	}
	if ticket.Closed {
		return nil
	}

	transcript := f.generateTranscript(ctx, ticket)

	now := f.clock.Now()
	ticket.Closed = true
	ticket.PendingClose = false
	ticket.ClosedAt = &now
	ticket.ClosedBy = &closedBy
	ticket.ClosedByRole = role
	ticket.CloseReason = reason
	if err := f.store.Upsert(ctx, ticket); err != nil {
		return err
	}

	if transcript != nil {
		f.deliverTranscript(ctx, ticket, transcript)
	}
	f.notifier.NotifyClose(ctx, ticket, reason)
	f.notifier.DeliverRatingSummary(ctx, ticket)
	f.publishClosed(ctx, ticket)

	f.postCloseNotice(ctx, ticket)
	f.spawn(func() { f.deleteChannelAfterGrace(ticket) })
	return nil
}

func (f *Finalizer) generateTranscript(ctx context.Context, ticket *domain.Ticket) *Transcript {
	channel, err := f.gateway.FetchChannel(ctx, ticket.ChannelID)
	if err != nil || channel == nil {
		// Channel already gone (stale close, reconciliation). Nothing to
		// archive.
		return nil
	}
	transcript, err := f.transcripts.Generate(ctx, ticket)
	if err != nil {
		f.logger.Warn("transcript generation failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		return nil
	}
	return transcript
}

func (f *Finalizer) deliverTranscript(ctx context.Context, ticket *domain.Ticket, transcript *Transcript) {
	tmp, err := os.CreateTemp("", "transcript-*.md")
	if err != nil {
		f.logger.Warn("transcript artifact creation failed", zap.Error(err))
		return
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck
	if _, err := tmp.WriteString(transcript.Content); err != nil {
		tmp.Close() //nolint:errcheck
		f.logger.Warn("transcript artifact write failed", zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		f.logger.Warn("transcript artifact close failed", zap.Error(err))
		return
	}

	f.notifier.DeliverTranscript(ctx, ticket, tmpName, transcript.Summary)

	if f.archive != nil {
		rec := &archive.TranscriptRecord{
			TicketID:      ticket.ID,
			WorkspaceID:   ticket.WorkspaceID,
			OwnerID:       ticket.OwnerID,
			Category:      ticket.Category,
			ClaimedBy:     ticket.ClaimedBy,
			ClosedBy:      ticket.ClosedBy,
			CloseReason:   ticket.CloseReason,
			ServiceRating: ticket.ServiceRating,
			StaffRating:   ticket.StaffRating,
			MessageCount:  len(transcript.Messages),
			Content:       transcript.Content,
			Summary:       transcript.Summary,
		}
		if err := f.archive.Save(ctx, rec); err != nil {
			f.logger.Warn("transcript archive insert failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}

	f.publish(ctx, events.Event{
		Type:        events.EventTranscriptArchived,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Payload: events.TranscriptArchivedPayload{
			MessageCount: len(transcript.Messages),
			Participants: transcript.Participants,
		},
	})
}

func (f *Finalizer) postCloseNotice(ctx context.Context, ticket *domain.Ticket) {
	content := "This ticket is now closed. The channel will be removed shortly."
	if _, err := f.gateway.SendMessage(ctx, ticket.ChannelID, content); err != nil {
		f.logger.Debug("close notice delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

// deleteChannelAfterGrace waits the randomized grace delay, deletes the
// channel, and only then removes the record from the store. A failed deletion
// leaves a closed record for reconciliation to skip.
func (f *Finalizer) deleteChannelAfterGrace(ticket *domain.Ticket) {
	f.sleep(f.graceDelay())

	ctx := context.Background()
	if err := f.gateway.DeleteChannel(ctx, ticket.ChannelID); err != nil {
		f.logger.Warn("channel deletion failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
		return
	}
	if err := f.store.Remove(ctx, ticket.ID); err != nil {
		f.logger.Warn("closed record removal failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func (f *Finalizer) graceDelay() time.Duration {
	if f.graceMax <= f.graceMin {
		return f.graceMin
	}
	return f.graceMin + time.Duration(rand.Int63n(int64(f.graceMax-f.graceMin)))
}

func (f *Finalizer) publishClosed(ctx context.Context, ticket *domain.Ticket) {
	closedBy := ""
	if ticket.ClosedBy != nil {
		closedBy = *ticket.ClosedBy
	}
	f.publish(ctx, events.Event{
		Type:        events.EventTicketClosed,
		TicketID:    ticket.ID,
		WorkspaceID: ticket.WorkspaceID,
		Actor:       events.Actor{ID: closedBy, Role: ticket.ClosedByRole},
		Payload: events.TicketClosedPayload{
			Reason:        ticket.CloseReason,
			ServiceRating: ticket.ServiceRating,
			StaffRating:   ticket.StaffRating,
		},
	})
}

func (f *Finalizer) publish(ctx context.Context, event events.Event) {
	if f.dispatcher == nil {
		return
	}
	publishEvent(ctx, f.dispatcher, f.clock, event)
}
