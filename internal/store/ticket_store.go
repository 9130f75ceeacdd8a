package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

const saveAttempts = 3

// TicketStore is the in-memory ticket cache synchronized with the durable
// document. All reads are served from memory; every mutation rewrites the
// whole document. Callers performing check-and-mutate must Reload first.
type TicketStore struct {
	docs   DocumentStore
	logger *zap.Logger
	sleep  func(time.Duration)

	mu       sync.Mutex
	doc      ticketDocument
	degraded bool
}

// NewTicketStore constructs the store around a document backend.
func NewTicketStore(docs DocumentStore, logger *zap.Logger) *TicketStore {
	return &TicketStore{
		docs:   docs,
		logger: logger,
		sleep:  time.Sleep,
		doc:    emptyDocument(),
	}
}

// Load reads the document into memory. A corrupt or unreadable document
// resets the store to empty with a warning instead of failing startup.
func (s *TicketStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return nil
}

// Reload re-reads the document before a check-and-mutate operation. A read
// failure keeps the current in-memory state.
func (s *TicketStore) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
}

func (s *TicketStore) loadLocked(ctx context.Context) {
	// Ids already handed out by NextID stay reserved until the next save,
	// so the counter never moves backwards on a reload.
	floor := s.doc.NextID
	data, err := s.docs.Load(ctx)
	if err != nil {
		s.logger.Warn("ticket document unreadable, keeping in-memory state", zap.Error(err))
		return
	}
	if len(data) == 0 {
		s.doc = emptyDocument()
		if s.doc.NextID < floor {
			s.doc.NextID = floor
		}
		return
	}
	var doc ticketDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("ticket document corrupt, resetting to empty", zap.Error(err))
		s.doc = emptyDocument()
		if s.doc.NextID < floor {
			s.doc.NextID = floor
		}
		return
	}
	if doc.Tickets == nil {
		doc.Tickets = map[string]*domain.Ticket{}
	}
	if doc.NextID < 1 {
		doc.NextID = 1
	}
	if doc.NextID < floor {
		doc.NextID = floor
	}
	s.doc = doc
}

// Get returns a copy of the ticket or a NOT_FOUND error.
func (s *TicketStore) Get(id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.doc.Tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return ticket.Clone(), nil
}

// GetByChannel returns the ticket backed by the given channel.
func (s *TicketStore) GetByChannel(channelID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.doc.Tickets {
		if ticket.ChannelID == channelID {
			return ticket.Clone(), nil
		}
	}
	return nil, apperrors.NewNotFound("ticket", map[string]any{"channel_id": channelID})
}

// GetByOwner returns the owner's non-closed tickets in a workspace.
func (s *TicketStore) GetByOwner(ownerID, workspaceID string) []*domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Ticket
	for _, ticket := range s.doc.Tickets {
		if ticket.OwnerID == ownerID && ticket.WorkspaceID == workspaceID && ticket.Open() {
			out = append(out, ticket.Clone())
		}
	}
	return out
}

// ListAll returns copies of every ticket record.
func (s *TicketStore) ListAll() []*domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Ticket, 0, len(s.doc.Tickets))
	for _, ticket := range s.doc.Tickets {
		out = append(out, ticket.Clone())
	}
	return out
}

// NextID reserves the next sequential ticket id. The bumped counter is
// persisted together with the record on the following Upsert.
func (s *TicketStore) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("TKT-%04d", s.doc.NextID)
	s.doc.NextID++
	return id
}

// Upsert stores the ticket and persists the document.
func (s *TicketStore) Upsert(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Tickets[ticket.ID] = ticket.Clone()
	return s.saveLocked(ctx)
}

// Remove deletes the record after archival and persists the document.
func (s *TicketStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Tickets, id)
	return s.saveLocked(ctx)
}

// Degraded reports whether the last persistence attempt failed. Reads keep
// serving from memory while degraded.
func (s *TicketStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *TicketStore) saveLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return apperrors.NewPersistence(err)
	}

	backoff := 50 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		lastErr = s.docs.Save(ctx, data)
		if lastErr == nil {
			s.degraded = false
			return nil
		}
		s.logger.Warn("ticket document save failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < saveAttempts {
			s.sleep(backoff)
			backoff *= 2
		}
	}
	s.degraded = true
	return apperrors.NewPersistence(lastErr)
}
