// Package store persists the ticket document: a single durable blob holding
// every ticket record plus the id sequence counter. There is no transactional
// storage underneath; callers narrow the concurrent-write window with
// reload-before-write, they do not eliminate it.
package store

import (
	"context"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// DocumentStore reads and writes the raw serialized document. Load returns
// (nil, nil) when no document exists yet.
type DocumentStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// ticketDocument is the persisted layout.
type ticketDocument struct {
	Tickets map[string]*domain.Ticket `json:"tickets"`
	NextID  int                       `json:"nextId"`
}

func emptyDocument() ticketDocument {
	return ticketDocument{Tickets: map[string]*domain.Ticket{}, NextID: 1}
}
