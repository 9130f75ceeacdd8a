package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/store"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// flakyDocStore fails saves until Failures reaches zero.
type flakyDocStore struct {
	data     []byte
	failures int
	saves    int
}

func (f *flakyDocStore) Load(ctx context.Context) ([]byte, error) {
	return f.data, nil
}

func (f *flakyDocStore) Save(ctx context.Context, data []byte) error {
	f.saves++
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	f.data = append([]byte{}, data...)
	return nil
}

func newFileStore(t *testing.T) (*store.TicketStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.json")
	s := store.NewTicketStore(store.NewFileDocumentStore(path), zap.NewNop())
	require.NoError(t, s.Load(context.Background()))
	return s, path
}

func TestNextIDSequence(t *testing.T) {
	s, _ := newFileStore(t)
	assert.Equal(t, "TKT-0001", s.NextID())
	assert.Equal(t, "TKT-0002", s.NextID())
}

func TestNextIDSurvivesInterleavedReload(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	// Two creates in flight: each reloads before reserving, and neither has
	// persisted its record yet when the other reserves.
	s.Reload(ctx)
	idA := s.NextID()
	s.Reload(ctx)
	idB := s.NextID()
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, "TKT-0001", idA)
	assert.Equal(t, "TKT-0002", idB)

	require.NoError(t, s.Upsert(ctx, &domain.Ticket{ID: idA, WorkspaceID: "ws-1", OwnerID: "owner-a", ChannelID: "chan-a"}))
	require.NoError(t, s.Upsert(ctx, &domain.Ticket{ID: idB, WorkspaceID: "ws-1", OwnerID: "owner-b", ChannelID: "chan-b"}))

	assert.Len(t, s.GetByOwner("owner-a", "ws-1"), 1)
	assert.Len(t, s.GetByOwner("owner-b", "ws-1"), 1)
}

func TestUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, path := newFileStore(t)

	ticket := &domain.Ticket{ID: s.NextID(), WorkspaceID: "ws-1", OwnerID: "user-1", ChannelID: "chan-1"}
	require.NoError(t, s.Upsert(ctx, ticket))

	got, err := s.Get(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)

	byChannel, err := s.GetByChannel("chan-1")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byChannel.ID)

	// Counter survives a fresh load of the same document.
	reopened := store.NewTicketStore(store.NewFileDocumentStore(path), zap.NewNop())
	require.NoError(t, reopened.Load(ctx))
	assert.Equal(t, "TKT-0002", reopened.NextID())
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)
	ticket := &domain.Ticket{ID: s.NextID(), OwnerID: "user-1"}
	require.NoError(t, s.Upsert(ctx, ticket))

	got, err := s.Get(ticket.ID)
	require.NoError(t, err)
	got.OwnerID = "tampered"

	again, err := s.Get(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", again.OwnerID)
}

func TestGetByOwnerSkipsClosed(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)

	open := &domain.Ticket{ID: s.NextID(), WorkspaceID: "ws-1", OwnerID: "user-1"}
	closed := &domain.Ticket{ID: s.NextID(), WorkspaceID: "ws-1", OwnerID: "user-1", Closed: true}
	other := &domain.Ticket{ID: s.NextID(), WorkspaceID: "ws-2", OwnerID: "user-1"}
	require.NoError(t, s.Upsert(ctx, open))
	require.NoError(t, s.Upsert(ctx, closed))
	require.NoError(t, s.Upsert(ctx, other))

	got := s.GetByOwner("user-1", "ws-1")
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newFileStore(t)
	ticket := &domain.Ticket{ID: s.NextID()}
	require.NoError(t, s.Upsert(ctx, ticket))
	require.NoError(t, s.Remove(ctx, ticket.ID))

	_, err := s.Get(ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCorruptDocumentResetsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := store.NewTicketStore(store.NewFileDocumentStore(path), zap.NewNop())
	require.NoError(t, s.Load(ctx))
	assert.Empty(t, s.ListAll())
	assert.Equal(t, "TKT-0001", s.NextID())
}

func TestSaveRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	docs := &flakyDocStore{failures: 2}
	s := store.NewTicketStore(docs, zap.NewNop())
	require.NoError(t, s.Load(ctx))

	require.NoError(t, s.Upsert(ctx, &domain.Ticket{ID: s.NextID()}))
	assert.Equal(t, 3, docs.saves)
	assert.False(t, s.Degraded())
}

func TestSaveExhaustedEntersDegradedMode(t *testing.T) {
	ctx := context.Background()
	docs := &flakyDocStore{failures: 10}
	s := store.NewTicketStore(docs, zap.NewNop())
	require.NoError(t, s.Load(ctx))

	err := s.Upsert(ctx, &domain.Ticket{ID: s.NextID()})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))
	assert.True(t, s.Degraded())

	// Reads keep serving from memory while degraded.
	tickets := s.ListAll()
	assert.Len(t, tickets, 1)

	// A later successful save clears the flag.
	docs.failures = 0
	require.NoError(t, s.Upsert(ctx, tickets[0]))
	assert.False(t, s.Degraded())
}
