package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/service"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

func (e *engine) initiateClose(t *testing.T, ticketID, closerID string, role domain.CloserRole) {
	t.Helper()
	err := e.ratings.InitiateClose(context.Background(), ticketID, service.Closer{ID: closerID, Role: role}, "resolved")
	require.NoError(t, err)
}

func TestInitiateCloseIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")
	e.initiateClose(t, ticket.ID, "user-1", domain.CloserRoleOwner)

	err := e.ratings.InitiateClose(ctx, ticket.ID, service.Closer{ID: "user-1", Role: domain.CloserRoleOwner}, "again")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOutOfOrder))
}

func TestInitiateCloseRequiresReason(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")

	err := e.ratings.InitiateClose(ctx, ticket.ID, service.Closer{ID: "user-1", Role: domain.CloserRoleOwner}, " ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestServiceRatingGuards(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")

	// Before any close is underway.
	err := e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 4)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOutOfOrder))

	e.initiateClose(t, ticket.ID, "user-1", domain.CloserRoleOwner)

	// Score bounds.
	err = e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	err = e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 6)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	// Only the owner rates.
	err = e.ratings.SubmitServiceRating(ctx, ticket.ID, "staff-1", 4)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePermission))

	require.NoError(t, e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 4))

	// No double submission.
	err = e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 5)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOutOfOrder))
}

func TestStaffRatingRequiresServiceRatingFirst(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")
	e.initiateClose(t, ticket.ID, "user-1", domain.CloserRoleOwner)

	err := e.ratings.SubmitStaffRating(ctx, ticket.ID, "user-1", 5, "great")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOutOfOrder), "staff rating cannot precede service rating")
}

func TestBothRatingsFinalizeClose(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	e.fake.AddMember("staff-1", "Alice", staffRole)
	ticket := e.createTicket(t, "user-1", "support")
	channelID := ticket.ChannelID

	_, err := e.lifecycle.Claim(ctx, ticket.ID, "staff-1")
	require.NoError(t, err)
	require.NoError(t, e.lifecycle.Close(ctx, ticket.ID, service.Closer{ID: "staff-1", Role: domain.CloserRoleStaff}, "resolved"))

	require.NoError(t, e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 4))
	require.NoError(t, e.ratings.SubmitStaffRating(ctx, ticket.ID, "user-1", 5, "very helpful"))

	// Record removed after the channel was deleted.
	_, err = e.store.Get(ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.Contains(t, e.fake.DeletedChannels, channelID)

	// Archived transcript carries the scores and the claim.
	require.Len(t, e.archive.saved, 1)
	rec := e.archive.saved[0]
	require.NotNil(t, rec.ServiceRating)
	require.NotNil(t, rec.StaffRating)
	assert.Equal(t, 4, *rec.ServiceRating)
	assert.Equal(t, 5, *rec.StaffRating)
	require.NotNil(t, rec.ClaimedBy)
	assert.Equal(t, "staff-1", *rec.ClaimedBy)
	require.NotNil(t, rec.ClosedBy)
	assert.Equal(t, "staff-1", *rec.ClosedBy)

	// Rating summary lands in the log channel.
	logContents := messageContents(e.fake.ChannelMessages(e.logChannel))
	assert.True(t, containsSubstring(logContents, "service 4/5"))
	assert.True(t, containsSubstring(logContents, "staff 5/5"))
}

func TestSweepExpiredRatingsDefaultsAndCloses(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")
	channelID := ticket.ChannelID
	e.initiateClose(t, ticket.ID, "user-1", domain.CloserRoleOwner)

	// Inside the window nothing happens.
	e.clock.Advance(23 * time.Hour)
	assert.Zero(t, e.ratings.SweepExpiredRatings(ctx))

	e.clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, e.ratings.SweepExpiredRatings(ctx))

	_, err := e.store.Get(ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.Contains(t, e.fake.DeletedChannels, channelID)

	require.Len(t, e.archive.saved, 1)
	rec := e.archive.saved[0]
	require.NotNil(t, rec.ServiceRating)
	require.NotNil(t, rec.StaffRating)
	assert.Equal(t, 5, *rec.ServiceRating, "missing score defaulted on timeout")
	assert.Equal(t, 5, *rec.StaffRating)
}

func TestSweepKeepsPartialRatingUntilTimeout(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")
	e.initiateClose(t, ticket.ID, "user-1", domain.CloserRoleOwner)
	require.NoError(t, e.ratings.SubmitServiceRating(ctx, ticket.ID, "user-1", 2))

	e.clock.Advance(25 * time.Hour)
	assert.Equal(t, 1, e.ratings.SweepExpiredRatings(ctx))

	require.Len(t, e.archive.saved, 1)
	rec := e.archive.saved[0]
	require.NotNil(t, rec.ServiceRating)
	assert.Equal(t, 2, *rec.ServiceRating, "submitted score preserved")
	require.NotNil(t, rec.StaffRating)
	assert.Equal(t, 5, *rec.StaffRating, "only the missing score is defaulted")
}
