package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

func TestReconcileClosesTicketWithoutChannel(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")

	e.fake.RemoveChannel(ticket.ChannelID)

	assert.Equal(t, 1, e.reconciler.Reconcile(ctx))

	closed, err := e.store.Get(ticket.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.Equal(t, "channel deleted or process restarted", closed.CloseReason)
	assert.Equal(t, domain.CloserRoleSystem, closed.ClosedByRole)

	// Closed records are skipped on the next pass.
	assert.Zero(t, e.reconciler.Reconcile(ctx))
}

func TestReconcileSkipsForeignWorkspace(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// A record from another workspace with a dead channel must not be touched.
	foreign := &domain.Ticket{ID: "TKT-0099", WorkspaceID: "ws-other", OwnerID: "user-9", ChannelID: "chan-gone"}
	require.NoError(t, e.store.Upsert(ctx, foreign))

	assert.Zero(t, e.reconciler.Reconcile(ctx))

	kept, err := e.store.Get(foreign.ID)
	require.NoError(t, err)
	assert.False(t, kept.Closed)
}

func TestReconcileBackfillsWorkspaceID(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")

	// Simulate a record written before workspace ids were tracked.
	stripped, err := e.store.Get(ticket.ID)
	require.NoError(t, err)
	stripped.WorkspaceID = ""
	require.NoError(t, e.store.Upsert(ctx, stripped))

	assert.Equal(t, 1, e.reconciler.Reconcile(ctx))

	repaired, err := e.store.Get(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, testWorkspace, repaired.WorkspaceID)
}

func TestReconcileRepairsMissingACLGrants(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")

	// Strip the staff grant, keep an unrelated bot entry.
	botEntry := platform.ACLEntry{TargetID: "bot-1", TargetType: platform.TargetMember, Allow: []platform.Permission{platform.PermView, platform.PermSend}}
	require.NoError(t, e.fake.SetChannelACL(ctx, ticket.ChannelID, []platform.ACLEntry{
		{TargetType: platform.TargetEveryone, Deny: []platform.Permission{platform.PermView}},
		{TargetID: "user-1", TargetType: platform.TargetMember, Allow: []platform.Permission{platform.PermView, platform.PermSend, platform.PermReadHistory, platform.PermAttachFiles, platform.PermEmbedLinks}},
		botEntry,
	}))

	assert.Equal(t, 1, e.reconciler.Reconcile(ctx))

	channel := e.fake.Channel(ticket.ChannelID)
	require.NotNil(t, channel)

	var staffRestored, botKept bool
	for _, entry := range channel.ACL {
		if entry.TargetID == staffRole {
			staffRestored = entry.Allows(platform.PermView) && entry.Allows(platform.PermSend)
		}
		if entry.TargetID == "bot-1" {
			botKept = entry.Allows(platform.PermSend)
		}
	}
	assert.True(t, staffRestored, "missing staff grant re-added")
	assert.True(t, botKept, "unrelated entries untouched")

	// A compliant ACL is left alone.
	assert.Zero(t, e.reconciler.Reconcile(ctx))
}

func TestReconcileRespectsExplicitDenies(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")
	ticket := e.createTicket(t, "user-1", "support")
	e.initiateClose(t, ticket.ID, "user-1", domain.CloserRoleOwner)

	// During pendingClose the owner's send deny must survive reconciliation.
	assert.Zero(t, e.reconciler.Reconcile(ctx))

	channel := e.fake.Channel(ticket.ChannelID)
	require.NotNil(t, channel)
	for _, entry := range channel.ACL {
		if entry.TargetID == "user-1" {
			assert.Contains(t, entry.Deny, platform.PermSend)
			assert.False(t, entry.Allows(platform.PermSend))
		}
	}
}

func TestRunCombinesReconcileAndRatingSweep(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.fake.AddContainer("Support")

	stale := e.createTicket(t, "user-1", "support")
	e.fake.RemoveChannel(stale.ChannelID)

	expired := e.createTicket(t, "user-2", "support")
	e.initiateClose(t, expired.ID, "user-2", domain.CloserRoleOwner)
	e.clock.Advance(25 * time.Hour)

	e.reconciler.Run(ctx)

	closed, err := e.store.Get(stale.ID)
	require.NoError(t, err)
	assert.True(t, closed.Closed)

	_, err = e.store.Get(expired.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "expired rating escalated and finalized")

	snapshot := e.metrics.Snapshot()
	assert.Equal(t, int64(1), snapshot["sweep|reconcile"])
	assert.Equal(t, int64(1), snapshot["sweep|rating_timeout"])
	assert.Equal(t, int64(1), snapshot["sweep|reconcile|affected"])
	assert.Equal(t, int64(1), snapshot["sweep|rating_timeout|affected"])
}
