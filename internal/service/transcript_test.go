package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/platform/platformtest"
	"github.com/spec-kit/ticket-engine/internal/service"
)

func TestTranscriptPagesFullHistoryChronologically(t *testing.T) {
	ctx := context.Background()
	fake := platformtest.NewFakeGateway()
	channel, err := fake.CreateChannel(ctx, testWorkspace, "tkt-0001", "", nil)
	require.NoError(t, err)

	for i := 0; i < 250; i++ {
		author := "user-1"
		name := "Owner"
		if i%2 == 1 {
			author = "staff-1"
			name = "Alice"
		}
		fake.AddMessage(channel.ID, platform.Message{
			AuthorID:   author,
			AuthorName: name,
			Content:    fmt.Sprintf("message %03d", i),
		})
	}

	ticket := &domain.Ticket{ID: "TKT-0001", WorkspaceID: testWorkspace, OwnerID: "user-1", ChannelID: channel.ID, Category: "Support", CreatedAt: time.Now()}
	gen := service.NewTranscriptGenerator(fake, zap.NewNop())
	transcript, err := gen.Generate(ctx, ticket)
	require.NoError(t, err)

	require.Len(t, transcript.Messages, 250, "multiple pages reassembled")
	assert.Equal(t, "message 000", transcript.Messages[0].Content, "document reads oldest first")
	assert.Equal(t, "message 249", transcript.Messages[249].Content)

	assert.Equal(t, []string{"Owner", "Alice"}, transcript.Participants, "roster deduplicated in first-seen order")
	assert.Contains(t, transcript.Content, "# Transcript TKT-0001")
	assert.Contains(t, transcript.Summary, "250 messages")
}

func TestTranscriptRendersAttachmentsAndEmbeds(t *testing.T) {
	ctx := context.Background()
	fake := platformtest.NewFakeGateway()
	channel, err := fake.CreateChannel(ctx, testWorkspace, "tkt-0002", "", nil)
	require.NoError(t, err)

	fake.AddMessage(channel.ID, platform.Message{
		AuthorID: "user-1",
		Content:  "see screenshot",
		Attachments: []platform.Attachment{
			{FileName: "error.png", ContentType: "image/png", URL: "https://cdn.example/error.png"},
			{FileName: "debug.log", ContentType: "text/plain", URL: "https://cdn.example/debug.log"},
		},
	})
	fake.AddMessage(channel.ID, platform.Message{
		AuthorID: "bot",
		Bot:      true,
		Embeds: []platform.Embed{
			{Title: "Invoice", Description: "order details", URL: "https://shop.example/inv/1"},
		},
	})

	ticket := &domain.Ticket{ID: "TKT-0002", WorkspaceID: testWorkspace, OwnerID: "user-1", ChannelID: channel.ID, Category: "Billing", CreatedAt: time.Now()}
	gen := service.NewTranscriptGenerator(fake, zap.NewNop())
	transcript, err := gen.Generate(ctx, ticket)
	require.NoError(t, err)

	assert.Contains(t, transcript.Content, "![error.png](https://cdn.example/error.png)", "images inlined as markdown")
	assert.Contains(t, transcript.Content, "[attachment] debug.log <https://cdn.example/debug.log>")
	assert.Contains(t, transcript.Content, "[embed] Invoice")
}

func TestTranscriptCapsRunawayHistory(t *testing.T) {
	ctx := context.Background()
	fake := platformtest.NewFakeGateway()
	channel, err := fake.CreateChannel(ctx, testWorkspace, "tkt-0003", "", nil)
	require.NoError(t, err)

	for i := 0; i < 1100; i++ {
		fake.AddMessage(channel.ID, platform.Message{AuthorID: "user-1", Content: fmt.Sprintf("m%d", i)})
	}

	ticket := &domain.Ticket{ID: "TKT-0003", WorkspaceID: testWorkspace, OwnerID: "user-1", ChannelID: channel.ID, CreatedAt: time.Now()}
	gen := service.NewTranscriptGenerator(fake, zap.NewNop())
	transcript, err := gen.Generate(ctx, ticket)
	require.NoError(t, err)
	assert.Len(t, transcript.Messages, 1000)
}
