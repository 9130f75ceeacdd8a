package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
)

const (
	transcriptPageSize    = 100
	transcriptMaxMessages = 1000
)

// Transcript is the rendered archival record of a ticket channel.
type Transcript struct {
	Ticket       *domain.Ticket
	Messages     []platform.Message
	Participants []string
	Content      string
	Summary      string
}

// TranscriptGenerator renders a channel's full history into a self-contained
// archival document.
type TranscriptGenerator struct {
	gateway platform.Gateway
	logger  *zap.Logger
}

// NewTranscriptGenerator constructs the generator.
func NewTranscriptGenerator(gateway platform.Gateway, logger *zap.Logger) *TranscriptGenerator {
	return &TranscriptGenerator{gateway: gateway, logger: logger}
}

// Generate fetches history in reverse-chronological pages until exhausted or
// the safety cap, reassembles chronological order and renders the document.
func (g *TranscriptGenerator) Generate(ctx context.Context, ticket *domain.Ticket) (*Transcript, error) {
	var collected []platform.Message
	before := ""
	for len(collected) < transcriptMaxMessages {
		page, err := g.gateway.FetchMessages(ctx, ticket.ChannelID, platform.FetchMessagesOptions{
			Before: before,
			Limit:  transcriptPageSize,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		collected = append(collected, page...)
		before = page[len(page)-1].ID
		if len(page) < transcriptPageSize {
			break
		}
	}
	if len(collected) > transcriptMaxMessages {
		collected = collected[:transcriptMaxMessages]
	}

	// Pages arrive newest-first; the document reads oldest-first.
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Timestamp.Before(collected[j].Timestamp)
	})

	participants := participantRoster(collected)
	content := renderDocument(ticket, collected, participants)
	summary := renderSummary(ticket, len(collected))

	return &Transcript{
		Ticket:       ticket,
		Messages:     collected,
		Participants: participants,
		Content:      content,
		Summary:      summary,
	}, nil
}

func participantRoster(messages []platform.Message) []string {
	seen := map[string]struct{}{}
	var roster []string
	for _, msg := range messages {
		name := msg.AuthorName
		if name == "" {
			name = msg.AuthorID
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		roster = append(roster, name)
	}
	return roster
}

func renderDocument(ticket *domain.Ticket, messages []platform.Message, participants []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript %s\n\n", ticket.ID)
	fmt.Fprintf(&b, "- Owner: %s\n", ticket.OwnerID)
	fmt.Fprintf(&b, "- Workspace: %s\n", ticket.WorkspaceID)
	fmt.Fprintf(&b, "- Category: %s\n", ticket.Category)
	if ticket.InvoiceID != "" {
		fmt.Fprintf(&b, "- Invoice: %s\n", ticket.InvoiceID)
	}
	fmt.Fprintf(&b, "- Opened: %s\n", ticket.CreatedAt.UTC().Format(time.RFC3339))
	if ticket.ClaimedBy != nil {
		fmt.Fprintf(&b, "- Claimed by: %s\n", *ticket.ClaimedBy)
	}
	if ticket.ClosedBy != nil {
		fmt.Fprintf(&b, "- Closed by: %s (%s)\n", *ticket.ClosedBy, ticket.ClosedByRole)
	}
	if ticket.CloseReason != "" {
		fmt.Fprintf(&b, "- Close reason: %s\n", ticket.CloseReason)
	}
	if ticket.ServiceRating != nil {
		fmt.Fprintf(&b, "- Service rating: %d/5\n", *ticket.ServiceRating)
	}
	if ticket.StaffRating != nil {
		fmt.Fprintf(&b, "- Staff rating: %d/5\n", *ticket.StaffRating)
		if ticket.StaffRatingComment != "" {
			fmt.Fprintf(&b, "- Staff rating comment: %s\n", ticket.StaffRatingComment)
		}
	}

	b.WriteString("\n## Participants\n\n")
	for _, p := range participants {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	fmt.Fprintf(&b, "\n## Messages (%d)\n\n", len(messages))
	for _, msg := range messages {
		author := msg.AuthorName
		if author == "" {
			author = msg.AuthorID
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.Timestamp.UTC().Format(time.RFC3339), author, msg.Content)
		for _, embed := range msg.Embeds {
			fmt.Fprintf(&b, "    [embed] %s", embed.Title)
			if embed.Description != "" {
				fmt.Fprintf(&b, ": %s", summarize(embed.Description, 200))
			}
			if embed.URL != "" {
				fmt.Fprintf(&b, " <%s>", embed.URL)
			}
			b.WriteString("\n")
		}
		for _, att := range msg.Attachments {
			if isImage(att.ContentType) {
				fmt.Fprintf(&b, "    ![%s](%s)\n", att.FileName, att.URL)
			} else {
				fmt.Fprintf(&b, "    [attachment] %s <%s>\n", att.FileName, att.URL)
			}
		}
	}
	return b.String()
}

func renderSummary(ticket *domain.Ticket, messageCount int) string {
	summary := fmt.Sprintf("Transcript %s · owner %s · %s · %d messages", ticket.ID, ticket.OwnerID, ticket.Category, messageCount)
	if ticket.ServiceRating != nil && ticket.StaffRating != nil {
		summary += fmt.Sprintf(" · ratings %d/%d", *ticket.ServiceRating, *ticket.StaffRating)
	}
	return summary
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

func summarize(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
