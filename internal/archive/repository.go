// Package archive stores finalized transcripts in Postgres for long-term
// retention beyond the platform archive channel.
package archive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// TranscriptRecord is one archived transcript row.
type TranscriptRecord struct {
	TicketID      string
	WorkspaceID   string
	OwnerID       string
	Category      string
	ClaimedBy     *string
	ClosedBy      *string
	CloseReason   string
	ServiceRating *int
	StaffRating   *int
	MessageCount  int
	Content       string
	Summary       string
	CreatedAt     time.Time
}

// TranscriptRepository encapsulates transcript persistence.
type TranscriptRepository interface {
	Save(ctx context.Context, rec *TranscriptRecord) error
	GetByTicket(ctx context.Context, ticketID string) (*TranscriptRecord, error)
	ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]TranscriptRecord, error)
}

type transcriptRepository struct {
	pool *pgxpool.Pool
}

// NewTranscriptRepository instantiates the repository.
func NewTranscriptRepository(pool *pgxpool.Pool) TranscriptRepository {
	return &transcriptRepository{pool: pool}
}

func (r *transcriptRepository) Save(ctx context.Context, rec *TranscriptRecord) error {
	const query = `
        INSERT INTO transcripts (ticket_id, workspace_id, owner_id, category, claimed_by, closed_by,
            close_reason, service_rating, staff_rating, message_count, content, summary)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (ticket_id) DO UPDATE SET
            content = EXCLUDED.content,
            summary = EXCLUDED.summary,
            message_count = EXCLUDED.message_count,
            service_rating = EXCLUDED.service_rating,
            staff_rating = EXCLUDED.staff_rating
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		rec.TicketID,
		rec.WorkspaceID,
		rec.OwnerID,
		rec.Category,
		rec.ClaimedBy,
		rec.ClosedBy,
		rec.CloseReason,
		rec.ServiceRating,
		rec.StaffRating,
		rec.MessageCount,
		rec.Content,
		rec.Summary,
	).Scan(&rec.CreatedAt)
}

func (r *transcriptRepository) GetByTicket(ctx context.Context, ticketID string) (*TranscriptRecord, error) {
	const query = `
        SELECT ticket_id, workspace_id, owner_id, category, claimed_by, closed_by,
               close_reason, service_rating, staff_rating, message_count, content, summary, created_at
        FROM transcripts WHERE ticket_id=$1`
	var rec TranscriptRecord
	err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&rec.TicketID,
		&rec.WorkspaceID,
		&rec.OwnerID,
		&rec.Category,
		&rec.ClaimedBy,
		&rec.ClosedBy,
		&rec.CloseReason,
		&rec.ServiceRating,
		&rec.StaffRating,
		&rec.MessageCount,
		&rec.Content,
		&rec.Summary,
		&rec.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("transcript", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return &rec, nil
}

func (r *transcriptRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]TranscriptRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT ticket_id, workspace_id, owner_id, category, claimed_by, closed_by,
               close_reason, service_rating, staff_rating, message_count, content, summary, created_at
        FROM transcripts WHERE workspace_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, workspaceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TranscriptRecord
	for rows.Next() {
		var rec TranscriptRecord
		if err := rows.Scan(
			&rec.TicketID,
			&rec.WorkspaceID,
			&rec.OwnerID,
			&rec.Category,
			&rec.ClaimedBy,
			&rec.ClosedBy,
			&rec.CloseReason,
			&rec.ServiceRating,
			&rec.StaffRating,
			&rec.MessageCount,
			&rec.Content,
			&rec.Summary,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
