package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to the audit_events table (INSERT-only).
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{DB: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, campaign_id, type, lead_id, channel_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.DB.ExecContext(ctx, q,
		e.ID,
		e.CampaignID,
		e.Type,
		sql.NullInt64{Int64: e.LeadID, Valid: e.LeadID > 0},
		sql.NullString{String: e.ChannelID, Valid: e.ChannelID != ""},
		e.Message,
		sql.NullString{String: e.Metadata, Valid: e.Metadata != ""},
		e.CreatedAt,
	)
	return err
}
