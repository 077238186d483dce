package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"outbound-dialer/internal/campaigns"
)

// NOTE: This repository assumes the dialer_calls table in cmd/dialer/schema.sql
// with a UNIQUE constraint on channel_id.

type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

const callColumns = `id, channel_id, campaign_id, lead_id, phone, agent_destination, agent_context,
state, status, disposition, cause, bridged, bridge_id, agent_channel_id, agent_leg_attempted,
call_start, call_end, duration, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c       Call
		status  sql.NullString
		disp    sql.NullString
		cause   sql.NullInt64
		bridge  sql.NullString
		agentCh sql.NullString
		end     sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.ChannelID,
		&c.CampaignID,
		&c.LeadID,
		&c.Phone,
		&c.AgentDestination,
		&c.AgentContext,
		&c.State,
		&status,
		&disp,
		&cause,
		&c.Bridged,
		&bridge,
		&agentCh,
		&c.AgentLegAttempted,
		&c.CallStart,
		&end,
		&c.DurationSeconds,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.Status = campaigns.LeadStatus(status.String)
	c.Disposition = disp.String
	c.Cause = int(cause.Int64)
	c.BridgeID = bridge.String
	c.AgentChannelID = agentCh.String
	if end.Valid {
		t := end.Time
		c.CallEnd = &t
	}
	return c, nil
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) (Call, error) {
	const q = `
INSERT INTO dialer_calls (
  channel_id, campaign_id, lead_id, phone, agent_destination, agent_context,
  state, call_start, duration, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,0,$9,$9
)
RETURNING id
`
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	err := r.DB.QueryRowContext(ctx, q,
		c.ChannelID,
		c.CampaignID,
		c.LeadID,
		c.Phone,
		c.AgentDestination,
		c.AgentContext,
		c.State,
		c.CallStart,
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Call{}, ErrDuplicateChannel
		}
		return Call{}, err
	}
	return c, nil
}

func (r *PostgresRepo) GetByChannel(ctx context.Context, channelID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM dialer_calls WHERE channel_id = $1`
	return scanCall(r.DB.QueryRowContext(ctx, q, channelID))
}

func (r *PostgresRepo) Update(ctx context.Context, c Call) error {
	const q = `
UPDATE dialer_calls
SET state = $2, status = $3, disposition = $4, cause = $5, bridged = $6, bridge_id = $7,
    agent_channel_id = $8, agent_leg_attempted = $9, call_end = $10, duration = $11, updated_at = $12
WHERE channel_id = $1
`
	var end sql.NullTime
	if c.CallEnd != nil {
		end = sql.NullTime{Time: *c.CallEnd, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, q,
		c.ChannelID,
		c.State,
		nullString(string(c.Status)),
		nullString(c.Disposition),
		sql.NullInt64{Int64: int64(c.Cause), Valid: c.CallEnd != nil},
		c.Bridged,
		nullString(c.BridgeID),
		nullString(c.AgentChannelID),
		c.AgentLegAttempted,
		end,
		c.DurationSeconds,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, campaignID int64, from, to time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + `
FROM dialer_calls
WHERE campaign_id = $1 AND call_start >= $2 AND call_start < $3
ORDER BY id`
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	rows, err := r.DB.QueryContext(ctx, q, campaignID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
