package campaigns

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"outbound-dialer/pkg/utils"
)

// NOTE: This repository assumes the tables in cmd/dialer/schema.sql:
// - campaigns
// - leads (index on (campaign_id, status, next_attempt))
//
// Retry intervals are stored as whole seconds.

type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const campaignColumns = `id, name, max_calls_per_minute, destination_type, destination_extension,
destination_context, retry_max_attempts, retry_interval_seconds, status, created_at, updated_at`

func scanCampaign(row rowScanner) (Campaign, error) {
	var (
		c        Campaign
		destCtx  sql.NullString
		interval int64
	)
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.MaxCallsPerMinute,
		&c.Destination.Type,
		&c.Destination.Extension,
		&destCtx,
		&c.Retry.MaxAttempts,
		&interval,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	c.Destination.Context = destCtx.String
	c.Retry.Interval = time.Duration(interval) * time.Second
	return c, nil
}

const leadColumns = `id, campaign_id, phone, name, status, attempts, last_attempt, next_attempt,
disposition, created_at, updated_at`

func scanLead(row rowScanner) (Lead, error) {
	var (
		l           Lead
		name        sql.NullString
		lastAttempt sql.NullTime
		nextAttempt sql.NullTime
		disposition sql.NullString
	)
	if err := row.Scan(
		&l.ID,
		&l.CampaignID,
		&l.Phone,
		&name,
		&l.Status,
		&l.Attempts,
		&lastAttempt,
		&nextAttempt,
		&disposition,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.Name = name.String
	l.Disposition = disposition.String
	if lastAttempt.Valid {
		t := lastAttempt.Time
		l.LastAttempt = &t
	}
	if nextAttempt.Valid {
		t := nextAttempt.Time
		l.NextAttempt = &t
	}
	return l, nil
}

func (r *PostgresRepo) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(r.DB.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) ListCampaignsByStatus(ctx context.Context, status Status) ([]Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	var res TransitionResult
	err := utils.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the campaign row so concurrent start/pause/stop requests serialize.
		q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 FOR UPDATE`
		c, err := scanCampaign(tx.QueryRowContext(ctx, q, req.CampaignID))
		if err != nil {
			return err
		}
		if c.Status != req.From {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		const upd = `UPDATE campaigns SET status = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, upd, c.ID, req.To, now); err != nil {
			return err
		}
		c.Status = req.To
		c.UpdatedAt = now
		res.Campaign = c

		if len(req.ResetLeads) == 0 {
			return nil
		}
		statuses := make([]string, 0, len(req.ResetLeads))
		for _, s := range req.ResetLeads {
			statuses = append(statuses, string(s))
		}
		const reset = `
UPDATE leads
SET status = 'pending', attempts = 0, last_attempt = NULL, next_attempt = NULL,
    disposition = NULL, updated_at = $3
WHERE campaign_id = $1 AND status = ANY($2)
  AND ($4::bigint[] IS NULL OR id = ANY($4))
`
		var ids []int64
		if len(req.LeadIDs) > 0 {
			ids = req.LeadIDs
		}
		out, err := tx.ExecContext(ctx, reset, c.ID, statuses, now, ids)
		if err != nil {
			return err
		}
		n, err := out.RowsAffected()
		if err != nil {
			return err
		}
		res.LeadsReset = int(n)
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return res, nil
}

func (r *PostgresRepo) DialableLeads(ctx context.Context, campaignID int64, now time.Time, limit int) ([]Lead, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT ` + leadColumns + `
FROM leads
WHERE campaign_id = $1 AND status = 'pending'
  AND (next_attempt IS NULL OR next_attempt <= $2)
ORDER BY created_at, id
LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, q, campaignID, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Lead, 0, limit)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetLead(ctx context.Context, id int64) (Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(r.DB.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) UpdateLead(ctx context.Context, l Lead) error {
	const q = `
UPDATE leads
SET status = $2, attempts = $3, last_attempt = $4, next_attempt = $5,
    disposition = $6, updated_at = $7
WHERE id = $1
`
	res, err := r.DB.ExecContext(ctx, q,
		l.ID,
		l.Status,
		l.Attempts,
		nullTime(l.LastAttempt),
		nullTime(l.NextAttempt),
		sql.NullString{String: l.Disposition, Valid: l.Disposition != ""},
		l.UpdatedAt,
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

func (r *PostgresRepo) LeadIDs(ctx context.Context, campaignID int64, statuses ...LeadStatus) ([]int64, error) {
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}
	const q = `SELECT id FROM leads WHERE campaign_id = $1 AND status = ANY($2) ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, q, campaignID, ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountLeads(ctx context.Context, campaignID int64, statuses ...LeadStatus) (int, error) {
	var (
		n   int
		err error
	)
	if len(statuses) == 0 {
		const q = `SELECT COUNT(*) FROM leads WHERE campaign_id = $1`
		err = r.DB.QueryRowContext(ctx, q, campaignID).Scan(&n)
	} else {
		ss := make([]string, 0, len(statuses))
		for _, s := range statuses {
			ss = append(ss, string(s))
		}
		const q = `SELECT COUNT(*) FROM leads WHERE campaign_id = $1 AND status = ANY($2)`
		err = r.DB.QueryRowContext(ctx, q, campaignID, ss).Scan(&n)
	}
	return n, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
