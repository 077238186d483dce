package campaigns

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayArgs lets the mock driver accept the slice arguments pgx encodes as
// Postgres arrays.
type arrayArgs struct{}

func (arrayArgs) ConvertValue(v any) (driver.Value, error) {
	switch v.(type) {
	case []string, []int64:
		return v, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayArgs{}))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepo(db), mock
}

var (
	campaignCols = []string{
		"id", "name", "max_calls_per_minute", "destination_type", "destination_extension",
		"destination_context", "retry_max_attempts", "retry_interval_seconds", "status", "created_at", "updated_at",
	}
	leadCols = []string{
		"id", "campaign_id", "phone", "name", "status", "attempts", "last_attempt", "next_attempt",
		"disposition", "created_at", "updated_at",
	}
	created = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
)

func TestPostgresRepo_GetCampaignWithNullContext(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(int64(7), "spring", int64(10), "queue", "500", nil, int64(3), int64(600), "active", created, created))

	c, err := repo.GetCampaign(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, DestinationQueue, c.Destination.Type)
	assert.Equal(t, "500", c.Destination.Extension)
	assert.Empty(t, c.Destination.Context)
	assert.Equal(t, 10*time.Minute, c.Retry.Interval)
	assert.Equal(t, StatusActive, c.Status)
}

func TestPostgresRepo_GetCampaignNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err := repo.GetCampaign(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresRepo_ListCampaignsByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE status = $1 ORDER BY id")).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(int64(1), "a", int64(5), "extension", "1001", nil, int64(0), int64(0), "active", created, created).
			AddRow(int64(2), "b", int64(5), "custom", "s", "sales-ivr", int64(2), int64(60), "active", created, created))

	out, err := repo.ListCampaignsByStatus(context.Background(), StatusActive)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "sales-ivr", out[1].Destination.Context)
}

func TestPostgresRepo_TransitionResetsOnlyListedLeads(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(int64(7), "spring", int64(10), "extension", "1001", nil, int64(3), int64(0), "active", created, created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns SET status = $2")).
		WithArgs(int64(7), "paused", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("id = ANY($4)")).
		WithArgs(int64(7), []string{"dialed", "failed", "no_answer", "busy"}, sqlmock.AnyArg(), []int64{3, 4}).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res, err := repo.Transition(context.Background(), TransitionRequest{
		CampaignID: 7,
		From:       StatusActive,
		To:         StatusPaused,
		ResetLeads: ResettableStatuses,
		LeadIDs:    []int64{3, 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.LeadsReset)
	assert.Equal(t, StatusPaused, res.Campaign.Status)
}

func TestPostgresRepo_TransitionFromWrongStatusRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow(int64(7), "spring", int64(10), "extension", "1001", nil, int64(3), int64(0), "paused", created, created))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), TransitionRequest{CampaignID: 7, From: StatusActive, To: StatusPaused})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPostgresRepo_DialableLeads(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	last := now.Add(-20 * time.Minute)
	due := now.Add(-time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("AND (next_attempt IS NULL OR next_attempt <= $2)")).
		WithArgs(int64(7), now, 5).
		WillReturnRows(sqlmock.NewRows(leadCols).
			AddRow(int64(3), int64(7), "5550001", nil, "pending", int64(0), nil, nil, nil, created, created).
			AddRow(int64(4), int64(7), "5550002", "Ann", "pending", int64(1), last, due, nil, created, created))

	leads, err := repo.DialableLeads(context.Background(), 7, now, 5)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Empty(t, leads[0].Name)
	assert.Nil(t, leads[0].NextAttempt)
	assert.Equal(t, "Ann", leads[1].Name)
	require.NotNil(t, leads[1].NextAttempt)
	assert.True(t, leads[1].NextAttempt.Equal(due))
	assert.True(t, leads[1].LastAttempt.Equal(last))
}

func TestPostgresRepo_UpdateLead(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	next := now.Add(10 * time.Minute)
	l := Lead{ID: 3, Status: LeadPending, Attempts: 1, LastAttempt: &now, NextAttempt: &next, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leads")).
		WithArgs(int64(3), "pending", 1, now, next, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateLead(context.Background(), l))

	l.ID = 99
	mock.ExpectExec(regexp.QuoteMeta("UPDATE leads")).
		WithArgs(int64(99), "pending", 1, now, next, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateLead(context.Background(), l), ErrNotFound)
}

func TestPostgresRepo_LeadIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM leads WHERE campaign_id = $1 AND status = ANY($2) ORDER BY id")).
		WithArgs(int64(7), []string{"dialed", "busy"}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(8)))

	ids, err := repo.LeadIDs(context.Background(), 7, LeadDialed, LeadBusy)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 8}, ids)
}
