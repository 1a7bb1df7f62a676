package services

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/pkg/models"
)

func newSearchMock(t *testing.T) (pgxmock.PgxPoolIface, *SearchService) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock, NewSearchService(mock, 3)
}

var searchCols = []string{
	"id", "topic", "tags", "time_range", "min_upvotes", "sort_by", "status",
	"error_message", "retry_count", "last_retry_at", "next_retry_at", "created_at", "completed_at",
}

func searchRow(mock pgxmock.PgxPoolIface, id string, status models.SearchStatus, retryCount int) *pgxmock.Rows {
	return mock.NewRows(searchCols).AddRow(
		id, "notion", []string{"ask_hn"}, "month", 10, "relevance", string(status),
		nil, retryCount, nil, nil, time.Now().UTC(), nil,
	)
}

func TestCreateInsertsPendingSearch(t *testing.T) {
	mock, svc := newSearchMock(t)

	mock.ExpectExec("INSERT INTO searches").
		WithArgs("sid-1", "notion", []string{"ask_hn"}, "month", 10, "relevance",
			"pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	search, err := svc.Create(context.Background(), "sid-1", models.SearchRequest{
		Topic:      "notion",
		Tags:       []models.StoryTag{models.TagAsk},
		TimeRange:  models.RangeMonth,
		MinUpvotes: 10,
		SortBy:     models.SortRelevance,
	})
	require.NoError(t, err)
	assert.Equal(t, "sid-1", search.ID)
	assert.Equal(t, models.StatusPending, search.Status)
	assert.Zero(t, search.RetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsSearch(t *testing.T) {
	mock, svc := newSearchMock(t)

	mock.ExpectQuery("FROM searches WHERE id").
		WithArgs("sid-1").
		WillReturnRows(searchRow(mock, "sid-1", models.StatusProcessing, 1))

	search, err := svc.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, search.Status)
	assert.Equal(t, []models.StoryTag{models.TagAsk}, search.Tags)
	assert.Equal(t, 1, search.RetryCount)
}

func TestGetNotFound(t *testing.T) {
	mock, svc := newSearchMock(t)

	mock.ExpectQuery("FROM searches WHERE id").
		WithArgs("missing").
		WillReturnRows(mock.NewRows(searchCols))

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimPendingUsesSkipLockedAndMarksProcessing(t *testing.T) {
	mock, svc := newSearchMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("pending", 3, pgxmock.AnyArg(), 2).
		WillReturnRows(searchRow(mock, "sid-1", models.StatusPending, 0).AddRow(
			"sid-2", "linear", []string{}, "week", 0, "upvotes", "pending",
			nil, 0, nil, nil, time.Now().UTC(), nil,
		))
	mock.ExpectExec("UPDATE searches SET status").
		WithArgs("processing", pgxmock.AnyArg(), "sid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE searches SET status").
		WithArgs("processing", pgxmock.AnyArg(), "sid-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	claimed, err := svc.ClaimPending(context.Background(), time.Now().UTC(), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, s := range claimed {
		assert.Equal(t, models.StatusProcessing, s.Status)
		assert.NotNil(t, s.LastRetryAt)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPendingZeroLimitIsNoop(t *testing.T) {
	_, svc := newSearchMock(t)
	claimed, err := svc.ClaimPending(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestScheduleRetryOrFailSchedulesBackoff(t *testing.T) {
	mock, svc := newSearchMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT retry_count FROM searches").
		WithArgs("sid-1").
		WillReturnRows(mock.NewRows([]string{"retry_count"}).AddRow(0))
	mock.ExpectExec("UPDATE searches SET status").
		WithArgs("pending", 1, now.Add(time.Minute), now, "AI analysis failed.", "sid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	retried, err := svc.ScheduleRetryOrFail(context.Background(), "sid-1", "AI analysis failed.", now)
	require.NoError(t, err)
	assert.True(t, retried)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRetryOrFailSecondRetryDoublesDelay(t *testing.T) {
	mock, svc := newSearchMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT retry_count FROM searches").
		WithArgs("sid-1").
		WillReturnRows(mock.NewRows([]string{"retry_count"}).AddRow(1))
	mock.ExpectExec("UPDATE searches SET status").
		WithArgs("pending", 2, now.Add(2*time.Minute), now, "boom", "sid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	retried, err := svc.ScheduleRetryOrFail(context.Background(), "sid-1", "boom", now)
	require.NoError(t, err)
	assert.True(t, retried)
}

func TestScheduleRetryOrFailExhaustedFails(t *testing.T) {
	mock, svc := newSearchMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT retry_count FROM searches").
		WithArgs("sid-1").
		WillReturnRows(mock.NewRows([]string{"retry_count"}).AddRow(2))
	mock.ExpectExec("UPDATE searches SET status").
		WithArgs("failed", now, "AI analysis failed.", "sid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	retried, err := svc.ScheduleRetryOrFail(context.Background(), "sid-1", "AI analysis failed.", now)
	require.NoError(t, err)
	assert.False(t, retried)
}

func TestResetStale(t *testing.T) {
	mock, svc := newSearchMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE searches").
		WithArgs("pending", now, "Search timed out and will be retried",
			"processing", now.Add(-5*time.Minute), 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	count, err := svc.ResetStale(context.Background(), now, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMarkPermanentlyFailed(t *testing.T) {
	mock, svc := newSearchMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE searches").
		WithArgs("failed", now, "Search timed out",
			"processing", now.Add(-5*time.Minute), 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	count, err := svc.MarkPermanentlyFailed(context.Background(), now, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMarkCompleted(t *testing.T) {
	mock, svc := newSearchMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE searches SET status").
		WithArgs("completed", now, "sid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, svc.MarkCompleted(context.Background(), "sid-1", now))
}

func TestBackoffDelayDoubles(t *testing.T) {
	assert.Equal(t, time.Minute, backoffDelay(1))
	assert.Equal(t, 2*time.Minute, backoffDelay(2))
	assert.Equal(t, 4*time.Minute, backoffDelay(3))
}
