//go:build integration

package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/pkg/database"
	"github.com/painscope/painscope/pkg/models"
	"github.com/painscope/painscope/pkg/services"
	"github.com/painscope/painscope/test/util"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	schemaSQL, err := database.SchemaSQL()
	require.NoError(t, err)
	return util.SetupTestPool(t, schemaSQL)
}

func intRequest(topic string) models.SearchRequest {
	return models.SearchRequest{
		Topic:      topic,
		Tags:       []models.StoryTag{models.TagAsk},
		TimeRange:  models.RangeMonth,
		MinUpvotes: 10,
		SortBy:     models.SortRelevance,
	}
}

func TestClaimPendingExclusiveUnderConcurrency(t *testing.T) {
	pool := setupPool(t)
	svc := services.NewSearchService(pool, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		s, err := svc.Create(ctx, "", intRequest("concurrency topic"))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	// Several concurrent claimers must never claim the same search.
	var mu sync.Mutex
	claimedBy := make(map[string]int)
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := svc.ClaimPending(ctx, time.Now().UTC(), 3)
			require.NoError(t, err)
			mu.Lock()
			for _, s := range claimed {
				claimedBy[s.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range claimedBy {
		assert.Equal(t, 1, count, "search %s claimed more than once", id)
	}
	// No more distinct searches are claimed than were created here.
	assert.LessOrEqual(t, len(claimedBy), len(ids))
}

func TestRetryLifecycle(t *testing.T) {
	pool := setupPool(t)
	svc := services.NewSearchService(pool, 3)
	ctx := context.Background()
	now := time.Now().UTC()

	s, err := svc.Create(ctx, "", intRequest("retry topic"))
	require.NoError(t, err)

	// First failure: back to pending with a 1-minute back-off.
	retried, err := svc.ScheduleRetryOrFail(ctx, s.ID, "AI analysis failed.", now)
	require.NoError(t, err)
	assert.True(t, retried)

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, now.Add(time.Minute), *got.NextRetryAt, 2*time.Second)

	// Not claimable before next_retry_at.
	claimed, err := svc.ClaimPending(ctx, now, 10)
	require.NoError(t, err)
	for _, c := range claimed {
		assert.NotEqual(t, s.ID, c.ID)
	}

	// Claimable after the back-off elapses.
	claimed, err = svc.ClaimPending(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	found := false
	for _, c := range claimed {
		if c.ID == s.ID {
			found = true
			assert.Equal(t, models.StatusProcessing, c.Status)
		}
	}
	assert.True(t, found)

	// Second failure: retry_count 2.
	retried, err = svc.ScheduleRetryOrFail(ctx, s.ID, "AI analysis failed.", now)
	require.NoError(t, err)
	assert.True(t, retried)

	// Third failure: terminal.
	retried, err = svc.ScheduleRetryOrFail(ctx, s.ID, "AI analysis failed.", now)
	require.NoError(t, err)
	assert.False(t, retried)

	got, err = svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "AI analysis failed.", *got.ErrorMessage)
}

func TestStaleRecoverySweep(t *testing.T) {
	pool := setupPool(t)
	svc := services.NewSearchService(pool, 3)
	ctx := context.Background()
	now := time.Now().UTC()

	s, err := svc.Create(ctx, "", intRequest("stale topic"))
	require.NoError(t, err)

	// Claim it, then simulate a 6-minute-old heartbeat.
	_, err = svc.ClaimPending(ctx, now.Add(-6*time.Minute), 10)
	require.NoError(t, err)

	reset, err := svc.ResetStale(ctx, now, 5*time.Minute)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reset, int64(1))

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Search timed out and will be retried", *got.ErrorMessage)
	require.NotNil(t, got.NextRetryAt)
	assert.WithinDuration(t, now.Add(time.Minute), *got.NextRetryAt, 2*time.Second)
}

func TestResultsRoundTrip(t *testing.T) {
	pool := setupPool(t)
	searches := services.NewSearchService(pool, 3)
	results := services.NewResultService(pool)
	ctx := context.Background()

	s, err := searches.Create(ctx, "", intRequest("results topic"))
	require.NoError(t, err)

	exists, err := results.HasResults(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	sev := 8.0
	require.NoError(t, results.InsertPainPoints(ctx, []models.PainPoint{
		{ID: "11111111-0000-0000-0000-000000000001", SearchID: s.ID, Title: "Slow sync",
			SourceTag: models.TagAsk, MentionsCount: 5, SeverityScore: &sev},
	}))
	require.NoError(t, results.InsertQuotes(ctx, []models.PainPointQuote{
		{ID: "11111111-0000-0000-0000-000000000002", PainPointID: "11111111-0000-0000-0000-000000000001",
			QuoteText: "so slow", Upvotes: 9, Permalink: "https://news.ycombinator.com/item?id=1"},
	}))
	require.NoError(t, results.InsertResults(ctx, &models.SearchResults{
		SearchID: s.ID, TotalPostsConsidered: 10, TotalCommentsConsidered: 40,
		TotalMentions: 5, SourceTags: []models.StoryTag{models.TagAsk},
	}))

	exists, err = results.HasResults(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	points, err := results.GetPainPoints(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Slow sync", points[0].Title)

	quotes, err := results.GetQuotes(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "so slow", quotes[0].QuoteText)
}

func TestEventLogAppendAndBackfill(t *testing.T) {
	pool := setupPool(t)
	searches := services.NewSearchService(pool, 3)
	events := services.NewEventService(pool)
	ctx := context.Background()

	s, err := searches.Create(ctx, "", intRequest("events topic"))
	require.NoError(t, err)

	batch := []*models.SearchEvent{
		{ID: "21111111-0000-0000-0000-000000000001", SearchID: s.ID, Phase: models.PhaseStories,
			EventType: models.EventStoryDiscovered, Payload: []byte(`{"id":"1"}`), CreatedAt: time.Now().UTC()},
		{ID: "21111111-0000-0000-0000-000000000002", SearchID: s.ID, Phase: models.PhaseComments,
			EventType: models.EventPhaseProgress, Payload: []byte(`{"totalCommentsSoFar":3}`), CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, events.InsertBatch(ctx, batch))
	assert.Less(t, batch[0].Seq, batch[1].Seq)

	replay, err := events.GetEventsSince(ctx, s.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, replay, 2)
	assert.Equal(t, models.EventStoryDiscovered, replay[0].EventType)

	tail, err := events.GetEventsSince(ctx, s.ID, batch[0].Seq, 100)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, batch[1].ID, tail[0].ID)
}
