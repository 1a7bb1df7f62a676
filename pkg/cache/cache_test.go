package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/pkg/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb, 30*time.Minute), mr
}

func sampleResult() *models.SearchResult {
	return &models.SearchResult{
		SearchID:             "11111111-1111-1111-1111-111111111111",
		Status:               models.StatusCompleted,
		Topic:                "notion",
		Tags:                 []models.StoryTag{models.TagAsk},
		TimeRange:            models.RangeMonth,
		MinUpvotes:           10,
		SortBy:               models.SortRelevance,
		TotalMentions:        3,
		TotalPostsConsidered: 12,
		SourceTags:           []models.StoryTag{models.TagAsk},
		PainPoints: []models.PainPoint{
			{ID: "22222222-2222-2222-2222-222222222222", SearchID: "11111111-1111-1111-1111-111111111111", Title: "Sync is slow", SourceTag: models.TagAsk, MentionsCount: 3},
		},
		Quotes: []models.PainPointQuote{},
	}
}

func TestSetAndGetResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	fp := "searchKey:{}"
	res := sampleResult()

	require.NoError(t, c.SetResult(ctx, fp, res))

	byID, err := c.GetResultByID(ctx, res.SearchID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, res.Topic, byID.Topic)
	assert.Equal(t, res.PainPoints, byID.PainPoints)

	byFP, err := c.GetResultByFingerprint(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, byFP)
	assert.Equal(t, res.SearchID, byFP.SearchID)

	id, err := c.GetSearchID(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, res.SearchID, id)
}

func TestGetResultMiss(t *testing.T) {
	c, _ := newTestCache(t)
	res, err := c.GetResultByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCorruptEntryDeletedAndMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := resultIDPrefix + "sid"
	require.NoError(t, mr.Set(key, "{not json"))

	res, err := c.GetResultByID(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, mr.Exists(key), "corrupt entry should be deleted")
}

func TestResultRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	res := sampleResult()
	sev := 7.5
	res.PainPoints[0].SeverityScore = &sev
	res.Analysis = &models.ResultAnalysis{
		Summary: "short",
		ProblemClusters: []models.ProblemCluster{
			{Title: "a", Description: "b", Severity: 7.5, MentionCount: 2, Examples: []string{"x"}},
		},
		ProductIdeas: []models.ProductIdea{{Title: "i", Description: "d", TargetProblem: "a", ImpactScore: 5}},
		Model:        "test-model",
		TokensUsed:   123,
	}

	require.NoError(t, c.SetResult(ctx, "fp", res))
	got, err := c.GetResultByFingerprint(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, res, got)
}

func TestReserveSearchID(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	id, won, err := c.ReserveSearchID(ctx, "fp", "first")
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, "first", id)

	id, won, err = c.ReserveSearchID(ctx, "fp", "second")
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, "first", id, "loser adopts the winner's id")
}

func TestReleaseFingerprint(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, _, err := c.ReserveSearchID(ctx, "fp", "sid")
	require.NoError(t, err)
	require.NoError(t, c.ReleaseFingerprint(ctx, "fp"))

	id, err := c.GetSearchID(ctx, "fp")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SetResult(ctx, "fp", sampleResult()))

	mr.FastForward(31 * time.Minute)

	res, err := c.GetResultByFingerprint(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, res)
}
