package services

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscope/painscope/pkg/models"
)

func newResultMock(t *testing.T) (pgxmock.PgxPoolIface, *ResultService) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock, NewResultService(mock)
}

func TestHasResults(t *testing.T) {
	mock, svc := newResultMock(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("sid-1").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := svc.HasResults(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInsertResults(t *testing.T) {
	mock, svc := newResultMock(t)

	mock.ExpectExec("INSERT INTO search_results").
		WithArgs("sid-1", 12, 40, 7, []string{"ask_hn", "story"}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := svc.InsertResults(context.Background(), &models.SearchResults{
		SearchID:                "sid-1",
		TotalPostsConsidered:    12,
		TotalCommentsConsidered: 40,
		TotalMentions:           7,
		SourceTags:              []models.StoryTag{models.TagAsk, models.TagStory},
	})
	require.NoError(t, err)
}

func TestInsertPainPointsAndQuotes(t *testing.T) {
	mock, svc := newResultMock(t)
	sev := 8.0

	mock.ExpectExec("INSERT INTO pain_points").
		WithArgs("pp-1", "sid-1", "Slow sync", "ask_hn", 5, &sev).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO pain_point_quotes").
		WithArgs("q-1", "pp-1", "sync is slow", ptr("alice"), 12, "https://news.ycombinator.com/item?id=1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := svc.InsertPainPoints(context.Background(), []models.PainPoint{
		{ID: "pp-1", SearchID: "sid-1", Title: "Slow sync", SourceTag: models.TagAsk, MentionsCount: 5, SeverityScore: &sev},
	})
	require.NoError(t, err)

	err = svc.InsertQuotes(context.Background(), []models.PainPointQuote{
		{ID: "q-1", PainPointID: "pp-1", QuoteText: "sync is slow", AuthorHandle: ptr("alice"),
			Upvotes: 12, Permalink: "https://news.ycombinator.com/item?id=1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAnalysisMarshalsJSON(t *testing.T) {
	mock, svc := newResultMock(t)

	mock.ExpectExec("INSERT INTO ai_analyses").
		WithArgs("sid-1", "summary", pgxmock.AnyArg(), pgxmock.AnyArg(), "test-model", 2000).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := svc.InsertAnalysis(context.Background(), &models.AiAnalysis{
		SearchID: "sid-1",
		Summary:  "summary",
		ProblemClusters: []models.ProblemCluster{
			{Title: "t", Description: "d", Severity: 5, MentionCount: 2, Examples: []string{"e"}},
		},
		ProductIdeas: []models.ProductIdea{{Title: "i", Description: "d", TargetProblem: "t", ImpactScore: 4}},
		Model:        "test-model",
		TokensUsed:   2000,
	})
	require.NoError(t, err)
}

func TestGetAnalysisRoundTrip(t *testing.T) {
	mock, svc := newResultMock(t)

	clusters := []byte(`[{"title":"t","description":"d","severity":5,"mentionCount":2,"examples":["e"]}]`)
	ideas := []byte(`[{"title":"i","description":"d","targetProblem":"t","impactScore":4}]`)
	mock.ExpectQuery("FROM ai_analyses WHERE search_id").
		WithArgs("sid-1").
		WillReturnRows(mock.NewRows([]string{
			"search_id", "summary", "problem_clusters", "product_ideas", "model", "tokens_used", "created_at",
		}).AddRow("sid-1", "summary", clusters, ideas, "test-model", 2000, mockNow()))

	a, err := svc.GetAnalysis(context.Background(), "sid-1")
	require.NoError(t, err)
	require.Len(t, a.ProblemClusters, 1)
	assert.Equal(t, "t", a.ProblemClusters[0].Title)
	assert.Equal(t, 2, a.ProblemClusters[0].MentionCount)
	require.Len(t, a.ProductIdeas, 1)
}

func TestGetPainPoints(t *testing.T) {
	mock, svc := newResultMock(t)
	sev := 7.5

	mock.ExpectQuery("FROM pain_points WHERE search_id").
		WithArgs("sid-1").
		WillReturnRows(mock.NewRows([]string{
			"id", "search_id", "title", "source_tag", "mentions_count", "severity_score",
		}).
			AddRow("pp-1", "sid-1", "Slow sync", "ask_hn", 5, &sev).
			AddRow("pp-2", "sid-1", "Bad search", "story", 3, nil))

	points, err := svc.GetPainPoints(context.Background(), "sid-1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, models.TagAsk, points[0].SourceTag)
	require.NotNil(t, points[0].SeverityScore)
	assert.Nil(t, points[1].SeverityScore)
}

func TestInsertUsage(t *testing.T) {
	mock, svc := newResultMock(t)

	mock.ExpectExec("INSERT INTO api_usage").
		WithArgs("sid-1", "anthropic", 2000, 0.006).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := svc.InsertUsage(context.Background(), &models.ApiUsage{
		SearchID: "sid-1", Service: "anthropic", TokensUsed: 2000, EstimatedCostUSD: 0.006,
	})
	require.NoError(t, err)
}
