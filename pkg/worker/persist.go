package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/painscope/painscope/pkg/hackernews"
	"github.com/painscope/painscope/pkg/models"
)

// analyzerService names the analyzer in api_usage rows.
const analyzerService = "anthropic"

// persist is phase 4: derive and insert pain points, quotes, the
// analysis row, and usage accounting, then the aggregate results row
// last so its presence witnesses a complete write.
func (e *Executor) persist(ctx context.Context, search *models.Search, stories []models.Story, comments []models.Comment, analysis *models.Analysis) (*models.SearchResult, error) {
	tagCounts := countTags(stories)
	painPoints := e.buildPainPoints(search.ID, analysis, tagCounts)
	quotes := e.buildQuotes(painPoints, analysis, comments)

	if err := e.results.InsertPainPoints(ctx, painPoints); err != nil {
		return nil, err
	}
	if err := e.results.InsertQuotes(ctx, quotes); err != nil {
		return nil, err
	}
	if err := e.results.InsertAnalysis(ctx, &models.AiAnalysis{
		SearchID:        search.ID,
		Summary:         analysis.Summary,
		ProblemClusters: analysis.ProblemClusters,
		ProductIdeas:    analysis.ProductIdeas,
		Model:           analysis.Model,
		TokensUsed:      analysis.TokensUsed,
	}); err != nil {
		return nil, err
	}
	if err := e.results.InsertUsage(ctx, &models.ApiUsage{
		SearchID:         search.ID,
		Service:          analyzerService,
		TokensUsed:       analysis.TokensUsed,
		EstimatedCostUSD: float64(analysis.TokensUsed) / 1e6 * e.costPerMTok,
	}); err != nil {
		return nil, err
	}

	totalMentions := 0
	for _, p := range painPoints {
		totalMentions += p.MentionsCount
	}
	results := &models.SearchResults{
		SearchID:                search.ID,
		TotalPostsConsidered:    len(stories),
		TotalCommentsConsidered: len(comments),
		TotalMentions:           totalMentions,
		SourceTags:              sortedTags(tagCounts),
	}
	if err := e.results.InsertResults(ctx, results); err != nil {
		return nil, err
	}

	return &models.SearchResult{
		SearchID:                search.ID,
		Status:                  models.StatusCompleted,
		Topic:                   search.Topic,
		Tags:                    search.Tags,
		TimeRange:               search.TimeRange,
		MinUpvotes:              search.MinUpvotes,
		SortBy:                  search.SortBy,
		TotalMentions:           totalMentions,
		TotalPostsConsidered:    len(stories),
		TotalCommentsConsidered: len(comments),
		SourceTags:              results.SourceTags,
		PainPoints:              painPoints,
		Quotes:                  quotes,
		Analysis: &models.ResultAnalysis{
			Summary:         analysis.Summary,
			ProblemClusters: analysis.ProblemClusters,
			ProductIdeas:    analysis.ProductIdeas,
			Model:           analysis.Model,
			TokensUsed:      analysis.TokensUsed,
		},
	}, nil
}

// buildPainPoints maps problem clusters to pain point rows, assigning
// source tags round-robin over the tags sorted by story frequency. When
// the analysis has no clusters, one pain point per observed primary tag
// is synthesized instead.
func (e *Executor) buildPainPoints(searchID string, analysis *models.Analysis, tagCounts map[models.StoryTag]int) []models.PainPoint {
	rankedTags := sortedTags(tagCounts)

	if len(analysis.ProblemClusters) == 0 {
		points := make([]models.PainPoint, 0, len(rankedTags))
		for _, tag := range rankedTags {
			points = append(points, models.PainPoint{
				ID:            uuid.NewString(),
				SearchID:      searchID,
				Title:         fmt.Sprintf("Discussions in %s", tag),
				SourceTag:     tag,
				MentionsCount: tagCounts[tag],
			})
		}
		return points
	}

	limit := min(e.cfg.MaxPainPoints, len(analysis.ProblemClusters))
	points := make([]models.PainPoint, 0, limit)
	for i, cluster := range analysis.ProblemClusters[:limit] {
		tag := models.TagStory
		if len(rankedTags) > 0 {
			tag = rankedTags[i%len(rankedTags)]
		}
		severity := cluster.Severity
		points = append(points, models.PainPoint{
			ID:            uuid.NewString(),
			SearchID:      searchID,
			Title:         cluster.Title,
			SourceTag:     tag,
			MentionsCount: cluster.MentionCount,
			SeverityScore: &severity,
		})
	}
	return points
}

// buildQuotes sources quotes for each pain point from the analyzer's
// example excerpts, accepting only examples that match a scraped comment
// verbatim. Fabricated examples are dropped. If nothing matches, the
// top comments by upvotes are spread round-robin across the pain points.
func (e *Executor) buildQuotes(painPoints []models.PainPoint, analysis *models.Analysis, comments []models.Comment) []models.PainPointQuote {
	if len(painPoints) == 0 {
		return nil
	}

	var quotes []models.PainPointQuote
	clusters := analysis.ProblemClusters
	for i, point := range painPoints {
		if i >= len(clusters) {
			break
		}
		used := make(map[string]bool)
		for _, example := range clusters[i].Examples {
			if countFor(quotes, point.ID) >= e.cfg.MaxQuotesPerPainPoint {
				break
			}
			comment := matchComment(example, comments, used)
			if comment == nil {
				continue
			}
			used[comment.ID] = true
			quotes = append(quotes, e.newQuote(point.ID, comment))
		}
	}
	if len(quotes) > 0 {
		return quotes
	}

	// Fallback: no example survived sourcing; attach the strongest
	// observed comments instead.
	top := topComments(comments, 20)
	for i := range top {
		point := painPoints[i%len(painPoints)]
		if countFor(quotes, point.ID) >= e.cfg.MaxQuotesPerPainPoint {
			continue
		}
		quotes = append(quotes, e.newQuote(point.ID, &top[i]))
	}
	return quotes
}

func (e *Executor) newQuote(painPointID string, comment *models.Comment) models.PainPointQuote {
	var author *string
	if comment.Author != "" {
		a := comment.Author
		author = &a
	}
	return models.PainPointQuote{
		ID:           uuid.NewString(),
		PainPointID:  painPointID,
		QuoteText:    hackernews.Truncate(comment.Text, e.cfg.MaxQuoteLen),
		AuthorHandle: author,
		Upvotes:      comment.Points,
		Permalink:    comment.Permalink,
	}
}

// matchComment finds a comment whose text contains the leading
// exampleMatchLen characters of the example. Returns nil when the
// example has no verbatim backing.
func matchComment(example string, comments []models.Comment, used map[string]bool) *models.Comment {
	needle := strings.TrimSpace(example)
	if needle == "" {
		return nil
	}
	needle = hackernews.Truncate(needle, exampleMatchLen)
	for i := range comments {
		if used[comments[i].ID] {
			continue
		}
		if strings.Contains(comments[i].Text, needle) {
			return &comments[i]
		}
	}
	return nil
}

func countFor(quotes []models.PainPointQuote, painPointID string) int {
	n := 0
	for _, q := range quotes {
		if q.PainPointID == painPointID {
			n++
		}
	}
	return n
}

// topComments returns the n highest-upvoted comments, leaving the input
// untouched.
func topComments(comments []models.Comment, n int) []models.Comment {
	sorted := make([]models.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Points > sorted[j].Points
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// countTags tallies primary tags across stories.
func countTags(stories []models.Story) map[models.StoryTag]int {
	counts := make(map[models.StoryTag]int)
	for _, s := range stories {
		counts[s.PrimaryTag]++
	}
	return counts
}

// sortedTags orders observed tags by story frequency descending, ties
// broken by the preferred tag order.
func sortedTags(counts map[models.StoryTag]int) []models.StoryTag {
	prefRank := make(map[models.StoryTag]int, len(models.PreferredTagOrder))
	for i, t := range models.PreferredTagOrder {
		prefRank[t] = i
	}

	tags := make([]models.StoryTag, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return prefRank[tags[i]] < prefRank[tags[j]]
	})
	return tags
}
