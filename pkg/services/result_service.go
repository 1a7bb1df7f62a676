package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/painscope/painscope/pkg/models"
)

// ResultService persists and reads the derived rows of a completed
// search: aggregate results, pain points, quotes, the AI analysis, and
// API usage accounting.
type ResultService struct {
	db DB
}

// NewResultService creates a ResultService.
func NewResultService(db DB) *ResultService {
	return &ResultService{db: db}
}

// HasResults reports whether the aggregate results row exists. Because
// the results row is written last, its presence witnesses a fully
// persisted search, which makes this the worker's idempotency guard.
func (s *ResultService) HasResults(ctx context.Context, searchID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_results WHERE search_id = $1)`, searchID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check search results: %w", err)
	}
	return exists, nil
}

// InsertResults writes the aggregate results row. Call after all other
// derived rows are in place.
func (s *ResultService) InsertResults(ctx context.Context, r *models.SearchResults) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO search_results (search_id, total_posts_considered, total_comments_considered, total_mentions, source_tags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.SearchID, r.TotalPostsConsidered, r.TotalCommentsConsidered, r.TotalMentions,
		tagsToStrings(r.SourceTags), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert search results: %w", err)
	}
	return nil
}

// GetResults returns the aggregate results row, or ErrNotFound.
func (s *ResultService) GetResults(ctx context.Context, searchID string) (*models.SearchResults, error) {
	var (
		r    models.SearchResults
		tags []string
	)
	err := s.db.QueryRow(ctx,
		`SELECT search_id, total_posts_considered, total_comments_considered, total_mentions, source_tags, created_at
		 FROM search_results WHERE search_id = $1`, searchID).
		Scan(&r.SearchID, &r.TotalPostsConsidered, &r.TotalCommentsConsidered, &r.TotalMentions, &tags, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search results: %w", err)
	}
	r.SourceTags = tagsFromStrings(tags)
	return &r, nil
}

// InsertPainPoints writes pain point rows.
func (s *ResultService) InsertPainPoints(ctx context.Context, points []models.PainPoint) error {
	for _, p := range points {
		_, err := s.db.Exec(ctx,
			`INSERT INTO pain_points (id, search_id, title, source_tag, mentions_count, severity_score)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.SearchID, p.Title, string(p.SourceTag), p.MentionsCount, p.SeverityScore)
		if err != nil {
			return fmt.Errorf("failed to insert pain point: %w", err)
		}
	}
	return nil
}

// GetPainPoints returns a search's pain points in insertion order.
func (s *ResultService) GetPainPoints(ctx context.Context, searchID string) ([]models.PainPoint, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, search_id, title, source_tag, mentions_count, severity_score
		 FROM pain_points WHERE search_id = $1 ORDER BY created_at, id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pain points: %w", err)
	}
	defer rows.Close()

	var points []models.PainPoint
	for rows.Next() {
		var (
			p   models.PainPoint
			tag string
		)
		if err := rows.Scan(&p.ID, &p.SearchID, &p.Title, &tag, &p.MentionsCount, &p.SeverityScore); err != nil {
			return nil, fmt.Errorf("failed to scan pain point: %w", err)
		}
		p.SourceTag = models.StoryTag(tag)
		points = append(points, p)
	}
	return points, rows.Err()
}

// InsertQuotes writes quote rows.
func (s *ResultService) InsertQuotes(ctx context.Context, quotes []models.PainPointQuote) error {
	for _, q := range quotes {
		_, err := s.db.Exec(ctx,
			`INSERT INTO pain_point_quotes (id, pain_point_id, quote_text, author_handle, upvotes, permalink)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, q.PainPointID, q.QuoteText, q.AuthorHandle, q.Upvotes, q.Permalink)
		if err != nil {
			return fmt.Errorf("failed to insert quote: %w", err)
		}
	}
	return nil
}

// GetQuotes returns all quotes of a search's pain points.
func (s *ResultService) GetQuotes(ctx context.Context, searchID string) ([]models.PainPointQuote, error) {
	rows, err := s.db.Query(ctx,
		`SELECT q.id, q.pain_point_id, q.quote_text, q.author_handle, q.upvotes, q.permalink
		 FROM pain_point_quotes q
		 JOIN pain_points p ON p.id = q.pain_point_id
		 WHERE p.search_id = $1
		 ORDER BY q.created_at, q.id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.PainPointQuote
	for rows.Next() {
		var q models.PainPointQuote
		if err := rows.Scan(&q.ID, &q.PainPointID, &q.QuoteText, &q.AuthorHandle, &q.Upvotes, &q.Permalink); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// InsertAnalysis writes the 1:1 analysis row.
func (s *ResultService) InsertAnalysis(ctx context.Context, a *models.AiAnalysis) error {
	clusters, err := json.Marshal(a.ProblemClusters)
	if err != nil {
		return fmt.Errorf("failed to marshal problem clusters: %w", err)
	}
	ideas, err := json.Marshal(a.ProductIdeas)
	if err != nil {
		return fmt.Errorf("failed to marshal product ideas: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO ai_analyses (search_id, summary, problem_clusters, product_ideas, model, tokens_used)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.SearchID, a.Summary, clusters, ideas, a.Model, a.TokensUsed)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the analysis row, or ErrNotFound.
func (s *ResultService) GetAnalysis(ctx context.Context, searchID string) (*models.AiAnalysis, error) {
	var (
		a        models.AiAnalysis
		clusters []byte
		ideas    []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT search_id, summary, problem_clusters, product_ideas, model, tokens_used, created_at
		 FROM ai_analyses WHERE search_id = $1`, searchID).
		Scan(&a.SearchID, &a.Summary, &clusters, &ideas, &a.Model, &a.TokensUsed, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	if err := json.Unmarshal(clusters, &a.ProblemClusters); err != nil {
		return nil, fmt.Errorf("failed to decode problem clusters: %w", err)
	}
	if err := json.Unmarshal(ideas, &a.ProductIdeas); err != nil {
		return nil, fmt.Errorf("failed to decode product ideas: %w", err)
	}
	return &a, nil
}

// InsertUsage writes one API usage accounting row.
func (s *ResultService) InsertUsage(ctx context.Context, u *models.ApiUsage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_usage (search_id, service, tokens_used, estimated_cost_usd)
		 VALUES ($1, $2, $3, $4)`,
		u.SearchID, u.Service, u.TokensUsed, u.EstimatedCostUSD)
	if err != nil {
		return fmt.Errorf("failed to insert api usage: %w", err)
	}
	return nil
}
