// Package worker executes a single search end to end: scraping stories
// and comments, running the LLM analysis, persisting derived rows, and
// finalizing the cache and search status.
package worker

import (
	"context"
	"time"

	"github.com/painscope/painscope/pkg/models"
)

// NewsSource is the story/comment retrieval port. Implemented by
// *hackernews.Client.
type NewsSource interface {
	SearchStories(ctx context.Context, query models.StoryQuery) ([]models.Story, error)
	Comments(ctx context.Context, storyID string) ([]models.Comment, error)
}

// Analyzer is the LLM clustering port. Implemented by *analyzer.Client.
type Analyzer interface {
	Analyze(ctx context.Context, topic string, payload models.AnalysisPayload) (*models.Analysis, error)
}

// SearchStore is the slice of the search service the worker mutates.
type SearchStore interface {
	MarkCompleted(ctx context.Context, id string, now time.Time) error
	ScheduleRetryOrFail(ctx context.Context, id, errMsg string, now time.Time) (bool, error)
}

// ResultStore persists the derived rows of a completed search.
type ResultStore interface {
	HasResults(ctx context.Context, searchID string) (bool, error)
	InsertResults(ctx context.Context, r *models.SearchResults) error
	InsertPainPoints(ctx context.Context, points []models.PainPoint) error
	InsertQuotes(ctx context.Context, quotes []models.PainPointQuote) error
	InsertAnalysis(ctx context.Context, a *models.AiAnalysis) error
	InsertUsage(ctx context.Context, u *models.ApiUsage) error
}

// EventEmitter appends durable progress events and transient status
// frames. Implemented by *events.Emitter.
type EventEmitter interface {
	Append(ctx context.Context, searchID string, phase models.SearchPhase, eventType models.SearchEventType, payload any) (*models.SearchEvent, error)
	PublishStatus(ctx context.Context, searchID string, status models.SearchStatus, errMsg string) error
}

// CacheWriter stores finished results. Implemented by *cache.Cache.
type CacheWriter interface {
	SetResult(ctx context.Context, fp string, result *models.SearchResult) error
}

// JobLogger appends diagnostic job log rows.
type JobLogger interface {
	Append(ctx context.Context, searchID string, level models.LogLevel, message string, logCtx map[string]any)
}
