package config

import (
	"fmt"
	"time"
)

// WorkerConfig bounds a single search pipeline run.
type WorkerConfig struct {
	// Timeout is the overall budget for one worker run. On expiry,
	// in-flight HTTP calls abort and the run fails as a timeout.
	Timeout time.Duration

	// PageDelay is the minimum pause between story result pages.
	PageDelay time.Duration

	// CommentDelay is the minimum pause between comment-tree fetches.
	CommentDelay time.Duration

	// MaxStories caps the stories collected in the stories phase.
	MaxStories int

	// StoriesPerPage is the page size requested from the news source.
	StoriesPerPage int

	// StoriesForComments is how many top stories get their comment trees
	// fetched.
	StoriesForComments int

	// MaxCommentsPerStory caps retained comments per story, after sorting
	// by upvotes descending.
	MaxCommentsPerStory int

	// AnalysisMaxStories caps stories included in the analyzer payload.
	AnalysisMaxStories int

	// AnalysisMaxCommentsPerStory caps comment snippets per story in the
	// analyzer payload.
	AnalysisMaxCommentsPerStory int

	// MaxPainPoints caps persisted pain points per search.
	MaxPainPoints int

	// MaxQuotesPerPainPoint caps persisted quotes per pain point.
	MaxQuotesPerPainPoint int

	// MaxQuoteLen truncates persisted quote text.
	MaxQuoteLen int
}

// DefaultWorkerConfig returns the built-in pipeline defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Timeout:                     60 * time.Second,
		PageDelay:                   200 * time.Millisecond,
		CommentDelay:                120 * time.Millisecond,
		MaxStories:                  60,
		StoriesPerPage:              30,
		StoriesForComments:          20,
		MaxCommentsPerStory:         20,
		AnalysisMaxStories:          40,
		AnalysisMaxCommentsPerStory: 10,
		MaxPainPoints:               10,
		MaxQuotesPerPainPoint:       5,
		MaxQuoteLen:                 800,
	}
}

func workerFromEnv() (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	cfg.Timeout = time.Duration(getEnvInt("EDGE_FUNCTION_TIMEOUT_MS", int(cfg.Timeout/time.Millisecond))) * time.Millisecond
	cfg.PageDelay = time.Duration(getEnvInt("PAGE_DELAY_MS", int(cfg.PageDelay/time.Millisecond))) * time.Millisecond
	cfg.CommentDelay = time.Duration(getEnvInt("COMMENT_DELAY_MS", int(cfg.CommentDelay/time.Millisecond))) * time.Millisecond
	cfg.MaxStories = getEnvInt("HN_MAX_STORIES", cfg.MaxStories)
	cfg.StoriesPerPage = getEnvInt("HN_STORIES_PER_PAGE", cfg.StoriesPerPage)
	cfg.StoriesForComments = getEnvInt("HN_STORIES_FOR_COMMENTS", cfg.StoriesForComments)
	cfg.MaxCommentsPerStory = getEnvInt("HN_MAX_COMMENTS_PER_STORY", cfg.MaxCommentsPerStory)
	cfg.AnalysisMaxStories = getEnvInt("ANALYSIS_MAX_STORIES", cfg.AnalysisMaxStories)
	cfg.AnalysisMaxCommentsPerStory = getEnvInt("ANALYSIS_MAX_COMMENTS_PER_STORY", cfg.AnalysisMaxCommentsPerStory)
	cfg.MaxPainPoints = getEnvInt("MAX_PAIN_POINTS", cfg.MaxPainPoints)
	cfg.MaxQuotesPerPainPoint = getEnvInt("MAX_QUOTES_PER_PAIN_POINT", cfg.MaxQuotesPerPainPoint)
	cfg.MaxQuoteLen = getEnvInt("MAX_QUOTE_LEN", cfg.MaxQuoteLen)
	return cfg, cfg.Validate()
}

// Validate checks the pipeline configuration.
func (c WorkerConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("EDGE_FUNCTION_TIMEOUT_MS must be positive")
	}
	if c.MaxStories < 1 || c.StoriesPerPage < 1 {
		return fmt.Errorf("story limits must be at least 1")
	}
	if c.MaxPainPoints < 1 {
		return fmt.Errorf("MAX_PAIN_POINTS must be at least 1")
	}
	if c.MaxQuoteLen < 1 {
		return fmt.Errorf("MAX_QUOTE_LEN must be at least 1")
	}
	return nil
}
