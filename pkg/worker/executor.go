package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/painscope/painscope/pkg/config"
	"github.com/painscope/painscope/pkg/events"
	"github.com/painscope/painscope/pkg/fingerprint"
	"github.com/painscope/painscope/pkg/hackernews"
	"github.com/painscope/painscope/pkg/models"
	"github.com/painscope/painscope/pkg/notify"
	"github.com/painscope/painscope/pkg/retry"
)

// maxStoryPages bounds the stories phase pagination regardless of the
// configured story cap.
const maxStoryPages = 3

// snippetLen bounds comment snippets in progress events and analyzer
// payloads.
const snippetLen = 280

// storyTextLen bounds story text in the analyzer payload.
const storyTextLen = 400

// exampleMatchLen is how much of an analyzer example must appear
// verbatim in a scraped comment for it to source a quote.
const exampleMatchLen = 50

// analyzerAttempts and analyzerBackoff shape the analyzer retry
// envelope: three attempts with sleeps of 1s, then 2s, between them.
const (
	analyzerAttempts = 3
	analyzerBackoff  = time.Second
)

// Executor runs the phased pipeline for one search. All intermediate
// state is written progressively; on redelivery the results-row guard
// makes the run a no-op.
type Executor struct {
	cfg         config.WorkerConfig
	news        NewsSource
	analyzer    Analyzer
	searches    SearchStore
	results     ResultStore
	emitter     EventEmitter
	cache       CacheWriter
	logs        JobLogger
	costPerMTok float64

	// notifier is optional; nil disables Slack delivery.
	notifier *notify.Service

	// sleep is swapped by tests to skip real delays.
	sleep func(ctx context.Context, d time.Duration)
}

// SetNotifier enables Slack notifications on terminal transitions.
func (e *Executor) SetNotifier(n *notify.Service) {
	e.notifier = n
}

// NewExecutor wires an Executor.
func NewExecutor(
	cfg config.WorkerConfig,
	news NewsSource,
	an Analyzer,
	searches SearchStore,
	results ResultStore,
	emitter EventEmitter,
	cacheWriter CacheWriter,
	logs JobLogger,
	costPerMTok float64,
) *Executor {
	return &Executor{
		cfg:         cfg,
		news:        news,
		analyzer:    an,
		searches:    searches,
		results:     results,
		emitter:     emitter,
		cache:       cacheWriter,
		logs:        logs,
		costPerMTok: costPerMTok,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes a claimed search to a terminal or retry state. The error
// return reports unrecoverable bookkeeping failures only; pipeline
// failures are absorbed into the search's retry state.
func (e *Executor) Run(ctx context.Context, search *models.Search) error {
	log := slog.With("search_id", search.ID, "topic", search.Topic)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// Phase 0: guard against redelivery. The results row is written
	// last, so its presence means every derived row already exists.
	done, err := e.results.HasResults(runCtx, search.ID)
	if err != nil {
		return e.fail(ctx, search, fmt.Errorf("results guard: %w", err), log)
	}
	if done {
		log.Info("Search already completed, skipping")
		if err := e.searches.MarkCompleted(context.Background(), search.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to restore completed status: %w", err)
		}
		_ = e.emitter.PublishStatus(context.Background(), search.ID, models.StatusCompleted, "")
		return nil
	}

	result, runErr := e.runPhases(runCtx, search, log)
	if runErr != nil {
		return e.fail(ctx, search, runErr, log)
	}

	// Phase 5: finalize. Cache both keys, flip the row, announce.
	fp := fingerprint.Compute(search.Request())
	if err := e.cache.SetResult(context.Background(), fp, result); err != nil {
		// Cache loss is tolerable; status reads fall back to the store.
		log.Warn("Failed to cache search result", "error", err)
	}
	now := time.Now().UTC()
	if err := e.searches.MarkCompleted(context.Background(), search.ID, now); err != nil {
		return fmt.Errorf("failed to mark search completed: %w", err)
	}
	_ = e.emitter.PublishStatus(context.Background(), search.ID, models.StatusCompleted, "")

	e.logs.Append(context.Background(), search.ID, models.LogInfo, "search completed", map[string]any{
		"total_posts":    result.TotalPostsConsidered,
		"total_comments": result.TotalCommentsConsidered,
		"total_mentions": result.TotalMentions,
		"pain_points":    len(result.PainPoints),
		"quotes":         len(result.Quotes),
	})
	e.notifier.SearchCompleted(context.Background(), search.ID, search.Topic, len(result.PainPoints))
	log.Info("Search completed",
		"posts", result.TotalPostsConsidered,
		"comments", result.TotalCommentsConsidered,
		"pain_points", len(result.PainPoints))
	return nil
}

// runPhases executes phases 1-4 and assembles the final payload.
func (e *Executor) runPhases(ctx context.Context, search *models.Search, log *slog.Logger) (*models.SearchResult, error) {
	stories, err := e.fetchStories(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("stories phase: %w", err)
	}
	log.Info("Stories phase complete", "stories", len(stories))

	comments, err := e.fetchComments(ctx, search, stories)
	if err != nil {
		return nil, fmt.Errorf("comments phase: %w", err)
	}
	log.Info("Comments phase complete", "comments", len(comments))

	analysis, err := e.analyze(ctx, search, stories, comments)
	if err != nil {
		return nil, fmt.Errorf("analysis phase: %w", err)
	}

	return e.persist(ctx, search, stories, comments, analysis)
}

// fail applies the retry helper and publishes the resulting status.
func (e *Executor) fail(ctx context.Context, search *models.Search, runErr error, log *slog.Logger) error {
	msg := classify(runErr)
	log.Error("Search pipeline failed", "error", runErr, "user_message", msg)

	// The run context may be the reason we are here; bookkeeping uses a
	// fresh context.
	bgCtx := context.Background()
	retried, err := e.searches.ScheduleRetryOrFail(bgCtx, search.ID, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	if retried {
		e.logs.Append(bgCtx, search.ID, models.LogWarn, "search failed, retry scheduled", map[string]any{
			"error": runErr.Error(), "user_message": msg,
		})
		_ = e.emitter.PublishStatus(bgCtx, search.ID, models.StatusPending, msg)
	} else {
		e.logs.Append(bgCtx, search.ID, models.LogError, "search permanently failed", map[string]any{
			"error": runErr.Error(), "user_message": msg,
		})
		_ = e.emitter.PublishStatus(bgCtx, search.ID, models.StatusFailed, msg)
		e.notifier.SearchFailed(bgCtx, search.ID, search.Topic, msg)
	}
	return nil
}

// fetchStories is phase 1: paginate the news source, normalize, emit a
// story_discovered event per accepted story.
func (e *Executor) fetchStories(ctx context.Context, search *models.Search) ([]models.Story, error) {
	var stories []models.Story
	seen := make(map[string]bool)

	for page := 0; page < maxStoryPages && len(stories) < e.cfg.MaxStories; page++ {
		if page > 0 {
			e.sleep(ctx, e.cfg.PageDelay)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}

		batch, err := e.news.SearchStories(ctx, models.StoryQuery{
			Query:      search.Topic,
			Tags:       search.Tags,
			TimeRange:  search.TimeRange,
			MinUpvotes: search.MinUpvotes,
			SortBy:     search.SortBy,
			Page:       page,
			PerPage:    e.cfg.StoriesPerPage,
		})
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for _, story := range batch {
			if seen[story.ID] || len(stories) >= e.cfg.MaxStories {
				continue
			}
			seen[story.ID] = true
			stories = append(stories, story)

			if _, err := e.emitter.Append(ctx, search.ID, models.PhaseStories, models.EventStoryDiscovered,
				events.StoryDiscoveredPayload{
					ID:        story.ID,
					Title:     story.Title,
					URL:       story.URL,
					Points:    story.Points,
					Tag:       string(story.PrimaryTag),
					CreatedAt: story.CreatedAt,
				}); err != nil {
				return nil, fmt.Errorf("emit story event: %w", err)
			}
		}
	}
	return stories, nil
}

// fetchComments is phase 2: pull comment trees for the top stories,
// keep the highest-upvoted comments per story, and emit batched
// phase_progress events.
func (e *Executor) fetchComments(ctx context.Context, search *models.Search, stories []models.Story) ([]models.Comment, error) {
	limit := min(e.cfg.StoriesForComments, len(stories))

	var corpus []models.Comment
	for i := 0; i < limit; i++ {
		if i > 0 {
			e.sleep(ctx, e.cfg.CommentDelay)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}

		comments, err := e.news.Comments(ctx, stories[i].ID)
		if err != nil {
			return nil, err
		}
		comments = topComments(comments, e.cfg.MaxCommentsPerStory)
		corpus = append(corpus, comments...)

		snippets := make([]events.CommentSnippet, len(comments))
		for j, c := range comments {
			snippets[j] = events.CommentSnippet{
				ID:        c.ID,
				Snippet:   hackernews.Truncate(c.Text, snippetLen),
				Author:    c.Author,
				Upvotes:   c.Points,
				Permalink: c.Permalink,
			}
		}
		if _, err := e.emitter.Append(ctx, search.ID, models.PhaseComments, models.EventPhaseProgress,
			events.PhaseProgressPayload{
				TotalCommentsSoFar: len(corpus),
				Comments:           snippets,
			}); err != nil {
			return nil, fmt.Errorf("emit comment progress: %w", err)
		}
	}
	return corpus, nil
}

// analyze is phase 3: build the bounded payload and call the analyzer
// with exponential back-off. Structural failures count as transient.
func (e *Executor) analyze(ctx context.Context, search *models.Search, stories []models.Story, comments []models.Comment) (*models.Analysis, error) {
	if _, err := e.emitter.Append(ctx, search.ID, models.PhaseAnalysis, models.EventPhaseProgress,
		events.PhaseProgressPayload{Message: "Analyzing discussions"}); err != nil {
		return nil, fmt.Errorf("emit analysis progress: %w", err)
	}

	payload := buildAnalysisPayload(stories, comments, e.cfg.AnalysisMaxStories, e.cfg.AnalysisMaxCommentsPerStory)

	analysis, err := retry.DoVal(ctx, analyzerAttempts, analyzerBackoff,
		func(ctx context.Context) (*models.Analysis, error) {
			return e.analyzer.Analyze(ctx, search.Topic, payload)
		})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, analyzerError(err)
	}
	return analysis, nil
}

// buildAnalysisPayload compacts the scrape output for the analyzer.
func buildAnalysisPayload(stories []models.Story, comments []models.Comment, maxStories, maxCommentsPerStory int) models.AnalysisPayload {
	byStory := make(map[string][]string)
	for _, c := range comments {
		if len(byStory[c.StoryID]) >= maxCommentsPerStory {
			continue
		}
		byStory[c.StoryID] = append(byStory[c.StoryID], hackernews.Truncate(c.Text, snippetLen))
	}

	limit := min(maxStories, len(stories))
	out := make([]models.AnalysisStory, 0, limit)
	for _, story := range stories[:limit] {
		out = append(out, models.AnalysisStory{
			Title:    story.Title,
			Tag:      story.PrimaryTag,
			Points:   story.Points,
			Text:     hackernews.Truncate(story.Text, storyTextLen),
			Comments: byStory[story.ID],
		})
	}
	return models.AnalysisPayload{
		Stories:       out,
		TotalStories:  len(stories),
		TotalComments: len(comments),
	}
}
