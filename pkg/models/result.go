package models

import "time"

// SearchResults is the 1:1 aggregate row written when a search completes.
// Its presence is the completion witness used by the worker's idempotency
// guard, so it is always inserted last.
type SearchResults struct {
	SearchID                string     `json:"searchId"`
	TotalPostsConsidered    int        `json:"totalPostsConsidered"`
	TotalCommentsConsidered int        `json:"totalCommentsConsidered"`
	TotalMentions           int        `json:"totalMentions"`
	SourceTags              []StoryTag `json:"sourceTags"`
	CreatedAt               time.Time  `json:"createdAt"`
}

// PainPoint is one clustered user problem derived from a search.
type PainPoint struct {
	ID            string   `json:"id"`
	SearchID      string   `json:"searchId"`
	Title         string   `json:"title"`
	SourceTag     StoryTag `json:"sourceTag"`
	MentionsCount int      `json:"mentionsCount"`
	SeverityScore *float64 `json:"severityScore,omitempty"`
}

// PainPointQuote is a verbatim comment excerpt backing a pain point. The
// permalink always references a comment actually observed during scraping.
type PainPointQuote struct {
	ID           string  `json:"id"`
	PainPointID  string  `json:"painPointId"`
	QuoteText    string  `json:"quoteText"`
	AuthorHandle *string `json:"authorHandle,omitempty"`
	Upvotes      int     `json:"upvotes"`
	Permalink    string  `json:"permalink"`
}

// ProblemCluster is one analyzer-produced theme.
type ProblemCluster struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Severity     float64  `json:"severity"`
	MentionCount int      `json:"mentionCount"`
	Examples     []string `json:"examples"`
}

// ProductIdea is one analyzer-produced product suggestion.
type ProductIdea struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	TargetProblem string  `json:"targetProblem"`
	ImpactScore   float64 `json:"impactScore"`
}

// Analysis is the structured output of the Analyzer port.
type Analysis struct {
	Summary         string           `json:"summary"`
	ProblemClusters []ProblemCluster `json:"problemClusters"`
	ProductIdeas    []ProductIdea    `json:"productIdeas"`
	Model           string           `json:"model,omitempty"`
	TokensUsed      int              `json:"tokensUsed,omitempty"`
}

// AiAnalysis is the persisted analysis row (1:1 with a search).
type AiAnalysis struct {
	SearchID        string           `json:"searchId"`
	Summary         string           `json:"summary"`
	ProblemClusters []ProblemCluster `json:"problemClusters"`
	ProductIdeas    []ProductIdea    `json:"productIdeas"`
	Model           string           `json:"model,omitempty"`
	TokensUsed      int              `json:"tokensUsed,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// ResultAnalysis is the analysis section of the SearchResult payload.
type ResultAnalysis struct {
	Summary         string           `json:"summary"`
	ProblemClusters []ProblemCluster `json:"problemClusters"`
	ProductIdeas    []ProductIdea    `json:"productIdeas"`
	Model           string           `json:"model,omitempty"`
	TokensUsed      int              `json:"tokensUsed,omitempty"`
}

// SearchResult is the canonical completed payload stored in the cache and
// returned by intake and status lookups on hits.
type SearchResult struct {
	SearchID                string           `json:"searchId"`
	Status                  SearchStatus     `json:"status"`
	Topic                   string           `json:"topic"`
	Tags                    []StoryTag       `json:"tags"`
	TimeRange               TimeRange        `json:"timeRange"`
	MinUpvotes              int              `json:"minUpvotes"`
	SortBy                  SortBy           `json:"sortBy"`
	TotalMentions           int              `json:"totalMentions"`
	TotalPostsConsidered    int              `json:"totalPostsConsidered"`
	TotalCommentsConsidered int              `json:"totalCommentsConsidered"`
	SourceTags              []StoryTag       `json:"sourceTags"`
	PainPoints              []PainPoint      `json:"painPoints"`
	Quotes                  []PainPointQuote `json:"quotes"`
	Analysis                *ResultAnalysis  `json:"analysis,omitempty"`
}
