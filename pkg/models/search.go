// Package models defines the domain types shared across services, worker,
// events, and the HTTP API.
package models

import "time"

// SearchStatus is the lifecycle state of a search job.
type SearchStatus string

// Search lifecycle states. Completed and failed are terminal for a given
// job instance; the stale-recovery sweep may move processing back to
// pending while retries remain.
const (
	StatusPending    SearchStatus = "pending"
	StatusProcessing SearchStatus = "processing"
	StatusCompleted  SearchStatus = "completed"
	StatusFailed     SearchStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s SearchStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StoryTag is a Hacker News story category filter.
type StoryTag string

// Story tags accepted in search requests. Values match the upstream
// news-source tag vocabulary so they can be passed through unmodified.
const (
	TagStory StoryTag = "story"
	TagAsk   StoryTag = "ask_hn"
	TagShow  StoryTag = "show_hn"
	TagFront StoryTag = "front_page"
	TagPoll  StoryTag = "poll"
)

// PreferredTagOrder is the priority used when choosing a story's primary
// tag and when breaking frequency ties during pain-point tag assignment.
var PreferredTagOrder = []StoryTag{TagAsk, TagShow, TagFront, TagPoll, TagStory}

// ValidTags is the set of tags accepted from clients.
var ValidTags = map[StoryTag]bool{
	TagStory: true,
	TagAsk:   true,
	TagShow:  true,
	TagFront: true,
	TagPoll:  true,
}

// TimeRange restricts a search to stories created within a window.
type TimeRange string

// Supported time ranges.
const (
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
	RangeAll   TimeRange = "all"
)

// ValidTimeRanges is the set of time ranges accepted from clients.
var ValidTimeRanges = map[TimeRange]bool{
	RangeWeek: true, RangeMonth: true, RangeYear: true, RangeAll: true,
}

// SortBy selects the ordering applied by the news source.
type SortBy string

// Supported sort orders.
const (
	SortRelevance SortBy = "relevance"
	SortUpvotes   SortBy = "upvotes"
	SortRecency   SortBy = "recency"
)

// ValidSortBy is the set of sort orders accepted from clients.
var ValidSortBy = map[SortBy]bool{
	SortRelevance: true, SortUpvotes: true, SortRecency: true,
}

// SearchRequest is the validated, normalized input of a search. Topic is
// stored trimmed; tags keep their request order.
type SearchRequest struct {
	Topic      string     `json:"topic"`
	Tags       []StoryTag `json:"tags"`
	TimeRange  TimeRange  `json:"timeRange"`
	MinUpvotes int        `json:"minUpvotes"`
	SortBy     SortBy     `json:"sortBy"`
}

// Search is a row in the searches table.
type Search struct {
	ID           string       `json:"id"`
	Topic        string       `json:"topic"`
	Tags         []StoryTag   `json:"tags"`
	TimeRange    TimeRange    `json:"timeRange"`
	MinUpvotes   int          `json:"minUpvotes"`
	SortBy       SortBy       `json:"sortBy"`
	Status       SearchStatus `json:"status"`
	ErrorMessage *string      `json:"errorMessage,omitempty"`
	RetryCount   int          `json:"retryCount"`
	LastRetryAt  *time.Time   `json:"lastRetryAt,omitempty"`
	NextRetryAt  *time.Time   `json:"nextRetryAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// Request reconstructs the normalized request that produced this search.
func (s *Search) Request() SearchRequest {
	return SearchRequest{
		Topic:      s.Topic,
		Tags:       s.Tags,
		TimeRange:  s.TimeRange,
		MinUpvotes: s.MinUpvotes,
		SortBy:     s.SortBy,
	}
}
