package services

import (
	"fmt"
	"strings"

	"github.com/painscope/painscope/pkg/models"
)

// Request validation bounds.
const (
	MinTopicLen   = 2
	MaxTopicLen   = 100
	MaxTags       = 5
	MaxMinUpvotes = 10000
)

// topicForbiddenChars are rejected anywhere in a topic.
const topicForbiddenChars = "<>{}[]\\`"

// ValidateRequest normalizes and validates a search request. The returned
// request has its topic trimmed. A non-nil error is always a
// *ValidationError carrying a field→messages map.
func ValidateRequest(req models.SearchRequest) (models.SearchRequest, error) {
	verr := &ValidationError{}

	req.Topic = strings.TrimSpace(req.Topic)
	if n := len(req.Topic); n < MinTopicLen || n > MaxTopicLen {
		verr.add("topic", fmt.Sprintf("must be between %d and %d characters", MinTopicLen, MaxTopicLen))
	}
	if strings.ContainsAny(req.Topic, topicForbiddenChars) {
		verr.add("topic", "contains forbidden characters")
	}

	if len(req.Tags) > MaxTags {
		verr.add("tags", fmt.Sprintf("at most %d tags allowed", MaxTags))
	}
	seen := make(map[models.StoryTag]bool, len(req.Tags))
	for _, tag := range req.Tags {
		if !models.ValidTags[tag] {
			verr.add("tags", fmt.Sprintf("unknown tag %q", tag))
			continue
		}
		if seen[tag] {
			verr.add("tags", fmt.Sprintf("duplicate tag %q", tag))
		}
		seen[tag] = true
	}

	if !models.ValidTimeRanges[req.TimeRange] {
		verr.add("timeRange", fmt.Sprintf("unknown time range %q", req.TimeRange))
	}
	if req.MinUpvotes < 0 || req.MinUpvotes > MaxMinUpvotes {
		verr.add("minUpvotes", fmt.Sprintf("must be between 0 and %d", MaxMinUpvotes))
	}
	if !models.ValidSortBy[req.SortBy] {
		verr.add("sortBy", fmt.Sprintf("unknown sort order %q", req.SortBy))
	}

	if !verr.ok() {
		return req, verr
	}
	return req, nil
}
