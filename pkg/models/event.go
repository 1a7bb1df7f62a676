package models

import (
	"encoding/json"
	"time"
)

// SearchPhase is one of the three ordered worker stages.
type SearchPhase string

// Worker phases, emitted in this order for every search.
const (
	PhaseStories  SearchPhase = "stories"
	PhaseComments SearchPhase = "comments"
	PhaseAnalysis SearchPhase = "analysis"
)

// SearchEventType discriminates the payload of a SearchEvent.
type SearchEventType string

// Progress event types.
const (
	EventStoryDiscovered   SearchEventType = "story_discovered"
	EventCommentDiscovered SearchEventType = "comment_discovered"
	EventPhaseProgress     SearchEventType = "phase_progress"
)

// SearchEvent is an append-only progress record. Seq is the durable
// backfill cursor assigned by the store; ID is the globally unique
// identity subscribers deduplicate on.
type SearchEvent struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"-"`
	SearchID  string          `json:"search_id"`
	Phase     SearchPhase     `json:"phase"`
	EventType SearchEventType `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
