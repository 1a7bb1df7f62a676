package events

import (
	"time"

	"github.com/painscope/painscope/pkg/models"
)

// StoryDiscoveredPayload is the payload of a story_discovered event,
// one per story accepted during the stories phase.
type StoryDiscoveredPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Points    int       `json:"points"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentSnippet is one comment inside a phase_progress batch. Snippet
// text is HTML-stripped and truncated for display.
type CommentSnippet struct {
	ID        string `json:"id"`
	Snippet   string `json:"snippet"`
	Author    string `json:"author,omitempty"`
	Upvotes   int    `json:"upvotes"`
	Permalink string `json:"permalink"`
}

// PhaseProgressPayload is the payload of a phase_progress event. The
// comments phase batches newly retained comments per fetch; the analysis
// phase emits an entry frame with a message only.
type PhaseProgressPayload struct {
	Message            string           `json:"message,omitempty"`
	TotalCommentsSoFar int              `json:"totalCommentsSoFar,omitempty"`
	Comments           []CommentSnippet `json:"comments,omitempty"`
}

// SearchStatusFrame is the transient search.status frame.
type SearchStatusFrame struct {
	Type         string              `json:"type"` // always FrameSearchStatus
	SearchID     string              `json:"search_id"`
	Status       models.SearchStatus `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Timestamp    string              `json:"timestamp"` // RFC3339Nano
}

// SearchSnapshotFrame is the transient search.snapshot frame closing a
// backfill of a terminal search.
type SearchSnapshotFrame struct {
	Type       string                  `json:"type"` // always FrameSearchSnapshot
	SearchID   string                  `json:"search_id"`
	Status     models.SearchStatus     `json:"status"`
	PainPoints []models.PainPoint      `json:"pain_points"`
	Quotes     []models.PainPointQuote `json:"quotes"`
}
