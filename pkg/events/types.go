// Package events provides real-time progress delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-instance distribution.
//
// Progress events (story_discovered, comment_discovered, phase_progress)
// are durable: the emitter inserts them into search_events and fires
// NOTIFY in the same transaction, so a subscriber that joins mid-flight
// can backfill the full history and then continue live. Status frames
// (search.status) are transient: they are derivable from the searches
// table, so they ride NOTIFY only. Snapshots (search.snapshot) are built
// from the persisted result rows and written directly to the client at
// the end of its backfill; they do not go through NOTIFY.
package events

// Frame types sent to WebSocket clients beyond the durable progress
// events themselves.
const (
	// FrameSearchStatus announces a search lifecycle transition.
	FrameSearchStatus = "search.status"

	// FrameSearchSnapshot carries the persisted pain points and quotes of
	// a terminal search, sent at the end of a backfill.
	FrameSearchSnapshot = "search.snapshot"

	// FrameBackfillOverflow tells the client more events were missed than
	// the backfill limit; it should reload over REST instead.
	FrameBackfillOverflow = "backfill.overflow"
)

// GlobalChannel carries transient status frames for all searches; the
// search list view subscribes here.
const GlobalChannel = "searches"

// SearchChannel returns the NOTIFY/subscription channel of one search.
// Format: "search:{search_id}".
func SearchChannel(searchID string) string {
	return "search:" + searchID
}

// ClientMessage is the JSON structure for client → server WebSocket
// messages.
type ClientMessage struct {
	Action   string `json:"action"`              // "subscribe", "unsubscribe", "backfill", "ping"
	Channel  string `json:"channel,omitempty"`   // e.g. "search:abc-123"
	SinceSeq *int64 `json:"since_seq,omitempty"` // backfill cursor
}
