package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/painscope/painscope/pkg/models"
)

// Emitter appends progress events and fans them out. Durable events are
// inserted into search_events and broadcast via NOTIFY in a single
// transaction (pg_notify is transactional, held until COMMIT), so the
// durable log and live delivery cannot diverge. Transient frames ride
// NOTIFY only.
type Emitter struct {
	db *sql.DB
}

// NewEmitter creates an Emitter. The db parameter should be the *sql.DB
// from database.Client.DB().
func NewEmitter(db *sql.DB) *Emitter {
	return &Emitter{db: db}
}

// Append persists one progress event and broadcasts it to the search's
// channel. The returned event carries the assigned seq.
func (e *Emitter) Append(ctx context.Context, searchID string, phase models.SearchPhase, eventType models.SearchEventType, payload any) (*models.SearchEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	evt := &models.SearchEvent{
		ID:        uuid.NewString(),
		SearchID:  searchID,
		Phase:     phase,
		EventType: eventType,
		Payload:   payloadJSON,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO search_events (id, search_id, phase, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`,
		evt.ID, evt.SearchID, string(evt.Phase), string(evt.EventType), payloadJSON, evt.CreatedAt).
		Scan(&evt.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := encodeWireEvent(evt)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", SearchChannel(searchID), notifyPayload); err != nil {
		return nil, fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return evt, nil
}

// PublishStatus broadcasts a transient search.status frame to the
// search's channel and the global channel. Best-effort on both; returns
// the first error.
func (e *Emitter) PublishStatus(ctx context.Context, searchID string, status models.SearchStatus, errMsg string) error {
	frame := SearchStatusFrame{
		Type:         FrameSearchStatus,
		SearchID:     searchID,
		Status:       status,
		ErrorMessage: errMsg,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal status frame: %w", err)
	}

	var firstErr error
	if err := e.notifyOnly(ctx, SearchChannel(searchID), payload); err != nil {
		firstErr = err
	}
	if err := e.notifyOnly(ctx, GlobalChannel, payload); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// notifyOnly broadcasts a pre-marshaled frame without persistence.
func (e *Emitter) notifyOnly(ctx context.Context, channel string, payload []byte) error {
	wire, err := truncateIfNeeded(payload)
	if err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, wire); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// wireEvent is the NOTIFY/WebSocket rendering of a durable event: the
// persisted record plus the seq backfill cursor.
type wireEvent struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	SearchID  string          `json:"search_id"`
	Phase     string          `json:"phase"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

func encodeWireEvent(evt *models.SearchEvent) (string, error) {
	b, err := json.Marshal(wireEvent{
		ID:        evt.ID,
		Seq:       evt.Seq,
		SearchID:  evt.SearchID,
		Phase:     string(evt.Phase),
		EventType: string(evt.EventType),
		Payload:   evt.Payload,
		CreatedAt: evt.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal wire event: %w", err)
	}
	return truncateIfNeeded(b)
}

// notifyLimit stays below PostgreSQL's 8000-byte NOTIFY payload cap.
const notifyLimit = 7900

// truncateIfNeeded returns the payload as-is when it fits the NOTIFY
// limit, otherwise a minimal envelope with only the routing fields the
// client needs to backfill the full event from the store.
func truncateIfNeeded(payload []byte) (string, error) {
	if len(payload) <= notifyLimit {
		return string(payload), nil
	}

	var routing struct {
		ID        string `json:"id"`
		Seq       int64  `json:"seq"`
		SearchID  string `json:"search_id"`
		EventType string `json:"event_type"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(payload, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"id":         routing.ID,
		"seq":        routing.Seq,
		"search_id":  routing.SearchID,
		"event_type": routing.EventType,
		"truncated":  true,
	}
	if routing.Type != "" {
		truncated["type"] = routing.Type
	}
	b, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(b), nil
}
