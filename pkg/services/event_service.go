package services

import (
	"context"
	"fmt"

	"github.com/painscope/painscope/pkg/models"
)

// EventService reads and batch-writes the durable progress event log.
// Live publication happens in pkg/events; this service backs the
// subscriber backfill path and bulk inserts.
type EventService struct {
	db DB
}

// NewEventService creates an EventService.
func NewEventService(db DB) *EventService {
	return &EventService{db: db}
}

// InsertBatch appends events in one transaction. Events are append-only;
// there is no update path.
func (s *EventService) InsertBatch(ctx context.Context, events []*models.SearchEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, evt := range events {
		err := tx.QueryRow(ctx,
			`INSERT INTO search_events (id, search_id, phase, event_type, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`,
			evt.ID, evt.SearchID, string(evt.Phase), string(evt.EventType), []byte(evt.Payload), evt.CreatedAt).
			Scan(&evt.Seq)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// GetEventsSince returns a search's events with seq greater than
// sinceSeq, oldest first, up to limit rows.
func (s *EventService) GetEventsSince(ctx context.Context, searchID string, sinceSeq int64, limit int) ([]*models.SearchEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT seq, id, search_id, phase, event_type, payload, created_at
		 FROM search_events
		 WHERE search_id = $1 AND seq > $2
		 ORDER BY seq ASC
		 LIMIT $3`, searchID, sinceSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.SearchEvent
	for rows.Next() {
		var (
			evt              models.SearchEvent
			phase, eventType string
			payload          []byte
		)
		if err := rows.Scan(&evt.Seq, &evt.ID, &evt.SearchID, &phase, &eventType, &payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		evt.Phase = models.SearchPhase(phase)
		evt.EventType = models.SearchEventType(eventType)
		evt.Payload = payload
		events = append(events, &evt)
	}
	return events, rows.Err()
}
