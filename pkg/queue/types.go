// Package queue drives the asynchronous search pipeline: a periodic
// dispatcher that claims pending searches and hands them to workers, and
// a recovery sweep that reclaims stale processing searches.
package queue

import (
	"context"
	"time"

	"github.com/painscope/painscope/pkg/models"
)

// SearchRunner executes one claimed search to a terminal or retry state.
// Implemented by *worker.Executor. The runner owns the entire pipeline;
// the scheduler only handles claiming, concurrency, and recovery.
type SearchRunner interface {
	Run(ctx context.Context, search *models.Search) error
}

// SearchQueue is the slice of the search service the scheduler drives.
type SearchQueue interface {
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]*models.Search, error)
	ResetStale(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error)
	MarkPermanentlyFailed(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error)
	CountByStatus(ctx context.Context, status models.SearchStatus) (int, error)
}

// Health is a point-in-time view of the scheduler for the health
// endpoint.
type Health struct {
	QueueDepth        int       `json:"queue_depth"`
	InFlight          int       `json:"in_flight"`
	MaxConcurrent     int       `json:"max_concurrent"`
	ActiveSearchIDs   []string  `json:"active_search_ids,omitempty"`
	LastRecoverySweep time.Time `json:"last_recovery_sweep"`
	StaleReset        int64     `json:"stale_reset"`
	StaleFailed       int64     `json:"stale_failed"`
	DBReachable       bool      `json:"db_reachable"`
	DBError           string    `json:"db_error,omitempty"`
}
