// Package cleanup enforces data retention: terminal searches older than
// the retention window are purged together with their derived rows, and
// job logs age out on the same schedule.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// cleanupInterval is how often the retention sweep runs. Daily is
// plenty; the sweep is idempotent and safe across instances.
const cleanupInterval = 24 * time.Hour

// SearchPurger deletes old terminal searches. Implemented by
// *services.SearchService.
type SearchPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogPurger deletes old job logs. Implemented by *services.JobLogService.
type LogPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service is the background retention sweeper.
type Service struct {
	retention time.Duration
	searches  SearchPurger
	logs      LogPurger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service keeping retentionDays of history.
func NewService(retentionDays int, searches SearchPurger, logs LogPurger) *Service {
	return &Service{
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		searches:  searches,
		logs:      logs,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "retention", s.retention)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one retention pass. Search deletion cascades to results,
// pain points, quotes, analyses, and events at the schema level.
func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)

	purged, err := s.searches.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Search retention sweep failed", "error", err)
	} else if purged > 0 {
		slog.Info("Purged old searches", "count", purged)
	}

	logsPurged, err := s.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Job log retention sweep failed", "error", err)
	} else if logsPurged > 0 {
		slog.Info("Purged old job logs", "count", logsPurged)
	}
}
