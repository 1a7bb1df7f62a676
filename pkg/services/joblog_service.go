package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/painscope/painscope/pkg/models"
)

// JobLogService appends diagnostic job log rows. Writes are best-effort:
// a failed log insert must never fail the pipeline, so Append logs and
// swallows errors.
type JobLogService struct {
	db DB
}

// NewJobLogService creates a JobLogService.
func NewJobLogService(db DB) *JobLogService {
	return &JobLogService{db: db}
}

// Append writes one log row. searchID may be empty for service-level
// entries; context may be nil.
func (s *JobLogService) Append(ctx context.Context, searchID string, level models.LogLevel, message string, logCtx map[string]any) {
	var contextJSON []byte = []byte("{}")
	if logCtx != nil {
		b, err := json.Marshal(logCtx)
		if err == nil {
			contextJSON = b
		}
	}

	var sid *string
	if searchID != "" {
		sid = &searchID
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO job_logs (search_id, level, message, context) VALUES ($1, $2, $3, $4)`,
		sid, string(level), message, contextJSON)
	if err != nil {
		slog.Warn("Failed to append job log", "search_id", searchID, "error", err)
	}
}

// DeleteOlderThan purges log rows created before cutoff. Returns the
// number removed.
func (s *JobLogService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM job_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge job logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
