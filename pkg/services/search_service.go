package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/painscope/painscope/pkg/models"
)

// SearchService manages rows in the searches table: creation, lookup,
// the skip-locked claim used by the scheduler, retry bookkeeping, and the
// stale-recovery sweep.
type SearchService struct {
	db         DB
	maxRetries int
}

// NewSearchService creates a SearchService. maxRetries caps retry_count.
func NewSearchService(db DB, maxRetries int) *SearchService {
	return &SearchService{db: db, maxRetries: maxRetries}
}

const searchColumns = `id, topic, tags, time_range, min_upvotes, sort_by, status,
	error_message, retry_count, last_retry_at, next_retry_at, created_at, completed_at`

func scanSearch(row pgx.Row) (*models.Search, error) {
	var (
		s    models.Search
		tags []string
	)
	err := row.Scan(&s.ID, &s.Topic, &tags, &s.TimeRange, &s.MinUpvotes, &s.SortBy,
		&s.Status, &s.ErrorMessage, &s.RetryCount, &s.LastRetryAt, &s.NextRetryAt,
		&s.CreatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	s.Tags = tagsFromStrings(tags)
	return &s, nil
}

func tagsToStrings(tags []models.StoryTag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

func tagsFromStrings(tags []string) []models.StoryTag {
	out := make([]models.StoryTag, len(tags))
	for i, t := range tags {
		out[i] = models.StoryTag(t)
	}
	return out
}

// Create inserts a new pending search for a validated request and
// returns the stored row.
func (s *SearchService) Create(ctx context.Context, id string, req models.SearchRequest) (*models.Search, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(ctx,
		`INSERT INTO searches (id, topic, tags, time_range, min_upvotes, sort_by, status, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`,
		id, req.Topic, tagsToStrings(req.Tags), string(req.TimeRange), req.MinUpvotes,
		string(req.SortBy), string(models.StatusPending), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert search: %w", err)
	}

	return &models.Search{
		ID:         id,
		Topic:      req.Topic,
		Tags:       req.Tags,
		TimeRange:  req.TimeRange,
		MinUpvotes: req.MinUpvotes,
		SortBy:     req.SortBy,
		Status:     models.StatusPending,
		CreatedAt:  now,
	}, nil
}

// Get returns a search by id, or ErrNotFound.
func (s *SearchService) Get(ctx context.Context, id string) (*models.Search, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+searchColumns+` FROM searches WHERE id = $1`, id)
	search, err := scanSearch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search: %w", err)
	}
	return search, nil
}

// ClaimPending atomically claims up to limit ready pending searches:
// selected with FOR UPDATE SKIP LOCKED so concurrent scheduler instances
// never double-dispatch, then transitioned to processing with
// last_retry_at = now before the transaction commits.
func (s *SearchService) ClaimPending(ctx context.Context, now time.Time, limit int) ([]*models.Search, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT `+searchColumns+` FROM searches
		 WHERE status = $1
		   AND retry_count < $2
		   AND (next_retry_at IS NULL OR next_retry_at <= $3)
		 ORDER BY created_at ASC
		 LIMIT $4
		 FOR UPDATE SKIP LOCKED`,
		string(models.StatusPending), s.maxRetries, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending searches: %w", err)
	}

	var claimed []*models.Search
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pending search: %w", err)
		}
		claimed = append(claimed, search)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending searches: %w", err)
	}

	for _, search := range claimed {
		if _, err := tx.Exec(ctx,
			`UPDATE searches SET status = $1, last_retry_at = $2 WHERE id = $3`,
			string(models.StatusProcessing), now, search.ID); err != nil {
			return nil, fmt.Errorf("failed to claim search %s: %w", search.ID, err)
		}
		search.Status = models.StatusProcessing
		t := now
		search.LastRetryAt = &t
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return claimed, nil
}

// MarkCompleted transitions a search to completed and stamps
// completed_at.
func (s *SearchService) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE searches SET status = $1, completed_at = $2, error_message = NULL WHERE id = $3`,
		string(models.StatusCompleted), now, id)
	if err != nil {
		return fmt.Errorf("failed to mark search completed: %w", err)
	}
	return nil
}

// ScheduleRetryOrFail applies the retry helper after a pipeline failure.
// While retries remain the search returns to pending with an incremented
// retry_count and next_retry_at = now + 2^(retry_count-1) minutes;
// otherwise it becomes failed. Reports whether a retry was scheduled.
func (s *SearchService) ScheduleRetryOrFail(ctx context.Context, id, errMsg string, now time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var retryCount int
	err = tx.QueryRow(ctx,
		`SELECT retry_count FROM searches WHERE id = $1 FOR UPDATE`, id).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read retry count: %w", err)
	}

	retried := retryCount+1 < s.maxRetries
	if retried {
		next := now.Add(backoffDelay(retryCount + 1))
		_, err = tx.Exec(ctx,
			`UPDATE searches SET status = $1, retry_count = $2, next_retry_at = $3,
			 last_retry_at = $4, error_message = $5 WHERE id = $6`,
			string(models.StatusPending), retryCount+1, next, now, errMsg, id)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE searches SET status = $1, completed_at = $2, error_message = $3 WHERE id = $4`,
			string(models.StatusFailed), now, errMsg, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update search after failure: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit retry update: %w", err)
	}
	return retried, nil
}

// backoffDelay returns the retry delay for the given (already
// incremented) retry count: 1, 2, 4... minutes.
func backoffDelay(retryCount int) time.Duration {
	return time.Duration(1<<(retryCount-1)) * time.Minute
}

// ResetStale reclaims processing searches whose last_retry_at is older
// than staleAfter and which still have retries left, returning them to
// pending with back-off. Returns the number of searches reset.
func (s *SearchService) ResetStale(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error) {
	threshold := now.Add(-staleAfter)
	tag, err := s.db.Exec(ctx,
		`UPDATE searches
		 SET status = $1,
		     retry_count = retry_count + 1,
		     next_retry_at = $2::timestamptz + (interval '1 minute' * (1 << retry_count)),
		     error_message = $3
		 WHERE status = $4
		   AND last_retry_at < $5
		   AND retry_count + 1 < $6`,
		string(models.StatusPending), now, "Search timed out and will be retried",
		string(models.StatusProcessing), threshold, s.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale searches: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkPermanentlyFailed fails stale processing searches that have no
// retries left. Returns the number of searches failed.
func (s *SearchService) MarkPermanentlyFailed(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error) {
	threshold := now.Add(-staleAfter)
	tag, err := s.db.Exec(ctx,
		`UPDATE searches
		 SET status = $1, completed_at = $2, error_message = $3
		 WHERE status = $4
		   AND last_retry_at < $5
		   AND retry_count + 1 >= $6`,
		string(models.StatusFailed), now, "Search timed out",
		string(models.StatusProcessing), threshold, s.maxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale searches failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns how many searches are in the given status.
func (s *SearchService) CountByStatus(ctx context.Context, status models.SearchStatus) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM searches WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return count, nil
}

// DeleteOlderThan purges terminal searches created before cutoff.
// Derived rows follow via ON DELETE CASCADE. Returns the number purged.
func (s *SearchService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM searches
		 WHERE created_at < $1 AND status IN ($2, $3)`,
		cutoff, string(models.StatusCompleted), string(models.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to purge searches: %w", err)
	}
	return tag.RowsAffected(), nil
}
