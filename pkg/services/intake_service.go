package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/painscope/painscope/pkg/fingerprint"
	"github.com/painscope/painscope/pkg/models"
)

// ResultCache is the cache surface intake and status lookups use.
// Implemented by *cache.Cache.
type ResultCache interface {
	GetResultByID(ctx context.Context, searchID string) (*models.SearchResult, error)
	GetResultByFingerprint(ctx context.Context, fp string) (*models.SearchResult, error)
	GetSearchID(ctx context.Context, fp string) (string, error)
	ReserveSearchID(ctx context.Context, fp, searchID string) (string, bool, error)
	ReleaseFingerprint(ctx context.Context, fp string) error
}

// IntakeResponse is the outcome of submitting a search request.
type IntakeResponse struct {
	SearchID string               `json:"searchId"`
	Status   models.SearchStatus  `json:"status"`
	Result   *models.SearchResult `json:"result,omitempty"`
}

// IntakeService deduplicates and enqueues search requests: cached result
// first, then an in-flight search with the same fingerprint, then a new
// pending row.
type IntakeService struct {
	cache    ResultCache
	searches *SearchService
}

// NewIntakeService creates an IntakeService.
func NewIntakeService(cache ResultCache, searches *SearchService) *IntakeService {
	return &IntakeService{cache: cache, searches: searches}
}

// Submit processes a validated, normalized request.
func (s *IntakeService) Submit(ctx context.Context, req models.SearchRequest) (*IntakeResponse, error) {
	fp := fingerprint.Compute(req)
	log := slog.With("topic", req.Topic)

	// Warm hit: an identical search completed recently.
	if result, err := s.cache.GetResultByFingerprint(ctx, fp); err == nil && result != nil {
		log.Info("Intake served from cache")
		return &IntakeResponse{
			SearchID: result.SearchID,
			Status:   models.StatusCompleted,
			Result:   result,
		}, nil
	} else if err != nil {
		// Cache trouble degrades to a fresh search rather than failing
		// the request.
		log.Warn("Result cache lookup failed", "error", err)
	}

	// An identical search may still be in flight.
	if existingID, err := s.cache.GetSearchID(ctx, fp); err == nil && existingID != "" {
		if resp, ok := s.adoptExisting(ctx, existingID); ok {
			return resp, nil
		}
		// The mapping points at a terminal or vanished search; drop it so
		// the reservation below can claim the fingerprint.
		if relErr := s.cache.ReleaseFingerprint(ctx, fp); relErr != nil {
			log.Warn("Failed to release stale fingerprint mapping", "error", relErr)
		}
	} else if err != nil {
		log.Warn("Fingerprint mapping lookup failed", "error", err)
	}

	// Reserve the fingerprint before inserting so two concurrent intakes
	// of the same request cannot both create a row.
	newID := uuid.NewString()
	ownerID, won, err := s.cache.ReserveSearchID(ctx, fp, newID)
	if err != nil {
		log.Warn("Fingerprint reservation failed, proceeding uncached", "error", err)
		ownerID, won = newID, true
	}
	if !won {
		if resp, ok := s.adoptExisting(ctx, ownerID); ok {
			return resp, nil
		}
		// The winner has reserved but not yet inserted; report its id as
		// pending rather than racing it with a duplicate row.
		return &IntakeResponse{SearchID: ownerID, Status: models.StatusPending}, nil
	}

	search, err := s.searches.Create(ctx, newID, req)
	if err != nil {
		if relErr := s.cache.ReleaseFingerprint(ctx, fp); relErr != nil {
			log.Warn("Failed to release fingerprint reservation", "error", relErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Info("Search enqueued", "search_id", search.ID)
	return &IntakeResponse{SearchID: search.ID, Status: models.StatusPending}, nil
}

// adoptExisting resolves a fingerprint-mapped search id against the
// store. In-flight searches are returned as-is; terminal or missing rows
// report not-ok so the caller starts a fresh search.
func (s *IntakeService) adoptExisting(ctx context.Context, searchID string) (*IntakeResponse, bool) {
	search, err := s.searches.Get(ctx, searchID)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Failed to load mapped search", "search_id", searchID, "error", err)
		return nil, false
	}
	if search.Status.IsTerminal() {
		return nil, false
	}
	return &IntakeResponse{SearchID: search.ID, Status: search.Status}, true
}
