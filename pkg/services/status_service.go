package services

import (
	"context"
	"log/slog"

	"github.com/painscope/painscope/pkg/models"
)

// StatusResponse is the outcome of a status lookup.
type StatusResponse struct {
	SearchID     string               `json:"searchId"`
	Status       models.SearchStatus  `json:"status"`
	ErrorMessage *string              `json:"errorMessage,omitempty"`
	Result       *models.SearchResult `json:"result,omitempty"`
}

// StatusService serves cache-first, store-fallback status lookups.
type StatusService struct {
	cache    ResultCache
	searches *SearchService
}

// NewStatusService creates a StatusService.
func NewStatusService(cache ResultCache, searches *SearchService) *StatusService {
	return &StatusService{cache: cache, searches: searches}
}

// Get returns the current status of a search, with the full result when
// the cache holds one. Returns ErrNotFound for unknown ids.
func (s *StatusService) Get(ctx context.Context, searchID string) (*StatusResponse, error) {
	if result, err := s.cache.GetResultByID(ctx, searchID); err == nil && result != nil {
		return &StatusResponse{
			SearchID: searchID,
			Status:   models.StatusCompleted,
			Result:   result,
		}, nil
	} else if err != nil {
		slog.Warn("Status cache lookup failed", "search_id", searchID, "error", err)
	}

	search, err := s.searches.Get(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		SearchID:     search.ID,
		Status:       search.Status,
		ErrorMessage: search.ErrorMessage,
	}, nil
}
