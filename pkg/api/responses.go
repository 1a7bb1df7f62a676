package api

import "github.com/painscope/painscope/pkg/models"

// SearchResponse is returned by POST /search.
type SearchResponse struct {
	SearchID string               `json:"searchId"`
	Status   models.SearchStatus  `json:"status"`
	Result   *models.SearchResult `json:"result,omitempty"`
}

// StatusResponse is returned by GET /search-status.
type StatusResponse struct {
	SearchID     string               `json:"searchId"`
	Status       models.SearchStatus  `json:"status"`
	ErrorMessage *string              `json:"errorMessage,omitempty"`
	Result       *models.SearchResult `json:"result,omitempty"`
}

// ErrorResponse is the error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Issues map[string][]string `json:"issues,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Database  any    `json:"database,omitempty"`
	Scheduler any    `json:"scheduler,omitempty"`
	WSClients int    `json:"ws_clients"`
}
