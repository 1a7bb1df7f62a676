package models

import (
	"encoding/json"
	"time"
)

// LogLevel is the severity of a job log entry.
type LogLevel string

// Job log levels.
const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// JobLog is an append-only diagnostic record, optionally tied to a search.
type JobLog struct {
	ID        int64           `json:"id"`
	SearchID  *string         `json:"searchId,omitempty"`
	Level     LogLevel        `json:"level"`
	Message   string          `json:"message"`
	Context   json.RawMessage `json:"context,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ApiUsage records token consumption and cost for one external service call.
type ApiUsage struct {
	ID               int64     `json:"id"`
	SearchID         string    `json:"searchId"`
	Service          string    `json:"service"`
	TokensUsed       int       `json:"tokensUsed"`
	EstimatedCostUSD float64   `json:"estimatedCostUsd"`
	CreatedAt        time.Time `json:"createdAt"`
}
