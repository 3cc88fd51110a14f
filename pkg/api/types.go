package api

import (
	"time"

	"go.uber.org/zap"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ProfileSummary is one entry of a profile listing
type ProfileSummary struct {
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port        int
	Bind        string
	APIKey      string // Empty disables authentication
	SkipRemoved bool   // Default for exports without skip_removed
	Logger      *zap.Logger

	// ShutdownTimeout bounds graceful shutdown, defaults to 10s
	ShutdownTimeout time.Duration
}
