package store

import (
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for the catalog store
type Config struct {
	DataDir  string      // Directory for pebble files
	InMemory bool        // Keep everything in memory, DataDir is ignored
	Sync     bool        // Fsync every write
	Logger   *zap.Logger // Defaults to a no-op logger
}

// ImportResult describes one import batch
type ImportResult struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Profiles  int            `json:"profiles"`
	Upserted  int            `json:"upserted"`
	Removed   int            `json:"removed"`
	Skipped   int            `json:"skipped"`
	Formats   int            `json:"formats"`
	Flushes   int            `json:"flushes"`
	Complete  bool           `json:"complete"`
	Error     string         `json:"error,omitempty"`
	ByType    map[string]int `json:"by_type"`
}

// Stats summarizes the stored catalog
type Stats struct {
	Profiles   int            `json:"profiles"`
	ByType     map[string]int `json:"by_type"`
	Imports    int            `json:"imports"`
	DiskSizeMB float64        `json:"disk_size_mb"`
	Uptime     time.Duration  `json:"uptime"`
	CRCErrors  int            `json:"crc_errors"`
	LastImport *ImportResult  `json:"last_import,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Errors
var (
	ErrProfileNotFound = &StoreError{"profile not found"}
	ErrInvalidSymbol   = &StoreError{"invalid symbol"}
	ErrInvalidType     = &StoreError{"invalid type"}
	ErrCorruption      = &StoreError{"data corruption detected"}
	ErrClosed          = &StoreError{"store is closed"}
)

// StoreError represents a catalog store error
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
