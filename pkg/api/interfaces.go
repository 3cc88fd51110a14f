// Package api provides interfaces for dependency injection
package api

import (
	"context"
	"net/http"

	"github.com/ssargent/ipfdb/pkg/store"
)

// Refresher re-imports the configured catalog source
type Refresher interface {
	RefreshNow(ctx context.Context) (*store.ImportResult, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves the API until ctx is done
	StartServer(ctx context.Context, catalog store.Store, refresher Refresher, config ServerConfig) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter

	// CreateHandler builds the routed handler without listening
	CreateHandler(catalog store.Store, refresher Refresher, config ServerConfig) http.Handler
}
