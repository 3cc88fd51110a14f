// Package api provides factory implementations for dependency injection
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssargent/ipfdb/pkg/store"
)

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// CreateHandler builds a handler with its own metrics registry
func (f *DefaultServerFactory) CreateHandler(catalog store.Store, refresher Refresher, config ServerConfig) http.Handler {
	reg := prometheus.NewRegistry()
	server := NewServer(catalog, refresher, config, NewMetrics(reg))
	return NewRouter(server, reg)
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct{}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, catalog store.Store, refresher Refresher, config ServerConfig) error {
	return StartServer(ctx, catalog, refresher, config)
}
