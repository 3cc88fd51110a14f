// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/ipfdb/pkg/api" //nolint:depguard
	"github.com/ssargent/ipfdb/pkg/config"
	"github.com/ssargent/ipfdb/pkg/refresh"
	"github.com/ssargent/ipfdb/pkg/store"
)

// StoreOpener opens the catalog store
type StoreOpener func(store.Config) (store.Store, error)

// RefresherFactory builds a refresher for a catalog source
type RefresherFactory func(importer refresh.Importer, source config.Source, opts ...refresh.Option) (*refresh.Refresher, error)

// Container holds all the dependencies for the application
type Container struct {
	storeOpener      StoreOpener
	serverFactory    api.ServerFactory
	refresherFactory RefresherFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		storeOpener: func(c store.Config) (store.Store, error) {
			return store.Open(c)
		},
		serverFactory:    api.NewServerFactory(),
		refresherFactory: refresh.New,
	}
}

// GetStoreOpener returns the store opener
func (c *Container) GetStoreOpener() StoreOpener {
	return c.storeOpener
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// GetRefresherFactory returns the refresher factory
func (c *Container) GetRefresherFactory() RefresherFactory {
	return c.refresherFactory
}

// SetStoreOpener allows overriding the store opener (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
