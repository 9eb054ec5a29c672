// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package embedsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/embedsearch/ai"
	"github.com/poiesic/embedsearch/ai/openai"
	"github.com/poiesic/embedsearch/backfill"
	"github.com/poiesic/embedsearch/config"
	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/search"
	"github.com/poiesic/embedsearch/server"
	"github.com/poiesic/embedsearch/storage"
	"github.com/poiesic/embedsearch/storage/badger"
	"github.com/poiesic/embedsearch/storage/postgrest"
)

// ErrSeedUnsupported is returned by Seed when the store cannot accept new
// records.
var ErrSeedUnsupported = errors.New("store does not support seeding")

// recordAdder is implemented by stores that accept new records.
type recordAdder interface {
	AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error)
}

// App owns the record store and the embedding provider for the lifetime of
// a process and builds the components that use them.
type App struct {
	config   *config.Config
	store    storage.RecordStore
	provider ai.AIProvider
	logger   *slog.Logger
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	store    storage.RecordStore
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithStore uses store instead of opening one from the configuration.
// The App takes ownership and closes it.
func WithStore(store storage.RecordStore) AppOption {
	return func(o *appOptions) {
		o.store = store
	}
}

// WithProvider uses provider instead of connecting to the configured
// embedding service. The App takes ownership and closes it.
func WithProvider(provider ai.AIProvider) AppOption {
	return func(o *appOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// NewApp validates cfg, opens the store and loads the embedding model.
// A nil cfg uses config.DefaultConfig.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	options := &appOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := options.store
	if store == nil {
		var err error
		store, err = OpenStore(cfg, options.logger)
		if err != nil {
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(ctx, cfg.AIConfig())
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &App{
		config:   cfg,
		store:    store,
		provider: provider,
		logger:   options.logger,
	}, nil
}

// OpenStore opens the store selected by cfg.Store.Backend.
func OpenStore(cfg *config.Config, logger *slog.Logger) (storage.RecordStore, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgREST:
		store, err := postgrest.NewStore(cfg.PostgRESTConfig(), postgrest.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendBadger:
		store, err := badger.Open(cfg.Store.Path, badger.WithDimensions(cfg.Embedding.Dimensions))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Store.Backend)
}

// Close releases the provider, then the store.
func (a *App) Close() error {
	logger := a.logger.With("component", "app")
	if err := a.provider.Close(); err != nil {
		logger.Error("error closing AI provider", "err", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Error("error closing record store", "err", err)
		return err
	}
	return nil
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config {
	return a.config
}

// Store returns the record store.
func (a *App) Store() storage.RecordStore {
	return a.store
}

// Provider returns the embedding provider.
func (a *App) Provider() ai.AIProvider {
	return a.provider
}

// NewBackfillJob creates a backfill job from the configuration.
// Callers must Release the job.
func (a *App) NewBackfillJob(opts ...backfill.Option) (*backfill.Job, error) {
	opts = append([]backfill.Option{backfill.WithLogger(a.logger)}, opts...)
	return backfill.NewJob(a.store, a.provider.Embedder(), a.config.BackfillConfig(), opts...)
}

// NewSearchService creates a search service from the configuration.
func (a *App) NewSearchService(opts ...search.Option) (*search.Service, error) {
	base := append([]search.Option{search.WithLogger(a.logger)}, a.config.SearchOptions()...)
	return search.NewService(a.store, a.provider.Embedder(), append(base, opts...)...)
}

// NewServer creates the HTTP server around a new search service.
func (a *App) NewServer(opts ...server.Option) (*server.Server, error) {
	service, err := a.NewSearchService()
	if err != nil {
		return nil, err
	}
	base := append([]server.Option{
		server.WithLogger(a.logger),
		server.WithModel(a.provider.Model()),
	}, a.config.ServerOptions()...)
	return server.New(service, append(base, opts...)...)
}

// Seed adds records to stores that support it.
func (a *App) Seed(ctx context.Context, records []*core.Record) (int, error) {
	return SeedStore(ctx, a.store, records)
}
