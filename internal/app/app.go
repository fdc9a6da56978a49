package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/hcl"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/sink"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	loader   config.Loader
	sources  map[config.DataSource]config.SourceConfig
	pool     *database.Pool

	httpServer *http.Server
	memory     *sink.Memory
}

// NewApp is the constructor for the main application. It loads the sources
// file and the requested concepts and validates them against the registered
// modules. Configuration errors are fatal and panic.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	loader := hcl.NewLoader(cfg.ConceptsPath, cfg.SourcesPath)
	sources, err := loader.LoadSources(ctx)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Sources loaded.", "sources", sourceNames(sources))

	var concepts []*config.ConceptConfig
	for _, name := range cfg.Concepts {
		c, err := loader.LoadConcept(ctx, name)
		if err != nil {
			panic(fmt.Errorf("failed to load configuration: %w", err))
		}
		concepts = append(concepts, c)
	}

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.NewWithModules(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "mappers", len(reg.Mappers()))

	// A mismatch between code and config is a programmer error.
	if err := reg.Validate(ctx, sources, concepts...); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		logger:   logger,
		config:   cfg,
		registry: reg,
		loader:   loader,
		sources:  sources,
		pool:     database.NewPool(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Memory returns the collected data when the memory sink is configured.
func (a *App) Memory() *sink.Memory {
	return a.memory
}

func sourceNames(sources map[config.DataSource]config.SourceConfig) string {
	names := make([]config.DataSource, 0, len(sources))
	for ds := range sources {
		names = append(names, ds)
	}
	return config.JoinSources(names)
}
