package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/source"
)

var (
	ErrUnknownMapper  = errors.New("no mapper registered")
	ErrUnknownSampler = errors.New("no sampler registered")
)

// Module is the interface that all source modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// MapperFactory builds a mapper for one concept from its configuration.
type MapperFactory func(args source.MapperArgs) (source.Mapper, error)

// SamplerFactory builds the sampler of a data source.
type SamplerFactory func(cfg config.SourceConfig, conn database.Connector) (source.Sampler, error)

// MapperKey identifies a mapper implementation.
type MapperKey struct {
	Source config.DataSource
	Class  string
}

func (k MapperKey) String() string { return fmt.Sprintf("%s/%s", k.Source, k.Class) }

// Registry holds the registered factories of a single application instance.
type Registry struct {
	mappers  map[MapperKey]MapperFactory
	samplers map[config.DataSource]SamplerFactory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		mappers:  make(map[MapperKey]MapperFactory),
		samplers: make(map[config.DataSource]SamplerFactory),
	}
}

// NewWithModules creates a registry and registers every module.
func NewWithModules(modules ...Module) *Registry {
	r := New()
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterMapper registers a mapper constructor. Registering a key twice
// panics.
func (r *Registry) RegisterMapper(ds config.DataSource, class string, f MapperFactory) {
	key := MapperKey{Source: ds, Class: class}
	if _, exists := r.mappers[key]; exists {
		panic(fmt.Sprintf("mapper '%s' already registered", key))
	}
	slog.Debug("Registering mapper.", "source", ds, "class", class)
	r.mappers[key] = f
}

// RegisterSampler registers the sampler constructor of a data source.
// Registering a source twice panics.
func (r *Registry) RegisterSampler(ds config.DataSource, f SamplerFactory) {
	if _, exists := r.samplers[ds]; exists {
		panic(fmt.Sprintf("sampler for source '%s' already registered", ds))
	}
	slog.Debug("Registering sampler.", "source", ds)
	r.samplers[ds] = f
}

// Mapper returns the constructor registered for (ds, class).
func (r *Registry) Mapper(ds config.DataSource, class string) (MapperFactory, error) {
	f, ok := r.mappers[MapperKey{Source: ds, Class: class}]
	if !ok {
		return nil, fmt.Errorf("%w for class %q on source %q (registered: %v)", ErrUnknownMapper, class, ds, r.classes(ds))
	}
	return f, nil
}

// Sampler returns the constructor registered for ds.
func (r *Registry) Sampler(ds config.DataSource) (SamplerFactory, error) {
	f, ok := r.samplers[ds]
	if !ok {
		return nil, fmt.Errorf("%w for source %q", ErrUnknownSampler, ds)
	}
	return f, nil
}

// Mappers returns the registered mapper keys, sorted.
func (r *Registry) Mappers() []MapperKey {
	keys := make([]MapperKey, 0, len(r.mappers))
	for k := range r.mappers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Samplers returns the sources that have a sampler, sorted.
func (r *Registry) Samplers() []config.DataSource {
	out := make([]config.DataSource, 0, len(r.samplers))
	for ds := range r.samplers {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) classes(ds config.DataSource) []string {
	var out []string
	for k := range r.mappers {
		if k.Source == ds {
			out = append(out, k.Class)
		}
	}
	sort.Strings(out)
	return out
}
