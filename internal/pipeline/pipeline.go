package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vk/icupipe/internal/concept"
	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/sink"
	"github.com/vk/icupipe/internal/unit"
)

var (
	// ErrMissingMapper is returned when a concept cannot serve a configured
	// data source.
	ErrMissingMapper = errors.New("concept has no mapper for configured source")
	// ErrDependencyCycle is returned when required concepts depend on each
	// other.
	ErrDependencyCycle = errors.New("cyclic concept dependency")
	ErrNoConcepts      = errors.New("no concepts requested")
)

// Options holds the collaborators of a Pipeline.
type Options struct {
	Sources   map[config.DataSource]config.SourceConfig
	Loader    config.Loader
	Registry  *registry.Registry
	Units     *unit.Registry
	Connector database.Connector
	Strategy  graph.Strategy
	Writer    sink.Writer
}

// Pipeline turns concept names into canonical data for every configured
// source.
type Pipeline struct {
	opts Options
}

// New validates opts and fills defaults.
func New(opts Options) (*Pipeline, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("pipeline: no data sources configured")
	}
	if opts.Loader == nil || opts.Registry == nil {
		return nil, errors.New("pipeline: loader and registry are required")
	}
	if opts.Units == nil {
		opts.Units = unit.Default()
	}
	if opts.Strategy == nil {
		opts.Strategy = graph.Synchronous{}
	}
	if opts.Connector == nil {
		opts.Connector = database.NewPool()
	}
	srcs := make(map[config.DataSource]config.SourceConfig, len(opts.Sources))
	for ds, c := range opts.Sources {
		srcs[ds] = c.WithDefaults()
	}
	opts.Sources = srcs
	return &Pipeline{opts: opts}, nil
}

// DataSources returns the configured sources, sorted.
func (p *Pipeline) DataSources() []config.DataSource {
	out := make([]config.DataSource, 0, len(p.opts.Sources))
	for ds := range p.opts.Sources {
		out = append(out, ds)
	}
	slices.Sort(out)
	return out
}

// Run is one built graph.
type Run struct {
	Graph *graph.Graph
	Sink  *sink.Sink

	pipeline   *Pipeline
	ids        *graph.IDGenerator
	concepts   map[string]*concept.Concept
	converters map[string]*unit.Converter
}

// Converter returns the converter node of a concept.
func (r *Run) Converter(name string) (*unit.Converter, bool) {
	c, ok := r.converters[name]
	return c, ok
}

// Concept returns the concept node of a concept.
func (r *Run) Concept(name string) (*concept.Concept, bool) {
	c, ok := r.concepts[name]
	return c, ok
}

// Build loads the named concepts and wires Concept -> Converter -> Sink for
// each, then backpropagates required concepts.
func (p *Pipeline) Build(ctx context.Context, names ...string) (*Run, error) {
	logger := ctxlog.FromContext(ctx)
	if len(names) == 0 {
		return nil, ErrNoConcepts
	}

	r := &Run{
		Graph:      graph.New(p.opts.Strategy),
		pipeline:   p,
		ids:        graph.NewIDGenerator(),
		concepts:   make(map[string]*concept.Concept),
		converters: make(map[string]*unit.Converter),
	}
	r.Sink = sink.New(r.ids.Next(), p.opts.Writer)

	var requested []*concept.Concept
	for _, name := range names {
		if _, dup := r.concepts[name]; dup {
			logger.Warn("Concept requested twice, ignoring duplicate.", "concept", name)
			continue
		}
		c, err := p.newConcept(ctx, r, name)
		if err != nil {
			return nil, err
		}
		requested = append(requested, c)
	}

	if err := p.checkRequirements(ctx, names); err != nil {
		return nil, err
	}

	for _, c := range requested {
		conv, err := p.attachConverter(r, c)
		if err != nil {
			return nil, err
		}
		if _, err := r.Graph.AddPipe(conv, r.Sink); err != nil {
			return nil, fmt.Errorf("wiring %s into the sink: %w", graph.Describe(conv), err)
		}
	}
	logger.Debug("Requested concepts wired.", "count", len(requested))

	added, err := r.Backpropagate(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Dependency graph built.", "nodes", len(r.Graph.Nodes()), "edges", len(r.Graph.Edges()), "dependencies_added", added)
	logger.Debug("Graph paths:\n" + r.Graph.String())
	return r, nil
}

// newConcept loads a concept, builds its node and checks that it can serve
// every configured source.
func (p *Pipeline) newConcept(ctx context.Context, r *Run, name string) (*concept.Concept, error) {
	cfg, err := p.opts.Loader.LoadConcept(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading concept %q: %w", name, err)
	}
	c, err := concept.New(r.ids.Next(), cfg, p.opts.Registry, p.opts.Sources, p.opts.Connector)
	if err != nil {
		return nil, err
	}
	for _, ds := range p.DataSources() {
		if !slices.Contains(c.DataSources(), ds) {
			return nil, fmt.Errorf("%w: concept %q, source %q (available: %s)",
				ErrMissingMapper, name, ds, config.JoinSources(c.DataSources()))
		}
	}
	r.concepts[name] = c
	return c, nil
}

// attachConverter creates the default converter of c and wires c into it.
func (p *Pipeline) attachConverter(r *Run, c *concept.Concept) (*unit.Converter, error) {
	cfg := c.Config()
	units := c.SourceUnits()
	sourceUnits := make([]string, 0, len(units))
	for _, ds := range c.DataSources() {
		sourceUnits = append(sourceUnits, units[ds])
	}
	family, err := p.opts.Units.Select(cfg.Unit, sourceUnits)
	if err != nil {
		return nil, fmt.Errorf("concept %q: %w", cfg.Name, err)
	}
	conv := unit.NewConverter(r.ids.Next(), cfg.Name, family, cfg.Unit, units, cfg.Requires...)
	if _, err := r.Graph.AddPipe(c, conv); err != nil {
		return nil, fmt.Errorf("wiring concept %q into its converter: %w", cfg.Name, err)
	}
	r.converters[cfg.Name] = conv
	return conv, nil
}

// Transform builds the graph for names and runs it for every sampled job of
// every configured source, in source order. fn receives each job's data; a
// nil fn discards it.
func (p *Pipeline) Transform(ctx context.Context, names []string, fn func(*job.Job, graph.Data) error) (*Run, error) {
	logger := ctxlog.FromContext(ctx)
	r, err := p.Build(ctx, names...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.Sink.Close(); err != nil {
			logger.Error("Closing sink failed.", "error", err)
		}
	}()

	for _, ds := range p.DataSources() {
		if err := p.runSource(ctx, r, ds, fn); err != nil {
			return r, err
		}
	}
	logger.Info("🏁 Transform finished.", "rows", r.Sink.Totals())
	return r, nil
}

func (p *Pipeline) runSource(ctx context.Context, r *Run, ds config.DataSource, fn func(*job.Job, graph.Data) error) error {
	logger := ctxlog.FromContext(ctx).With("source", ds)
	factory, err := p.opts.Registry.Sampler(ds)
	if err != nil {
		return err
	}
	sampler, err := factory(p.opts.Sources[ds], p.opts.Connector)
	if err != nil {
		return fmt.Errorf("creating %s sampler: %w", ds, err)
	}

	logger.Info("🚀 Sampling source.", "identifiers", sampler.Identifiers(), "strategy", r.Graph.Strategy().Name())
	jobs := 0
	for batch, err := range sampler.Samples(ctx) {
		if err != nil {
			return fmt.Errorf("sampling %s: %w", ds, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		j := job.New(ds, batch)
		start := time.Now()
		data, err := r.Sink.GetData(ctx, j)
		if err != nil {
			return fmt.Errorf("%s: %w", j, err)
		}
		jobs++
		logger.Info("Job finished.", "job", j.ID(), "fingerprint", fmt.Sprintf("%016x", j.Fingerprint()),
			"subjects", batch.Len(), "duration", time.Since(start).Round(time.Millisecond))
		if fn != nil {
			if err := fn(j, data); err != nil {
				return err
			}
		}
	}
	logger.Info("Source finished.", "jobs", jobs)
	return nil
}
