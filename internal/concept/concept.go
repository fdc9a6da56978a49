// Package concept implements the graph node that produces one canonical
// measurement by running the mappers configured for the job's data source.
package concept

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/source"
)

var (
	// ErrMissingSource is returned when a job targets a source the concept
	// has no mapper for.
	ErrMissingSource    = errors.New("concept has no mapper for data source")
	ErrConflictingUnits = errors.New("mappers of one source declare different units")
)

// Concept is a leaf node of the graph.
type Concept struct {
	*graph.Base
	config  *config.ConceptConfig
	mappers map[config.DataSource][]source.Mapper
}

// New resolves the mappers of cfg for every source present in sources.
// Mappers of other sources are ignored.
func New(id int64, cfg *config.ConceptConfig, reg *registry.Registry, sources map[config.DataSource]config.SourceConfig, conn database.Connector) (*Concept, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Concept{
		Base:    graph.NewBase("Concept", id, cfg.Name),
		config:  cfg,
		mappers: make(map[config.DataSource][]source.Mapper),
	}
	for _, mc := range cfg.Mappers {
		srcCfg, ok := sources[mc.Source]
		if !ok {
			continue
		}
		factory, err := reg.Mapper(mc.Source, mc.Class)
		if err != nil {
			return nil, fmt.Errorf("concept %q: %w", cfg.Name, err)
		}
		m, err := factory(source.MapperArgs{Concept: cfg, Mapper: mc, Source: srcCfg, Connector: conn})
		if err != nil {
			return nil, fmt.Errorf("concept %q: building mapper %s for %s: %w", cfg.Name, mc.Class, mc.Source, err)
		}
		if existing := c.mappers[mc.Source]; len(existing) > 0 && existing[0].Unit() != m.Unit() {
			return nil, fmt.Errorf("%w: concept %q, source %s: %q and %q",
				ErrConflictingUnits, cfg.Name, mc.Source, existing[0].Unit(), m.Unit())
		}
		c.mappers[mc.Source] = append(c.mappers[mc.Source], m)
	}
	return c, nil
}

func (c *Concept) Config() *config.ConceptConfig { return c.config }

// DataSources returns the data sources the concept can serve, sorted.
func (c *Concept) DataSources() []config.DataSource {
	out := make([]config.DataSource, 0, len(c.mappers))
	for ds := range c.mappers {
		out = append(out, ds)
	}
	slices.Sort(out)
	return out
}

// SourceUnits returns the unit each data source reports the concept in.
func (c *Concept) SourceUnits() map[config.DataSource]string {
	out := make(map[config.DataSource]string, len(c.mappers))
	for ds, ms := range c.mappers {
		out[ds] = ms[0].Unit()
	}
	return out
}

// GetData runs every mapper of the job's source and concatenates their rows.
func (c *Concept) GetData(ctx context.Context, j *job.Job) (graph.Data, error) {
	mappers, ok := c.mappers[j.DataSource()]
	if !ok {
		return nil, fmt.Errorf("%w: concept %q cannot serve %q (available: %s)",
			ErrMissingSource, c.ConceptID(), j.DataSource(), config.JoinSources(c.DataSources()))
	}

	var out *fhir.Frame
	for _, m := range mappers {
		f, err := m.GetData(ctx, j)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = f
			continue
		}
		if f.Resource != out.Resource {
			return nil, fmt.Errorf("concept %q: mappers produce %s and %s", c.ConceptID(), out.Resource, f.Resource)
		}
		out = out.Clone()
		out.Append(f)
	}
	ctxlog.FromContext(ctx).Debug("Concept fetched.", "concept", c.ConceptID(), "job", j.ID(), "rows", out.Len())
	return graph.Data{c.ConceptID(): out}, nil
}
