package unit

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
)

// Converter is the graph node that rescales one concept's quantities from
// the unit of the job's source to the concept's declared unit.
type Converter struct {
	*graph.Base
	family      *Family
	target      string
	sourceUnits map[config.DataSource]string
}

// NewConverter creates the converter node for conceptID. requires lists
// concepts the conversion depends on in addition to the family's own.
func NewConverter(id int64, conceptID string, family *Family, target string, sourceUnits map[config.DataSource]string, requires ...string) *Converter {
	required := slices.Clone(family.Required)
	for _, r := range requires {
		if !slices.Contains(required, r) {
			required = append(required, r)
		}
	}
	units := make(map[config.DataSource]string, len(sourceUnits))
	for k, v := range sourceUnits {
		units[k] = v
	}
	return &Converter{
		Base:        graph.NewBase("Converter", id, conceptID, required...),
		family:      family,
		target:      target,
		sourceUnits: units,
	}
}

func (c *Converter) Family() *Family { return c.family }
func (c *Converter) Target() string  { return c.target }

// GetData fetches the concept and its dependencies and returns the concept's
// frame in the target unit.
func (c *Converter) GetData(ctx context.Context, j *job.Job) (graph.Data, error) {
	want := 1 + len(c.RequiredConcepts())
	if got := len(c.Sources()); got != want {
		return nil, fmt.Errorf("%w: %s expects %d sources (concept plus %v), has %d",
			ErrConfiguration, c, want, c.RequiredConcepts(), got)
	}
	from, ok := c.sourceUnits[j.DataSource()]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no source unit for data source %q", ErrConfiguration, c, j.DataSource())
	}

	data, err := c.Fetch(ctx, j)
	if err != nil {
		return nil, err
	}
	frame, ok := data[c.ConceptID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s received no data for its concept", ErrConfiguration, c)
	}

	if normalize(from) == normalize(c.target) {
		return graph.Data{c.ConceptID(): frame}, nil
	}
	out, err := c.family.ConvertFrame(frame, from, c.target)
	if err != nil {
		return nil, fmt.Errorf("%s: converting %q to %q: %w", c, from, c.target, err)
	}
	ctxlog.FromContext(ctx).Debug("Converted concept.", "concept", c.ConceptID(), "from", from, "to", c.target, "rows", out.Len())
	return graph.Data{c.ConceptID(): out}, nil
}
