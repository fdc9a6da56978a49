package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
)

// Validate checks that every configured source has a sampler and every
// mapper class referenced by the concepts is registered for its source.
func (r *Registry) Validate(ctx context.Context, sources map[config.DataSource]config.SourceConfig, concepts ...*config.ConceptConfig) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for ds := range sources {
		if _, ok := r.samplers[ds]; !ok {
			errs = append(errs, fmt.Sprintf("source '%s': no sampler registered", ds))
		}
	}
	for _, c := range concepts {
		for _, m := range c.Mappers {
			if _, ok := sources[m.Source]; !ok {
				logger.Debug("Skipping mapper of unconfigured source.", "concept", c.Name, "source", m.Source, "class", m.Class)
				continue
			}
			if _, ok := r.mappers[MapperKey{Source: m.Source, Class: m.Class}]; !ok {
				errs = append(errs, fmt.Sprintf("concept '%s': mapper class '%s' is not registered for source '%s'", c.Name, m.Class, m.Source))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
