package hcl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/fsutil"
)

const extension = ".hcl"

var (
	ErrConceptNotFound = errors.New("concept definition not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// Loader reads concept files from a directory and data sources from a file.
type Loader struct {
	conceptsDir string
	sourcesFile string
	lookupEnv   func(string) (string, bool)
}

// Option customises a Loader.
type Option func(*Loader)

// WithEnv replaces os.LookupEnv for the env() function.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(l *Loader) { l.lookupEnv = lookup }
}

// NewLoader creates a loader. Either path may be empty when the matching
// Load method is never called.
func NewLoader(conceptsDir, sourcesFile string, opts ...Option) *Loader {
	l := &Loader{conceptsDir: conceptsDir, sourcesFile: sourcesFile, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ config.Loader = (*Loader)(nil)

// LoadConcept finds <name>.hcl anywhere below the concepts directory and
// decodes the concept block it holds.
func (l *Loader) LoadConcept(ctx context.Context, name string) (*config.ConceptConfig, error) {
	logger := ctxlog.FromContext(ctx)
	path, err := l.findConcept(name)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loading concept.", "concept", name, "path", path)

	f, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	var root conceptFile
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if len(root.Concepts) != 1 {
		return nil, fmt.Errorf("%w: %s must declare exactly one concept, found %d", ErrInvalidConfig, path, len(root.Concepts))
	}
	block := root.Concepts[0]
	if block.Name != name {
		return nil, fmt.Errorf("%w: %s declares concept %q, expected %q", ErrInvalidConfig, path, block.Name, name)
	}

	cfg, err := translateConcept(block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

func (l *Loader) findConcept(name string) (string, error) {
	if l.conceptsDir == "" {
		return "", fmt.Errorf("%w: %q (no concepts directory configured)", ErrConceptNotFound, name)
	}
	found, err := fsutil.FindByStem(l.conceptsDir, name, extension)
	if err != nil {
		return "", fmt.Errorf("scanning concepts in %s: %w", l.conceptsDir, err)
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %q in %s", ErrConceptNotFound, name, l.conceptsDir)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("%w: concept %q defined by several files: %s", ErrInvalidConfig, name, strings.Join(found, ", "))
}

func translateConcept(b *conceptBlock) (*config.ConceptConfig, error) {
	cfg := &config.ConceptConfig{
		Name:        b.Name,
		Description: b.Description,
		Unit:        b.Unit,
		Requires:    b.Requires,
		Identifiers: make(map[config.CodingSystem]string, len(b.Identifiers)),
	}
	for sys, code := range b.Identifiers {
		switch cs := config.CodingSystem(strings.ToLower(sys)); cs {
		case config.SNOMED, config.LOINC:
			cfg.Identifiers[cs] = code
		default:
			return nil, fmt.Errorf("%w: concept %q: unknown coding system %q", ErrInvalidConfig, b.Name, sys)
		}
	}

	for _, m := range b.Mappers {
		ds, err := config.ParseDataSource(m.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: concept %q, mapper %q: %w", ErrInvalidConfig, b.Name, m.Class, err)
		}
		params, err := decodeParams(m.Params)
		if err != nil {
			return nil, fmt.Errorf("concept %q, mapper %q: %w", b.Name, m.Class, err)
		}
		cfg.Mappers = append(cfg.Mappers, config.MapperConfig{Class: m.Class, Source: ds, Unit: m.Unit, Params: params})
	}
	return cfg, nil
}

func decodeParams(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return map[string]any{}, nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating params: %w", diags)
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, fmt.Errorf("converting params: %w", err)
	}
	switch p := native.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return p, nil
	}
	return nil, fmt.Errorf("%w: params must be an object, got %s", ErrInvalidConfig, v.Type().FriendlyName())
}

// LoadSources decodes every source block of the sources file.
func (l *Loader) LoadSources(ctx context.Context) (map[config.DataSource]config.SourceConfig, error) {
	logger := ctxlog.FromContext(ctx)
	if l.sourcesFile == "" {
		return nil, fmt.Errorf("%w: no sources file configured", ErrInvalidConfig)
	}

	f, diags := hclparse.NewParser().ParseHCLFile(l.sourcesFile)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", l.sourcesFile, diags)
	}
	var root sourcesFile
	if diags := gohcl.DecodeBody(f.Body, l.evalContext(), &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", l.sourcesFile, diags)
	}
	if len(root.Sources) == 0 {
		return nil, fmt.Errorf("%w: %s declares no sources", ErrInvalidConfig, l.sourcesFile)
	}

	out := make(map[config.DataSource]config.SourceConfig, len(root.Sources))
	for _, s := range root.Sources {
		ds, err := config.ParseDataSource(s.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, l.sourcesFile, err)
		}
		if _, dup := out[ds]; dup {
			return nil, fmt.Errorf("%w: %s declares source %q twice", ErrInvalidConfig, l.sourcesFile, ds)
		}
		cfg := config.SourceConfig{Connection: s.Connection}
		if s.Chunksize != nil {
			if *s.Chunksize <= 0 {
				return nil, fmt.Errorf("%w: source %q: chunksize must be positive", ErrInvalidConfig, ds)
			}
			cfg.Chunksize = *s.Chunksize
		}
		if s.Limit != nil {
			if *s.Limit == 0 || *s.Limit < config.NoLimit {
				return nil, fmt.Errorf("%w: source %q: limit must be positive or -1", ErrInvalidConfig, ds)
			}
			cfg.Limit = *s.Limit
		}
		out[ds] = cfg.WithDefaults()
	}
	logger.Debug("Sources loaded.", "count", len(out), "path", l.sourcesFile)
	return out, nil
}
