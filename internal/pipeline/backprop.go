package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/graph"
)

// Backpropagate completes the graph from the sink down: every required
// concept missing from the run is instantiated with its default converter
// and wired into the requesting node. It returns the number of concepts
// added; a second call on the same run adds none.
func (r *Run) Backpropagate(ctx context.Context) (int, error) {
	visited := make(map[int64]bool)
	return r.backprop(ctx, r.Sink, visited)
}

func (r *Run) backprop(ctx context.Context, n graph.Node, visited map[int64]bool) (int, error) {
	info := graph.Info(n)
	if visited[info.ID()] {
		return 0, nil
	}
	visited[info.ID()] = true
	logger := ctxlog.FromContext(ctx)

	added := 0
	// Newly wired dependencies show up in Sources and are walked below.
	for _, dep := range info.RequiredConcepts() {
		conv, known := r.converters[dep]
		if !known {
			c, err := r.pipeline.newConcept(ctx, r, dep)
			if err != nil {
				return added, fmt.Errorf("resolving dependency %q of %s: %w", dep, info, err)
			}
			conv, err = r.pipeline.attachConverter(r, c)
			if err != nil {
				return added, err
			}
			added++
			logger.Debug("Dependency added.", "concept", dep, "required_by", info.String())
		}
		if _, wired := info.Source(dep); wired {
			continue
		}
		if _, err := r.Graph.AddPipe(conv, n); err != nil {
			return added, fmt.Errorf("wiring dependency %q into %s: %w", dep, info, err)
		}
	}

	for _, p := range info.Sources() {
		more, err := r.backprop(ctx, p.Source(), visited)
		added += more
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

// checkRequirements walks the required concepts of every requested concept
// through their configurations and fails on a cycle before the graph is
// touched.
func (p *Pipeline) checkRequirements(ctx context.Context, roots []string) error {
	done := make(map[string]bool)
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		for i, seen := range path {
			if seen == name {
				return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(append(path[i:], name), " -> "))
			}
		}
		if done[name] {
			return nil
		}
		cfg, err := p.opts.Loader.LoadConcept(ctx, name)
		if err != nil {
			return fmt.Errorf("loading concept %q: %w", name, err)
		}
		required, err := p.requiredOf(cfg.Name, cfg.Unit, cfg.Requires)
		if err != nil {
			return err
		}
		path = append(path, name)
		for _, dep := range required {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		done[name] = true
		return nil
	}
	for _, name := range roots {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// requiredOf returns the concepts a concept's converter will require: the
// family's requirements plus the configured ones.
func (p *Pipeline) requiredOf(name, target string, requires []string) ([]string, error) {
	family, err := p.opts.Units.Select(target, nil)
	if err != nil {
		return nil, fmt.Errorf("concept %q: %w", name, err)
	}
	out := append([]string{}, family.Required...)
	return append(out, requires...), nil
}
