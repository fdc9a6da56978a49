package graph

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vk/icupipe/internal/job"
)

// Strategy decides how a node reads its sources for a job.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, pipes []*Pipe, j *job.Job) (Data, error)
}

const (
	StrategySync   = "sync"
	StrategyFanOut = "fanout"
)

// NewStrategy resolves a strategy by name. workers bounds the fan-out per
// node; zero or less means one goroutine per source.
func NewStrategy(name string, workers int) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", StrategySync, "inmemory":
		return Synchronous{}, nil
	case StrategyFanOut, "parallel":
		return FanOut{Workers: workers}, nil
	}
	return nil, fmt.Errorf("unknown execution strategy %q (expected %q or %q)", name, StrategySync, StrategyFanOut)
}

// Synchronous reads sources one after another on the calling goroutine, in
// producing concept order.
type Synchronous struct{}

func (Synchronous) Name() string { return StrategySync }

func (Synchronous) Fetch(ctx context.Context, pipes []*Pipe, j *job.Job) (Data, error) {
	out := make(Data, len(pipes))
	for _, p := range pipes {
		d, err := p.Read(ctx, j)
		if err != nil {
			return nil, err
		}
		if err := merge(out, d, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FanOut reads every source concurrently and merges the results by producing
// concept id once all of them finished. The first failure cancels the rest.
type FanOut struct {
	Workers int
}

func (FanOut) Name() string { return StrategyFanOut }

func (f FanOut) Fetch(ctx context.Context, pipes []*Pipe, j *job.Job) (Data, error) {
	if len(pipes) == 1 {
		return Synchronous{}.Fetch(ctx, pipes, j)
	}

	results := make([]Data, len(pipes))
	g, gctx := errgroup.WithContext(ctx)
	if f.Workers > 0 {
		g.SetLimit(f.Workers)
	}
	for i, p := range pipes {
		g.Go(func() error {
			d, err := p.Read(gctx, j)
			if err != nil {
				return err
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(Data, len(pipes))
	for i, d := range results {
		if err := merge(out, d, pipes[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func merge(out, d Data, p *Pipe) error {
	for k, v := range d {
		if _, dup := out[k]; dup {
			return fmt.Errorf("%w: concept %q produced twice for %s", ErrGraphStructure, k, p.sink.base())
		}
		out[k] = v
	}
	return nil
}
