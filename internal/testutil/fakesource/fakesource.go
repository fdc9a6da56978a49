// Package fakesource registers an in-memory data source for tests. Its
// mapper emits synthetic observations described by the concept's params and
// its sampler yields fixed batches.
package fakesource

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/source"
)

// Class is the mapper class name the module registers.
const Class = "StaticObservationMapper"

// Module registers the static mapper and a sampler for Source.
type Module struct {
	Source  config.DataSource
	Batches []job.Batch

	mu    sync.Mutex
	calls map[string]int
	fail  error
}

// Calls returns how often the mapper of a concept was queried.
func (m *Module) Calls(concept string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[concept]
}

// FailWith makes every mapper call return err.
func (m *Module) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Module) Register(r *registry.Registry) {
	r.RegisterMapper(m.Source, Class, m.newMapper)
	r.RegisterSampler(m.Source, func(config.SourceConfig, database.Connector) (source.Sampler, error) {
		return &sampler{ds: m.Source, batches: m.Batches}, nil
	})
}

func (m *Module) record(concept string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[concept]++
	return m.fail
}

// newMapper reads params "value" (number, default 1) and "rows" (rows per
// subject, default 1).
func (m *Module) newMapper(args source.MapperArgs) (source.Mapper, error) {
	value, rows := 1.0, 1
	if v, ok := args.Mapper.Params["value"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("param value must be a number, got %T", v)
		}
		value = f
	}
	if v, ok := args.Mapper.Params["rows"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("param rows must be a number, got %T", v)
		}
		rows = int(f)
	}
	return &mapper{module: m, args: args, value: value, rows: rows}, nil
}

type mapper struct {
	module *Module
	args   source.MapperArgs
	value  float64
	rows   int
}

func (s *mapper) ConceptID() string             { return s.args.Concept.Name }
func (s *mapper) DataSource() config.DataSource { return s.args.Mapper.Source }
func (s *mapper) Unit() string                  { return s.args.Mapper.Unit }

func (s *mapper) GetData(_ context.Context, j *job.Job) (*fhir.Frame, error) {
	if err := s.module.record(s.args.Concept.Name); err != nil {
		return nil, err
	}
	subjects := j.Subjects()
	frame := fhir.NewFrame(fhir.Observation, subjects.Len()*s.rows)
	start := time.Date(2150, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, row := range subjects.Rows {
		for i := 0; i < s.rows; i++ {
			frame.Rows = append(frame.Rows, fhir.Row{
				fhir.ColSubject:           fhir.Reference{Reference: source.String(row[0]), Type: string(s.DataSource())},
				fhir.ColCode:              s.args.Code(),
				fhir.ColEffectiveDateTime: start.Add(time.Duration(i) * time.Minute),
				fhir.ColValueQuantity:     fhir.Quantity{Value: s.value, Unit: s.Unit()},
			})
		}
	}
	return frame, nil
}

type sampler struct {
	ds      config.DataSource
	batches []job.Batch
	used    atomic.Bool
}

func (s *sampler) DataSource() config.DataSource { return s.ds }

func (s *sampler) Identifiers() []string {
	if len(s.batches) == 0 {
		return nil
	}
	return s.batches[0].Columns
}

func (s *sampler) Samples(context.Context) iter.Seq2[job.Batch, error] {
	return func(yield func(job.Batch, error) bool) {
		if !s.used.CompareAndSwap(false, true) {
			yield(job.Batch{}, source.ErrSamplerConsumed)
			return
		}
		for _, b := range s.batches {
			if !yield(b, nil) {
				return
			}
		}
	}
}
