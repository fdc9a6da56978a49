// Package sink implements the terminal node of the pipeline graph and the
// writers it hands each job's data to.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
)

// Writer persists the data of one job. Write is called once per job, in
// job order.
type Writer interface {
	Write(ctx context.Context, j *job.Job, data graph.Data) error
	Close() error
}

// Sink pulls every converter for a job and passes the result to its writer.
type Sink struct {
	*graph.Base
	writer Writer

	mu     sync.Mutex
	totals map[string]int
}

// New creates the sink node. A nil writer only collects row counts.
func New(id int64, w Writer) *Sink {
	return &Sink{Base: graph.NewBase("Sink", id, ""), writer: w, totals: make(map[string]int)}
}

// GetData fetches all sources for the job and writes them.
func (s *Sink) GetData(ctx context.Context, j *job.Job) (graph.Data, error) {
	data, err := s.Fetch(ctx, j)
	if err != nil {
		return nil, err
	}
	if s.writer != nil {
		if err := s.writer.Write(ctx, j, data); err != nil {
			return nil, fmt.Errorf("sink write for %s: %w", j, err)
		}
	}

	s.mu.Lock()
	rows := 0
	for concept, f := range data {
		s.totals[concept] += f.Len()
		rows += f.Len()
	}
	s.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Sink wrote job.", "job", j.ID(), "concepts", len(data), "rows", rows)
	return data, nil
}

// Totals returns the number of rows written per concept so far.
func (s *Sink) Totals() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}

// Close closes the writer.
func (s *Sink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

func sortedConcepts(d graph.Data) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
