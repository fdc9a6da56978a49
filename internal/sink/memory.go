package sink

import (
	"context"
	"sync"

	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
)

// Memory keeps every job's data in memory.
type Memory struct {
	mu   sync.Mutex
	jobs []*job.Job
	data map[string]graph.Data
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]graph.Data)}
}

func (m *Memory) Write(_ context.Context, j *job.Job, d graph.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, j)
	m.data[j.ID()] = d
	return nil
}

func (m *Memory) Close() error { return nil }

// Jobs returns the written jobs in order.
func (m *Memory) Jobs() []*job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*job.Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Data returns what was written for a job.
func (m *Memory) Data(jobID string) graph.Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[jobID]
}
