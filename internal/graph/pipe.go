package graph

import (
	"context"

	"github.com/vk/icupipe/internal/job"
)

// Pipe connects one producing node to one consuming node.
type Pipe struct {
	source Node
	sink   Node
}

func (p *Pipe) Source() Node { return p.source }
func (p *Pipe) Sink() Node   { return p.sink }

// Read pulls the producer's data for the job.
func (p *Pipe) Read(ctx context.Context, j *job.Job) (Data, error) {
	d, err := p.source.GetData(ctx, j)
	if err != nil {
		return nil, err
	}
	return p.Write(ctx, j, d)
}

// Write is the hook data passes through on its way to the consumer. It
// currently forwards data unchanged.
func (p *Pipe) Write(_ context.Context, _ *job.Job, d Data) (Data, error) {
	return d, nil
}
