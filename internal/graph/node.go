package graph

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/job"
)

// Data maps a producing concept id to the frame it produced for a job.
type Data map[string]*fhir.Frame

// Node is a computation step in the graph. Concrete nodes embed *Base, which
// supplies the wiring, and implement GetData.
type Node interface {
	GetData(ctx context.Context, j *job.Job) (Data, error)
	base() *Base
}

// Base holds the identity and wiring shared by every node.
type Base struct {
	kind      string
	id        int64
	conceptID string
	required  []string
	sources   map[string]*Pipe
	sinks     map[int64]*Pipe
	strategy  Strategy
}

// NewBase creates the shared part of a node. kind names the node type in
// logs and graph renderings; conceptID is empty for sinks.
func NewBase(kind string, id int64, conceptID string, required ...string) *Base {
	return &Base{
		kind:      kind,
		id:        id,
		conceptID: conceptID,
		required:  slices.Clone(required),
		sources:   make(map[string]*Pipe),
		sinks:     make(map[int64]*Pipe),
	}
}

func (b *Base) base() *Base { return b }

func (b *Base) ID() int64         { return b.id }
func (b *Base) ConceptID() string { return b.conceptID }
func (b *Base) Kind() string      { return b.kind }

// RequiredConcepts lists the concepts this node needs besides its own.
func (b *Base) RequiredConcepts() []string { return slices.Clone(b.required) }

// Sources returns the inbound pipes ordered by producing concept id.
func (b *Base) Sources() []*Pipe {
	keys := make([]string, 0, len(b.sources))
	for k := range b.sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Pipe, len(keys))
	for i, k := range keys {
		out[i] = b.sources[k]
	}
	return out
}

// Source returns the inbound pipe for a producing concept id.
func (b *Base) Source(conceptID string) (*Pipe, bool) {
	p, ok := b.sources[conceptID]
	return p, ok
}

// Sinks returns the outbound pipes ordered by consumer id.
func (b *Base) Sinks() []*Pipe {
	keys := make([]int64, 0, len(b.sinks))
	for k := range b.sinks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]*Pipe, len(keys))
	for i, k := range keys {
		out[i] = b.sinks[k]
	}
	return out
}

// Fetch reads every source for the job with the node's strategy and returns
// their data merged by producing concept id.
func (b *Base) Fetch(ctx context.Context, j *job.Job) (Data, error) {
	s := b.strategy
	if s == nil {
		s = Synchronous{}
	}
	return s.Fetch(ctx, b.Sources(), j)
}

func (b *Base) String() string {
	if b.conceptID == "" {
		return fmt.Sprintf("%s(%d)", b.kind, b.id)
	}
	return fmt.Sprintf("%s(%d, %s)", b.kind, b.id, b.conceptID)
}

// Describe renders a node for logs and errors.
func Describe(n Node) string { return n.base().String() }

// Info exposes the wiring of any node.
func Info(n Node) *Base { return n.base() }
