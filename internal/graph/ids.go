package graph

import "sync/atomic"

// IDGenerator hands out monotonic node ids for one pipeline run.
type IDGenerator struct {
	last atomic.Int64
}

func NewIDGenerator() *IDGenerator { return &IDGenerator{} }

// Next returns the next id, starting at 1.
func (g *IDGenerator) Next() int64 { return g.last.Add(1) }
