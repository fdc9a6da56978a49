// Package graph provides the dependency graph primitives the pipeline is
// built from.
//
// A Node produces canonical data for one job. Nodes are connected by Pipes,
// each linking exactly one producing node to one consuming node. A consumer
// reads its sources through a Strategy, which either walks them in order on
// the calling goroutine or fans them out over a bounded worker pool.
//
// # Lifecycle
//
// 1. **Built** single-threaded by the pipeline through AddPipe, which
// re-validates acyclicity after every edge.
// 2. **Executed** once per job by calling GetData on the terminal sink; the
// graph is read-only from this point.
// 3. **Discarded** when the pipeline run ends.
package graph
