// Package pipeline wires concepts, unit converters and a sink into a graph
// and drives it with the batches every configured source samples.
//
// A Transform call builds a fresh graph:
//
//	Concept -> Converter -> Sink
//
// for every requested concept, then completes it by backpropagation: each
// converter's required concepts that were not requested are instantiated
// with their own default converter and wired into the requester. The graph
// is then executed once per sampled job.
package pipeline
