// Package registry holds the compile-time table of source implementations.
// Source modules register their mapper constructors, keyed by data source
// and class name, and one sampler constructor per data source. Concept
// configurations then refer to mappers by class name only.
package registry
