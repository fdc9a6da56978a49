// Package source defines how clinical data is pulled out of a data source:
// Mappers turn one job's subjects into a canonical frame for one concept,
// Samplers split a source's subjects into job sized batches.
package source
