// Package fhir holds the canonical value records every mapper converges to
// and the tabular Frame that carries them between graph nodes.
package fhir
