// Package mimiciv maps MIMIC-IV tables to canonical observations and
// medication statements.
package mimiciv

import (
	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/source"
)

const (
	// SubjectID identifies a patient in every MIMIC-IV table.
	SubjectID = "subject_id"

	samplerSchema = "mimiciv_icu"
	samplerTable  = "icustays"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the MIMIC-IV sampler and mappers.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSampler(config.MIMICIV, NewSampler)
	r.RegisterMapper(config.MIMICIV, ObservationClass, NewObservationMapper)
	r.RegisterMapper(config.MIMICIV, DosageClass, NewDosageMapper)
}

// NewSampler samples the patients with at least one ICU stay.
func NewSampler(cfg config.SourceConfig, conn database.Connector) (source.Sampler, error) {
	return source.NewDatabaseSampler(config.MIMICIV, cfg, conn, samplerSchema, samplerTable, SubjectID)
}
