// Package eicu maps eICU-CRD tables to canonical observations and infusion
// statements.
//
// eICU stores times as minute offsets from the unit admission. Absolute times
// are anchored at the hospital admission time of day on January 1 of the
// discharge year.
package eicu

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/source"
)

const (
	// StayID identifies a patient's hospital stay.
	StayID = "patienthealthsystemstayid"

	schema       = "eicu_crd"
	patientTable = "patient"
	unitStayID   = "patientunitstayid"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the eICU sampler and mappers.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSampler(config.EICU, NewSampler)
	r.RegisterMapper(config.EICU, ObservationClass, NewObservationMapper)
	r.RegisterMapper(config.EICU, InfusionClass, NewInfusionMapper)
}

// NewSampler samples hospital stays from the patient table.
func NewSampler(cfg config.SourceConfig, conn database.Connector) (source.Sampler, error) {
	return source.NewDatabaseSampler(config.EICU, cfg, conn, schema, patientTable, StayID)
}

// patientJoin joins a measurement table to the patient table on the unit
// stay. Queries on the patient table itself need no join.
func patientJoin(p source.TableParams) map[string]map[string]string {
	joins := make(map[string]map[string]string, len(p.Joins)+1)
	if p.Schema != schema || p.Table != patientTable {
		joins[schema+"."+patientTable] = map[string]string{
			qualified(p.Schema, p.Table, unitStayID): qualified(schema, patientTable, unitStayID),
		}
	}
	for tbl, on := range p.Joins {
		joins[tbl] = on
	}
	return joins
}

func qualified(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}

// anchor returns the admission time of day on January 1 of year, in UTC.
func anchor(timeOfDay, year any) (time.Time, error) {
	y, err := source.Int(year)
	if err != nil {
		return time.Time{}, fmt.Errorf("year: %w", err)
	}
	t, err := time.ParseInLocation("15:04:05", strings.TrimSpace(source.String(timeOfDay)), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("time of day: %w", err)
	}
	return time.Date(int(y), time.January, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}

// offsetTime shifts the anchor by offset minutes.
func offsetTime(timeOfDay, year, offset any) (time.Time, error) {
	base, err := anchor(timeOfDay, year)
	if err != nil {
		return time.Time{}, err
	}
	minutes, err := source.Int(offset)
	if err != nil {
		return time.Time{}, fmt.Errorf("offset: %w", err)
	}
	return base.Add(time.Duration(minutes) * time.Minute), nil
}
