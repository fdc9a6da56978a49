// Package amds maps AmsterdamUMCdb numeric items to canonical observations.
//
// AmsterdamUMCdb publishes times as milliseconds since the patient's first
// admission and only a year group per admission. Absolute times are anchored
// at midnight on January 1 of the first year of the group.
package amds

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/source"
)

const (
	// PatientID identifies a patient across admissions.
	PatientID = "patientid"

	schema          = "amsterdamumcdb"
	admissionsTable = "admissions"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the AmsterdamUMCdb sampler and mappers.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSampler(config.AMDS, NewSampler)
	r.RegisterMapper(config.AMDS, NumericItemsClass, NewNumericItemsMapper)
}

// NewSampler samples patients from the admissions table.
func NewSampler(cfg config.SourceConfig, conn database.Connector) (source.Sampler, error) {
	return source.NewDatabaseSampler(config.AMDS, cfg, conn, schema, admissionsTable, PatientID)
}

// yearGroupStart reads the first year of a group such as "2003-2009".
func yearGroupStart(group any) (time.Time, error) {
	s := strings.TrimSpace(source.String(group))
	first, _, _ := strings.Cut(s, "-")
	y, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return time.Time{}, fmt.Errorf("year group %q: %w", s, err)
	}
	return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), nil
}
