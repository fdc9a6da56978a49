package concept

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/testutil"
	"github.com/vk/icupipe/internal/testutil/fakesource"
)

func heartRate(mappers ...config.MapperConfig) *config.ConceptConfig {
	return &config.ConceptConfig{Name: "HeartRate", Unit: "Hz", Mappers: mappers}
}

func static(ds config.DataSource, unit string, value float64) config.MapperConfig {
	return config.MapperConfig{Class: fakesource.Class, Source: ds, Unit: unit, Params: map[string]any{"value": value}}
}

var sources = map[config.DataSource]config.SourceConfig{config.MIMICIV: {}, config.EICU: {}}

func newRegistry() (*registry.Registry, *fakesource.Module, *fakesource.Module) {
	mimic := &fakesource.Module{Source: config.MIMICIV}
	eicu := &fakesource.Module{Source: config.EICU}
	return registry.NewWithModules(mimic, eicu), mimic, eicu
}

func batch(ids ...any) job.Batch {
	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{id}
	}
	return job.Batch{Columns: []string{"subject_id"}, Rows: rows}
}

func TestConcept_GetData(t *testing.T) {
	t.Parallel()

	t.Run("runs the mapper of the job's source", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		reg, mimic, eicu := newRegistry()
		c, err := New(1, heartRate(static(config.MIMICIV, "bpm", 80), static(config.EICU, "bpm", 70)), reg, sources, nil)
		require.NoError(t, err)

		// --- Act ---
		data, err := c.GetData(testutil.Context(nil), job.New(config.EICU, batch(1, 2)))

		// --- Assert ---
		require.NoError(t, err)
		frame := data["HeartRate"]
		require.Equal(t, 2, frame.Len())
		assert.Equal(t, 70.0, frame.Rows[0][fhir.ColValueQuantity].(fhir.Quantity).Value)
		assert.Equal(t, 0, mimic.Calls("HeartRate"))
		assert.Equal(t, 1, eicu.Calls("HeartRate"))
	})

	t.Run("concatenates several mappers of one source", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry()
		c, err := New(1, heartRate(static(config.MIMICIV, "bpm", 80), static(config.MIMICIV, "bpm", 90)), reg, sources, nil)
		require.NoError(t, err)

		data, err := c.GetData(testutil.Context(nil), job.New(config.MIMICIV, batch(1)))

		require.NoError(t, err)
		require.Equal(t, 2, data["HeartRate"].Len())
		assert.Equal(t, 90.0, data["HeartRate"].Rows[1][fhir.ColValueQuantity].(fhir.Quantity).Value)
	})

	t.Run("missing source names the concept and the available sources", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry()
		c, err := New(1, heartRate(static(config.MIMICIV, "bpm", 80), static(config.EICU, "bpm", 80)), reg, sources, nil)
		require.NoError(t, err)

		_, err = c.GetData(testutil.Context(nil), job.New(config.AMDS, batch(1)))

		require.ErrorIs(t, err, ErrMissingSource)
		assert.EqualError(t, err, `concept has no mapper for data source: concept "HeartRate" cannot serve "amds" (available: eicu, mimiciv)`)
	})

	t.Run("mapper failures propagate", func(t *testing.T) {
		t.Parallel()
		reg, mimic, _ := newRegistry()
		boom := errors.New("boom")
		mimic.FailWith(boom)
		c, err := New(1, heartRate(static(config.MIMICIV, "bpm", 80)), reg, sources, nil)
		require.NoError(t, err)

		_, err = c.GetData(testutil.Context(nil), job.New(config.MIMICIV, batch(1)))

		assert.ErrorIs(t, err, boom)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("skips unconfigured sources", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry()
		cfg := heartRate(static(config.MIMICIV, "bpm", 80), config.MapperConfig{Class: "Unregistered", Source: config.AMDS})

		c, err := New(1, cfg, reg, sources, nil)

		require.NoError(t, err)
		assert.Equal(t, []config.DataSource{config.MIMICIV}, c.DataSources())
		assert.Equal(t, map[config.DataSource]string{config.MIMICIV: "bpm"}, c.SourceUnits())
	})

	t.Run("unknown class", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry()

		_, err := New(1, heartRate(config.MapperConfig{Class: "Nope", Source: config.MIMICIV}), reg, sources, nil)

		assert.ErrorIs(t, err, registry.ErrUnknownMapper)
	})

	t.Run("conflicting units", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry()

		_, err := New(1, heartRate(static(config.MIMICIV, "bpm", 80), static(config.MIMICIV, "Hz", 1)), reg, sources, nil)

		assert.ErrorIs(t, err, ErrConflictingUnits)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		reg, _, _ := newRegistry()

		_, err := New(1, heartRate(), reg, sources, nil)

		assert.ErrorContains(t, err, "declares no mappers")
	})
}
