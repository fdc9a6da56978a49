package eicu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/query"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/source"
	"github.com/vk/icupipe/internal/testutil"
)

func args(class, unit string, params map[string]any, src config.SourceConfig, conn database.Connector) source.MapperArgs {
	return source.MapperArgs{
		Concept:   &config.ConceptConfig{Name: "HeartRate", Identifiers: map[config.CodingSystem]string{config.SNOMED: "364075005"}},
		Mapper:    config.MapperConfig{Class: class, Source: config.EICU, Unit: unit, Params: params},
		Source:    src,
		Connector: conn,
	}
}

func TestModule_Register(t *testing.T) {
	t.Parallel()

	r := registry.NewWithModules(&Module{})

	assert.Equal(t, []config.DataSource{config.EICU}, r.Samplers())
	for _, class := range []string{ObservationClass, InfusionClass} {
		_, err := r.Mapper(config.EICU, class)
		require.NoError(t, err, class)
	}
}

func TestOffsetTime(t *testing.T) {
	t.Parallel()

	t.Run("anchors at the admission time in the discharge year", func(t *testing.T) {
		t.Parallel()
		got, err := offsetTime("08:15:00", int64(2014), int64(90))

		require.NoError(t, err)
		assert.Equal(t, time.Date(2014, 1, 1, 9, 45, 0, 0, time.UTC), got)
	})

	t.Run("negative offsets precede the admission", func(t *testing.T) {
		t.Parallel()
		got, err := offsetTime("00:10:00", "2015", -20.0)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2014, 12, 31, 23, 50, 0, 0, time.UTC), got)
	})

	t.Run("malformed time of day", func(t *testing.T) {
		t.Parallel()
		_, err := offsetTime("8am", 2014, 0)

		require.ErrorContains(t, err, "time of day")
	})
}

func TestNewObservationMapper(t *testing.T) {
	t.Parallel()

	t.Run("value field is required", func(t *testing.T) {
		t.Parallel()
		_, err := NewObservationMapper(args(ObservationClass, "bpm", map[string]any{"table": "vitalperiodic"}, config.SourceConfig{}, nil))

		require.ErrorIs(t, err, source.ErrInvalidParams)
		assert.Contains(t, err.Error(), "fields.value")
	})

	t.Run("value is not null and the patient table is joined", func(t *testing.T) {
		t.Parallel()
		params := map[string]any{"table": "vitalperiodic", "fields": map[string]any{"value": "heartrate"}}

		m, err := NewObservationMapper(args(ObservationClass, "bpm", params, config.SourceConfig{}, nil))

		require.NoError(t, err)
		spec := m.(*source.DatabaseMapper).Spec()
		assert.Equal(t, "eicu_crd", spec.Schema)
		assert.Equal(t, query.NotNull, spec.Constraints["heartrate"])
		assert.Equal(t, map[string]map[string]string{
			"eicu_crd.patient": {"eicu_crd.vitalperiodic.patientunitstayid": "eicu_crd.patient.patientunitstayid"},
		}, spec.Joins)
		assert.Equal(t, "observationoffset", spec.Fields["offset"])
	})
}

func TestObservationMapper_GetData(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	testutil.SQLiteSchema(t, dir, "eicu_crd",
		`CREATE TABLE patient (patientunitstayid INTEGER, patienthealthsystemstayid INTEGER, hospitaladmittime24 TEXT, hospitaldischargeyear INTEGER)`,
		`INSERT INTO patient VALUES (100, 1, '10:00:00', 2014), (200, 2, '06:30:00', 2015)`,
		`CREATE TABLE vitalperiodic (patientunitstayid INTEGER, observationoffset INTEGER, heartrate REAL)`,
		`INSERT INTO vitalperiodic VALUES (100, 5, 88), (100, 10, NULL), (200, 60, 70)`,
	)
	pool := database.NewPool()
	t.Cleanup(func() { _ = pool.Close() })
	params := map[string]any{"table": "vitalperiodic", "fields": map[string]any{"value": "heartrate"}}
	m, err := NewObservationMapper(args(ObservationClass, "bpm", params, config.SourceConfig{Connection: "sqlite://" + dir}, pool))
	require.NoError(t, err)
	batch := job.Batch{Columns: []string{StayID}, Rows: [][]any{{int64(1)}}}

	// --- Act ---
	frame, err := m.GetData(testutil.Context(nil), job.New(config.EICU, batch))

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	row := frame.Rows[0]
	assert.Equal(t, fhir.Reference{Reference: "1", Type: "eicu"}, row[fhir.ColSubject])
	assert.Equal(t, time.Date(2014, 1, 1, 10, 5, 0, 0, time.UTC), row[fhir.ColEffectiveDateTime])
	assert.Equal(t, fhir.Quantity{Value: 88, Unit: "bpm"}, row[fhir.ColValueQuantity])
}

func TestInfusions_ToCanonical(t *testing.T) {
	t.Parallel()

	code := fhir.NewCodeableConcept("snomed", "61006003")
	row := func(id, offset int64, rate any) database.Row {
		return database.Row{"patient_id": id, "time": "00:00:00", "year": int64(2014), "offset": offset, "rate": rate}
	}

	t.Run("charts become dose intervals per stay", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		in := &infusions{code: code, unit: "mcg"}
		rows := []database.Row{
			row(1, -5, 2.0),
			row(1, 10, 4.0),
			row(1, 10, 3.0),
			row(1, 40, 0.0),
			row(1, 50, 1.0),
			row(2, 0, "5"),
		}

		// --- Act ---
		frame, err := in.ToCanonical(rows)

		// --- Assert ---
		require.NoError(t, err)
		require.Equal(t, 2, frame.Len())
		day := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)

		first := frame.Rows[0]
		assert.Equal(t, fhir.Dosage{
			DoseQuantity: fhir.Quantity{Value: 20, Unit: "mcg"},
			RateQuantity: fhir.Quantity{Value: 2, Unit: "mcg/min"},
		}, first[fhir.ColDosage])
		assert.Equal(t, fhir.Period{Start: day, End: day.Add(10 * time.Minute)}, first[fhir.ColEffectivePeriod])

		second := frame.Rows[1]
		assert.Equal(t, fhir.Dosage{
			DoseQuantity: fhir.Quantity{Value: 90, Unit: "mcg"},
			RateQuantity: fhir.Quantity{Value: 3, Unit: "mcg/min"},
		}, second[fhir.ColDosage])
		assert.Equal(t, fhir.Reference{Reference: "1", Type: "eicu"}, second[fhir.ColSubject])
	})

	t.Run("invalid rate", func(t *testing.T) {
		t.Parallel()
		in := &infusions{code: code, unit: "mcg"}

		_, err := in.ToCanonical([]database.Row{row(1, 0, "fast")})

		require.ErrorContains(t, err, "rate")
	})
}

func TestNewInfusionMapper(t *testing.T) {
	t.Parallel()

	m, err := NewInfusionMapper(args(InfusionClass, "mcg", map[string]any{"constraints": map[string]any{"drugname": "Norepinephrine (mcg/min)"}}, config.SourceConfig{}, nil))

	require.NoError(t, err)
	spec := m.(*source.DatabaseMapper).Spec()
	assert.Equal(t, "infusiondrug", spec.Table)
	assert.Equal(t, query.NotNull, spec.Constraints["drugrate"])
	assert.Equal(t, "Norepinephrine (mcg/min)", spec.Constraints["drugname"])
	assert.Equal(t, []string{"infusionoffset"}, spec.OrderBy)
}

func TestPatientJoin(t *testing.T) {
	t.Parallel()

	t.Run("patient table is not joined to itself", func(t *testing.T) {
		t.Parallel()
		joins := patientJoin(source.TableParams{Schema: "eicu_crd", Table: "patient"})

		assert.Empty(t, joins)
	})

	t.Run("configured joins are kept", func(t *testing.T) {
		t.Parallel()
		joins := patientJoin(source.TableParams{
			Schema: "eicu_crd",
			Table:  "lab",
			Joins:  map[string]map[string]string{"eicu_crd.hospital": {"eicu_crd.patient.hospitalid": "eicu_crd.hospital.hospitalid"}},
		})

		assert.Len(t, joins, 2)
		assert.Contains(t, joins, "eicu_crd.patient")
	})
}
