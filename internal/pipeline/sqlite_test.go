package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/registry"
	"github.com/vk/icupipe/internal/sink"
	"github.com/vk/icupipe/internal/testutil"
	"github.com/vk/icupipe/modules/mimiciv"
)

func mimicConcept(name, unitName string, itemID float64) *config.ConceptConfig {
	return &config.ConceptConfig{
		Name:        name,
		Unit:        unitName,
		Identifiers: map[config.CodingSystem]string{config.SNOMED: "364075005"},
		Mappers: []config.MapperConfig{{
			Class:  mimiciv.ObservationClass,
			Source: config.MIMICIV,
			Unit:   unitName,
			Params: map[string]any{
				"schema":      "mimiciv_icu",
				"table":       "chartevents",
				"constraints": map[string]any{"itemid": []any{itemID}},
				"order_by":    []any{"subject_id", "charttime"},
			},
		}},
	}
}

func mimicDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.SQLiteSchema(t, dir, "mimiciv_icu",
		`CREATE TABLE icustays (subject_id INTEGER, stay_id INTEGER)`,
		`INSERT INTO icustays VALUES (1, 10), (2, 20), (3, 30), (3, 31)`,
		`CREATE TABLE chartevents (subject_id INTEGER, itemid INTEGER, charttime TEXT, valuenum REAL)`,
		`INSERT INTO chartevents VALUES
			(1, 220045, '2150-01-01 10:00:00', 80),
			(1, 220045, '2150-01-01 11:00:00', 82),
			(2, 220045, '2150-01-01 10:00:00', 95),
			(2, 220179, '2150-01-01 10:00:00', 120),
			(3, 220045, '2150-01-01 12:00:00', 60)`,
	)
	return dir
}

func runMimic(t *testing.T, src config.SourceConfig, strategy graph.Strategy) (*Run, *sink.Memory, error) {
	t.Helper()
	pool := database.NewPool()
	t.Cleanup(func() { _ = pool.Close() })
	mem := sink.NewMemory()
	p, err := New(Options{
		Sources: map[config.DataSource]config.SourceConfig{config.MIMICIV: src},
		Loader: staticLoader{
			"HeartRate":             mimicConcept("HeartRate", "bpm", 220045),
			"SystolicBloodPressure": mimicConcept("SystolicBloodPressure", "mmHg", 220179),
		},
		Registry:  registry.NewWithModules(&mimiciv.Module{}),
		Connector: pool,
		Strategy:  strategy,
		Writer:    mem,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(testutil.Context(nil), 10*time.Second)
	defer cancel()
	run, err := p.Transform(ctx, []string{"HeartRate", "SystolicBloodPressure"}, nil)
	return run, mem, err
}

func TestPipeline_TransformSQLite(t *testing.T) {
	t.Parallel()

	for _, strategy := range []graph.Strategy{graph.Synchronous{}, graph.FanOut{Workers: 2}} {
		t.Run(strategy.Name()+" over several chunks", func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			src := config.SourceConfig{Connection: "sqlite://" + mimicDir(t), Chunksize: 1}

			// --- Act ---
			run, mem, err := runMimic(t, src, strategy)

			// --- Assert ---
			require.NoError(t, err)
			assert.Len(t, mem.Jobs(), 3)
			assert.Equal(t, map[string]int{"HeartRate": 4, "SystolicBloodPressure": 1}, run.Sink.Totals())
		})
	}

	t.Run("limit caps subjects, not their rows", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		src := config.SourceConfig{Connection: "sqlite://" + mimicDir(t), Chunksize: 5, Limit: 2}

		// --- Act ---
		run, mem, err := runMimic(t, src, nil)

		// --- Assert ---
		require.NoError(t, err)
		jobs := mem.Jobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, 2, jobs[0].Subjects().Len())
		assert.Equal(t, map[string]int{"HeartRate": 3, "SystolicBloodPressure": 1}, run.Sink.Totals())
	})
}
