package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/testutil"
	"github.com/vk/icupipe/internal/testutil/fakesource"
)

const heartRate = `
concept "HeartRate" {
  unit        = "Hz"
  identifiers = { snomed = "364075005" }
  mapper "StaticObservationMapper" {
    source = "mimiciv"
    unit   = "bpm"
    params = { value = 90, rows = 2 }
  }
}
`

const sources = `
source "mimiciv" {
  connection = "static://mimic"
}
`

// setupAppTest writes a concept catalog and sources file and builds an App
// over a static MIMIC-IV module.
func setupAppTest(t *testing.T, cfg Config) (*App, *testutil.SafeBuffer, *fakesource.Module) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HeartRate.hcl"), []byte(heartRate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.hcl"), []byte(sources), 0o644))

	cfg.ConceptsPath = dir
	cfg.SourcesPath = filepath.Join(dir, "sources.hcl")
	cfg.LogLevel = "debug"
	if len(cfg.Concepts) == 0 {
		cfg.Concepts = []string{"HeartRate"}
	}
	mod := &fakesource.Module{
		Source: config.MIMICIV,
		Batches: []job.Batch{
			{Columns: []string{"subject_id"}, Rows: [][]any{{int64(1)}, {int64(2)}}},
			{Columns: []string{"subject_id"}, Rows: [][]any{{int64(3)}}},
		},
	}

	logs := &testutil.SafeBuffer{}
	a := NewApp(logs, &cfg, mod)
	t.Cleanup(func() {
		if os.Getenv("ICUPIPE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return a, logs, mod
}

func TestApp_Run(t *testing.T) {
	t.Parallel()

	t.Run("memory sink collects converted rows", func(t *testing.T) {
		t.Parallel()
		// --- Arrange ---
		a, logs, mod := setupAppTest(t, Config{Sink: SinkMemory, Execution: "fanout", WorkerCount: 2})

		// --- Act ---
		err := a.Run(context.Background())

		// --- Assert ---
		require.NoError(t, err)
		mem := a.Memory()
		require.NotNil(t, mem)
		jobs := mem.Jobs()
		require.Len(t, jobs, 2)
		frame := mem.Data(jobs[0].ID())["HeartRate"]
		require.Equal(t, 4, frame.Len())
		assert.InDelta(t, 1.5, frame.Rows[0][fhir.ColValueQuantity].(fhir.Quantity).Value, 1e-9)
		assert.Equal(t, 2, mod.Calls("HeartRate"))
		assert.Contains(t, logs.String(), "Execution finished.")
	})

	t.Run("csv sink writes one file per concept", func(t *testing.T) {
		t.Parallel()
		out := t.TempDir()
		a, _, _ := setupAppTest(t, Config{Sink: SinkCSV, OutputPath: out})

		err := a.Run(context.Background())

		require.NoError(t, err)
		content, err := os.ReadFile(filepath.Join(out, "HeartRate.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(content), "value_quantity__unit")
	})

	t.Run("unknown execution strategy", func(t *testing.T) {
		t.Parallel()
		a, _, _ := setupAppTest(t, Config{Sink: SinkMemory, Execution: "distributed"})

		err := a.Run(context.Background())

		require.ErrorContains(t, err, "unknown execution strategy")
	})

	t.Run("mapper failures fail the run", func(t *testing.T) {
		t.Parallel()
		a, _, mod := setupAppTest(t, Config{Sink: SinkMemory})
		mod.FailWith(assert.AnError)

		err := a.Run(context.Background())

		require.ErrorIs(t, err, assert.AnError)
	})
}

func TestNewApp_Panics(t *testing.T) {
	t.Parallel()

	recovered := func(fn func()) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = r.(error)
			}
		}()
		fn()
		return nil
	}

	t.Run("missing sources file", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{Concepts: []string{"HeartRate"}, ConceptsPath: t.TempDir(), SourcesPath: filepath.Join(t.TempDir(), "nope.hcl")}

		err := recovered(func() { NewApp(&testutil.SafeBuffer{}, cfg) })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load configuration")
	})

	t.Run("mapper class without implementation", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "HeartRate.hcl"), []byte(heartRate), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.hcl"), []byte(sources), 0o644))
		cfg := &Config{Concepts: []string{"HeartRate"}, ConceptsPath: dir, SourcesPath: filepath.Join(dir, "sources.hcl")}

		// The core modules know no StaticObservationMapper.
		err := recovered(func() { NewApp(&testutil.SafeBuffer{}, cfg) })

		require.Error(t, err)
		assert.Contains(t, err.Error(), "mapper class 'StaticObservationMapper' is not registered for source 'mimiciv'")
	})
}

func TestApp_HealthHandler(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	a, _, _ := setupAppTest(t, Config{Sink: SinkMemory})
	rec := httptest.NewRecorder()

	// --- Act ---
	a.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// --- Assert ---
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}
