package source

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/testutil"
)

func icustays(t *testing.T, ids ...int) string {
	t.Helper()
	dir := t.TempDir()
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, fmt.Sprintf("(%d)", id))
	}
	testutil.SQLiteSchema(t, dir, "mimiciv_icu",
		`CREATE TABLE icustays (subject_id INTEGER)`,
		`INSERT INTO icustays VALUES `+strings.Join(values, ", "),
	)
	return "sqlite://" + dir
}

func collect(t *testing.T, s Sampler) []job.Batch {
	t.Helper()
	var out []job.Batch
	for b, err := range s.Samples(testutil.Context(nil)) {
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func newSampler(t *testing.T, cfg config.SourceConfig) (*DatabaseSampler, *database.Pool) {
	t.Helper()
	pool := database.NewPool()
	t.Cleanup(func() { _ = pool.Close() })
	s, err := NewDatabaseSampler(config.MIMICIV, cfg, pool, "mimiciv_icu", "icustays", "subject_id")
	require.NoError(t, err)
	return s, pool
}

func TestDatabaseSampler_Chunks(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	conn := icustays(t, 5, 1, 3, 2, 4, 3, 1)
	s, _ := newSampler(t, config.SourceConfig{Connection: conn, Chunksize: 2})

	// --- Act ---
	batches := collect(t, s)

	// --- Assert ---
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"subject_id"}, batches[0].Columns)
	assert.EqualValues(t, []any{int64(1), int64(2)}, batches[0].Values("subject_id"))
	assert.EqualValues(t, []any{int64(3), int64(4)}, batches[1].Values("subject_id"))
	assert.EqualValues(t, []any{int64(5)}, batches[2].Values("subject_id"))
}

func TestDatabaseSampler_Limit(t *testing.T) {
	t.Parallel()

	conn := icustays(t, 1, 2, 3, 4, 5)
	s, _ := newSampler(t, config.SourceConfig{Connection: conn, Chunksize: 2, Limit: 3})

	batches := collect(t, s)

	require.Len(t, batches, 2)
	assert.Equal(t, 2, batches[0].Len())
	assert.Equal(t, 1, batches[1].Len())
}

func TestDatabaseSampler_EarlyStopAndReuse(t *testing.T) {
	t.Parallel()

	conn := icustays(t, 1, 2, 3, 4, 5)
	s, _ := newSampler(t, config.SourceConfig{Connection: conn, Chunksize: 1})

	seen := 0
	for _, err := range s.Samples(testutil.Context(nil)) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)

	var errs []error
	for _, err := range s.Samples(testutil.Context(nil)) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSamplerConsumed)
}

func TestDatabaseSampler_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewDatabaseSampler(config.MIMICIV, config.SourceConfig{}, database.NewPool(), "s", "t")
	assert.ErrorIs(t, err, ErrNoIdentifiers)

	s, _ := newSampler(t, config.SourceConfig{Connection: "sqlite:///does/not/exist"})
	var errs []error
	for _, err := range s.Samples(testutil.Context(nil)) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSourceUnavailable)
}
