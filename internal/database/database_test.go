package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/query"
	"github.com/vk/icupipe/internal/testutil"
)

func TestPool_SQLiteDirectory(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	testutil.SQLiteSchema(t, dir, "mimiciv_icu",
		`CREATE TABLE icustays (subject_id INTEGER, label TEXT)`,
		`INSERT INTO icustays VALUES (1, 'a'), (2, 'b'), (2, 'b')`,
	)
	ctx := testutil.Context(nil)
	pool := NewPool()
	t.Cleanup(func() { _ = pool.Close() })
	cfg := config.SourceConfig{Connection: "sqlite://" + dir}

	// --- Act ---
	db, err := pool.Connect(ctx, cfg)
	require.NoError(t, err)
	again, err := pool.Connect(ctx, cfg)
	require.NoError(t, err)
	q, err := query.BuildSample(db.Dialect(), "mimiciv_icu", "icustays", []string{"subject_id"}, 0)
	require.NoError(t, err)
	rows, err := db.Query(ctx, q)

	// --- Assert ---
	require.NoError(t, err)
	assert.Same(t, db, again, "the pool should reuse connections")
	assert.Equal(t, query.SQLite, db.Dialect())
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["subject_id"])
	assert.EqualValues(t, 2, rows[1]["subject_id"])
}

func TestSQL_EachAllowsNestedQueriesOnPinnedHandle(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	testutil.SQLiteSchema(t, dir, "mimiciv_icu",
		`CREATE TABLE icustays (subject_id INTEGER)`,
		`INSERT INTO icustays VALUES (1), (2), (3)`,
	)
	ctx, cancel := context.WithTimeout(testutil.Context(nil), 5*time.Second)
	defer cancel()
	db, err := Open(ctx, "sqlite://"+dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	q := `SELECT "subject_id" FROM "mimiciv_icu"."icustays" ORDER BY "subject_id"`

	// --- Act ---
	var seen []any
	err = db.Each(ctx, q, func(r Row) error {
		inner, err := db.Query(ctx, q)
		if err != nil {
			return err
		}
		assert.Len(t, inner, 3)
		seen = append(seen, r["subject_id"])
		return nil
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, seen)
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(nil)

	_, err := Open(ctx, "no-scheme")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = Open(ctx, "mysql://localhost/db")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = Open(ctx, "sqlite:///definitely/not/here.db")
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres://alice:***@db:5432/mimic", redact("postgres://alice:secret@db:5432/mimic"))
	assert.Equal(t, "postgres://db/mimic", redact("postgres://db/mimic"))
	assert.Equal(t, "sqlite:///tmp/x", redact("sqlite:///tmp/x"))
}
