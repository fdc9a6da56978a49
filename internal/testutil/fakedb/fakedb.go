// Package fakedb provides an in-memory database.Connector for tests that
// need to observe the SQL a component issues without a real database.
package fakedb

import (
	"context"
	"sync"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/query"
)

// DB answers every query with the rows returned by Respond.
type DB struct {
	SQLDialect query.Dialect
	Respond    func(q string) ([]database.Row, error)

	mu      sync.Mutex
	queries []string
}

// Rows returns a DB that always answers with rows.
func Rows(rows ...database.Row) *DB {
	return &DB{Respond: func(string) ([]database.Row, error) { return rows, nil }}
}

func (d *DB) Dialect() query.Dialect {
	if d.SQLDialect == nil {
		return query.Postgres
	}
	return d.SQLDialect
}

func (d *DB) Query(_ context.Context, q string) ([]database.Row, error) {
	d.mu.Lock()
	d.queries = append(d.queries, q)
	d.mu.Unlock()
	return d.Respond(q)
}

func (d *DB) Each(ctx context.Context, q string, fn func(database.Row) error) error {
	rows, err := d.Query(ctx, q)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Queries returns the SQL received so far.
func (d *DB) Queries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.queries))
	copy(out, d.queries)
	return out
}

// Connector hands out DBs by connection string; unknown connections fail
// with Err.
type Connector struct {
	DBs map[string]*DB
	Err error
}

func (c *Connector) Connect(_ context.Context, cfg config.SourceConfig) (database.DB, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	db, ok := c.DBs[cfg.Connection]
	if !ok {
		return nil, &UnknownConnectionError{Connection: cfg.Connection}
	}
	return db, nil
}

type UnknownConnectionError struct{ Connection string }

func (e *UnknownConnectionError) Error() string {
	return "fakedb: unknown connection " + e.Connection
}
