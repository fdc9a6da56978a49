package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	_ "modernc.org/sqlite"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/query"
)

// ErrUnsupportedScheme is returned for connection strings no driver handles.
var ErrUnsupportedScheme = errors.New("unsupported connection scheme")

// Row is one result row keyed by column name. Byte slices are returned as
// strings.
type Row map[string]any

// DB is the query surface mappers and samplers depend on.
type DB interface {
	Dialect() query.Dialect
	// Query runs q and returns every row in a single read.
	Query(ctx context.Context, q string) ([]Row, error)
	// Each streams the rows of q to fn; returning an error from fn stops the
	// iteration and is passed back to the caller.
	Each(ctx context.Context, q string, fn func(Row) error) error
}

// Connector hands out a DB for a source configuration.
type Connector interface {
	Connect(ctx context.Context, cfg config.SourceConfig) (DB, error)
}

// Pool is a Connector that opens one *sql.DB per connection string and
// reuses it for the lifetime of a run.
type Pool struct {
	mu  sync.Mutex
	dbs map[string]*SQL
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{dbs: make(map[string]*SQL)}
}

// Connect returns the cached database for cfg.Connection, opening it on first
// use.
func (p *Pool) Connect(ctx context.Context, cfg config.SourceConfig) (DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if db, ok := p.dbs[cfg.Connection]; ok {
		return db, nil
	}
	db, err := Open(ctx, cfg.Connection)
	if err != nil {
		return nil, err
	}
	p.dbs[cfg.Connection] = db
	return db, nil
}

// Close closes every database the pool opened.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for conn, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.dbs, conn)
	}
	return errors.Join(errs...)
}

// SQL is a DB backed by database/sql.
type SQL struct {
	*sql.DB
	dialect query.Dialect
	// pinned handles own a single connection, so no cursor may stay open
	// while a caller issues another query.
	pinned bool
}

// Open connects to the database named by connection and pings it.
func Open(ctx context.Context, connection string) (*SQL, error) {
	scheme, rest, ok := strings.Cut(connection, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, redact(connection))
	}

	var (
		db      *sql.DB
		dialect query.Dialect
		pinned  bool
		err     error
	)
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		dialect = query.Postgres
		db, err = sql.Open("pgx", connection)
	case "sqlserver":
		if _, perr := msdsn.Parse(connection); perr != nil {
			return nil, fmt.Errorf("mssql dsn: %w", perr)
		}
		dialect = query.SQLServer
		db, err = sql.Open("sqlserver", connection)
	case "sqlite":
		dialect = query.SQLite
		db, pinned, err = openSQLite(ctx, rest)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", dialect.Name(), err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", dialect.Name(), err)
	}
	ctxlog.FromContext(ctx).Debug("Database connection opened.", "dialect", dialect.Name(), "connection", redact(connection))
	return &SQL{DB: db, dialect: dialect, pinned: pinned}, nil
}

// openSQLite opens a single file, or an in-memory database with every .db
// file of a directory attached under its base name. The second result reports
// whether the handle is pinned to one connection.
func openSQLite(ctx context.Context, path string) (*sql.DB, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		db, err := sql.Open("sqlite", path)
		return db, false, err
	}

	files, err := filepath.Glob(filepath.Join(path, "*.db"))
	if err != nil {
		return nil, false, err
	}
	sort.Strings(files)

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, false, err
	}
	// ATTACH is per connection, so the pool is pinned to one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	for _, f := range files {
		schema := strings.TrimSuffix(filepath.Base(f), ".db")
		stmt := fmt.Sprintf("ATTACH DATABASE ? AS %s", query.SQLite.Ident(schema))
		if _, err := db.ExecContext(ctx, stmt, f); err != nil {
			_ = db.Close()
			return nil, false, fmt.Errorf("attach %s: %w", f, err)
		}
	}
	return db, true, nil
}

func (d *SQL) Dialect() query.Dialect { return d.dialect }

func (d *SQL) Query(ctx context.Context, q string) ([]Row, error) {
	var out []Row
	err := d.stream(ctx, q, func(r Row) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// Each streams rows to fn. On a pinned handle the result is read in full and
// the cursor closed first, so fn may run queries of its own.
func (d *SQL) Each(ctx context.Context, q string, fn func(Row) error) error {
	if !d.pinned {
		return d.stream(ctx, q, fn)
	}
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

func (d *SQL) stream(ctx context.Context, q string, fn func(Row) error) error {
	rows, err := d.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// redact hides the password of URL style connection strings.
func redact(connection string) string {
	scheme, rest, ok := strings.Cut(connection, "://")
	if !ok {
		return connection
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return connection
	}
	user, _, hasPass := strings.Cut(userinfo, ":")
	if !hasPass {
		return connection
	}
	return scheme + "://" + user + ":***@" + host
}
