package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/query"
)

var (
	// ErrNoIdentifiers is returned by samplers declared without identifier
	// columns.
	ErrNoIdentifiers   = errors.New("sampler declares no identifier columns")
	ErrSamplerConsumed = errors.New("sampler already consumed")
)

// Sampler yields the subject batches of one data source. The sequence is
// lazy, finite and can be ranged over once.
type Sampler interface {
	DataSource() config.DataSource
	Identifiers() []string
	Samples(ctx context.Context) iter.Seq2[job.Batch, error]
}

// DatabaseSampler streams distinct identifier rows of one table.
type DatabaseSampler struct {
	dataSource  config.DataSource
	schema      string
	table       string
	identifiers []string
	source      config.SourceConfig
	connector   database.Connector
	used        atomic.Bool
}

// NewDatabaseSampler creates a sampler over schema.table.
func NewDatabaseSampler(ds config.DataSource, cfg config.SourceConfig, conn database.Connector, schema, table string, identifiers ...string) (*DatabaseSampler, error) {
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("%s sampler: %w", ds, ErrNoIdentifiers)
	}
	return &DatabaseSampler{
		dataSource:  ds,
		schema:      schema,
		table:       table,
		identifiers: slices.Clone(identifiers),
		source:      cfg.WithDefaults(),
		connector:   conn,
	}, nil
}

func (s *DatabaseSampler) DataSource() config.DataSource { return s.dataSource }
func (s *DatabaseSampler) Identifiers() []string         { return slices.Clone(s.identifiers) }

// errStop ends the row stream when the consumer stops ranging.
var errStop = errors.New("stop")

// Samples yields batches of at most Chunksize identifier rows, stopping after
// Limit rows when a limit is set. Errors are yielded once and end the
// sequence.
func (s *DatabaseSampler) Samples(ctx context.Context) iter.Seq2[job.Batch, error] {
	return func(yield func(job.Batch, error) bool) {
		if !s.used.CompareAndSwap(false, true) {
			yield(job.Batch{}, fmt.Errorf("%s: %w", s.dataSource, ErrSamplerConsumed))
			return
		}
		db, err := s.connector.Connect(ctx, s.source)
		if err != nil {
			yield(job.Batch{}, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.dataSource, err))
			return
		}
		q, err := query.BuildSample(db.Dialect(), s.schema, s.table, s.identifiers, s.source.Limit)
		if err != nil {
			yield(job.Batch{}, err)
			return
		}
		ctxlog.FromContext(ctx).Debug("Sampling subjects.", "source", s.dataSource, "sql", q, "chunksize", s.source.Chunksize)

		batch := s.newBatch()
		err = db.Each(ctx, q, func(r database.Row) error {
			row := make([]any, len(s.identifiers))
			for i, c := range s.identifiers {
				row[i] = r[c]
			}
			batch.Rows = append(batch.Rows, row)
			if batch.Len() < s.source.Chunksize {
				return nil
			}
			if !yield(batch, nil) {
				return errStop
			}
			batch = s.newBatch()
			return nil
		})
		switch {
		case errors.Is(err, errStop):
			return
		case err != nil:
			yield(job.Batch{}, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.dataSource, err))
			return
		}
		if batch.Len() > 0 {
			yield(batch, nil)
		}
	}
}

func (s *DatabaseSampler) newBatch() job.Batch {
	return job.Batch{Columns: s.identifiers, Rows: make([][]any, 0, min(s.source.Chunksize, 1024))}
}
