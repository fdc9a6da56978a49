// Package job defines the unit of pipeline execution: one batch of subject
// identifiers drawn from a single data source.
package job

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/vk/icupipe/internal/config"
)

// Batch is an ordered set of identifier rows. Columns names the identifier
// columns declared by the sampler that produced it.
type Batch struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of identifier rows.
func (b Batch) Len() int { return len(b.Rows) }

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	out := Batch{Columns: slices.Clone(b.Columns)}
	if b.Rows == nil {
		return out
	}
	out.Rows = make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		out.Rows[i] = slices.Clone(r)
	}
	return out
}

// Values returns the values of one identifier column in row order.
func (b Batch) Values(column string) []any {
	idx := -1
	for i, c := range b.Columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]any, 0, len(b.Rows))
	for _, r := range b.Rows {
		out = append(out, r[idx])
	}
	return out
}

// Job is immutable once created and is read by every node reachable from the
// sink. It owns a private copy of its subjects.
type Job struct {
	id         string
	dataSource config.DataSource
	subjects   Batch
}

// New creates a job with a random identifier.
func New(ds config.DataSource, subjects Batch) *Job {
	return NewWithID(uuid.NewString(), ds, subjects)
}

// NewWithID creates a job with a caller supplied identifier.
func NewWithID(id string, ds config.DataSource, subjects Batch) *Job {
	return &Job{id: id, dataSource: ds, subjects: subjects.Clone()}
}

func (j *Job) ID() string                    { return j.id }
func (j *Job) DataSource() config.DataSource { return j.dataSource }
func (j *Job) Subjects() Batch               { return j.subjects.Clone() }

// Fingerprint hashes the source and subject batch. Two jobs over the same
// subjects share a fingerprint, which makes reruns traceable in logs.
func (j *Job) Fingerprint() uint64 {
	var sb strings.Builder
	sb.WriteString(string(j.dataSource))
	sb.WriteByte('|')
	sb.WriteString(strings.Join(j.subjects.Columns, ","))
	for _, r := range j.subjects.Rows {
		sb.WriteByte('|')
		for i, v := range r {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprint(&sb, v)
		}
	}
	return xxh3.HashString(sb.String())
}

func (j *Job) String() string {
	return fmt.Sprintf("Job(%s, %s, %d subjects)", j.id, j.dataSource, j.subjects.Len())
}
