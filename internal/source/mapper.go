package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/icupipe/internal/config"
	"github.com/vk/icupipe/internal/ctxlog"
	"github.com/vk/icupipe/internal/database"
	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/job"
	"github.com/vk/icupipe/internal/query"
)

var (
	// ErrSourceUnavailable wraps connection and query failures.
	ErrSourceUnavailable = errors.New("data source unavailable")
	// ErrData wraps rows that cannot be mapped to the canonical schema.
	ErrData = errors.New("malformed source data")
)

// Mapper produces one concept's canonical frame from one data source.
type Mapper interface {
	ConceptID() string
	DataSource() config.DataSource
	Unit() string
	GetData(ctx context.Context, j *job.Job) (*fhir.Frame, error)
}

// MapperArgs is what a mapper factory receives.
type MapperArgs struct {
	Concept   *config.ConceptConfig
	Mapper    config.MapperConfig
	Source    config.SourceConfig
	Connector database.Connector
}

// Code returns the codeable concept rows of this concept are labelled with.
func (a MapperArgs) Code() fhir.CodeableConcept {
	system, code := a.Concept.PrimaryCoding()
	return fhir.NewCodeableConcept(system, code)
}

// Canonicalizer maps raw rows to the canonical schema. Implementations must
// be pure: no side effects and no database access.
type Canonicalizer interface {
	ToCanonical(rows []database.Row) (*fhir.Frame, error)
}

// CanonicalizerFunc adapts a function to Canonicalizer.
type CanonicalizerFunc func(rows []database.Row) (*fhir.Frame, error)

func (f CanonicalizerFunc) ToCanonical(rows []database.Row) (*fhir.Frame, error) { return f(rows) }

// DatabaseMapper runs a declarative query for the job's subjects and hands
// the result to a Canonicalizer.
type DatabaseMapper struct {
	conceptID  string
	dataSource config.DataSource
	unit       string
	idField    string
	spec       query.Spec
	source     config.SourceConfig
	connector  database.Connector
	canonical  Canonicalizer
}

// NewDatabaseMapper wires a query spec to a canonicalizer. idField names the
// output field that identifies a subject; it is required.
func NewDatabaseMapper(args MapperArgs, idField string, spec query.Spec, c Canonicalizer) (*DatabaseMapper, error) {
	if idField == "" {
		return nil, fmt.Errorf("mapper %s for concept %q: %w", args.Mapper.Class, args.Concept.Name, query.ErrMissingIDField)
	}
	if _, ok := spec.Fields[idField]; !ok {
		return nil, fmt.Errorf("mapper %s for concept %q: id field %q is not among the selected fields", args.Mapper.Class, args.Concept.Name, idField)
	}
	return &DatabaseMapper{
		conceptID:  args.Concept.Name,
		dataSource: args.Mapper.Source,
		unit:       args.Mapper.Unit,
		idField:    idField,
		spec:       spec,
		source:     args.Source.WithDefaults(),
		connector:  args.Connector,
		canonical:  c,
	}, nil
}

func (m *DatabaseMapper) ConceptID() string             { return m.conceptID }
func (m *DatabaseMapper) DataSource() config.DataSource { return m.dataSource }
func (m *DatabaseMapper) Unit() string                  { return m.unit }
func (m *DatabaseMapper) Spec() query.Spec              { return m.spec }

// GetData queries the rows of the job's subjects in a single read and maps
// them to the canonical schema.
func (m *DatabaseMapper) GetData(ctx context.Context, j *job.Job) (*fhir.Frame, error) {
	logger := ctxlog.FromContext(ctx)

	db, err := m.connector.Connect(ctx, m.source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, m.dataSource, err)
	}
	q, err := query.Build(db.Dialect(), m.spec, m.idField, j.Subjects(), 0)
	if err != nil {
		return nil, fmt.Errorf("building query for concept %q: %w", m.conceptID, err)
	}
	logger.Debug("Running mapper query.", "concept", m.conceptID, "source", m.dataSource, "job", j.ID(), "sql", q)

	rows, err := db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: concept %q: %w", ErrSourceUnavailable, m.dataSource, m.conceptID, err)
	}
	frame, err := m.canonical.ToCanonical(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: concept %q from %s: %w", ErrData, m.conceptID, m.dataSource, err)
	}
	logger.Debug("Mapper finished.", "concept", m.conceptID, "job", j.ID(), "rows", frame.Len())
	return frame, nil
}
