package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// DataSource names one of the supported clinical databases.
type DataSource string

const (
	MIMICIV DataSource = "mimiciv"
	EICU    DataSource = "eicu"
	AMDS    DataSource = "amds"
)

var knownSources = []DataSource{AMDS, EICU, MIMICIV}

// ParseDataSource converts a configuration string into a DataSource.
func ParseDataSource(s string) (DataSource, error) {
	ds := DataSource(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(knownSources, ds) {
		return ds, nil
	}
	return "", fmt.Errorf("unknown data source %q (expected one of %s)", s, JoinSources(knownSources))
}

// JoinSources renders a list of sources as a sorted, comma separated string.
func JoinSources(sources []DataSource) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// CodingSystem is a terminology a concept can be identified in.
type CodingSystem string

const (
	SNOMED CodingSystem = "snomed"
	LOINC  CodingSystem = "loinc"
)

const (
	DefaultChunksize = 10000
	// NoLimit disables the row cap.
	NoLimit = -1
)

// SourceConfig holds the connection settings of one data source. It is shared
// read-only by every mapper and sampler of that source.
type SourceConfig struct {
	Connection string
	Chunksize  int
	Limit      int
}

// WithDefaults fills unset fields.
func (c SourceConfig) WithDefaults() SourceConfig {
	if c.Chunksize <= 0 {
		c.Chunksize = DefaultChunksize
	}
	if c.Limit == 0 {
		c.Limit = NoLimit
	}
	return c
}

// MapperConfig selects the mapper implementation of a concept for one source.
type MapperConfig struct {
	Class  string
	Source DataSource
	Unit   string
	Params map[string]any
}

// ConceptConfig is the declarative description of one canonical measurement.
type ConceptConfig struct {
	Name        string
	Description string
	Identifiers map[CodingSystem]string
	Unit        string
	Requires    []string
	Mappers     []MapperConfig
}

// Validate checks the fields every concept needs.
func (c *ConceptConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("concept name is required"))
	}
	if len(c.Mappers) == 0 {
		errs = append(errs, fmt.Errorf("concept %q declares no mappers", c.Name))
	}
	for i, m := range c.Mappers {
		if m.Class == "" {
			errs = append(errs, fmt.Errorf("concept %q: mapper %d has no class", c.Name, i))
		}
	}
	for _, r := range c.Requires {
		if r == c.Name {
			errs = append(errs, fmt.Errorf("concept %q requires itself", c.Name))
		}
	}
	return errors.Join(errs...)
}

// Sources returns the distinct sources the concept has mappers for, sorted.
func (c *ConceptConfig) Sources() []DataSource {
	var out []DataSource
	for _, m := range c.Mappers {
		if !slices.Contains(out, m.Source) {
			out = append(out, m.Source)
		}
	}
	slices.Sort(out)
	return out
}

// PrimaryCoding returns the system and code used to label rows. SNOMED wins
// over LOINC; without identifiers the concept name is used.
func (c *ConceptConfig) PrimaryCoding() (system, code string) {
	for _, sys := range []CodingSystem{SNOMED, LOINC} {
		if v, ok := c.Identifiers[sys]; ok {
			return string(sys), v
		}
	}
	return "", c.Name
}
