package config

import "context"

// Loader reads configuration from a format-specific store.
type Loader interface {
	// LoadConcept loads the concept whose file name matches name.
	LoadConcept(ctx context.Context, name string) (*ConceptConfig, error)
	// LoadSources loads the per source connection settings.
	LoadSources(ctx context.Context) (map[DataSource]SourceConfig, error)
}
