// Package config defines the format-agnostic configuration model for the
// pipeline: data sources, their connection settings and the declarative
// concept records, along with the Loader interface that concrete formats
// (such as HCL) implement.
package config
