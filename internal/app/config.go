package app

import (
	"errors"
	"fmt"
	"slices"
)

// Sink names accepted by Config.Sink.
const (
	SinkCSV      = "csv"
	SinkJSONL    = "jsonl"
	SinkMemory   = "memory"
	SinkSocketIO = "socketio"
)

var sinks = []string{SinkCSV, SinkJSONL, SinkMemory, SinkSocketIO}

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Concepts     []string
	ConceptsPath string // one <Concept>.hcl per concept
	SourcesPath  string // source blocks

	Sink       string
	OutputPath string
	SocketURL  string

	Execution   string
	WorkerCount int

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if len(cfg.Concepts) == 0 {
		errs = append(errs, errors.New("at least one concept is required"))
	}
	if cfg.ConceptsPath == "" {
		errs = append(errs, errors.New("ConceptsPath is a required configuration field and cannot be empty"))
	}
	if cfg.SourcesPath == "" {
		errs = append(errs, errors.New("SourcesPath is a required configuration field and cannot be empty"))
	}
	if cfg.Sink == "" {
		cfg.Sink = SinkCSV
	}
	switch {
	case !slices.Contains(sinks, cfg.Sink):
		errs = append(errs, fmt.Errorf("unknown sink %q (expected one of %v)", cfg.Sink, sinks))
	case (cfg.Sink == SinkCSV || cfg.Sink == SinkJSONL) && cfg.OutputPath == "":
		errs = append(errs, fmt.Errorf("sink %q requires an output path", cfg.Sink))
	case cfg.Sink == SinkSocketIO && cfg.SocketURL == "":
		errs = append(errs, errors.New("sink \"socketio\" requires a socket url"))
	}
	if cfg.WorkerCount < 0 {
		errs = append(errs, errors.New("worker count cannot be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}
