package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/icupipe/internal/fhir"
	"github.com/vk/icupipe/internal/graph"
	"github.com/vk/icupipe/internal/job"
)

// CSV appends each concept's rows to <dir>/<concept>.csv. Nested values are
// flattened into prefix__key columns; the header is taken from the first
// row written unless the file already has one.
type CSV struct {
	dir     string
	mu      sync.Mutex
	headers map[string][]string
}

// NewCSV creates the output directory if needed.
func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &CSV{dir: dir, headers: make(map[string][]string)}, nil
}

func (c *CSV) Path(concept string) string { return filepath.Join(c.dir, concept+".csv") }

func (c *CSV) Write(_ context.Context, _ *job.Job, data graph.Data) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, concept := range sortedConcepts(data) {
		frame := data[concept]
		if frame.Len() == 0 {
			continue
		}
		recs, err := records(frame)
		if err != nil {
			return fmt.Errorf("concept %q: %w", concept, err)
		}
		if err := c.append(concept, frame.Columns(), recs); err != nil {
			return fmt.Errorf("concept %q: %w", concept, err)
		}
	}
	return nil
}

func (c *CSV) append(concept string, columns []string, recs []Record) error {
	path := c.Path(concept)
	hdr, known := c.headers[concept]
	if !known {
		existing, err := readHeader(path)
		if err != nil {
			return err
		}
		hdr = existing
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if hdr == nil {
		hdr = header(columns, recs[0])
		if err := w.Write(hdr); err != nil {
			return err
		}
	}
	c.headers[concept] = hdr

	for _, rec := range recs {
		flat := make(map[string]string)
		for k, v := range rec {
			flatten(k, v, flat)
		}
		line := make([]string, len(hdr))
		for i, col := range hdr {
			line[i] = flat[col]
		}
		if err := w.Write(line); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	hdr, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return hdr, err
}

func (c *CSV) Close() error { return nil }

// JSONL appends each concept's rows as JSON lines to <dir>/<concept>.jsonl.
type JSONL struct {
	dir string
	mu  sync.Mutex
}

// NewJSONL creates the output directory if needed.
func NewJSONL(dir string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &JSONL{dir: dir}, nil
}

func (w *JSONL) Path(concept string) string { return filepath.Join(w.dir, concept+".jsonl") }

func (w *JSONL) Write(_ context.Context, _ *job.Job, data graph.Data) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, concept := range sortedConcepts(data) {
		frame := data[concept]
		if frame.Len() == 0 {
			continue
		}
		if err := w.append(concept, frame.Rows); err != nil {
			return fmt.Errorf("concept %q: %w", concept, err)
		}
	}
	return nil
}

func (w *JSONL) append(concept string, rows []fhir.Row) error {
	f, err := os.OpenFile(w.Path(concept), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return buf.Flush()
}

func (w *JSONL) Close() error { return nil }
