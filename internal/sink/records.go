package sink

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vk/icupipe/internal/fhir"
)

// Record is a canonical row reduced to JSON compatible values.
type Record map[string]any

// records converts the rows of a frame through their JSON encoding, so the
// canonical value types appear as nested objects.
func records(f *fhir.Frame) ([]Record, error) {
	raw, err := json.Marshal(f.Rows)
	if err != nil {
		return nil, fmt.Errorf("encoding rows: %w", err)
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return out, nil
}

// flatten turns nested objects into prefix__key columns.
func flatten(prefix string, v any, out map[string]string) {
	obj, ok := v.(map[string]any)
	if !ok {
		out[prefix] = scalar(v)
		return
	}
	for k, inner := range obj {
		flatten(prefix+"__"+k, inner, out)
	}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprint(x)
	case bool:
		return fmt.Sprint(x)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// header lists flattened columns in resource column order, nested keys
// sorted within each column.
func header(columns []string, rec Record) []string {
	var out []string
	for _, c := range columns {
		flat := make(map[string]string)
		flatten(c, rec[c], flat)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out = append(out, keys...)
	}
	return out
}
