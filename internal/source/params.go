package source

import (
	"errors"
	"fmt"
	"maps"

	"github.com/mitchellh/mapstructure"

	"github.com/vk/icupipe/internal/query"
)

// ErrInvalidParams is returned when a concept file's mapper params do not
// fit the mapper.
var ErrInvalidParams = errors.New("invalid mapper params")

// TableParams are the params every table backed mapper accepts.
type TableParams struct {
	Schema      string                       `mapstructure:"schema"`
	Table       string                       `mapstructure:"table"`
	Fields      map[string]string            `mapstructure:"fields"`
	Constraints map[string]any               `mapstructure:"constraints"`
	Joins       map[string]map[string]string `mapstructure:"joins"`
	OrderBy     []string                     `mapstructure:"order_by"`
}

// DecodeParams decodes raw params into out, a pointer to a struct with
// mapstructure tags. Unknown keys are rejected.
func DecodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// Spec builds the query spec. defaults fill output fields the params leave
// unset; the params' own maps are not modified.
func (p TableParams) Spec(defaults map[string]string) (query.Spec, error) {
	if p.Table == "" {
		return query.Spec{}, fmt.Errorf("%w: table is required", ErrInvalidParams)
	}
	fields := maps.Clone(p.Fields)
	if fields == nil {
		fields = make(map[string]string, len(defaults))
	}
	for name, col := range defaults {
		if _, ok := fields[name]; !ok {
			fields[name] = col
		}
	}
	constraints := maps.Clone(p.Constraints)
	if constraints == nil {
		constraints = make(map[string]any)
	}
	return query.Spec{
		Schema:      p.Schema,
		Table:       p.Table,
		Fields:      fields,
		Constraints: constraints,
		Joins:       p.Joins,
		OrderBy:     p.OrderBy,
	}, nil
}
