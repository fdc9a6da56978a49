package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/vk/icupipe/internal/job"
)

var (
	// ErrMissingIDField is returned when a query is built without the column
	// that anchors subject subsetting.
	ErrMissingIDField = errors.New("mapper declares no id field")
	ErrEmptyBatch     = errors.New("subject batch is empty")
	ErrInvalidValue   = errors.New("invalid literal value")
	ErrInvalidSpec    = errors.New("invalid query spec")
)

// NotNull is the constraint value rendered as IS NOT NULL.
const NotNull = "not null"

// Spec is the declarative shape of a mapper's query. Fields maps output names
// to source columns; Joins maps a joined table to its left = right columns.
type Spec struct {
	Schema      string
	Table       string
	Fields      map[string]string
	Constraints map[string]any
	Joins       map[string]map[string]string
	OrderBy     []string
}

// Build renders the SELECT for one job. Every column in subjects becomes an
// IN clause; limit > 0 caps the row count.
func Build(d Dialect, spec Spec, idField string, subjects job.Batch, limit int) (string, error) {
	if idField == "" {
		return "", ErrMissingIDField
	}
	if spec.Table == "" || len(spec.Fields) == 0 {
		return "", fmt.Errorf("%w: table and fields are required", ErrInvalidSpec)
	}
	if len(subjects.Columns) == 0 || subjects.Len() == 0 {
		return "", ErrEmptyBatch
	}

	var where []string
	constraints, err := renderConstraints(d, spec.Constraints)
	if err != nil {
		return "", err
	}
	where = append(where, constraints...)

	for _, col := range subjects.Columns {
		values := subjects.Values(col)
		list, err := literals(d.Literal, values)
		if err != nil {
			return "", fmt.Errorf("subject column %q: %w", col, err)
		}
		where = append(where, fmt.Sprintf("%s IN (%s)", QualifiedIdent(d, col), list))
	}

	var b strings.Builder
	prefix, suffix := "", ""
	if limit > 0 {
		prefix, suffix = d.Limit(limit)
	}
	b.WriteString("SELECT ")
	if prefix != "" {
		b.WriteString(prefix + " ")
	}
	b.WriteString(renderFields(d, spec.Fields))
	b.WriteString(" FROM ")
	b.WriteString(table(d, spec.Schema, spec.Table))
	if joins := renderJoins(d, spec.Joins); joins != "" {
		b.WriteString(" " + joins)
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	if len(spec.OrderBy) > 0 {
		b.WriteString(" ORDER BY " + identList(d, spec.OrderBy))
	}
	if suffix != "" {
		b.WriteString(" " + suffix)
	}
	return b.String(), nil
}

// BuildSample renders the distinct identifier query a sampler streams from.
func BuildSample(d Dialect, schema, tbl string, identifiers []string, limit int) (string, error) {
	if len(identifiers) == 0 {
		return "", fmt.Errorf("%w: no identifier columns", ErrInvalidSpec)
	}
	prefix, suffix := "", ""
	if limit > 0 {
		prefix, suffix = d.Limit(limit)
	}
	cols := identList(d, identifiers)
	q := "SELECT DISTINCT "
	if prefix != "" {
		q += prefix + " "
	}
	q += fmt.Sprintf("%s FROM %s ORDER BY %s", cols, table(d, schema, tbl), cols)
	if suffix != "" {
		q += " " + suffix
	}
	return q, nil
}

func table(d Dialect, schema, tbl string) string {
	if schema == "" {
		return QualifiedIdent(d, tbl)
	}
	return d.Ident(schema) + "." + d.Ident(tbl)
}

func identList(d Dialect, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QualifiedIdent(d, n)
	}
	return strings.Join(out, ", ")
}

func renderFields(d Dialect, fields map[string]string) string {
	names := sortedKeys(fields)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s AS %s", QualifiedIdent(d, fields[name]), d.Ident(SnakeCase(name)))
	}
	return strings.Join(out, ", ")
}

func renderConstraints(d Dialect, constraints map[string]any) ([]string, error) {
	out := make([]string, 0, len(constraints))
	for _, col := range sortedKeys(constraints) {
		ident := QualifiedIdent(d, col)
		value := constraints[col]
		if s, ok := value.(string); ok && strings.EqualFold(s, NotNull) {
			out = append(out, ident+" IS NOT NULL")
			continue
		}
		if list, ok := asList(value); ok {
			if len(list) == 0 {
				return nil, fmt.Errorf("%w: constraint %q has an empty list", ErrInvalidSpec, col)
			}
			clause, err := d.AnyOf(ident, list)
			if err != nil {
				return nil, fmt.Errorf("constraint %q: %w", col, err)
			}
			out = append(out, clause)
			continue
		}
		lit, err := d.Literal(value)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", col, err)
		}
		out = append(out, fmt.Sprintf("%s = %s", ident, lit))
	}
	return out, nil
}

func renderJoins(d Dialect, joins map[string]map[string]string) string {
	var out []string
	for _, tbl := range sortedKeys(joins) {
		on := joins[tbl]
		conds := make([]string, 0, len(on))
		for _, left := range sortedKeys(on) {
			conds = append(conds, fmt.Sprintf("%s = %s", QualifiedIdent(d, left), QualifiedIdent(d, on[left])))
		}
		out = append(out, fmt.Sprintf("INNER JOIN %s ON %s", QualifiedIdent(d, tbl), strings.Join(conds, " AND ")))
	}
	return strings.Join(out, " ")
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		return toAny(x), true
	case []int:
		return toAny(x), true
	case []int64:
		return toAny(x), true
	case []float64:
		return toAny(x), true
	}
	return nil, false
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SnakeCase converts camelCase output names to snake_case.
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
