package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the SQL differences between supported databases.
type Dialect interface {
	Name() string
	// Ident quotes a single identifier part.
	Ident(name string) string
	// Literal renders a scalar value as an SQL literal.
	Literal(v any) (string, error)
	// AnyOf renders "column matches one of values".
	AnyOf(column string, values []any) (string, error)
	// Limit renders the row cap; prefix goes after SELECT [DISTINCT].
	Limit(n int) (prefix, suffix string)
}

var (
	Postgres  Dialect = postgres{}
	SQLite    Dialect = sqlite{}
	SQLServer Dialect = sqlServer{}
)

// QualifiedIdent quotes a dotted name part by part, so "a.b.c" becomes
// "a"."b"."c" on Postgres.
func QualifiedIdent(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.Ident(p))
	}
	return strings.Join(out, ".")
}

type postgres struct{}

func (postgres) Name() string { return "postgres" }

func (postgres) Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgres) Literal(v any) (string, error) { return literal(v) }

func (postgres) AnyOf(column string, values []any) (string, error) {
	arr, err := pgArray(values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = ANY(%s)", column, quoteString(arr)), nil
}

func (postgres) Limit(n int) (string, string) { return "", fmt.Sprintf("LIMIT %d", n) }

type sqlite struct{}

func (sqlite) Name() string { return "sqlite" }

func (sqlite) Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqlite) Literal(v any) (string, error) { return literal(v) }

func (sqlite) AnyOf(column string, values []any) (string, error) {
	return inList(literal, column, values)
}

func (sqlite) Limit(n int) (string, string) { return "", fmt.Sprintf("LIMIT %d", n) }

type sqlServer struct{}

func (sqlServer) Name() string { return "sqlserver" }

func (sqlServer) Ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (sqlServer) Literal(v any) (string, error) {
	if b, ok := v.(bool); ok {
		if b {
			return "1", nil
		}
		return "0", nil
	}
	if s, ok := v.(string); ok {
		return "N" + quoteString(s), nil
	}
	return literal(v)
}

func (d sqlServer) AnyOf(column string, values []any) (string, error) {
	return inList(d.Literal, column, values)
}

func (sqlServer) Limit(n int) (string, string) { return fmt.Sprintf("TOP (%d)", n), "" }

func inList(lit func(any) (string, error), column string, values []any) (string, error) {
	rendered, err := literals(lit, values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s IN (%s)", column, rendered), nil
}

func literals(lit func(any) (string, error), values []any) (string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		s, err := lit(v)
		if err != nil {
			return "", err
		}
		out[i] = s
	}
	return strings.Join(out, ", "), nil
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(x), nil
	case []byte:
		return quoteString(string(x)), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return quoteString(x.Format(time.RFC3339Nano)), nil
	}
	if n, ok := number(v); ok {
		return n, nil
	}
	return "", fmt.Errorf("%w: unsupported literal type %T", ErrInvalidValue, v)
}

// number formats integers and floats without exponent or trailing zeros, so
// HCL numbers such as 220045.0 render as 220045.
func number(v any) (string, bool) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	}
	return "", false
}

func formatFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// pgArray renders values as a Postgres array literal body, e.g. {1,2} or
// {"a","b"}.
func pgArray(values []any) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			parts[i] = "NULL"
		case string:
			parts[i] = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(x) + `"`
		default:
			n, ok := number(v)
			if !ok {
				return "", fmt.Errorf("%w: unsupported array element type %T", ErrInvalidValue, v)
			}
			parts[i] = n
		}
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}
