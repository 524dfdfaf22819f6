package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Shape decides which outcome a result set becomes:
//
//	1 row x 1 column of number/text/bool/null  -> ScalarOutcome
//	1 row x 1 column of anything else          -> OpaqueOutcome
//	2 columns, the first named index or key    -> SeriesOutcome
//	1 row x several columns                    -> MappingOutcome
//	anything else                              -> TableOutcome
//
// Values must already be normalized to nil, int64, float64, string, bool,
// time.Time, []any or map[string]any.
func Shape(columns []string, types []string, rows [][]any) Outcome {
	switch {
	case len(columns) == 1 && len(rows) == 1:
		value := rows[0][0]
		if IsPrimitive(value) {
			return ScalarOutcome{Value: value}
		}
		return OpaqueOutcome{Text: Stringify(value)}
	case len(columns) == 2 && isIndexColumn(columns[0]):
		series := SeriesOutcome{
			Index:  make([]any, 0, len(rows)),
			Values: make([]any, 0, len(rows)),
		}
		if len(types) == 2 {
			series.ValueKind = ValueKind(types[1])
		}
		for _, row := range rows {
			series.Index = append(series.Index, row[0])
			series.Values = append(series.Values, row[1])
		}
		return series
	case len(rows) == 1 && len(columns) > 1:
		mapping := MappingOutcome{Keys: append([]string(nil), columns...), Values: make(map[string]any, len(columns))}
		for i, name := range columns {
			mapping.Values[name] = rows[0][i]
		}
		return mapping
	default:
		if rows == nil {
			rows = [][]any{}
		}
		return TableOutcome{Columns: columns, Types: types, Rows: rows}
	}
}

func isIndexColumn(name string) bool {
	name = strings.ToLower(name)
	return name == "index" || name == "key"
}

func IsPrimitive(value any) bool {
	switch value.(type) {
	case nil, int64, float64, string, bool:
		return true
	default:
		return false
	}
}

// ValueKind maps an engine column type name to a coarse kind label.
func ValueKind(dbType string) string {
	upper := strings.ToUpper(strings.TrimSpace(dbType))
	switch {
	case upper == "":
		return "unknown"
	case strings.HasSuffix(upper, "[]") || strings.HasPrefix(upper, "STRUCT") || strings.HasPrefix(upper, "MAP"):
		return "nested"
	case upper == "INTERVAL":
		return "interval"
	case strings.Contains(upper, "INT"):
		return "integer"
	case strings.Contains(upper, "DOUBLE"), strings.Contains(upper, "FLOAT"),
		strings.Contains(upper, "DECIMAL"), upper == "REAL":
		return "float"
	case upper == "BOOLEAN":
		return "boolean"
	case strings.HasPrefix(upper, "DATE"), strings.HasPrefix(upper, "TIMESTAMP"), upper == "TIME":
		return "temporal"
	case upper == "VARCHAR":
		return "text"
	default:
		return strings.ToLower(upper)
	}
}

// Stringify renders any normalized value as text. Dates use YYYY-MM-DD.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case time.Time:
		return typed.Format(time.DateOnly)
	case []any, map[string]any:
		raw, err := json.Marshal(jsonSafe(typed))
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(raw)
	default:
		return fmt.Sprint(typed)
	}
}

func jsonSafe(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return typed.Format(time.DateOnly)
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = jsonSafe(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = jsonSafe(v)
		}
		return out
	default:
		return typed
	}
}
