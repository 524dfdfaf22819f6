// Package result projects execution outcomes into JSON-safe envelopes.
package result

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tabletalk/tabletalk/internal/query"
)

const DefaultRowCap = 20

type Kind string

const (
	KindTable  Kind = "table"
	KindSeries Kind = "series"
	KindScalar Kind = "scalar"
	KindDict   Kind = "dict"
	KindOther  Kind = "other"
)

type Envelope struct {
	Kind      Kind             `json:"kind"`
	Rows      []map[string]any `json:"rows,omitempty"`
	Columns   []string         `json:"columns,omitempty"`
	TotalRows *int             `json:"total_rows,omitempty"`
	Shape     []int            `json:"shape,omitempty"`
	Data      any              `json:"data,omitempty"`
	Index     []any            `json:"index,omitempty"`
	ValueKind string           `json:"value_kind,omitempty"`
	Value     any              `json:"value,omitempty"`
	Auxiliary map[string]any   `json:"auxiliary,omitempty"`
}

func Normalize(outcome query.Outcome) Envelope {
	return NormalizeWithCap(outcome, DefaultRowCap)
}

// NormalizeWithCap converts outcome, keeping at most rowCap table rows.
func NormalizeWithCap(outcome query.Outcome, rowCap int) Envelope {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	env := normalize(outcome, rowCap)
	if outcome != nil {
		env.Auxiliary = auxiliary(outcome.Aux(), rowCap)
	}
	return env
}

func normalize(outcome query.Outcome, rowCap int) Envelope {
	switch typed := outcome.(type) {
	case query.TableOutcome:
		total := len(typed.Rows)
		shown := typed.Rows
		if len(shown) > rowCap {
			shown = shown[:rowCap]
		}
		rows := make([]map[string]any, 0, len(shown))
		for _, row := range shown {
			record := make(map[string]any, len(typed.Columns))
			for i, name := range typed.Columns {
				record[name] = jsonValue(row[i])
			}
			rows = append(rows, record)
		}
		return Envelope{
			Kind:      KindTable,
			Rows:      rows,
			Columns:   append([]string{}, typed.Columns...),
			TotalRows: &total,
			Shape:     []int{total, len(typed.Columns)},
		}
	case query.SeriesOutcome:
		data := make(map[string]any, len(typed.Index))
		index := make([]any, 0, len(typed.Index))
		for i, key := range typed.Index {
			k := jsonValue(key)
			index = append(index, k)
			data[query.Stringify(k)] = jsonValue(typed.Values[i])
		}
		return Envelope{Kind: KindSeries, Data: data, Index: index, ValueKind: typed.ValueKind}
	case query.ScalarOutcome:
		return Envelope{Kind: KindScalar, Value: jsonValue(typed.Value)}
	case query.MappingOutcome:
		data := make(map[string]any, len(typed.Values))
		for k, v := range typed.Values {
			data[k] = jsonValue(v)
		}
		return Envelope{Kind: KindDict, Data: data}
	case query.OpaqueOutcome:
		return Envelope{Kind: KindOther, Data: typed.Text}
	default:
		return Envelope{Kind: KindOther, Data: ""}
	}
}

// MarshalJSON emits exactly the fields that belong to the envelope's kind.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := map[string]any{"kind": e.Kind}
	switch e.Kind {
	case KindTable:
		rows := e.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		out["rows"] = rows
		out["columns"] = e.Columns
		out["total_rows"] = e.TotalRows
		out["shape"] = e.Shape
	case KindSeries:
		out["data"] = e.Data
		out["index"] = e.Index
		out["value_kind"] = e.ValueKind
	case KindScalar:
		out["value"] = e.Value
	default:
		out["data"] = e.Data
	}
	if e.Auxiliary != nil || e.Kind == KindOther {
		out["auxiliary"] = e.Auxiliary
	}
	return json.Marshal(out)
}

// auxiliary flattens auxiliary outcomes to plain JSON values. Tables and
// series are stringified so no nested tabular payload is returned.
func auxiliary(values map[string]query.Outcome, rowCap int) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, outcome := range values {
		env := NormalizeWithCap(outcome, rowCap)
		switch env.Kind {
		case KindScalar:
			out[key] = env.Value
		case KindOther:
			out[key] = env.Data
		case KindDict:
			out[key] = env.Data
		default:
			out[key] = Describe(env)
		}
	}
	return out
}

// Describe renders a one-line text form of a table or series envelope.
func Describe(env Envelope) string {
	switch env.Kind {
	case KindTable:
		total := 0
		if env.TotalRows != nil {
			total = *env.TotalRows
		}
		return fmt.Sprintf("table %dx%d %v", total, len(env.Columns), env.Columns)
	case KindSeries:
		return fmt.Sprintf("series %v", env.Data)
	default:
		return fmt.Sprint(env.Data)
	}
}

// jsonValue makes a normalized cell safe for encoding/json: dates become
// YYYY-MM-DD, non-finite floats become null and nested values are
// stringified.
func jsonValue(value any) any {
	switch typed := value.(type) {
	case nil, int64, string, bool:
		return typed
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case time.Time:
		return typed.Format(time.DateOnly)
	default:
		return query.Stringify(typed)
	}
}
