package chart

import (
	"math"

	"github.com/tabletalk/tabletalk/internal/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type ColumnSummary struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	UniqueValues int      `json:"unique_values"`
	Mean         *float64 `json:"mean,omitempty"`
	Std          *float64 `json:"std,omitempty"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
}

type Summary struct {
	TotalRecords int            `json:"total_records"`
	XColumn      *ColumnSummary `json:"x_column,omitempty"`
	YColumn      *ColumnSummary `json:"y_column,omitempty"`
}

// Summarize describes the chart's two columns. Names that are not columns
// of t are left out.
func Summarize(t *table.Table, x, y string) Summary {
	out := Summary{TotalRecords: t.RowCount()}
	if col, ok := t.Column(x); ok {
		out.XColumn = summarizeColumn(col)
	}
	if col, ok := t.Column(y); ok && y != x {
		out.YColumn = summarizeColumn(col)
	}
	return out
}

func summarizeColumn(col *table.Column) *ColumnSummary {
	out := &ColumnSummary{Name: col.Name, Type: string(col.Kind), UniqueValues: uniqueCount(col.Values)}
	if col.Kind != table.KindNumeric {
		return out
	}
	values := numbers(col.Values)
	if len(values) == 0 {
		return out
	}
	mean := stat.Mean(values, nil)
	lo, hi := floats.Min(values), floats.Max(values)
	out.Mean, out.Min, out.Max = &mean, &lo, &hi
	if len(values) > 1 {
		std := stat.StdDev(values, nil)
		if !math.IsNaN(std) {
			out.Std = &std
		}
	}
	return out
}

func uniqueCount(values []any) int {
	seen := map[string]struct{}{}
	for _, v := range values {
		if v == nil {
			continue
		}
		seen[table.FormatValue(v)] = struct{}{}
	}
	return len(seen)
}
