// Package preprocess coerces raw text tables into typed columns before they
// reach the execution engine or the chart renderer.
package preprocess

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/table"
)

var dateKeywords = []string{"date", "dtc", "time", "dt", "day", "birth", "visit"}

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
	"02Jan2006",
	"2006-01",
}

// Tables preprocesses every table, keeping order.
func Tables(tables []*table.Table) []*table.Table {
	out := make([]*table.Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, Table(t))
	}
	return out
}

// Table returns a coerced copy of t. Each text column is cleaned of
// placeholder cells, then tried as numeric, then (when its name suggests a
// date) as temporal, and otherwise stays text. t is not modified.
func Table(t *table.Table) *table.Table {
	out := &table.Table{Name: t.Name, Source: t.Source, Columns: make([]table.Column, len(t.Columns))}
	for i, col := range t.Columns {
		out.Columns[i] = Column(col)
	}
	return out
}

func Column(col table.Column) table.Column {
	name := table.NormalizeColumnName(col.Name)
	if col.Kind != table.KindText && col.Kind != "" {
		values := make([]any, len(col.Values))
		copy(values, col.Values)
		return table.Column{Name: name, Kind: col.Kind, Values: values}
	}

	cells := make([]any, len(col.Values))
	for i, v := range col.Values {
		s, ok := v.(string)
		if !ok || isPlaceholder(s) {
			continue
		}
		cells[i] = s
	}

	if values, ok := parseNumeric(cells); ok {
		return table.Column{Name: name, Kind: table.KindNumeric, Values: values}
	}
	if hasDateKeyword(name) {
		if values, ok := parseDates(cells); ok {
			return table.Column{Name: name, Kind: table.KindTemporal, Values: values}
		}
	}
	return table.Column{Name: name, Kind: table.KindText, Values: cells}
}

// isPlaceholder reports whether a cell is a run of two or more asterisks,
// used by some exports to mark a missing value.
func isPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	return strings.Trim(s, "*") == ""
}

func parseNumeric(cells []any) ([]any, bool) {
	values := make([]any, len(cells))
	for i, cell := range cells {
		if cell == nil {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(cell.(string)), 64)
		if err != nil {
			return nil, false
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		values[i] = f
	}
	return values, true
}

func parseDates(cells []any) ([]any, bool) {
	values := make([]any, len(cells))
	parsed := 0
	for i, cell := range cells {
		if cell == nil {
			continue
		}
		if ts, ok := ParseDate(cell.(string)); ok {
			values[i] = ts
			parsed++
		}
	}
	return values, parsed > 0
}

// ParseDate tries the accepted date layouts in order.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func hasDateKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range dateKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
