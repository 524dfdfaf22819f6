// Package table holds the in-memory tabular model shared by preprocessing,
// execution, code generation context and charts.
package table

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

type Kind string

const (
	KindNumeric  Kind = "numeric"
	KindTemporal Kind = "temporal"
	KindText     Kind = "text"
)

// Column values are nil (null), float64 (numeric), time.Time (temporal) or
// string (text).
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

type Table struct {
	Name    string
	Source  string
	Columns []Column
}

// NormalizeColumnName trims the name and replaces spaces and hyphens with
// underscores.
func NormalizeColumnName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, name)
}

// Identifier derives the script-visible table name from an uploaded filename.
func Identifier(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	id := b.String()
	if id == "" {
		return "t_"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "t_" + id
	}
	return id
}

func (t *Table) RowCount() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}
	return names
}

func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnFold looks a column up ignoring case.
func (t *Table) ColumnFold(name string) (*Column, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

func (t *Table) NumericColumns() []string {
	out := []string{}
	for _, col := range t.Columns {
		if col.Kind == KindNumeric {
			out = append(out, col.Name)
		}
	}
	return out
}

// Records returns up to limit rows as column-name keyed maps. A negative
// limit returns every row.
func (t *Table) Records(limit int) []map[string]any {
	n := t.RowCount()
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		record := make(map[string]any, len(t.Columns))
		for _, col := range t.Columns {
			record[col.Name] = col.Values[i]
		}
		out = append(out, record)
	}
	return out
}

// Head returns a copy holding the first n rows.
func (t *Table) Head(n int) *Table {
	if n > t.RowCount() {
		n = t.RowCount()
	}
	out := &Table{Name: t.Name, Source: t.Source, Columns: make([]Column, len(t.Columns))}
	for i, col := range t.Columns {
		values := make([]any, n)
		copy(values, col.Values[:n])
		out.Columns[i] = Column{Name: col.Name, Kind: col.Kind, Values: values}
	}
	return out
}

func (t *Table) Clone() *Table {
	return t.Head(t.RowCount())
}

// DTypes reports a short type label per column, in column order.
func (t *Table) DTypes() []string {
	out := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		out = append(out, col.DType())
	}
	return out
}

func (c Column) DType() string {
	switch c.Kind {
	case KindNumeric:
		for _, v := range c.Values {
			f, ok := v.(float64)
			if ok && f != float64(int64(f)) {
				return "DOUBLE"
			}
		}
		return "BIGINT"
	case KindTemporal:
		return "DATE"
	default:
		return "VARCHAR"
	}
}

// FormatValue renders a cell for display in prompts and previews.
func FormatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return "null"
	case float64:
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}
		return fmt.Sprintf("%g", typed)
	case time.Time:
		return typed.Format(time.DateOnly)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
