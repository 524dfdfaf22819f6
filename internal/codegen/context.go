package codegen

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/table"
)

const (
	dtypeSampleColumns = 10
	valueSampleColumns = 5
	distinctSamples    = 3
)

// BuildContext describes the tables for the model: row and column counts,
// column names, a dtype sample and per-column sample values. Output order
// follows table order, then column order.
func BuildContext(tables []*table.Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s", t.Name)
		if t.Source != "" {
			fmt.Fprintf(&b, " (from %s)", t.Source)
		}
		b.WriteString(":\n")
		fmt.Fprintf(&b, "  - Rows: %d\n", t.RowCount())
		fmt.Fprintf(&b, "  - Columns: %d\n", len(t.Columns))
		fmt.Fprintf(&b, "  - Column names: [%s]\n", strings.Join(t.ColumnNames(), ", "))

		dtypes := make([]string, 0, dtypeSampleColumns)
		for j, col := range t.Columns {
			if j == dtypeSampleColumns {
				break
			}
			dtypes = append(dtypes, col.Name+": "+col.DType())
		}
		fmt.Fprintf(&b, "  - Sample data types: {%s}\n", strings.Join(dtypes, ", "))

		if t.RowCount() == 0 {
			continue
		}
		samples := make([]string, 0, valueSampleColumns)
		for j, col := range t.Columns {
			if j == valueSampleColumns {
				break
			}
			samples = append(samples, col.Name+": "+sampleValues(col))
		}
		fmt.Fprintf(&b, "  - Sample values: {%s}\n", strings.Join(samples, ", "))
	}
	return b.String()
}

func sampleValues(col table.Column) string {
	switch col.Kind {
	case table.KindNumeric:
		lo, hi, ok := numericRange(col.Values)
		if !ok {
			return "numeric (all null)"
		}
		return fmt.Sprintf("numeric (min: %s, max: %s)", table.FormatValue(lo), table.FormatValue(hi))
	case table.KindTemporal:
		lo, hi, ok := dateRange(col.Values)
		if !ok {
			return "date (all null)"
		}
		return fmt.Sprintf("date (min: %s, max: %s)", lo.Format(time.DateOnly), hi.Format(time.DateOnly))
	default:
		seen := map[string]bool{}
		values := []string{}
		for _, v := range col.Values {
			s, ok := v.(string)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			values = append(values, "'"+s+"'")
			if len(values) == distinctSamples {
				break
			}
		}
		return "[" + strings.Join(values, ", ") + "]"
	}
}

func numericRange(values []any) (float64, float64, bool) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.(float64); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0, 0, false
	}
	sort.Float64s(nums)
	return nums[0], nums[len(nums)-1], true
}

func dateRange(values []any) (time.Time, time.Time, bool) {
	var lo, hi time.Time
	found := false
	for _, v := range values {
		ts, ok := v.(time.Time)
		if !ok {
			continue
		}
		if !found || ts.Before(lo) {
			lo = ts
		}
		if !found || ts.After(hi) {
			hi = ts
		}
		found = true
	}
	return lo, hi, found
}
