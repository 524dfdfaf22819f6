package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeScalar(t *testing.T) {
	got := Shape([]string{"count_star()"}, []string{"BIGINT"}, [][]any{{int64(42)}})
	assert.Equal(t, ScalarOutcome{Value: int64(42)}, got)

	got = Shape([]string{"avg"}, []string{"DOUBLE"}, [][]any{{nil}})
	assert.Equal(t, ScalarOutcome{Value: nil}, got)
}

func TestShapeOpaqueForNestedSingleCell(t *testing.T) {
	got := Shape([]string{"l"}, []string{"INTEGER[]"}, [][]any{{[]any{int64(1), int64(2)}}})
	assert.Equal(t, OpaqueOutcome{Text: "[1,2]"}, got)

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	got = Shape([]string{"d"}, []string{"DATE"}, [][]any{{day}})
	assert.Equal(t, OpaqueOutcome{Text: "2024-05-01"}, got)
}

func TestShapeSeries(t *testing.T) {
	got := Shape([]string{"key", "value"}, []string{"VARCHAR", "BIGINT"}, [][]any{{"F", int64(3)}, {"M", int64(4)}})
	series, ok := got.(SeriesOutcome)
	require.True(t, ok)
	assert.Equal(t, []any{"F", "M"}, series.Index)
	assert.Equal(t, []any{int64(3), int64(4)}, series.Values)
	assert.Equal(t, "integer", series.ValueKind)

	single := Shape([]string{"INDEX", "n"}, []string{"VARCHAR", "DOUBLE"}, [][]any{{"F", 1.5}})
	_, ok = single.(SeriesOutcome)
	assert.True(t, ok, "single-row key/value result stays a series")
}

func TestShapeMapping(t *testing.T) {
	got := Shape([]string{"mean_age", "max_age"}, []string{"DOUBLE", "DOUBLE"}, [][]any{{41.5, 80.0}})
	assert.Equal(t, MappingOutcome{
		Keys:   []string{"mean_age", "max_age"},
		Values: map[string]any{"mean_age": 41.5, "max_age": 80.0},
	}, got)
}

func TestShapeTable(t *testing.T) {
	rows := [][]any{{"a", int64(1)}, {"b", int64(2)}}
	got := Shape([]string{"id", "n"}, []string{"VARCHAR", "BIGINT"}, rows)
	assert.Equal(t, TableOutcome{Columns: []string{"id", "n"}, Types: []string{"VARCHAR", "BIGINT"}, Rows: rows}, got)

	empty := Shape([]string{"id"}, []string{"VARCHAR"}, nil)
	assert.Equal(t, TableOutcome{Columns: []string{"id"}, Types: []string{"VARCHAR"}, Rows: [][]any{}}, empty)
}

func TestValueKind(t *testing.T) {
	cases := map[string]string{
		"BIGINT":        "integer",
		"HUGEINT":       "integer",
		"DOUBLE":        "float",
		"DECIMAL(18,3)": "float",
		"VARCHAR":       "text",
		"BOOLEAN":       "boolean",
		"DATE":          "temporal",
		"TIMESTAMP":     "temporal",
		"INTERVAL":      "interval",
		"INTEGER[]":     "nested",
		"":              "unknown",
		"BLOB":          "blob",
	}
	for in, want := range cases {
		assert.Equal(t, want, ValueKind(in), in)
	}
}
