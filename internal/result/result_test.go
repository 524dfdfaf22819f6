package result

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/query"
)

func TestNormalizeTableCapsRows(t *testing.T) {
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("01-%03d", i), time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)}
	}
	env := Normalize(query.TableOutcome{Columns: []string{"USUBJID", "RFSTDTC"}, Rows: rows})

	assert.Equal(t, KindTable, env.Kind)
	assert.Len(t, env.Rows, 20)
	require.NotNil(t, env.TotalRows)
	assert.Equal(t, 25, *env.TotalRows)
	assert.Equal(t, []int{25, 2}, env.Shape)
	assert.Equal(t, []string{"USUBJID", "RFSTDTC"}, env.Columns)
	assert.Equal(t, "2024-01-01", env.Rows[0]["RFSTDTC"])
}

func TestNormalizeTableWithCustomCap(t *testing.T) {
	rows := [][]any{{1.0}, {2.0}, {3.0}}
	env := NormalizeWithCap(query.TableOutcome{Columns: []string{"x"}, Rows: rows}, 2)
	assert.Len(t, env.Rows, 2)
	assert.Equal(t, 3, *env.TotalRows)
}

func TestNormalizeSeries(t *testing.T) {
	env := Normalize(query.SeriesOutcome{
		Index:     []any{"F", "M", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		Values:    []any{int64(3), int64(4), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		ValueKind: "integer",
	})
	assert.Equal(t, KindSeries, env.Kind)
	assert.Equal(t, []any{"F", "M", "2024-02-01"}, env.Index)
	assert.Equal(t, map[string]any{"F": int64(3), "M": int64(4), "2024-02-01": "2024-03-01"}, env.Data)
	assert.Equal(t, "integer", env.ValueKind)
}

func TestNormalizeScalarAndMapping(t *testing.T) {
	assert.Equal(t, Envelope{Kind: KindScalar, Value: int64(42)}, Normalize(query.ScalarOutcome{Value: int64(42)}))
	assert.Equal(t, Envelope{Kind: KindScalar, Value: nil}, Normalize(query.ScalarOutcome{Value: math.NaN()}))

	env := Normalize(query.MappingOutcome{
		Keys:   []string{"mean", "tags"},
		Values: map[string]any{"mean": 41.5, "tags": []any{"a", "b"}},
	})
	assert.Equal(t, KindDict, env.Kind)
	assert.Equal(t, map[string]any{"mean": 41.5, "tags": `["a","b"]`}, env.Data)
}

func TestNormalizeOpaqueCarriesAuxiliary(t *testing.T) {
	env := Normalize(query.OpaqueOutcome{Auxiliary: map[string]query.Outcome{
		"n":      query.ScalarOutcome{Value: int64(7)},
		"by_sex": query.SeriesOutcome{Index: []any{"F"}, Values: []any{int64(7)}},
		"stats":  query.MappingOutcome{Keys: []string{"a"}, Values: map[string]any{"a": 1.0}},
		"tbl":    query.TableOutcome{Columns: []string{"x"}, Rows: [][]any{{1.0}, {2.0}}},
	}})

	assert.Equal(t, KindOther, env.Kind)
	assert.Equal(t, "", env.Data)
	assert.Equal(t, int64(7), env.Auxiliary["n"])
	assert.Equal(t, "series map[F:7]", env.Auxiliary["by_sex"])
	assert.Equal(t, map[string]any{"a": 1.0}, env.Auxiliary["stats"])
	assert.Equal(t, "table 2x1 [x]", env.Auxiliary["tbl"])
}

func TestNilOutcome(t *testing.T) {
	env := Normalize(nil)
	assert.Equal(t, KindOther, env.Kind)
	assert.Nil(t, env.Auxiliary)
}

func TestEnvelopeJSONPerKind(t *testing.T) {
	raw, err := json.Marshal(Normalize(query.ScalarOutcome{Value: int64(42)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"scalar","value":42}`, string(raw))

	raw, err = json.Marshal(Normalize(query.ScalarOutcome{Value: false}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"scalar","value":false}`, string(raw))

	raw, err = json.Marshal(Normalize(query.TableOutcome{Columns: []string{"x"}, Rows: [][]any{}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"table","rows":[],"columns":["x"],"total_rows":0,"shape":[0,1]}`, string(raw))

	raw, err = json.Marshal(Normalize(query.OpaqueOutcome{Text: "x"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"other","data":"x","auxiliary":null}`, string(raw))
}
