package chart

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabletalk/tabletalk/internal/table"
)

func vitals() *table.Table {
	return &table.Table{Name: "vs", Columns: []table.Column{
		{Name: "AGE", Kind: table.KindNumeric, Values: []any{34.0, 51.0, 29.0, 62.0, 45.0}},
		{Name: "WEIGHT", Kind: table.KindNumeric, Values: []any{70.5, nil, 58.0, nil, 81.2}},
		{Name: "SEX", Kind: table.KindText, Values: []any{"F", "M", "F", "M", "F"}},
	}}
}

func TestDetectType(t *testing.T) {
	cases := map[string]Type{
		"show the trend over time":           TypeLine,
		"weight vs height":                   TypeScatter,
		"count patients by sex":              TypeBar,
		"distribution of ages":               TypeBar,
		"histogram of weight":                TypeHistogram,
		"median weight by arm":               TypeBox,
		"percentage of each race":            TypePie,
		"correlation between lab values":     TypeHeatmap,
		"tell me something about the cohort": TypeScatter,
	}
	for question, want := range cases {
		assert.Equal(t, want, DetectType(question), question)
	}
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeHeatmap, ParseType(" Heatmap "))
	assert.Equal(t, TypeScatter, ParseType("sunburst"))
	assert.Equal(t, TypeScatter, ParseType(""))
}

func TestResolveColumnsNamedInQuestion(t *testing.T) {
	x, y, err := ResolveColumns(vitals(), "show me patients with age and weight")
	require.NoError(t, err)
	assert.Equal(t, "AGE", x)
	assert.Equal(t, "WEIGHT", y)
}

func TestResolveColumnsAliases(t *testing.T) {
	tbl := &table.Table{Columns: []table.Column{
		{Name: "USUBJID", Kind: table.KindText},
		{Name: "WTKG", Kind: table.KindNumeric},
		{Name: "AGEYRS", Kind: table.KindNumeric},
	}}
	x, y, err := ResolveColumns(tbl, "plot weight against age")
	require.NoError(t, err)
	assert.Equal(t, "AGEYRS", x)
	assert.Equal(t, "WTKG", y)
}

func TestResolveColumnsNumericFallback(t *testing.T) {
	x, y, err := ResolveColumns(vitals(), "make a chart")
	require.NoError(t, err)
	assert.Equal(t, "AGE", x)
	assert.Equal(t, "WEIGHT", y)
}

func TestResolveColumnsCompletesPartialPair(t *testing.T) {
	tbl := &table.Table{Columns: []table.Column{
		{Name: "USUBJID", Kind: table.KindText},
		{Name: "SEX", Kind: table.KindText},
	}}
	x, y, err := ResolveColumns(tbl, "break down by sex")
	require.NoError(t, err)
	assert.Equal(t, "SEX", x)
	assert.Equal(t, "USUBJID", y)
}

func TestResolveColumnsFailsWithoutCandidates(t *testing.T) {
	tbl := &table.Table{Columns: []table.Column{
		{Name: "USUBJID", Kind: table.KindText},
		{Name: "SEX", Kind: table.KindText},
	}}
	_, _, err := ResolveColumns(tbl, "make a chart")
	assert.ErrorIs(t, err, ErrUnresolvedColumns)
}

func TestRenderScatterDropsNullRows(t *testing.T) {
	spec, err := Render(TypeScatter, vitals(), "AGE", "WEIGHT")
	require.NoError(t, err)
	assert.Equal(t, 3, spec.Rows)
	assert.Equal(t, "Scatter Plot: AGE vs WEIGHT", spec.Layout.Title)
	assert.Equal(t, "AGE", spec.Layout.XAxisTitle)
	assert.Equal(t, "WEIGHT", spec.Layout.YAxisTitle)

	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"x_column":"AGE"`)
}

func TestRenderScatterWithoutValidRows(t *testing.T) {
	tbl := &table.Table{Columns: []table.Column{
		{Name: "A", Kind: table.KindNumeric, Values: []any{nil, 1.0}},
		{Name: "B", Kind: table.KindNumeric, Values: []any{2.0, nil}},
	}}
	spec, err := Render(TypeScatter, tbl, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 0, spec.Rows)
	assert.Contains(t, spec.Layout.Title, "No valid data")
}

func TestRenderBarCountsForTextY(t *testing.T) {
	spec, err := Render(TypeBar, vitals(), "SEX", "SEX")
	require.NoError(t, err)
	assert.Equal(t, "Bar Chart: Count of SEX", spec.Layout.Title)
	assert.Equal(t, "Count", spec.Layout.YAxisTitle)
	assert.Equal(t, 2, spec.Rows)

	spec, err = Render(TypeBar, vitals(), "SEX", "AGE")
	require.NoError(t, err)
	assert.Equal(t, "Bar Chart: AGE by SEX", spec.Layout.Title)
	assert.Equal(t, 5, spec.Rows)
}

func TestRenderHistogramUsesSturgesBins(t *testing.T) {
	spec, err := Render(TypeHistogram, vitals(), "AGE", "WEIGHT")
	require.NoError(t, err)
	assert.Equal(t, "Histogram: Distribution of AGE", spec.Layout.Title)
	assert.Equal(t, "Frequency", spec.Layout.YAxisTitle)
	assert.Equal(t, 4, spec.Rows)

	bins := sturgesBins([]float64{29, 34, 45, 51, 62})
	total := 0
	for _, b := range bins {
		total += b.count
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, "29-37.25", bins[0].label)
}

func TestRenderBoxGroupsByX(t *testing.T) {
	spec, err := Render(TypeBox, vitals(), "SEX", "AGE")
	require.NoError(t, err)
	assert.Equal(t, "Box Plot: AGE by SEX", spec.Layout.Title)
	assert.Equal(t, 2, spec.Rows)

	box := fiveNumber([]float64{45, 29, 34})
	assert.Equal(t, 29.0, box[0])
	assert.Equal(t, 34.0, box[2])
	assert.Equal(t, 45.0, box[4])
}

func TestRenderPie(t *testing.T) {
	spec, err := Render(TypePie, vitals(), "SEX", "AGE")
	require.NoError(t, err)
	assert.Equal(t, "Pie Chart: Distribution of SEX", spec.Layout.Title)
	assert.Equal(t, 2, spec.Rows)
}

func TestRenderHeatmap(t *testing.T) {
	spec, err := Render(TypeHeatmap, vitals(), "AGE", "WEIGHT")
	require.NoError(t, err)
	assert.Equal(t, "Correlation Heatmap", spec.Layout.Title)

	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Correlation Heatmap")
}

func TestRenderHeatmapNeedsTwoNumericColumns(t *testing.T) {
	tbl := &table.Table{Columns: []table.Column{
		{Name: "AGE", Kind: table.KindNumeric, Values: []any{1.0, 2.0}},
		{Name: "SEX", Kind: table.KindText, Values: []any{"F", "M"}},
	}}
	_, err := Render(TypeHeatmap, tbl, "AGE", "SEX")
	assert.ErrorIs(t, err, ErrInsufficientNumericColumns)
}

func TestRenderUnknownColumn(t *testing.T) {
	_, err := Render(TypeLine, vitals(), "AGE", "HEIGHT")
	assert.Error(t, err)
}

func TestCorrelation(t *testing.T) {
	assert.Equal(t, 1.0, correlation([]any{1.0, 2.0, 3.0}, []any{2.0, 4.0, 6.0}))
	assert.Nil(t, correlation([]any{1.0, 1.0, 1.0}, []any{2.0, 4.0, 6.0}))
	assert.Nil(t, correlation([]any{1.0, nil}, []any{2.0, 4.0}))
}

func TestSummarize(t *testing.T) {
	summary := Summarize(vitals(), "AGE", "SEX")
	assert.Equal(t, 5, summary.TotalRecords)
	require.NotNil(t, summary.XColumn)
	assert.Equal(t, "numeric", summary.XColumn.Type)
	assert.Equal(t, 5, summary.XColumn.UniqueValues)
	require.NotNil(t, summary.XColumn.Mean)
	assert.InDelta(t, 44.2, *summary.XColumn.Mean, 1e-9)
	assert.Equal(t, 29.0, *summary.XColumn.Min)
	assert.Equal(t, 62.0, *summary.XColumn.Max)
	require.NotNil(t, summary.XColumn.Std)
	assert.InDelta(t, 13.2174, *summary.XColumn.Std, 1e-3)

	require.NotNil(t, summary.YColumn)
	assert.Equal(t, "text", summary.YColumn.Type)
	assert.Equal(t, 2, summary.YColumn.UniqueValues)
	assert.Nil(t, summary.YColumn.Mean)
}

func TestInfiniteValuesAreSkipped(t *testing.T) {
	tbl := &table.Table{Name: "dm", Columns: []table.Column{
		{Name: "AGE", Kind: table.KindNumeric, Values: []any{30.0, 40.0, math.Inf(1), 50.0}},
		{Name: "SEX", Kind: table.KindText, Values: []any{"F", "M", "F", "M"}},
	}}

	spec, err := Render(TypeHistogram, tbl, "AGE", "SEX")
	require.NoError(t, err)
	assert.Equal(t, 3, spec.Rows)
	_, err = json.Marshal(spec)
	require.NoError(t, err)

	box, err := Render(TypeBox, tbl, "SEX", "AGE")
	require.NoError(t, err)
	_, err = json.Marshal(box)
	require.NoError(t, err)

	summary := Summarize(tbl, "AGE", "SEX")
	require.NotNil(t, summary.XColumn.Mean)
	assert.InDelta(t, 40.0, *summary.XColumn.Mean, 1e-9)
	assert.Equal(t, 50.0, *summary.XColumn.Max)
	_, err = json.Marshal(summary)
	require.NoError(t, err)
}
