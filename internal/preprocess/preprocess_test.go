package preprocess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabletalk/tabletalk/internal/table"
)

func textColumn(name string, values ...any) table.Column {
	return table.Column{Name: name, Kind: table.KindText, Values: values}
}

func TestPlaceholderCellsBecomeNull(t *testing.T) {
	in := &table.Table{Name: "ae", Columns: []table.Column{
		textColumn("AESEV", "MILD", "***", " ** ", "SEVERE"),
		textColumn("AGE", "34", "****", "51", nil),
		textColumn("NOTE", "*", "ok", "fine", "x"),
	}}

	out := Table(in)

	sev, ok := out.Column("AESEV")
	require.True(t, ok)
	assert.Equal(t, table.KindText, sev.Kind)
	assert.Equal(t, []any{"MILD", nil, nil, "SEVERE"}, sev.Values)

	age, _ := out.Column("AGE")
	assert.Equal(t, table.KindNumeric, age.Kind)
	assert.Equal(t, []any{34.0, nil, 51.0, nil}, age.Values)

	note, _ := out.Column("NOTE")
	assert.Equal(t, []any{"*", "ok", "fine", "x"}, note.Values, "a single asterisk is data")
}

func TestNumericIsTriedBeforeTemporal(t *testing.T) {
	in := &table.Table{Name: "dm", Columns: []table.Column{
		textColumn("ENROLL_DATE", "20240101", "20240215", "20240301"),
	}}

	out := Table(in)

	col := out.Columns[0]
	assert.Equal(t, table.KindNumeric, col.Kind)
	assert.Equal(t, []any{20240101.0, 20240215.0, 20240301.0}, col.Values)
}

func TestNaNCellsBecomeNull(t *testing.T) {
	out := Column(textColumn("HEIGHT", "170", "NaN", "nan", "182.5"))
	assert.Equal(t, table.KindNumeric, out.Kind)
	assert.Equal(t, []any{170.0, nil, nil, 182.5}, out.Values)
}

func TestInfiniteCellsBecomeNull(t *testing.T) {
	out := Column(textColumn("AGE", "30", "40", "inf", "50", "-Infinity"))
	assert.Equal(t, table.KindNumeric, out.Kind)
	assert.Equal(t, []any{30.0, 40.0, nil, 50.0, nil}, out.Values)
}

func TestDateColumnsNeedKeyword(t *testing.T) {
	in := &table.Table{Name: "dm", Columns: []table.Column{
		textColumn("BRTHDTC", "1980-05-17", "17-MAY-1981", "unknown"),
		textColumn("Visit Date", "03/15/2024", nil, "2024/03/16"),
		textColumn("LABEL", "2024-01-01", "2024-01-02", "2024-01-03"),
	}}

	out := Table(in)

	birth, _ := out.Column("BRTHDTC")
	require.Equal(t, table.KindTemporal, birth.Kind)
	assert.Equal(t, time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC), birth.Values[0])
	assert.Equal(t, time.Date(1981, 5, 17, 0, 0, 0, 0, time.UTC), birth.Values[1])
	assert.Nil(t, birth.Values[2])

	visit, ok := out.Column("Visit_Date")
	require.True(t, ok)
	assert.Equal(t, table.KindTemporal, visit.Kind)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), visit.Values[2])

	label, _ := out.Column("LABEL")
	assert.Equal(t, table.KindText, label.Kind)
}

func TestDateColumnWithNoParsableCellStaysText(t *testing.T) {
	out := Column(textColumn("VISIT", "Screening", "Week 1"))
	assert.Equal(t, table.KindText, out.Kind)
	assert.Equal(t, []any{"Screening", "Week 1"}, out.Values)
}

func TestTableDoesNotMutateInput(t *testing.T) {
	in := &table.Table{Name: "dm", Columns: []table.Column{textColumn(" AGE ", "1", "**")}}

	_ = Table(in)

	assert.Equal(t, " AGE ", in.Columns[0].Name)
	assert.Equal(t, table.KindText, in.Columns[0].Kind)
	assert.Equal(t, []any{"1", "**"}, in.Columns[0].Values)
}

func TestTablesKeepsOrder(t *testing.T) {
	out := Tables([]*table.Table{{Name: "b"}, {Name: "a"}})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name)
	assert.Equal(t, "a", out[1].Name)
}

func TestParseDateLayouts(t *testing.T) {
	for _, raw := range []string{"2024-03-01", "2024-03-01 10:00:00", "2024-03-01T10:00:00Z", "03/01/2024", "2024/03/01", "01-Mar-2024", "01MAR2024"} {
		ts, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.Equal(t, 2024, ts.Year(), raw)
		assert.Equal(t, time.March, ts.Month(), raw)
	}
	_, ok := ParseDate("not a date")
	assert.False(t, ok)
}
