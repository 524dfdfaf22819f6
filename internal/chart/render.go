package chart

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tabletalk/tabletalk/internal/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// figure is the part of a go-echarts chart needed to export its option
// document.
type figure interface {
	Validate()
	JSON() map[string]interface{}
}

func export(f figure) map[string]any {
	f.Validate()
	return f.JSON()
}

// Render builds the figure for kind from columns x and y of t. Histogram and
// pie only read x; heatmap reads every numeric column.
func Render(kind Type, t *table.Table, x, y string) (Spec, error) {
	if kind == TypeHeatmap {
		return renderHeatmap(t, x, y)
	}
	xc, ok := t.Column(x)
	if !ok {
		return Spec{}, fmt.Errorf("unknown column %q", x)
	}
	yc, ok := t.Column(y)
	if !ok {
		return Spec{}, fmt.Errorf("unknown column %q", y)
	}

	switch kind {
	case TypeLine:
		return renderLine(xc, yc), nil
	case TypeBar:
		return renderBar(xc, yc), nil
	case TypeHistogram:
		return renderHistogram(xc, y), nil
	case TypeBox:
		return renderBox(xc, yc)
	case TypePie:
		return renderPie(xc, y), nil
	default:
		return renderScatter(xc, yc), nil
	}
}

func rectOptions(layout Layout, xType string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: layout.Title}),
		charts.WithXAxisOpts(opts.XAxis{Name: layout.XAxisTitle, Type: xType}),
		charts.WithYAxisOpts(opts.YAxis{Name: layout.YAxisTitle}),
	}
}

func renderScatter(xc, yc *table.Column) Spec {
	layout := Layout{
		Title:      fmt.Sprintf("Scatter Plot: %s vs %s", xc.Name, yc.Name),
		XAxisTitle: xc.Name,
		YAxisTitle: yc.Name,
	}
	points := make([]opts.ScatterData, 0, len(xc.Values))
	for i := range xc.Values {
		xv, yv := xc.Values[i], yc.Values[i]
		if xv == nil || yv == nil {
			continue
		}
		points = append(points, opts.ScatterData{Value: []any{plotValue(xv), plotValue(yv)}})
	}
	if len(points) == 0 {
		layout = Layout{Title: "No valid data for scatter plot"}
	}

	fig := charts.NewScatter()
	fig.SetGlobalOptions(rectOptions(layout, axisType(xc))...)
	if len(points) > 0 {
		fig.AddSeries(yc.Name, points)
	}
	return Spec{Type: TypeScatter, XColumn: xc.Name, YColumn: yc.Name, Data: export(fig), Layout: layout, Rows: len(points)}
}

func renderLine(xc, yc *table.Column) Spec {
	layout := Layout{
		Title:      fmt.Sprintf("Line Plot: %s over %s", yc.Name, xc.Name),
		XAxisTitle: xc.Name,
		YAxisTitle: yc.Name,
	}
	labels := make([]string, 0, len(xc.Values))
	points := make([]opts.LineData, 0, len(yc.Values))
	for i := range xc.Values {
		labels = append(labels, table.FormatValue(xc.Values[i]))
		points = append(points, opts.LineData{Value: plotValue(yc.Values[i])})
	}

	fig := charts.NewLine()
	fig.SetGlobalOptions(rectOptions(layout, "category")...)
	fig.SetXAxis(labels).AddSeries(yc.Name, points)
	return Spec{Type: TypeLine, XColumn: xc.Name, YColumn: yc.Name, Data: export(fig), Layout: layout, Rows: len(points)}
}

// renderBar plots raw y by x when y is numeric and the value counts of x
// otherwise.
func renderBar(xc, yc *table.Column) Spec {
	fig := charts.NewBar()
	if yc.Kind == table.KindNumeric {
		layout := Layout{
			Title:      fmt.Sprintf("Bar Chart: %s by %s", yc.Name, xc.Name),
			XAxisTitle: xc.Name,
			YAxisTitle: yc.Name,
		}
		labels := make([]string, 0, len(xc.Values))
		bars := make([]opts.BarData, 0, len(yc.Values))
		for i := range xc.Values {
			labels = append(labels, table.FormatValue(xc.Values[i]))
			bars = append(bars, opts.BarData{Value: plotValue(yc.Values[i])})
		}
		fig.SetGlobalOptions(rectOptions(layout, "category")...)
		fig.SetXAxis(labels).AddSeries(yc.Name, bars)
		return Spec{Type: TypeBar, XColumn: xc.Name, YColumn: yc.Name, Data: export(fig), Layout: layout, Rows: len(bars)}
	}

	layout := Layout{
		Title:      fmt.Sprintf("Bar Chart: Count of %s", xc.Name),
		XAxisTitle: xc.Name,
		YAxisTitle: "Count",
	}
	counts := valueCounts(xc.Values)
	labels := make([]string, 0, len(counts))
	bars := make([]opts.BarData, 0, len(counts))
	for _, c := range counts {
		labels = append(labels, c.label)
		bars = append(bars, opts.BarData{Value: c.count})
	}
	fig.SetGlobalOptions(rectOptions(layout, "category")...)
	fig.SetXAxis(labels).AddSeries("Count", bars)
	return Spec{Type: TypeBar, XColumn: xc.Name, YColumn: yc.Name, Data: export(fig), Layout: layout, Rows: len(bars)}
}

func renderHistogram(xc *table.Column, y string) Spec {
	layout := Layout{
		Title:      fmt.Sprintf("Histogram: Distribution of %s", xc.Name),
		XAxisTitle: xc.Name,
		YAxisTitle: "Frequency",
	}
	var labels []string
	var bars []opts.BarData
	if xc.Kind == table.KindNumeric {
		for _, b := range sturgesBins(numbers(xc.Values)) {
			labels = append(labels, b.label)
			bars = append(bars, opts.BarData{Value: b.count})
		}
	} else {
		for _, c := range valueCounts(xc.Values) {
			labels = append(labels, c.label)
			bars = append(bars, opts.BarData{Value: c.count})
		}
	}

	fig := charts.NewBar()
	fig.SetGlobalOptions(rectOptions(layout, "category")...)
	fig.SetXAxis(labels).AddSeries("Frequency", bars)
	return Spec{Type: TypeHistogram, XColumn: xc.Name, YColumn: y, Data: export(fig), Layout: layout, Rows: len(bars)}
}

// renderBox draws y grouped by x, groups in first-seen order.
func renderBox(xc, yc *table.Column) (Spec, error) {
	if yc.Kind != table.KindNumeric {
		if xc.Kind != table.KindNumeric {
			return Spec{}, fmt.Errorf("%w: box plot needs a numeric column", ErrUnresolvedColumns)
		}
		xc, yc = yc, xc
	}
	layout := Layout{
		Title:      fmt.Sprintf("Box Plot: %s by %s", yc.Name, xc.Name),
		XAxisTitle: xc.Name,
		YAxisTitle: yc.Name,
	}

	groups := map[string][]float64{}
	var order []string
	for i := range xc.Values {
		v, ok := finite(yc.Values[i])
		if !ok {
			continue
		}
		label := table.FormatValue(xc.Values[i])
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], v)
	}
	boxes := make([]opts.BoxPlotData, 0, len(order))
	for _, label := range order {
		boxes = append(boxes, opts.BoxPlotData{Value: fiveNumber(groups[label])})
	}

	fig := charts.NewBoxPlot()
	fig.SetGlobalOptions(rectOptions(layout, "category")...)
	fig.SetXAxis(order).AddSeries(yc.Name, boxes)
	return Spec{Type: TypeBox, XColumn: xc.Name, YColumn: yc.Name, Data: export(fig), Layout: layout, Rows: len(boxes)}, nil
}

func renderPie(xc *table.Column, y string) Spec {
	layout := Layout{Title: fmt.Sprintf("Pie Chart: Distribution of %s", xc.Name)}
	counts := valueCounts(xc.Values)
	slices := make([]opts.PieData, 0, len(counts))
	for _, c := range counts {
		slices = append(slices, opts.PieData{Name: c.label, Value: c.count})
	}

	fig := charts.NewPie()
	fig.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: layout.Title}))
	fig.AddSeries(xc.Name, slices)
	return Spec{Type: TypePie, XColumn: xc.Name, YColumn: y, Data: export(fig), Layout: layout, Rows: len(slices)}
}

// renderHeatmap draws the Pearson correlation of every numeric column pair,
// each pair over the rows where both values are present.
func renderHeatmap(t *table.Table, x, y string) (Spec, error) {
	names := t.NumericColumns()
	if len(names) < 2 {
		return Spec{}, ErrInsufficientNumericColumns
	}
	layout := Layout{Title: "Correlation Heatmap"}
	cells := make([]opts.HeatMapData, 0, len(names)*len(names))
	for i, a := range names {
		ac, _ := t.Column(a)
		for j, b := range names {
			bc, _ := t.Column(b)
			cells = append(cells, opts.HeatMapData{Value: [3]any{i, j, correlation(ac.Values, bc.Values)}})
		}
	}

	fig := charts.NewHeatMap()
	fig.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: layout.Title}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: names}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: names}),
		charts.WithVisualMapOpts(opts.VisualMap{Min: -1, Max: 1}),
	)
	fig.SetXAxis(names).AddSeries("correlation", cells)
	return Spec{Type: TypeHeatmap, XColumn: x, YColumn: y, Data: export(fig), Layout: layout, Rows: t.RowCount()}, nil
}

// correlation returns nil when fewer than two complete pairs exist or
// either side is constant.
func correlation(a, b []any) any {
	var xs, ys []float64
	for i := range a {
		av, aok := finite(a[i])
		bv, bok := finite(b[i])
		if aok && bok {
			xs = append(xs, av)
			ys = append(ys, bv)
		}
	}
	if len(xs) < 2 {
		return nil
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return nil
	}
	return math.Round(r*10000) / 10000
}

func fiveNumber(values []float64) [5]float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return [5]float64{
		floats.Min(sorted),
		stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil),
		floats.Max(sorted),
	}
}

type bin struct {
	label string
	count int
}

// sturgesBins splits values into ceil(log2 n)+1 equal-width bins.
func sturgesBins(values []float64) []bin {
	if len(values) == 0 {
		return nil
	}
	lo, hi := floats.Min(values), floats.Max(values)
	k := int(math.Ceil(math.Log2(float64(len(values))))) + 1
	if hi == lo {
		k = 1
	}
	width := (hi - lo) / float64(k)
	out := make([]bin, k)
	for i := range out {
		start := lo + float64(i)*width
		end := start + width
		if i == k-1 {
			end = hi
		}
		out[i].label = formatFloat(start) + "-" + formatFloat(end)
	}
	for _, v := range values {
		idx := k - 1
		if width > 0 {
			idx = int((v - lo) / width)
			if idx >= k {
				idx = k - 1
			}
		}
		out[idx].count++
	}
	return out
}

// valueCounts counts non-null values, most frequent first and ties in
// first-seen order.
func valueCounts(values []any) []bin {
	index := map[string]int{}
	var out []bin
	for _, v := range values {
		if v == nil {
			continue
		}
		label := table.FormatValue(v)
		if i, ok := index[label]; ok {
			out[i].count++
			continue
		}
		index[label] = len(out)
		out = append(out, bin{label: label, count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}

func numbers(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := finite(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// finite reports v as a float when it is a number other than NaN or ±Inf.
func finite(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func axisType(col *table.Column) string {
	if col.Kind == table.KindNumeric {
		return "value"
	}
	return "category"
}

// plotValue converts a cell into something the figure JSON can carry.
func plotValue(v any) any {
	switch typed := v.(type) {
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case time.Time:
		return typed.Format(time.DateOnly)
	default:
		return typed
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}
