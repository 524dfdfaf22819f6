// Package chart picks a chart kind and two columns for a question and
// renders the figure as an ECharts option document.
package chart

import (
	"errors"
	"strings"
)

var (
	ErrUnresolvedColumns          = errors.New("could not identify two columns for the chart")
	ErrInsufficientNumericColumns = errors.New("need at least 2 numeric columns for a correlation heatmap")
)

type Type string

const (
	TypeScatter   Type = "scatter"
	TypeLine      Type = "line"
	TypeBar       Type = "bar"
	TypeHistogram Type = "histogram"
	TypeBox       Type = "box"
	TypePie       Type = "pie"
	TypeHeatmap   Type = "heatmap"
)

// Layout is the caller-facing description that travels next to the figure.
type Layout struct {
	Title      string `json:"title"`
	XAxisTitle string `json:"xaxis_title,omitempty"`
	YAxisTitle string `json:"yaxis_title,omitempty"`
}

// Spec is one rendered chart. Data is the JSON-safe figure document.
type Spec struct {
	Type    Type           `json:"type"`
	XColumn string         `json:"x_column"`
	YColumn string         `json:"y_column"`
	Data    map[string]any `json:"data"`
	Layout  Layout         `json:"layout"`
	Rows    int            `json:"rows"`
}

type rule struct {
	kind  Type
	words []string
}

// Cue sets overlap ("distribution" is both a bar and a histogram cue), so
// the first matching rule wins.
var rules = []rule{
	{TypeScatter, []string{"scatter", "plot", "vs", "versus", "against"}},
	{TypeLine, []string{"line", "trend", "over time", "timeline"}},
	{TypeBar, []string{"bar", "count", "frequency", "distribution"}},
	{TypeHistogram, []string{"histogram", "distribution", "range"}},
	{TypeBox, []string{"box", "quartile", "median"}},
	{TypePie, []string{"pie", "percentage", "proportion"}},
	{TypeHeatmap, []string{"heatmap", "correlation"}},
}

// DetectType classifies a question by keyword. Questions without a cue get
// a scatter plot.
func DetectType(question string) Type {
	lower := strings.ToLower(question)
	for _, r := range rules {
		for _, word := range r.words {
			if strings.Contains(lower, word) {
				return r.kind
			}
		}
	}
	return TypeScatter
}

// ParseType validates an explicit chart type. Unknown names fall back to
// scatter.
func ParseType(name string) Type {
	switch kind := Type(strings.ToLower(strings.TrimSpace(name))); kind {
	case TypeScatter, TypeLine, TypeBar, TypeHistogram, TypeBox, TypePie, TypeHeatmap:
		return kind
	default:
		return TypeScatter
	}
}
