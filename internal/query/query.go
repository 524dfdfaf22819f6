// Package query defines the analysis script model and the outcomes an
// execution engine produces from it.
package query

import (
	"context"

	"github.com/tabletalk/tabletalk/internal/table"
)

// ResultName is the reserved binding that holds a script's answer.
const ResultName = "result"

// AuxiliaryPrefix marks bindings collected into the auxiliary answers.
const AuxiliaryPrefix = "results."

type Request struct {
	Script string
	Tables []*table.Table
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Outcome, error)
}

// Outcome is the value bound to ResultName. The concrete types below are
// the only implementations.
type Outcome interface {
	Aux() map[string]Outcome
	isOutcome()
}

// TableOutcome is a rectangular result. Types holds the engine type name per
// column.
type TableOutcome struct {
	Columns   []string
	Types     []string
	Rows      [][]any
	Auxiliary map[string]Outcome
}

// SeriesOutcome is an ordered key to value sequence.
type SeriesOutcome struct {
	Index     []any
	Values    []any
	ValueKind string
	Auxiliary map[string]Outcome
}

// ScalarOutcome holds a number, string or bool.
type ScalarOutcome struct {
	Value     any
	Auxiliary map[string]Outcome
}

// MappingOutcome is a single row keyed by column name.
type MappingOutcome struct {
	Keys      []string
	Values    map[string]any
	Auxiliary map[string]Outcome
}

// OpaqueOutcome is the stringified fallback, also used when the script never
// assigned ResultName.
type OpaqueOutcome struct {
	Text      string
	Auxiliary map[string]Outcome
}

func (o TableOutcome) Aux() map[string]Outcome   { return o.Auxiliary }
func (o SeriesOutcome) Aux() map[string]Outcome  { return o.Auxiliary }
func (o ScalarOutcome) Aux() map[string]Outcome  { return o.Auxiliary }
func (o MappingOutcome) Aux() map[string]Outcome { return o.Auxiliary }
func (o OpaqueOutcome) Aux() map[string]Outcome  { return o.Auxiliary }

func (TableOutcome) isOutcome()   {}
func (SeriesOutcome) isOutcome()  {}
func (ScalarOutcome) isOutcome()  {}
func (MappingOutcome) isOutcome() {}
func (OpaqueOutcome) isOutcome()  {}
