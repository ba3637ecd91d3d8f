// Package air defines the algebraic constraint system over the proving
// table: the instruction semantics, the memory consistency argument, the
// range-check argument and the builtin segment relations.
package air

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
)

// Challenges holds the verifier randomness the permutation arguments bind
// to. Both sides draw them from the same transcript after the main columns
// are committed.
type Challenges struct {
	// MemZ and MemAlpha combine and shift (address, value) pairs in the
	// memory permutation product.
	MemZ     felt.Element
	MemAlpha felt.Element
	// RcZ shifts range-check pool values in their permutation product.
	RcZ felt.Element
}

// RowConstraint is a polynomial identity over a single row. It is satisfied
// when the evaluator returns zero.
type RowConstraint struct {
	Name      string
	Degree    int
	Evaluator func(row []felt.Element, ch Challenges) felt.Element
}

// TransitionConstraint is a polynomial identity over two consecutive rows.
type TransitionConstraint struct {
	Name      string
	Degree    int
	Evaluator func(currentRow, nextRow []felt.Element, ch Challenges) felt.Element
}

// BoundaryConstraint pins one cell of the table to a public input value.
type BoundaryConstraint struct {
	Name   string
	Row    int
	Column int
	Value  felt.Element
}

// Air is the complete constraint system for one public input tuple. The
// constraint lists are ordered deterministically so prover and verifier
// agree on composition weights by index.
type Air struct {
	Layout trace.Layout
	Public PublicInputs

	initial     []RowConstraint
	consistency []RowConstraint
	transition  []TransitionConstraint
	terminal    []RowConstraint
	boundary    []BoundaryConstraint
}

// New builds the constraint system for a layout and public input tuple.
func New(layout trace.Layout, pub PublicInputs) *Air {
	a := &Air{Layout: layout, Public: pub}
	a.addInstructionConstraints()
	a.addRegisterUpdateConstraints()
	a.addSelectorConstraints()
	a.addBuiltinConstraints()
	a.addMemoryArgumentConstraints()
	a.addRangeCheckConstraints()
	a.addBoundaryConstraints()
	return a
}

// InitialConstraints returns the constraints on the first row.
func (a *Air) InitialConstraints() []RowConstraint { return a.initial }

// ConsistencyConstraints returns the constraints on every row.
func (a *Air) ConsistencyConstraints() []RowConstraint { return a.consistency }

// TransitionConstraints returns the constraints between consecutive rows.
func (a *Air) TransitionConstraints() []TransitionConstraint { return a.transition }

// TerminalConstraints returns the constraints on the last row.
func (a *Air) TerminalConstraints() []RowConstraint { return a.terminal }

// BoundaryConstraints returns the public input cell pins.
func (a *Air) BoundaryConstraints() []BoundaryConstraint { return a.boundary }

// MaxDegree returns the largest constraint degree in the system.
func (a *Air) MaxDegree() int {
	max := 0
	for _, c := range a.initial {
		if c.Degree > max {
			max = c.Degree
		}
	}
	for _, c := range a.consistency {
		if c.Degree > max {
			max = c.Degree
		}
	}
	for _, c := range a.transition {
		if c.Degree > max {
			max = c.Degree
		}
	}
	for _, c := range a.terminal {
		if c.Degree > max {
			max = c.Degree
		}
	}
	return max
}

func (a *Air) addInitial(name string, degree int, eval func(row []felt.Element, ch Challenges) felt.Element) {
	a.initial = append(a.initial, RowConstraint{Name: name, Degree: degree, Evaluator: eval})
}

func (a *Air) addConsistency(name string, degree int, eval func(row []felt.Element, ch Challenges) felt.Element) {
	a.consistency = append(a.consistency, RowConstraint{Name: name, Degree: degree, Evaluator: eval})
}

func (a *Air) addTransition(name string, degree int, eval func(currentRow, nextRow []felt.Element, ch Challenges) felt.Element) {
	a.transition = append(a.transition, TransitionConstraint{Name: name, Degree: degree, Evaluator: eval})
}

func (a *Air) addTerminal(name string, degree int, eval func(row []felt.Element, ch Challenges) felt.Element) {
	a.terminal = append(a.terminal, RowConstraint{Name: name, Degree: degree, Evaluator: eval})
}

// CheckTable evaluates every constraint over a fully extended table and
// reports the first violation. This is the reference acceptance predicate:
// a table passes exactly when it encodes a valid execution consistent with
// the public inputs.
func (a *Air) CheckTable(t *trace.Table, ch Challenges) error {
	rows := t.NumRows()
	if rows == 0 {
		return fault.New(fault.CodeRejected, "empty trace table")
	}
	for _, b := range a.boundary {
		if b.Row >= rows {
			return fault.New(fault.CodeRejected, "boundary constraint %q row %d out of range", b.Name, b.Row)
		}
		if !felt.Equal(t.Get(b.Row, b.Column), b.Value) {
			return fault.New(fault.CodeRejected,
				"boundary constraint %q violated at row %d", b.Name, b.Row)
		}
	}
	first := t.Row(0)
	for _, c := range a.initial {
		if !felt.IsZero(c.Evaluator(first, ch)) {
			return fault.New(fault.CodeRejected, "initial constraint %q violated", c.Name)
		}
	}
	for i := 0; i < rows; i++ {
		row := t.Row(i)
		for _, c := range a.consistency {
			if !felt.IsZero(c.Evaluator(row, ch)) {
				return fault.New(fault.CodeRejected,
					"consistency constraint %q violated at row %d", c.Name, i)
			}
		}
		if i+1 < rows {
			next := t.Row(i + 1)
			for _, c := range a.transition {
				if !felt.IsZero(c.Evaluator(row, next, ch)) {
					return fault.New(fault.CodeRejected,
						"transition constraint %q violated at row %d", c.Name, i)
				}
			}
		}
	}
	last := t.Row(rows - 1)
	for _, c := range a.terminal {
		if !felt.IsZero(c.Evaluator(last, ch)) {
			return fault.New(fault.CodeRejected, "terminal constraint %q violated", c.Name)
		}
	}
	return nil
}
