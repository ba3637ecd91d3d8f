package vm

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// BuiltinRunner is the uniform contract of a builtin segment: validate the
// cells the execution stores in its reserved region and contribute auxiliary
// trace values for the row that accessed them. The variant set is closed;
// the AIR composes each variant's constraints without special-casing.
type BuiltinRunner interface {
	// Descriptor returns the segment this runner guards.
	Descriptor() BuiltinDescriptor

	// AuxWidth returns the number of auxiliary trace columns the variant
	// contributes, excluding the shared indicator and value columns.
	AuxWidth() int

	// ValidateCell checks one accessed cell against the segment's bound
	// and returns its auxiliary decomposition for the accessing row.
	ValidateCell(addr uint64, value felt.Element) ([]felt.Element, error)

	// Finalize re-checks the whole populated segment once execution has
	// completed.
	Finalize(mem *Memory) error
}

// BuiltinAccess is the auxiliary contribution of builtin segments to one
// trace row. Rows that touch no builtin cell carry a zero indicator and
// all-zero aux values.
type BuiltinAccess struct {
	// Indicator is 1 when the row accessed the segment, else 0.
	Indicator felt.Element
	// Value is the accessed cell's value (0 when Indicator is 0).
	Value felt.Element
	// Aux holds the variant's decomposition values, AuxWidth wide.
	Aux []felt.Element
}

// NewBuiltinRunner instantiates the runner for a descriptor.
func NewBuiltinRunner(d BuiltinDescriptor) (BuiltinRunner, error) {
	switch d.Kind {
	case BuiltinRangeCheck:
		return &rangeCheckRunner{desc: d}, nil
	case BuiltinBitwise:
		if d.BoundBits > 16 {
			return nil, fault.New(fault.CodeIO, "bitwise builtin bound of %d bits exceeds the 16-bit maximum", d.BoundBits)
		}
		return &bitwiseRunner{desc: d}, nil
	default:
		return nil, fault.New(fault.CodeIO, "unknown builtin segment %q", d.Kind)
	}
}

// rangeCheckRunner bounds every cell in its segment to [0, 2^BoundBits) and
// decomposes it into 16-bit limbs. The limbs are also fed into the shared
// 16-bit range-check argument by the trace builder.
type rangeCheckRunner struct {
	desc BuiltinDescriptor
}

func (r *rangeCheckRunner) Descriptor() BuiltinDescriptor { return r.desc }

// AuxWidth is the 16-bit limb count of the configured bound.
func (r *rangeCheckRunner) AuxWidth() int {
	return int((r.desc.BoundBits + 15) / 16)
}

func (r *rangeCheckRunner) ValidateCell(addr uint64, value felt.Element) ([]felt.Element, error) {
	v := value.Uint64()
	if r.desc.BoundBits < 64 && v >= 1<<r.desc.BoundBits {
		return nil, fault.New(fault.CodeExecution,
			"range-check cell at address %d holds %d, outside the %d-bit bound", addr, v, r.desc.BoundBits)
	}
	limbs := make([]felt.Element, r.AuxWidth())
	for i := range limbs {
		limbs[i] = felt.New(v >> (16 * uint(i)) & 0xffff)
	}
	return limbs, nil
}

func (r *rangeCheckRunner) Finalize(mem *Memory) error {
	for addr := r.desc.Base; addr < r.desc.Base+r.desc.Size; addr++ {
		if v, ok := mem.Read(addr); ok {
			if _, err := r.ValidateCell(addr, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// bitwiseRunner guards 5-cell groups laid out as (x, y, x&y, x^y, x|y).
// Input cells are bounded and bit-decomposed per accessing row; the output
// cells are checked against the inputs once the segment is complete.
type bitwiseRunner struct {
	desc BuiltinDescriptor
}

const bitwiseCellsPerGroup = 5

func (r *bitwiseRunner) Descriptor() BuiltinDescriptor { return r.desc }

// AuxWidth is one bit column per bound bit.
func (r *bitwiseRunner) AuxWidth() int {
	return int(r.desc.BoundBits)
}

func (r *bitwiseRunner) ValidateCell(addr uint64, value felt.Element) ([]felt.Element, error) {
	v := value.Uint64()
	if v >= 1<<r.desc.BoundBits {
		return nil, fault.New(fault.CodeExecution,
			"bitwise cell at address %d holds %d, outside the %d-bit bound", addr, v, r.desc.BoundBits)
	}
	bits := make([]felt.Element, r.AuxWidth())
	for i := range bits {
		bits[i] = felt.New(v >> uint(i) & 1)
	}
	return bits, nil
}

func (r *bitwiseRunner) Finalize(mem *Memory) error {
	for group := r.desc.Base; group+bitwiseCellsPerGroup <= r.desc.Base+r.desc.Size; group += bitwiseCellsPerGroup {
		x, okX := mem.Read(group)
		y, okY := mem.Read(group + 1)
		if !okX || !okY {
			continue
		}
		if _, err := r.ValidateCell(group, x); err != nil {
			return err
		}
		if _, err := r.ValidateCell(group+1, y); err != nil {
			return err
		}
		want := [3]uint64{
			x.Uint64() & y.Uint64(),
			x.Uint64() ^ y.Uint64(),
			x.Uint64() | y.Uint64(),
		}
		for i, w := range want {
			got, ok := mem.Read(group + 2 + uint64(i))
			if !ok {
				continue
			}
			if got.Uint64() != w {
				return fault.New(fault.CodeExecution,
					"bitwise output cell at address %d holds %d, expected %d", group+2+uint64(i), got.Uint64(), w)
			}
		}
	}
	return nil
}
