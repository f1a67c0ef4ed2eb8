package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// comparison enumerates the relational operators shared by the compare and
// branch instructions. The Un variants are unsigned for integers and
// unordered for floats.
type comparison uint8

const (
	cmpEq comparison = iota
	cmpNeUn
	cmpGe
	cmpGeUn
	cmpGt
	cmpGtUn
	cmpLe
	cmpLeUn
	cmpLt
	cmpLtUn
)

// compareSlots evaluates a op b. The second result is false when the
// operand kinds cannot be compared.
func compareSlots(f *ValueFactory, op comparison, a, b StackSlot) (bitvec.Trilean, bool) {
	if a.Type == HintFloat || b.Type == HintFloat {
		if a.Type != b.Type || a.Width() != 64 || b.Width() != 64 {
			return bitvec.Unknown, false
		}
		return compareFloats(op, a.Contents, b.Contents), true
	}
	width, ok := binaryWidth(a, b, f.PointerBits())
	if !ok {
		return bitvec.Unknown, false
	}
	signed := op != cmpGeUn && op != cmpGtUn && op != cmpLeUn && op != cmpLtUn
	x := widen(f, a, width, signed)
	y := widen(f, b, width, signed)
	defer f.Pool.Return(x)
	defer f.Pool.Return(y)
	return compareIntegers(op, x, y), true
}

func compareIntegers(op comparison, x, y *bitvec.BitVector) bitvec.Trilean {
	switch op {
	case cmpEq:
		return x.Equals(y)
	case cmpNeUn:
		return x.Equals(y).Not()
	case cmpGe:
		return x.LessThan(y, true).Not()
	case cmpGeUn:
		return x.LessThan(y, false).Not()
	case cmpGt:
		return x.GreaterThan(y, true)
	case cmpGtUn:
		return x.GreaterThan(y, false)
	case cmpLe:
		return x.GreaterThan(y, true).Not()
	case cmpLeUn:
		return x.GreaterThan(y, false).Not()
	case cmpLt:
		return x.LessThan(y, true)
	default:
		return x.LessThan(y, false)
	}
}

func compareFloats(op comparison, x, y *bitvec.BitVector) bitvec.Trilean {
	switch op {
	case cmpEq:
		return x.FloatEquals(y)
	case cmpNeUn:
		return x.FloatEquals(y).Not()
	case cmpGe:
		return x.FloatGreaterThan(y, false).Or(x.FloatEquals(y))
	case cmpGeUn:
		return x.FloatLessThan(y, false).Not()
	case cmpGt:
		return x.FloatGreaterThan(y, false)
	case cmpGtUn:
		return x.FloatGreaterThan(y, true)
	case cmpLe:
		return x.FloatLessThan(y, false).Or(x.FloatEquals(y))
	case cmpLeUn:
		return x.FloatGreaterThan(y, false).Not()
	case cmpLt:
		return x.FloatLessThan(y, false)
	default:
		return x.FloatLessThan(y, true)
	}
}

// ---------------------------------------------------------------------------
// ceq, cgt, clt
// ---------------------------------------------------------------------------

type comparisonHandler struct{}

var comparisonOps = map[meta.Opcode]comparison{
	meta.OpCeq:   cmpEq,
	meta.OpCgt:   cmpGt,
	meta.OpCgtUn: cmpGtUn,
	meta.OpClt:   cmpLt,
	meta.OpCltUn: cmpLtUn,
}

func (comparisonHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpCeq, meta.OpCgt, meta.OpCgtUn, meta.OpClt, meta.OpCltUn}
}

// Dispatch pushes an int32 that is 1, 0, or a value whose low bit is
// unknown.
func (comparisonHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	stack := ctx.Stack()
	stack.Require(2)
	b := stack.Pop()
	a := stack.Pop()
	defer f.Release(a, b)

	result, ok := compareSlots(f, comparisonOps[instr.Opcode], a, b)
	if !ok {
		return invalidProgram("%s on %s and %s", instr.Opcode, a.Kind(f.PointerBits()), b.Kind(f.PointerBits()))
	}
	out := f.RentKnown(32)
	out.WriteTrilean(result)
	return ctx.push(instr, StackSlot{Contents: out, Type: HintInteger})
}
