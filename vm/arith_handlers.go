package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Arithmetic and bitwise instructions
// ---------------------------------------------------------------------------

// widen rents a copy of s resized to width bits. Narrower integers are
// sign-extended for signed operations and zero-extended for unsigned ones.
func widen(f *ValueFactory, s StackSlot, width int, signed bool) *bitvec.BitVector {
	v := f.Pool.Rent(width, true)
	s.Contents.ResizeInto(v, signed)
	return v
}

// unsignedArithmetic lists the operations that treat their operands as
// unsigned.
var unsignedArithmetic = map[meta.Opcode]bool{
	meta.OpDivUn:    true,
	meta.OpRemUn:    true,
	meta.OpAddOvfUn: true,
	meta.OpSubOvfUn: true,
	meta.OpMulOvfUn: true,
}

type binaryArithmeticHandler struct{}

func (binaryArithmeticHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{
		meta.OpAdd, meta.OpSub, meta.OpMul, meta.OpDiv, meta.OpDivUn, meta.OpRem, meta.OpRemUn,
		meta.OpAnd, meta.OpOr, meta.OpXor,
		meta.OpAddOvf, meta.OpAddOvfUn, meta.OpSubOvf, meta.OpSubOvfUn, meta.OpMulOvf, meta.OpMulOvfUn,
	}
}

func (binaryArithmeticHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	stack := ctx.Stack()
	stack.Require(2)
	b := stack.Pop()
	a := stack.Pop()
	defer f.Release(a, b)

	if a.Type == HintFloat || b.Type == HintFloat {
		if a.Type != b.Type || a.Width() != 64 || b.Width() != 64 {
			return invalidProgram("%s on %s and %s", instr.Opcode, a.Kind(f.PointerBits()), b.Kind(f.PointerBits()))
		}
		return floatArithmetic(ctx, instr, a, b)
	}
	width, ok := binaryWidth(a, b, f.PointerBits())
	if !ok {
		return invalidProgram("%s on %s and %s", instr.Opcode, a.Kind(f.PointerBits()), b.Kind(f.PointerBits()))
	}

	scope := f.Pool.Scope()
	defer scope.Release()
	extend := !unsignedArithmetic[instr.Opcode]
	x := scope.Adopt(widen(f, a, width, extend))
	y := scope.Adopt(widen(f, b, width, extend))
	corlib := &ctx.Machine.Module.CorLib

	overflow := bitvec.False
	switch instr.Opcode {
	case meta.OpAdd:
		x.Add(y)
	case meta.OpSub:
		x.Sub(y)
	case meta.OpMul:
		x.Mul(y)
	case meta.OpAnd:
		x.And(y)
	case meta.OpOr:
		x.Or(y)
	case meta.OpXor:
		x.Xor(y)
	case meta.OpAddOvf, meta.OpAddOvfUn:
		overflow = x.AddOverflow(y, instr.Opcode == meta.OpAddOvf)
	case meta.OpSubOvf, meta.OpSubOvfUn:
		overflow = x.SubOverflow(y, instr.Opcode == meta.OpSubOvf)
	case meta.OpMulOvf, meta.OpMulOvfUn:
		overflow = x.MulOverflow(y, instr.Opcode == meta.OpMulOvf)
		x.Mul(y)
	case meta.OpDiv, meta.OpDivUn, meta.OpRem, meta.OpRemUn:
		if y.IsZero() == bitvec.True {
			return ctx.throw(corlib.DivideByZeroException, "Attempted to divide by zero.")
		}
		signed := instr.Opcode == meta.OpDiv || instr.Opcode == meta.OpRem
		if signed && x.IsFullyKnown() && y.IsFullyKnown() && y.Int64() == -1 && isMinValue(x) {
			return ctx.throw(corlib.OverflowException, "Arithmetic operation resulted in an overflow.")
		}
		if instr.Opcode == meta.OpDiv || instr.Opcode == meta.OpDivUn {
			x.Div(y, signed)
		} else {
			x.Rem(y, signed)
		}
	}
	switch overflow {
	case bitvec.True:
		return ctx.throw(corlib.OverflowException, "Arithmetic operation resulted in an overflow.")
	case bitvec.Unknown:
		log.Debugf("%s at IL_%04X may overflow; assuming it does not", instr.Opcode, instr.Offset)
	}
	return ctx.push(instr, StackSlot{Contents: scope.Keep(x), Type: HintInteger})
}

// isMinValue reports whether v is the most negative value of its width.
func isMinValue(v *bitvec.BitVector) bool {
	if v.MSB() != bitvec.True {
		return false
	}
	for i := 0; i < v.Count()-1; i++ {
		if v.Get(i) != bitvec.False {
			return false
		}
	}
	return true
}

func floatArithmetic(ctx *ExecutionContext, instr *meta.Instruction, a, b StackSlot) DispatchResult {
	x := ctx.Pool().Rent(64, false)
	x.CopyFrom(a.Contents)
	switch instr.Opcode {
	case meta.OpAdd:
		x.FloatAdd(b.Contents)
	case meta.OpSub:
		x.FloatSub(b.Contents)
	case meta.OpMul:
		x.FloatMul(b.Contents)
	case meta.OpDiv:
		x.FloatDiv(b.Contents)
	case meta.OpRem:
		x.FloatRem(b.Contents)
	default:
		ctx.Pool().Return(x)
		return invalidProgram("%s is not defined on floating point operands", instr.Opcode)
	}
	return ctx.push(instr, StackSlot{Contents: x, Type: HintFloat})
}

// ---------------------------------------------------------------------------
// Shifts
// ---------------------------------------------------------------------------

type shiftHandler struct{}

func (shiftHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpShl, meta.OpShr, meta.OpShrUn}
}

// Dispatch shifts by the known amount masked to the operand width. An
// unknown amount yields an unknown result.
func (shiftHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	stack := ctx.Stack()
	stack.Require(2)
	amount := stack.Pop()
	value := stack.Pop()
	defer f.Release(amount, value)
	if value.Type != HintInteger || amount.Type != HintInteger {
		return invalidProgram("%s on %s by %s", instr.Opcode, value.Kind(f.PointerBits()), amount.Kind(f.PointerBits()))
	}

	out := f.Pool.Rent(value.Width(), false)
	out.CopyFrom(value.Contents)
	if !amount.Contents.IsFullyKnown() {
		out.MarkFullyUnknown()
		return ctx.push(instr, StackSlot{Contents: out, Type: HintInteger})
	}
	n := int(amount.Contents.Uint64() & uint64(value.Width()-1))
	switch instr.Opcode {
	case meta.OpShl:
		out.ShiftLeft(n)
	case meta.OpShr:
		out.ShiftRight(n, true)
	default:
		out.ShiftRight(n, false)
	}
	return ctx.push(instr, StackSlot{Contents: out, Type: HintInteger})
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

type unaryArithmeticHandler struct{}

func (unaryArithmeticHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpNeg, meta.OpNot}
}

func (unaryArithmeticHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	v := ctx.Stack().Pop()
	switch {
	case v.Type == HintFloat && instr.Opcode == meta.OpNeg:
		v.Contents.FloatNegate()
	case v.Type == HintInteger && instr.Opcode == meta.OpNeg:
		v.Contents.Negate()
	case v.Type == HintInteger:
		v.Contents.Not()
	default:
		ctx.Factory().Release(v)
		return invalidProgram("%s on %s", instr.Opcode, v.Kind(ctx.Factory().PointerBits()))
	}
	return ctx.push(instr, v)
}

type checkFiniteHandler struct{}

func (checkFiniteHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpCkfinite} }

func (checkFiniteHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	v := ctx.Stack().Peek()
	if v.Type != HintFloat {
		return invalidProgram("ckfinite on %s", v.Kind(ctx.Factory().PointerBits()))
	}
	if v.Contents.IsFinite() == bitvec.False {
		return ctx.throw(ctx.Machine.Module.CorLib.ArithmeticException, "Function does not accept floating point Not-a-Number values.")
	}
	return ctx.next(instr)
}
