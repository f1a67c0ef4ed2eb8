package vm

import (
	"math"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// conversion describes the target of a conv instruction. bits is zero for
// native-sized targets.
type conversion struct {
	bits           int
	signed         bool
	float          bool
	checked        bool
	sourceUnsigned bool
}

var conversions = map[meta.Opcode]conversion{
	meta.OpConvI1: {bits: 8, signed: true},
	meta.OpConvU1: {bits: 8},
	meta.OpConvI2: {bits: 16, signed: true},
	meta.OpConvU2: {bits: 16},
	meta.OpConvI4: {bits: 32, signed: true},
	meta.OpConvU4: {bits: 32},
	meta.OpConvI8: {bits: 64, signed: true},
	meta.OpConvU8: {bits: 64},
	meta.OpConvI:  {signed: true},
	meta.OpConvU:  {},

	meta.OpConvR4:  {bits: 32, float: true, signed: true},
	meta.OpConvR8:  {bits: 64, float: true, signed: true},
	meta.OpConvRUn: {bits: 64, float: true, sourceUnsigned: true},

	meta.OpConvOvfI1: {bits: 8, signed: true, checked: true},
	meta.OpConvOvfU1: {bits: 8, checked: true},
	meta.OpConvOvfI2: {bits: 16, signed: true, checked: true},
	meta.OpConvOvfU2: {bits: 16, checked: true},
	meta.OpConvOvfI4: {bits: 32, signed: true, checked: true},
	meta.OpConvOvfU4: {bits: 32, checked: true},
	meta.OpConvOvfI8: {bits: 64, signed: true, checked: true},
	meta.OpConvOvfU8: {bits: 64, checked: true},
	meta.OpConvOvfI:  {signed: true, checked: true},
	meta.OpConvOvfU:  {checked: true},

	meta.OpConvOvfI1Un: {bits: 8, signed: true, checked: true, sourceUnsigned: true},
	meta.OpConvOvfU1Un: {bits: 8, checked: true, sourceUnsigned: true},
	meta.OpConvOvfI2Un: {bits: 16, signed: true, checked: true, sourceUnsigned: true},
	meta.OpConvOvfU2Un: {bits: 16, checked: true, sourceUnsigned: true},
	meta.OpConvOvfI4Un: {bits: 32, signed: true, checked: true, sourceUnsigned: true},
	meta.OpConvOvfU4Un: {bits: 32, checked: true, sourceUnsigned: true},
	meta.OpConvOvfI8Un: {bits: 64, signed: true, checked: true, sourceUnsigned: true},
	meta.OpConvOvfU8Un: {bits: 64, checked: true, sourceUnsigned: true},
	meta.OpConvOvfIUn:  {signed: true, checked: true, sourceUnsigned: true},
	meta.OpConvOvfUUn:  {checked: true, sourceUnsigned: true},
}

type conversionHandler struct{}

func (conversionHandler) Opcodes() []meta.Opcode {
	ops := make([]meta.Opcode, 0, len(conversions))
	for op := range conversions {
		ops = append(ops, op)
	}
	return ops
}

func (conversionHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	conv := conversions[instr.Opcode]
	if conv.bits == 0 {
		conv.bits = f.PointerBits()
	}
	src := ctx.Stack().Pop()
	defer f.Release(src)
	if src.Type == HintStructure {
		return invalidProgram("%s on a value type", instr.Opcode)
	}

	if conv.float {
		return ctx.push(instr, StackSlot{Contents: convertToFloat(f, conv, src), Type: HintFloat})
	}

	narrow := f.RentKnown(conv.bits)
	defer f.Pool.Return(narrow)
	var overflow bool
	if src.Type == HintFloat {
		overflow = floatToInteger(conv, src.Contents, narrow)
	} else {
		overflow = conv.checked && integerOverflows(conv, src.Contents)
		src.Contents.ResizeInto(narrow, conv.signed && !conv.sourceUnsigned)
	}
	if overflow {
		return ctx.throw(ctx.Machine.Module.CorLib.OverflowException, "Arithmetic operation resulted in an overflow.")
	}

	stackBits := 32
	if conv.bits > 32 {
		stackBits = conv.bits
	}
	out := f.RentKnown(stackBits)
	narrow.ResizeInto(out, conv.signed)
	return ctx.push(instr, StackSlot{Contents: out, Type: HintInteger})
}

// integerOverflows checks a known integer source against the target range.
// Unknown sources are assumed to fit.
func integerOverflows(conv conversion, src *bitvec.BitVector) bool {
	if !src.IsFullyKnown() {
		return false
	}
	n := uint(conv.bits)
	if conv.sourceUnsigned {
		u := src.Uint64()
		if conv.signed {
			return u > uint64(1)<<(n-1)-1
		}
		return n < 64 && u >= uint64(1)<<n
	}
	s := src.Int64()
	if conv.signed {
		if n == 64 {
			return false
		}
		return s < -(int64(1)<<(n-1)) || s > int64(1)<<(n-1)-1
	}
	return s < 0 || (n < 64 && uint64(s) >= uint64(1)<<n)
}

// floatToInteger truncates a float towards zero into dst. It reports an
// overflow for checked conversions of NaN or out-of-range values; unchecked
// conversions of such values produce an unknown result.
func floatToInteger(conv conversion, src, dst *bitvec.BitVector) bool {
	if !src.IsFullyKnown() {
		dst.MarkFullyUnknown()
		return false
	}
	x := math.Trunc(src.Float64())
	n := float64(conv.bits)
	var inRange bool
	if conv.signed {
		inRange = x >= -math.Exp2(n-1) && x < math.Exp2(n-1)
	} else {
		inRange = x > -1 && x < math.Exp2(n)
	}
	if math.IsNaN(x) || !inRange {
		if conv.checked {
			return true
		}
		dst.MarkFullyUnknown()
		return false
	}
	if conv.signed {
		dst.WriteUint64(uint64(int64(x)))
	} else {
		dst.WriteUint64(uint64(x))
	}
	return false
}

func convertToFloat(f *ValueFactory, conv conversion, src StackSlot) *bitvec.BitVector {
	out := f.RentKnown(64)
	if !src.Contents.IsFullyKnown() {
		out.MarkFullyUnknown()
		return out
	}
	var x float64
	switch {
	case src.Type == HintFloat:
		x = src.Contents.Float64()
	case conv.sourceUnsigned:
		x = float64(src.Contents.Uint64())
	default:
		x = float64(src.Contents.Int64())
	}
	if conv.bits == 32 {
		x = float64(float32(x))
	}
	out.WriteFloat64(x)
	return out
}
