package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Marshalling between memory and the evaluation stack
// ---------------------------------------------------------------------------

// LoadValue converts the raw memory representation of a value of type sig
// into a stack slot. Small signed integers are sign-extended, small unsigned
// integers zero-extended and float32 widened to float64. raw is not
// consumed.
func (f *ValueFactory) LoadValue(raw *bitvec.BitVector, sig meta.TypeSig) StackSlot {
	sig = f.normalize(sig)
	bits, hint := f.StackWidth(sig)
	out := f.RentKnown(bits)
	switch {
	case sig.Elem == meta.ElemR4:
		if raw.IsFullyKnown() {
			out.WriteFloat64(raw.Float64())
		} else {
			out.MarkFullyUnknown()
		}
	case raw.Count() == bits:
		out.CopyFrom(raw)
	default:
		raw.ResizeInto(out, sig.IsSigned())
	}
	return StackSlot{Contents: out, Type: hint}
}

// StoreValue converts a stack slot into the raw memory representation of a
// value of type sig, truncating integers and narrowing float64 to float32.
// The returned vector is rented from the pool.
func (f *ValueFactory) StoreValue(slot StackSlot, sig meta.TypeSig) *bitvec.BitVector {
	sig = f.normalize(sig)
	raw := f.RentMemory(sig, true)
	switch {
	case sig.Elem == meta.ElemR4 && slot.Type == HintFloat:
		if slot.Contents.IsFullyKnown() {
			raw.WriteFloat64(slot.Contents.Float64())
		} else {
			raw.MarkFullyUnknown()
		}
	case raw.Count() == slot.Width():
		raw.CopyFrom(slot.Contents)
	default:
		slot.Contents.ResizeInto(raw, sig.IsSigned())
	}
	return raw
}

// Coerce passes a slot through memory as type sig, producing the value a
// callee or caller would observe after a store and a load.
func (f *ValueFactory) Coerce(slot StackSlot, sig meta.TypeSig) StackSlot {
	raw := f.StoreValue(slot, sig)
	defer f.Pool.Return(raw)
	return f.LoadValue(raw, sig)
}
