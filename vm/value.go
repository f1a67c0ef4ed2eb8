package vm

import (
	"fmt"

	"github.com/chazu/echo/bitvec"
)

// ---------------------------------------------------------------------------
// Stack slots
// ---------------------------------------------------------------------------

// TypeHint tags the contents of an evaluation stack slot.
type TypeHint uint8

const (
	HintInteger TypeHint = iota
	HintFloat
	HintStructure
)

func (h TypeHint) String() string {
	switch h {
	case HintInteger:
		return "int"
	case HintFloat:
		return "float"
	case HintStructure:
		return "struct"
	}
	return fmt.Sprintf("TypeHint(%d)", uint8(h))
}

// StackSlot is one entry of an evaluation stack. Integer and float slots are
// 32 or 64 bits wide; structure slots carry a whole value type.
type StackSlot struct {
	Contents *bitvec.BitVector
	Type     TypeHint
}

// NewStackSlot checks the width rules and wraps v. Integer slots hold 32 or
// 64 bits and float slots always 64.
func NewStackSlot(v *bitvec.BitVector, hint TypeHint) StackSlot {
	s := StackSlot{Contents: v, Type: hint}
	if err := s.checkWidth(); err != nil {
		panic("vm: " + err.Error())
	}
	return s
}

func (s StackSlot) checkWidth() error {
	if s.Contents == nil {
		return fmt.Errorf("%s slot without contents", s.Type)
	}
	n := s.Width()
	switch {
	case s.Type == HintInteger && n != 32 && n != 64,
		s.Type == HintFloat && n != 64:
		return fmt.Errorf("%s slot of %d bits", s.Type, n)
	}
	return nil
}

// Width returns the slot width in bits.
func (s StackSlot) Width() int {
	return s.Contents.Count()
}

// Clone copies s into a vector rented from f's pool.
func (s StackSlot) Clone(f *ValueFactory) StackSlot {
	v := f.Pool.Rent(s.Width(), false)
	v.CopyFrom(s.Contents)
	return StackSlot{Contents: v, Type: s.Type}
}

func (s StackSlot) String() string {
	if s.Contents == nil {
		return "<empty>"
	}
	if s.Type == HintFloat && s.Contents.IsFullyKnown() {
		return fmt.Sprintf("%s %g", s.Type, s.Contents.Float64())
	}
	return fmt.Sprintf("%s %s", s.Type, s.Contents.Hex())
}

// SlotKind classifies a slot for operand matching.
type SlotKind uint8

const (
	KindInt32 SlotKind = iota
	KindInt64
	KindNativeInt
	KindFloat
	KindStructure
)

func (k SlotKind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindNativeInt:
		return "native int"
	case KindFloat:
		return "F"
	case KindStructure:
		return "valuetype"
	}
	return fmt.Sprintf("SlotKind(%d)", uint8(k))
}

// Kind classifies s given the machine pointer width in bits. A 64-bit
// integer is reported as native int on 64-bit machines and a 32-bit one on
// 32-bit machines is reported as int32, because the two are not
// distinguishable by width alone.
func (s StackSlot) Kind(pointerBits int) SlotKind {
	switch s.Type {
	case HintFloat:
		return KindFloat
	case HintStructure:
		return KindStructure
	}
	if s.Width() == 64 {
		if pointerBits == 64 {
			return KindNativeInt
		}
		return KindInt64
	}
	return KindInt32
}

// binaryWidth decides the result width of an integer operation on a and b.
// Equal widths always match; int32 mixes with native int on 64-bit machines.
func binaryWidth(a, b StackSlot, pointerBits int) (int, bool) {
	if a.Type != HintInteger || b.Type != HintInteger {
		return 0, false
	}
	wa, wb := a.Width(), b.Width()
	if wa == wb {
		return wa, true
	}
	if pointerBits == 64 && (wa == 32 || wb == 32) {
		return 64, true
	}
	return 0, false
}
