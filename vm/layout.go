package vm

import (
	"fmt"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// ValueFactory: sizes, layouts and value creation
// ---------------------------------------------------------------------------

// Layout is the size and alignment of a value stored in memory.
type Layout struct {
	Size      int
	Alignment int
}

// ValueFactory computes memory layouts for the types of a module and creates
// pooled values of the right width. Layouts are sequential: fields in
// declaration order, base type fields first, each aligned to its natural
// alignment capped at the pointer size.
type ValueFactory struct {
	Module      *meta.Module
	PointerSize int
	Pool        *bitvec.Pool

	valueLayouts  map[meta.TypeID]Layout
	instanceSizes map[meta.TypeID]int
	fieldOffsets  map[meta.FieldID]int
}

// NewValueFactory creates a factory for module m.
func NewValueFactory(m *meta.Module, pointerSize int, pool *bitvec.Pool) *ValueFactory {
	if pointerSize != 4 && pointerSize != 8 {
		panic(fmt.Sprintf("vm: unsupported pointer size %d", pointerSize))
	}
	return &ValueFactory{
		Module:        m,
		PointerSize:   pointerSize,
		Pool:          pool,
		valueLayouts:  make(map[meta.TypeID]Layout),
		instanceSizes: make(map[meta.TypeID]int),
		fieldOffsets:  make(map[meta.FieldID]int),
	}
}

// PointerBits returns the pointer width in bits.
func (f *ValueFactory) PointerBits() int {
	return f.PointerSize * 8
}

// normalize maps class or valuetype signatures of the primitive boxes onto
// the primitive signature itself.
func (f *ValueFactory) normalize(sig meta.TypeSig) meta.TypeSig {
	if sig.Elem == meta.ElemClass || sig.Elem == meta.ElemValueType {
		if td := f.Module.Type(sig.Type); td.Primitive != meta.ElemVoid {
			return td.Sig()
		}
	}
	return sig
}

// isStructure reports whether sig is a user value type.
func (f *ValueFactory) isStructure(sig meta.TypeSig) bool {
	sig = f.normalize(sig)
	switch sig.Elem {
	case meta.ElemValueType:
		return true
	case meta.ElemClass:
		return f.Module.Type(sig.Type).IsValueType
	}
	return false
}

// TypeLayout returns the in-memory layout of a value of type sig as stored
// in a local, argument, field or array element. Reference types occupy one
// pointer.
func (f *ValueFactory) TypeLayout(sig meta.TypeSig) Layout {
	sig = f.normalize(sig)
	switch sig.Elem {
	case meta.ElemVoid:
		return Layout{Size: 0, Alignment: 1}
	case meta.ElemBoolean, meta.ElemI1, meta.ElemU1:
		return Layout{Size: 1, Alignment: 1}
	case meta.ElemChar, meta.ElemI2, meta.ElemU2:
		return Layout{Size: 2, Alignment: 2}
	case meta.ElemI4, meta.ElemU4, meta.ElemR4:
		return Layout{Size: 4, Alignment: 4}
	case meta.ElemI8, meta.ElemU8, meta.ElemR8:
		return Layout{Size: 8, Alignment: min(8, f.PointerSize)}
	case meta.ElemValueType:
		return f.valueTypeLayout(sig.Type)
	case meta.ElemClass:
		if f.Module.Type(sig.Type).IsValueType {
			return f.valueTypeLayout(sig.Type)
		}
	}
	return Layout{Size: f.PointerSize, Alignment: f.PointerSize}
}

func (f *ValueFactory) valueTypeLayout(id meta.TypeID) Layout {
	if l, ok := f.valueLayouts[id]; ok {
		return l
	}
	size, align := 0, 1
	for _, fd := range f.Module.Type(id).InstanceFields() {
		fl := f.TypeLayout(fd.Signature)
		size = alignUp(size, fl.Alignment)
		f.fieldOffsets[fd.ID] = size
		size += fl.Size
		align = max(align, fl.Alignment)
	}
	size = max(alignUp(size, align), 1)
	l := Layout{Size: size, Alignment: align}
	f.valueLayouts[id] = l
	return l
}

// ObjectHeaderSize is the size of the type handle word at the start of
// every heap object.
func (f *ValueFactory) ObjectHeaderSize() int {
	return f.PointerSize
}

// ArrayHeaderSize covers the type handle and the length word. Strings use
// the same header.
func (f *ValueFactory) ArrayHeaderSize() int {
	return 2 * f.PointerSize
}

// InstanceSize returns the total size of a heap object of class id,
// including the header.
func (f *ValueFactory) InstanceSize(id meta.TypeID) int {
	if n, ok := f.instanceSizes[id]; ok {
		return n
	}
	size := f.ObjectHeaderSize()
	if f.Module.Type(id).IsValueType {
		// Boxed value type: header followed by the value.
		size += f.valueTypeLayout(id).Size
	} else {
		for _, fd := range f.Module.AllInstanceFields(id) {
			fl := f.TypeLayout(fd.Signature)
			size = alignUp(size, fl.Alignment)
			f.fieldOffsets[fd.ID] = size
			size += fl.Size
		}
	}
	size = alignUp(size, f.PointerSize)
	f.instanceSizes[id] = size
	return size
}

// FieldOffset returns the offset of an instance field. Fields of reference
// types are relative to the object address (past the header); fields of
// value types are relative to the start of the value.
func (f *ValueFactory) FieldOffset(fd *meta.FieldDef) int {
	if off, ok := f.fieldOffsets[fd.ID]; ok {
		return off
	}
	if f.Module.Type(fd.DeclaringType).IsValueType {
		f.valueTypeLayout(fd.DeclaringType)
	} else {
		f.InstanceSize(fd.DeclaringType)
	}
	off, ok := f.fieldOffsets[fd.ID]
	if !ok {
		panic(fmt.Sprintf("vm: field %s has no layout", fd))
	}
	return off
}

// StackWidth returns the width and hint of a value of type sig once loaded
// onto the evaluation stack. Small integers widen to 32 bits and every float
// is held as float64.
func (f *ValueFactory) StackWidth(sig meta.TypeSig) (int, TypeHint) {
	sig = f.normalize(sig)
	switch sig.Elem {
	case meta.ElemBoolean, meta.ElemChar, meta.ElemI1, meta.ElemU1,
		meta.ElemI2, meta.ElemU2, meta.ElemI4, meta.ElemU4:
		return 32, HintInteger
	case meta.ElemI8, meta.ElemU8:
		return 64, HintInteger
	case meta.ElemR4, meta.ElemR8:
		return 64, HintFloat
	}
	if f.isStructure(sig) {
		return f.TypeLayout(sig).Size * 8, HintStructure
	}
	return f.PointerBits(), HintInteger
}

// ---------------------------------------------------------------------------
// Pooled value creation
// ---------------------------------------------------------------------------

// RentKnown rents a known-zero vector.
func (f *ValueFactory) RentKnown(bits int) *bitvec.BitVector {
	return f.Pool.Rent(bits, true)
}

// RentUnknown rents a fully unknown vector.
func (f *ValueFactory) RentUnknown(bits int) *bitvec.BitVector {
	v := f.Pool.Rent(bits, true)
	v.MarkFullyUnknown()
	return v
}

// RentMemory rents a vector sized for a value of type sig in memory.
func (f *ValueFactory) RentMemory(sig meta.TypeSig, initialize bool) *bitvec.BitVector {
	size := max(f.TypeLayout(sig).Size, 1)
	if initialize {
		return f.RentKnown(size * 8)
	}
	return f.RentUnknown(size * 8)
}

// CreateDefault returns a zero stack value of type sig.
func (f *ValueFactory) CreateDefault(sig meta.TypeSig) StackSlot {
	bits, hint := f.StackWidth(sig)
	return StackSlot{Contents: f.RentKnown(bits), Type: hint}
}

// CreateUnknown returns a fully unknown stack value of type sig.
func (f *ValueFactory) CreateUnknown(sig meta.TypeSig) StackSlot {
	bits, hint := f.StackWidth(sig)
	return StackSlot{Contents: f.RentUnknown(bits), Type: hint}
}

// NativeInt returns a known pointer-sized integer slot.
func (f *ValueFactory) NativeInt(x uint64) StackSlot {
	v := f.RentKnown(f.PointerBits())
	v.WriteUint64(x)
	return StackSlot{Contents: v, Type: HintInteger}
}

// Int32 returns a known 32-bit integer slot.
func (f *ValueFactory) Int32(x int32) StackSlot {
	v := f.RentKnown(32)
	v.WriteUint64(uint64(uint32(x)))
	return StackSlot{Contents: v, Type: HintInteger}
}

// Int64 returns a known 64-bit integer slot.
func (f *ValueFactory) Int64(x int64) StackSlot {
	v := f.RentKnown(64)
	v.WriteUint64(uint64(x))
	return StackSlot{Contents: v, Type: HintInteger}
}

// Float returns a known float slot.
func (f *ValueFactory) Float(x float64) StackSlot {
	v := f.RentKnown(64)
	v.WriteFloat64(x)
	return StackSlot{Contents: v, Type: HintFloat}
}

// Release returns the contents of every slot to the pool.
func (f *ValueFactory) Release(slots ...StackSlot) {
	for _, s := range slots {
		f.Pool.Return(s.Contents)
	}
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
