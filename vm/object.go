package vm

import (
	"fmt"
	"unicode/utf16"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// ObjectHandle: typed view of a heap address
// ---------------------------------------------------------------------------

// ObjectHandle addresses an object, array or string through the machine's
// virtual memory. The zero handle is the null reference.
type ObjectHandle struct {
	Address uint64
	Machine *Machine
}

// IsNull reports whether the handle is the null reference.
func (h ObjectHandle) IsNull() bool {
	return h.Address == 0
}

func (h ObjectHandle) String() string {
	if h.IsNull() {
		return "null"
	}
	if t := h.Type(); t != meta.NoType {
		return fmt.Sprintf("%s@%#x", h.Machine.Module.Type(t).FullName(), h.Address)
	}
	return fmt.Sprintf("object@%#x", h.Address)
}

func (h ObjectHandle) factory() *ValueFactory {
	return h.Machine.Factory
}

// readWord reads a fully known pointer-sized word at addr.
func (h ObjectHandle) readWord(addr uint64) (uint64, bool) {
	w := h.factory().RentKnown(h.factory().PointerBits())
	defer h.factory().Pool.Return(w)
	if err := h.Machine.Memory.Read(addr, w); err != nil || !w.IsFullyKnown() {
		return 0, false
	}
	return w.Uint64(), true
}

// Type returns the runtime type recorded in the object header, or NoType if
// the header is unreadable.
func (h ObjectHandle) Type() meta.TypeID {
	if h.IsNull() {
		return meta.NoType
	}
	w, ok := h.readWord(h.Address)
	if !ok || w == 0 || int(w-1) >= len(h.Machine.Module.Types) {
		return meta.NoType
	}
	return meta.TypeID(w - 1)
}

// FieldAddress returns the address of an instance field.
func (h ObjectHandle) FieldAddress(fd *meta.FieldDef) uint64 {
	return h.Address + uint64(h.factory().FieldOffset(fd))
}

// ReadField reads the raw memory of an instance field into buf.
func (h ObjectHandle) ReadField(fd *meta.FieldDef, buf *bitvec.BitVector) error {
	return h.Machine.Memory.Read(h.FieldAddress(fd), buf)
}

// WriteField writes buf into an instance field.
func (h ObjectHandle) WriteField(fd *meta.FieldDef, buf *bitvec.BitVector) error {
	return h.Machine.Memory.Write(h.FieldAddress(fd), buf)
}

// BoxedValueAddress returns the address of the value held by a box.
func (h ObjectHandle) BoxedValueAddress() uint64 {
	return h.Address + uint64(h.factory().ObjectHeaderSize())
}

// ---------------------------------------------------------------------------
// Arrays and strings
// ---------------------------------------------------------------------------

// ReadLength reads the length word of an array or string into buf, which
// must be pointer sized.
func (h ObjectHandle) ReadLength(buf *bitvec.BitVector) error {
	return h.Machine.Memory.Read(h.Address+uint64(h.factory().ObjectHeaderSize()), buf)
}

// Length returns the known length of an array or string.
func (h ObjectHandle) Length() (int, bool) {
	w, ok := h.readWord(h.Address + uint64(h.factory().ObjectHeaderSize()))
	return int(w), ok
}

// ElementType returns the element signature of an array object.
func (h ObjectHandle) ElementType() (meta.TypeSig, bool) {
	t := h.Type()
	if t == meta.NoType {
		return meta.TypeSig{}, false
	}
	if e := h.Machine.Module.Type(t).ArrayElement; e != nil {
		return *e, true
	}
	return meta.TypeSig{}, false
}

// ElementAddress returns the address of element index of an array whose
// elements are elemSize bytes wide.
func (h ObjectHandle) ElementAddress(index, elemSize int) uint64 {
	return h.Address + uint64(h.factory().ArrayHeaderSize()) + uint64(index)*uint64(elemSize)
}

// ReadString decodes a System.String. It fails when any code unit is not
// fully known.
func (h ObjectHandle) ReadString() (string, bool) {
	n, ok := h.Length()
	if !ok {
		return "", false
	}
	units := make([]uint16, n)
	c := h.factory().RentKnown(16)
	defer h.factory().Pool.Return(c)
	for i := range units {
		if err := h.Machine.Memory.Read(h.ElementAddress(i, 2), c); err != nil || !c.IsFullyKnown() {
			return "", false
		}
		units[i] = uint16(c.Uint64())
	}
	return string(utf16.Decode(units)), true
}
