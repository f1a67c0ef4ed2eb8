package vm

import (
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Heap: bump-allocated object chunks
// ---------------------------------------------------------------------------

// HeapObject is one allocation on the heap.
type HeapObject struct {
	Address uint64
	Type    meta.TypeID
	Data    *bitvec.BitVector
}

// Size returns the allocation size in bytes.
func (o *HeapObject) Size() int {
	return o.Data.ByteCount()
}

// Heap is a memory space holding objects, arrays and strings. Objects are
// never freed. Memory between objects is unmapped, so stray accesses are
// reported as access violations.
type Heap struct {
	factory  *ValueFactory
	base     uint64
	capacity uint64
	used     uint64
	objects  []*HeapObject // sorted by address
	interned map[string]uint64
}

// NewHeap creates a heap of the given capacity in bytes.
func NewHeap(capacity int, factory *ValueFactory) *Heap {
	return &Heap{
		factory:  factory,
		capacity: uint64(capacity),
		interned: make(map[string]uint64),
	}
}

func (h *Heap) AddressRange() AddressRange {
	return AddressRange{Start: h.base, End: h.base + h.capacity}
}

func (h *Heap) Rebase(base uint64) {
	delta := base - h.base
	for _, o := range h.objects {
		o.Address += delta
	}
	for s, addr := range h.interned {
		h.interned[s] = addr + delta
	}
	h.base = base
}

// Used returns the number of bytes allocated so far.
func (h *Heap) Used() uint64 {
	return h.used
}

// Objects returns every allocation, lowest address first.
func (h *Heap) Objects() []*HeapObject {
	return h.objects
}

// Object returns the allocation starting exactly at addr.
func (h *Heap) Object(addr uint64) (*HeapObject, bool) {
	o, off := h.find(addr)
	if o == nil || off != 0 {
		return nil, false
	}
	return o, true
}

// find locates the allocation containing addr.
func (h *Heap) find(addr uint64) (*HeapObject, int) {
	i := sort.Search(len(h.objects), func(i int) bool {
		o := h.objects[i]
		return o.Address+uint64(o.Size()) > addr
	})
	if i == len(h.objects) || h.objects[i].Address > addr {
		return nil, 0
	}
	return h.objects[i], int(addr - h.objects[i].Address)
}

func (h *Heap) Read(addr uint64, buf *bitvec.BitVector) error {
	o, off := h.find(addr)
	if o == nil || off+buf.ByteCount() > o.Size() {
		return violation(addr, buf.ByteCount(), "heap objects")
	}
	o.Data.ReadAt(off, buf)
	return nil
}

func (h *Heap) Write(addr uint64, buf *bitvec.BitVector) error {
	o, off := h.find(addr)
	if o == nil || off+buf.ByteCount() > o.Size() {
		return violation(addr, buf.ByteCount(), "heap objects")
	}
	o.Data.WriteAt(off, buf)
	return nil
}

func (h *Heap) allocate(size int, t meta.TypeID) (*HeapObject, error) {
	size = alignUp(size, h.factory.PointerSize)
	if h.used+uint64(size) > h.capacity {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d used", ErrHeapExhausted, size, h.used, h.capacity)
	}
	o := &HeapObject{
		Address: h.base + h.used,
		Type:    t,
		Data:    bitvec.New(size*8, true),
	}
	h.used += uint64(size)
	h.objects = append(h.objects, o)

	handle := bitvec.New(h.factory.PointerBits(), true)
	handle.WriteUint64(uint64(t) + 1)
	o.Data.WriteAt(0, handle)
	return o, nil
}

func (h *Heap) writeLength(o *HeapObject, n int) {
	length := bitvec.New(h.factory.PointerBits(), true)
	length.WriteUint64(uint64(n))
	o.Data.WriteAt(h.factory.ObjectHeaderSize(), length)
}

// AllocateObject allocates a zero-initialized instance of t. For value types
// this allocates a box.
func (h *Heap) AllocateObject(t meta.TypeID) (uint64, error) {
	o, err := h.allocate(h.factory.InstanceSize(t), t)
	if err != nil {
		return 0, err
	}
	return o.Address, nil
}

// AllocateArray allocates a zero-initialized single-dimensional array.
func (h *Heap) AllocateArray(elem meta.TypeSig, length int) (uint64, error) {
	if length < 0 {
		return 0, fmt.Errorf("negative array length %d", length)
	}
	elemSize := h.factory.TypeLayout(elem).Size
	t := h.factory.Module.ArrayType(elem)
	o, err := h.allocate(h.factory.ArrayHeaderSize()+length*elemSize, t)
	if err != nil {
		return 0, err
	}
	h.writeLength(o, length)
	return o.Address, nil
}

// AllocateString allocates a System.String holding s as UTF-16 code units.
func (h *Heap) AllocateString(s string) (uint64, error) {
	units := utf16.Encode([]rune(s))
	o, err := h.allocate(h.factory.ArrayHeaderSize()+2*len(units), h.factory.Module.CorLib.String)
	if err != nil {
		return 0, err
	}
	h.writeLength(o, len(units))
	c := bitvec.New(16, true)
	for i, u := range units {
		c.WriteUint64(uint64(u))
		o.Data.WriteAt(h.factory.ArrayHeaderSize()+2*i, c)
	}
	return o.Address, nil
}

// InternString returns the address of the shared string object for a
// literal, allocating it on first use.
func (h *Heap) InternString(s string) (uint64, error) {
	if addr, ok := h.interned[s]; ok {
		return addr, nil
	}
	addr, err := h.AllocateString(s)
	if err != nil {
		return 0, err
	}
	h.interned[s] = addr
	return addr, nil
}
