package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/echo/bitvec"
)

// ---------------------------------------------------------------------------
// Address ranges and memory spaces
// ---------------------------------------------------------------------------

// AddressRange is the half-open interval [Start, End).
type AddressRange struct {
	Start uint64
	End   uint64
}

// Length returns the number of bytes in the range.
func (r AddressRange) Length() uint64 {
	return r.End - r.Start
}

// Contains reports whether addr lies inside the range.
func (r AddressRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// ContainsRange reports whether the n bytes starting at addr lie inside the
// range.
func (r AddressRange) ContainsRange(addr uint64, n int) bool {
	return addr >= r.Start && addr+uint64(n) <= r.End && addr+uint64(n) >= addr
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Start, r.End)
}

// MemorySpace is a region of tri-state bytes that can be mapped into a
// VirtualMemory.
type MemorySpace interface {
	AddressRange() AddressRange
	// Rebase moves the space to a new base address.
	Rebase(base uint64)
	// Read fills buf from the bytes starting at addr.
	Read(addr uint64, buf *bitvec.BitVector) error
	// Write copies buf into the bytes starting at addr.
	Write(addr uint64, buf *bitvec.BitVector) error
}

func violation(addr uint64, n int, space string) error {
	return fmt.Errorf("%w: %d bytes at %#x outside %s", ErrAccessViolation, n, addr, space)
}

// ---------------------------------------------------------------------------
// BasicMemory: a contiguous region
// ---------------------------------------------------------------------------

// BasicMemory is a fixed-size contiguous region backed by one vector.
type BasicMemory struct {
	base uint64
	data *bitvec.BitVector
}

// NewBasicMemory creates a region of size bytes. Initialized memory is known
// zero, otherwise every bit is unknown.
func NewBasicMemory(size int, initialize bool) *BasicMemory {
	return &BasicMemory{data: bitvec.New(size*8, initialize)}
}

func (m *BasicMemory) AddressRange() AddressRange {
	return AddressRange{Start: m.base, End: m.base + uint64(m.data.ByteCount())}
}

func (m *BasicMemory) Rebase(base uint64) {
	m.base = base
}

func (m *BasicMemory) Read(addr uint64, buf *bitvec.BitVector) error {
	if !m.AddressRange().ContainsRange(addr, buf.ByteCount()) {
		return violation(addr, buf.ByteCount(), m.AddressRange().String())
	}
	m.data.ReadAt(int(addr-m.base), buf)
	return nil
}

func (m *BasicMemory) Write(addr uint64, buf *bitvec.BitVector) error {
	if !m.AddressRange().ContainsRange(addr, buf.ByteCount()) {
		return violation(addr, buf.ByteCount(), m.AddressRange().String())
	}
	m.data.WriteAt(int(addr-m.base), buf)
	return nil
}

// Fill sets n bytes starting at addr to known zero or to unknown.
func (m *BasicMemory) Fill(addr uint64, n int, known bool) error {
	if n == 0 {
		return nil
	}
	buf := bitvec.New(n*8, true)
	if !known {
		buf.MarkFullyUnknown()
	}
	return m.Write(addr, buf)
}

// ---------------------------------------------------------------------------
// VirtualMemory: address-mapped spaces
// ---------------------------------------------------------------------------

type mapping struct {
	name  string
	space MemorySpace
}

// VirtualMemory maps memory spaces at non-overlapping base addresses and
// routes reads and writes to the space containing the address.
type VirtualMemory struct {
	mappings []mapping // sorted by start address
}

// NewVirtualMemory creates an empty address space.
func NewVirtualMemory() *VirtualMemory {
	return &VirtualMemory{}
}

// Map rebases space to base and maps it under name.
func (v *VirtualMemory) Map(name string, base uint64, space MemorySpace) error {
	space.Rebase(base)
	r := space.AddressRange()
	if base == 0 {
		return fmt.Errorf("cannot map %s at address zero", name)
	}
	for _, m := range v.mappings {
		o := m.space.AddressRange()
		if r.Start < o.End && o.Start < r.End {
			return fmt.Errorf("cannot map %s at %s: overlaps %s at %s", name, r, m.name, o)
		}
	}
	v.mappings = append(v.mappings, mapping{name: name, space: space})
	sort.Slice(v.mappings, func(i, j int) bool {
		return v.mappings[i].space.AddressRange().Start < v.mappings[j].space.AddressRange().Start
	})
	return nil
}

// Unmap removes a space from the address space.
func (v *VirtualMemory) Unmap(space MemorySpace) {
	for i, m := range v.mappings {
		if m.space == space {
			v.mappings = append(v.mappings[:i], v.mappings[i+1:]...)
			return
		}
	}
}

// FindSpace returns the space containing addr.
func (v *VirtualMemory) FindSpace(addr uint64) (MemorySpace, bool) {
	i := sort.Search(len(v.mappings), func(i int) bool {
		return v.mappings[i].space.AddressRange().End > addr
	})
	if i < len(v.mappings) && v.mappings[i].space.AddressRange().Contains(addr) {
		return v.mappings[i].space, true
	}
	return nil, false
}

// IsValidAddress reports whether addr falls inside a mapped space.
func (v *VirtualMemory) IsValidAddress(addr uint64) bool {
	_, ok := v.FindSpace(addr)
	return ok
}

func (v *VirtualMemory) Read(addr uint64, buf *bitvec.BitVector) error {
	space, ok := v.FindSpace(addr)
	if !ok {
		return violation(addr, buf.ByteCount(), "mapped memory")
	}
	return space.Read(addr, buf)
}

func (v *VirtualMemory) Write(addr uint64, buf *bitvec.BitVector) error {
	space, ok := v.FindSpace(addr)
	if !ok {
		return violation(addr, buf.ByteCount(), "mapped memory")
	}
	return space.Write(addr, buf)
}

// Region names one mapped space.
type Region struct {
	Name  string
	Range AddressRange
}

// Regions lists the mapped spaces, lowest address first.
func (v *VirtualMemory) Regions() []Region {
	out := make([]Region, 0, len(v.mappings))
	for _, m := range v.mappings {
		out = append(out, Region{Name: m.name, Range: m.space.AddressRange()})
	}
	return out
}
