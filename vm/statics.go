package vm

import (
	"fmt"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// StaticStorage is the memory space holding static fields. A field gets its
// slot on first access; slots are zero-initialized and never move.
type StaticStorage struct {
	factory *ValueFactory
	memory  *BasicMemory
	used    int
	slots   map[meta.FieldID]uint64
}

// NewStaticStorage creates a statics region of capacity bytes.
func NewStaticStorage(capacity int, factory *ValueFactory) *StaticStorage {
	return &StaticStorage{
		factory: factory,
		memory:  NewBasicMemory(capacity, true),
		slots:   make(map[meta.FieldID]uint64),
	}
}

func (s *StaticStorage) AddressRange() AddressRange { return s.memory.AddressRange() }
func (s *StaticStorage) Read(a uint64, b *bitvec.BitVector) error { return s.memory.Read(a, b) }
func (s *StaticStorage) Write(a uint64, b *bitvec.BitVector) error { return s.memory.Write(a, b) }

func (s *StaticStorage) Rebase(base uint64) {
	delta := base - s.memory.base
	for id, addr := range s.slots {
		s.slots[id] = addr + delta
	}
	s.memory.Rebase(base)
}

// FieldAddress returns the address of a static field, assigning a slot on
// first use.
func (s *StaticStorage) FieldAddress(fd *meta.FieldDef) (uint64, error) {
	if !fd.IsStatic {
		return 0, fmt.Errorf("field %s is not static", fd)
	}
	if addr, ok := s.slots[fd.ID]; ok {
		return addr, nil
	}
	l := s.factory.TypeLayout(fd.Signature)
	off := alignUp(s.used, l.Alignment)
	if off+l.Size > s.memory.data.ByteCount() {
		return 0, fmt.Errorf("%w: no room for static field %s", ErrHeapExhausted, fd)
	}
	s.used = off + l.Size
	addr := s.memory.base + uint64(off)
	s.slots[fd.ID] = addr
	return addr, nil
}

// Slots returns the address of every static field assigned so far.
func (s *StaticStorage) Slots() map[meta.FieldID]uint64 {
	out := make(map[meta.FieldID]uint64, len(s.slots))
	for id, addr := range s.slots {
		out[id] = addr
	}
	return out
}
