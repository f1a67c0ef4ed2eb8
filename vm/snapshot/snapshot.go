// Package snapshot captures the state of a machine (mapped regions, heap
// objects, static fields and every thread's call stack) as a CBOR document.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
	"github.com/chazu/echo/vm"
)

// Version is the snapshot format version.
const Version = 1

// Snapshot is a point-in-time copy of a machine.
type Snapshot struct {
	Version     int      `cbor:"1,keyasint"`
	ID          string   `cbor:"2,keyasint"`
	MachineID   string   `cbor:"3,keyasint"`
	Module      string   `cbor:"4,keyasint"`
	PointerSize int      `cbor:"5,keyasint"`
	Regions     []Region `cbor:"6,keyasint"`
	Objects     []Object `cbor:"7,keyasint"`
	Statics     []Static `cbor:"8,keyasint"`
	Threads     []Thread `cbor:"9,keyasint"`
}

// Region is one mapped memory space.
type Region struct {
	Name  string `cbor:"1,keyasint"`
	Start uint64 `cbor:"2,keyasint"`
	End   uint64 `cbor:"3,keyasint"`
}

// Vector is a tri-state byte string: Bits holds the values and Known the
// mask of determined bits.
type Vector struct {
	Bits  []byte `cbor:"1,keyasint"`
	Known []byte `cbor:"2,keyasint"`
}

func vectorOf(v *bitvec.BitVector) Vector {
	if v == nil {
		return Vector{}
	}
	return Vector{
		Bits:  append([]byte(nil), v.Bits()...),
		Known: append([]byte(nil), v.KnownMask()...),
	}
}

// BitVector rebuilds the vector, or returns nil for an empty one.
func (v Vector) BitVector() *bitvec.BitVector {
	if len(v.Bits) == 0 {
		return nil
	}
	return bitvec.FromBytes(v.Bits, v.Known)
}

// Object is one heap allocation.
type Object struct {
	Address uint64 `cbor:"1,keyasint"`
	Type    string `cbor:"2,keyasint"`
	Data    Vector `cbor:"3,keyasint"`
}

// Static is the slot of one static field.
type Static struct {
	Field   string `cbor:"1,keyasint"`
	Address uint64 `cbor:"2,keyasint"`
	Value   Vector `cbor:"3,keyasint"`
}

// Thread is the call stack of one thread, bottom frame first. The root
// frame is omitted unless its evaluation stack holds results.
type Thread struct {
	ID       int     `cbor:"1,keyasint"`
	Executed uint64  `cbor:"2,keyasint"`
	Frames   []Frame `cbor:"3,keyasint"`
}

// Frame is one call frame.
type Frame struct {
	Method         string   `cbor:"1,keyasint"`
	ProgramCounter int      `cbor:"2,keyasint"`
	Base           uint64   `cbor:"3,keyasint"`
	Memory         Vector   `cbor:"4,keyasint"`
	Stack          []Slot   `cbor:"5,keyasint"`
	Handlers       []string `cbor:"6,keyasint"`
}

// Slot is one evaluation stack entry.
type Slot struct {
	Hint  string `cbor:"1,keyasint"`
	Value Vector `cbor:"2,keyasint"`
}

// Capture copies the state of m.
func Capture(m *vm.Machine) (*Snapshot, error) {
	s := &Snapshot{
		Version:     Version,
		ID:          uuid.NewString(),
		MachineID:   m.ID.String(),
		Module:      m.Module.Name,
		PointerSize: m.Config.PointerSize,
	}
	for _, r := range m.Memory.Regions() {
		s.Regions = append(s.Regions, Region{Name: r.Name, Start: r.Range.Start, End: r.Range.End})
	}

	for _, o := range m.Heap.Objects() {
		s.Objects = append(s.Objects, Object{
			Address: o.Address,
			Type:    typeName(m.Module, o.Type),
			Data:    vectorOf(o.Data),
		})
	}

	statics, err := captureStatics(m)
	if err != nil {
		return nil, err
	}
	s.Statics = statics

	for _, t := range m.Threads() {
		s.Threads = append(s.Threads, captureThread(m, t))
	}
	return s, nil
}

func captureStatics(m *vm.Machine) ([]Static, error) {
	var out []Static
	for id, addr := range m.Statics.Slots() {
		fd := m.Module.Fields[id]
		buf := m.Factory.RentMemory(fd.Signature, true)
		err := m.Memory.Read(addr, buf)
		if err != nil {
			m.Pool.Return(buf)
			return nil, fmt.Errorf("snapshot: static field %s: %w", fd.Name, err)
		}
		out = append(out, Static{
			Field:   typeName(m.Module, fd.DeclaringType) + "::" + fd.Name,
			Address: addr,
			Value:   vectorOf(buf),
		})
		m.Pool.Return(buf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func captureThread(m *vm.Machine, t *vm.Thread) Thread {
	th := Thread{ID: t.ID, Executed: t.Executed()}
	for _, f := range t.CallStack.Frames() {
		if f.IsRoot() && f.EvaluationStack.Count() == 0 {
			continue
		}
		fr := Frame{
			ProgramCounter: f.ProgramCounter,
			Base:           f.Base(),
			Memory:         vectorOf(f.RawMemory()),
		}
		if f.IsRoot() {
			fr.Method = "<root>"
		} else {
			fr.Method = vm.MethodName(m.Module, f.Method)
		}
		for _, slot := range f.EvaluationStack.Slots() {
			fr.Stack = append(fr.Stack, Slot{Hint: slot.Type.String(), Value: vectorOf(slot.Contents)})
		}
		for _, h := range f.ExceptionHandlers.Frames {
			if h.State != vm.StateIdle {
				fr.Handlers = append(fr.Handlers, fmt.Sprintf("try [%#x, %#x) %s", h.TryRange.Start, h.TryRange.End, h.State))
			}
		}
		th.Frames = append(th.Frames, fr)
	}
	return th
}

func typeName(m *meta.Module, t meta.TypeID) string {
	if t == meta.NoType {
		return "<none>"
	}
	return m.Type(t).FullName()
}

// Object returns the heap object at addr.
func (s *Snapshot) Object(addr uint64) (Object, bool) {
	i := sort.Search(len(s.Objects), func(i int) bool { return s.Objects[i].Address >= addr })
	if i < len(s.Objects) && s.Objects[i].Address == addr {
		return s.Objects[i], true
	}
	return Object{}, false
}

// HeapBytes returns the total size of all captured heap objects.
func (s *Snapshot) HeapBytes() int {
	n := 0
	for _, o := range s.Objects {
		n += len(o.Data.Bits)
	}
	return n
}
