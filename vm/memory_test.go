package vm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

func TestVirtualMemoryMapping(t *testing.T) {
	v := NewVirtualMemory()
	low := NewBasicMemory(16, true)
	high := NewBasicMemory(16, false)
	if err := v.Map("high", 0x2000, high); err != nil {
		t.Fatal(err)
	}
	if err := v.Map("low", 0x1000, low); err != nil {
		t.Fatal(err)
	}
	if err := v.Map("overlap", 0x1008, NewBasicMemory(16, true)); err == nil {
		t.Error("overlapping mapping was accepted")
	}
	if err := v.Map("null", 0, NewBasicMemory(16, true)); err == nil {
		t.Error("mapping at address zero was accepted")
	}

	want := []Region{
		{Name: "low", Range: AddressRange{Start: 0x1000, End: 0x1010}},
		{Name: "high", Range: AddressRange{Start: 0x2000, End: 0x2010}},
	}
	if diff := cmp.Diff(want, v.Regions()); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}

	w := bitvec.FromUint32(0xDEADBEEF)
	if err := v.Write(0x1004, w); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r := bitvec.New(32, true)
	if err := v.Read(0x1004, r); err != nil || r.Uint32() != 0xDEADBEEF {
		t.Errorf("Read = %s, %v; want 0xDEADBEEF", r.Hex(), err)
	}
	if err := v.Read(0x2000, r); err != nil || r.IsFullyKnown() {
		t.Errorf("uninitialized read = %s, %v; want unknown bits", r, err)
	}
}

func TestVirtualMemoryViolations(t *testing.T) {
	v := NewVirtualMemory()
	if err := v.Map("data", 0x1000, NewBasicMemory(8, true)); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		addr uint64
	}{
		{"null", 0},
		{"unmapped", 0x3000},
		{"straddles end", 0x1006},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bitvec.New(32, true)
			if err := v.Read(tt.addr, buf); !errors.Is(err, ErrAccessViolation) {
				t.Errorf("Read error = %v, want ErrAccessViolation", err)
			}
			if err := v.Write(tt.addr, buf); !errors.Is(err, ErrAccessViolation) {
				t.Errorf("Write error = %v, want ErrAccessViolation", err)
			}
		})
	}
}

func TestHeapAllocation(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Node", m.CorLib.Object)
	next := m.DefineField(td, "next", td.Sig(), false)
	value := m.DefineField(td, "value", meta.Int32, false)
	machine, _ := newTestThread(t, m)

	addr, err := machine.Heap.AllocateObject(td.ID)
	if err != nil {
		t.Fatalf("AllocateObject: %v", err)
	}
	if addr != HeapBase {
		t.Errorf("first object at %#x, want %#x", addr, HeapBase)
	}
	obj := machine.Handle(addr)
	if obj.Type() != td.ID {
		t.Errorf("Type = %d, want %d", obj.Type(), td.ID)
	}
	if off := machine.Factory.FieldOffset(next); off != 8 {
		t.Errorf("next offset = %d, want 8 after the type handle", off)
	}

	w := bitvec.FromUint32(77)
	if err := obj.WriteField(value, w); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	r := bitvec.New(32, true)
	if err := obj.ReadField(value, r); err != nil || r.Uint32() != 77 {
		t.Errorf("ReadField = %s, %v; want 77", r.Hex(), err)
	}

	arr, err := machine.Heap.AllocateArray(meta.Int16, 5)
	if err != nil {
		t.Fatalf("AllocateArray: %v", err)
	}
	h := machine.Handle(arr)
	if n, ok := h.Length(); !ok || n != 5 {
		t.Errorf("Length = %d, %v; want 5", n, ok)
	}
	if elem, ok := h.ElementType(); !ok || !elem.Equal(meta.Int16) {
		t.Errorf("ElementType = %v, %v; want int16", elem, ok)
	}

	if _, err := machine.Heap.AllocateArray(meta.Int32, -1); err == nil {
		t.Error("negative array length was accepted")
	}
}

func TestHeapExhausted(t *testing.T) {
	m := meta.NewModule("test")
	cfg := DefaultConfig()
	cfg.HeapSize = 64
	machine, _ := newTestThreadWith(t, m, cfg)

	if _, err := machine.Heap.AllocateArray(meta.Int64, 16); !errors.Is(err, ErrHeapExhausted) {
		t.Errorf("AllocateArray error = %v, want ErrHeapExhausted", err)
	}
}

func TestHeapStrings(t *testing.T) {
	m := meta.NewModule("test")
	machine, _ := newTestThread(t, m)

	for _, s := range []string{"", "ascii", "ünïcödé", "𝄞 clef"} {
		addr, err := machine.Heap.AllocateString(s)
		if err != nil {
			t.Fatalf("AllocateString(%q): %v", s, err)
		}
		if got, ok := machine.Handle(addr).ReadString(); !ok || got != s {
			t.Errorf("ReadString = %q, %v; want %q", got, ok, s)
		}
	}

	a, _ := machine.Heap.InternString("lit")
	b, _ := machine.Heap.InternString("lit")
	if a != b {
		t.Errorf("interned literals at %#x and %#x, want the same object", a, b)
	}
}

func TestStaticFieldSlots(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Counters", m.CorLib.Object)
	small := m.DefineField(td, "small", meta.UInt8, true)
	big := m.DefineField(td, "big", meta.Int64, true)
	inst := m.DefineField(td, "inst", meta.Int32, false)
	machine, _ := newTestThread(t, m)

	a, err := machine.Statics.FieldAddress(small)
	if err != nil {
		t.Fatal(err)
	}
	b, err := machine.Statics.FieldAddress(big)
	if err != nil {
		t.Fatal(err)
	}
	if a != StaticsBase || b != StaticsBase+8 {
		t.Errorf("slots at %#x and %#x, want %#x and %#x", a, b, StaticsBase, StaticsBase+8)
	}
	if again, _ := machine.Statics.FieldAddress(small); again != a {
		t.Errorf("second lookup at %#x, want %#x", again, a)
	}
	if _, err := machine.Statics.FieldAddress(inst); err == nil {
		t.Error("instance field got a static slot")
	}
}
