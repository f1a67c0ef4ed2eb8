package vm

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

func TestLoadValue(t *testing.T) {
	f := newTestFactory(meta.NewModule("test"))
	tests := []struct {
		name string
		raw  string
		sig  meta.TypeSig
		want string
	}{
		{"sign extends int8", "1111_1110", meta.Int8, "11111111_11111111_11111111_11111110"},
		{"zero extends uint8", "1111_1110", meta.UInt8, "00000000_00000000_00000000_11111110"},
		{"unknown sign bit spreads", "????_0001", meta.Int8, "????????_????????_????????_????0001"},
		{"unsigned unknown stays high-known", "????_0001", meta.UInt8, "00000000_00000000_00000000_????0001"},
		{"char is unsigned", "10000000_00000000", meta.Char, "00000000_00000000_10000000_00000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := f.LoadValue(bitvec.MustParse(tt.raw), tt.sig)
			defer f.Release(slot)
			want := bitvec.MustParse(tt.want)
			if slot.Type != HintInteger || slot.Contents.String() != want.String() {
				t.Errorf("got %s %s, want int %s", slot.Type, slot.Contents, want)
			}
		})
	}
}

func TestLoadValueWidensFloat32(t *testing.T) {
	f := newTestFactory(meta.NewModule("test"))
	slot := f.LoadValue(bitvec.FromUint32(math.Float32bits(1.5)), meta.Float32)
	defer f.Release(slot)
	if slot.Type != HintFloat || slot.Width() != 64 || slot.Contents.Float64() != 1.5 {
		t.Errorf("got %s, want float 1.5", slot)
	}
}

func TestStoreValueTruncates(t *testing.T) {
	f := newTestFactory(meta.NewModule("test"))
	in := f.Int32(300)
	defer f.Release(in)

	raw := f.StoreValue(in, meta.UInt8)
	defer f.Pool.Return(raw)
	if raw.Count() != 8 || raw.Uint64() != 44 {
		t.Errorf("stored %s, want 8 bits holding 44", raw)
	}

	back := f.Coerce(in, meta.Int16)
	defer f.Release(back)
	if back.Contents.Int32() != 300 {
		t.Errorf("Coerce to int16 = %d, want 300", back.Contents.Int32())
	}
}

func TestSlotKinds(t *testing.T) {
	f := newTestFactory(meta.NewModule("test"))
	i32, i64, fl := f.Int32(1), f.Int64(1), f.Float(1)
	defer f.Release(i32, i64, fl)

	tests := []struct {
		slot        StackSlot
		pointerBits int
		want        SlotKind
	}{
		{i32, 64, KindInt32},
		{i64, 64, KindNativeInt},
		{i64, 32, KindInt64},
		{fl, 64, KindFloat},
	}
	for _, tt := range tests {
		if got := tt.slot.Kind(tt.pointerBits); got != tt.want {
			t.Errorf("Kind(%s, %d) = %s, want %s", tt.slot, tt.pointerBits, got, tt.want)
		}
	}

	if w, ok := binaryWidth(i32, i64, 64); !ok || w != 64 {
		t.Errorf("int32 with native int = %d, %v; want 64", w, ok)
	}
	if _, ok := binaryWidth(i32, i64, 32); ok {
		t.Error("int32 with int64 on a 32-bit machine was accepted")
	}
	if _, ok := binaryWidth(i32, fl, 64); ok {
		t.Error("int32 with float was accepted")
	}
}

func TestNewStackSlotRejectsOddWidths(t *testing.T) {
	tests := []struct {
		name  string
		width int
		hint  TypeHint
	}{
		{"16-bit integer", 16, HintInteger},
		{"32-bit float", 32, HintFloat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s slot did not panic", tt.name)
				}
			}()
			NewStackSlot(bitvec.New(tt.width, true), tt.hint)
		})
	}
}

func TestFloatArithmeticRejectsNarrowSlots(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Program", m.CorLib.Object)
	md := m.DefineMethod(td, "Sum", meta.MethodSig{Return: meta.Float64}, 0)
	machine, thread := newTestThread(t, m)
	frame, err := thread.CallStack.Push(md)
	if err != nil {
		t.Fatal(err)
	}
	ec := &ExecutionContext{Machine: machine, Thread: thread}

	for _, op := range []meta.Opcode{meta.OpAdd, meta.OpClt} {
		narrow := machine.Pool.Rent(32, false)
		narrow.WriteUint64(uint64(math.Float32bits(1.5)))
		frame.EvaluationStack.Push(StackSlot{Contents: narrow, Type: HintFloat})
		frame.EvaluationStack.Push(machine.Factory.Float(2))
		r := machine.Dispatcher.Dispatch(ec, &meta.Instruction{Opcode: op, Size: 1})
		if r.Kind != ResultInvalidProgram {
			t.Errorf("%s on a 32-bit float slot = %s, want invalid program", op, r.Kind)
		}
	}
}

func TestEvaluationStack(t *testing.T) {
	f := newTestFactory(meta.NewModule("test"))
	s := NewEvaluationStack(f.Pool)
	for i := int32(1); i <= 3; i++ {
		s.Push(f.Int32(i))
	}
	if got := s.PeekAt(2).Contents.Int32(); got != 1 {
		t.Errorf("PeekAt(2) = %d, want 1", got)
	}
	top := s.PopN(2)
	defer f.Release(top...)
	if top[0].Contents.Int32() != 2 || top[1].Contents.Int32() != 3 {
		t.Errorf("PopN = %s, %s; want 2 then 3", top[0], top[1])
	}
	s.Clear()
	if s.Count() != 0 {
		t.Errorf("Count = %d after Clear", s.Count())
	}
}

func TestDispatch(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Program", m.CorLib.Object)
	md := m.DefineMethod(td, "Sum", meta.MethodSig{Return: meta.Int32}, 0)
	machine, thread := newTestThread(t, m)
	frame, err := thread.CallStack.Push(md)
	if err != nil {
		t.Fatal(err)
	}
	ec := &ExecutionContext{Machine: machine, Thread: thread}
	add := &meta.Instruction{Offset: 2, Opcode: meta.OpAdd, Size: 1}

	frame.EvaluationStack.Push(machine.Factory.Int32(5))
	frame.EvaluationStack.Push(machine.Factory.Int32(3))
	if r := machine.Dispatcher.Dispatch(ec, add); !r.IsSuccess() {
		t.Fatalf("add: %s %v", r.Kind, r.Err)
	}
	sum := frame.EvaluationStack.Pop()
	defer machine.Factory.Release(sum)
	if sum.Contents.Int32() != 8 || frame.ProgramCounter != 3 {
		t.Errorf("5 + 3 = %s with pc %d, want 8 with pc 3", sum, frame.ProgramCounter)
	}

	r := machine.Dispatcher.Dispatch(ec, add)
	if r.Kind != ResultInvalidProgram || !errors.Is(r.Err, ErrInvalidProgram) {
		t.Errorf("add on an empty stack = %s %v, want invalid program", r.Kind, r.Err)
	}

	r = machine.Dispatcher.Dispatch(ec, &meta.Instruction{Opcode: meta.OpCalli, Size: 5})
	if r.Kind != ResultInvalidProgram {
		t.Errorf("calli = %s, want invalid program", r.Kind)
	}
}
