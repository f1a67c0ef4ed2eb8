package vm

import (
	"errors"
	"testing"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

func newTestFactory(m *meta.Module) *ValueFactory {
	return NewValueFactory(m, 8, bitvec.NewPool())
}

func TestCallStackOverflow(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Program", m.CorLib.Object)
	// No locals and no arguments: the frame is a single return slot.
	md := m.DefineMethod(td, "Leaf", meta.MethodSig{Return: meta.Void}, 0)
	cs := NewCallStack(64, newTestFactory(m))

	for i := 0; i < 8; i++ {
		if _, err := cs.Push(md); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if cs.Used() != 64 {
		t.Errorf("Used = %d, want 64", cs.Used())
	}
	if _, err := cs.Push(md); !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("push 9: error = %v, want ErrStackOverflow", err)
	}
	if cs.Count() != 9 {
		t.Errorf("Count = %d, want 9 after a failed push", cs.Count())
	}

	for cs.Pop() != nil {
	}
	if cs.Count() != 1 || !cs.Peek().IsRoot() {
		t.Errorf("Count = %d after popping everything, want only the root", cs.Count())
	}
}

func TestCallFrameLayout(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Program", m.CorLib.Object)
	md := m.DefineMethod(td, "Work", meta.MethodSig{HasThis: true, Params: []meta.TypeSig{meta.Int32, meta.Float64}, Return: meta.Void}, 0)
	md.Locals = []meta.TypeSig{meta.Int8, meta.Int64}
	f := newTestFactory(m)
	cs := NewCallStack(1024, f)
	cs.Rebase(StackBase)

	frame, err := cs.Push(md)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if frame.Base() != StackBase {
		t.Errorf("Base = %#x, want %#x", frame.Base(), StackBase)
	}
	// locals (8+8) | return (8) | this (8) | int32 (8) | float64 (8)
	if frame.Size() != 48 {
		t.Errorf("Size = %d, want 48", frame.Size())
	}
	if frame.ArgumentCount() != 3 || frame.LocalCount() != 2 {
		t.Errorf("%d arguments and %d locals, want 3 and 2", frame.ArgumentCount(), frame.LocalCount())
	}
	if got := frame.ArgumentAddress(1); got != StackBase+32 {
		t.Errorf("ArgumentAddress(1) = %#x, want %#x", got, StackBase+32)
	}
	if !frame.ArgumentType(0).Equal(td.Sig()) {
		t.Errorf("ArgumentType(0) = %s, want the declaring type", m.SigName(frame.ArgumentType(0)))
	}

	in := f.Int32(-7)
	defer f.Release(in)
	frame.WriteArgument(1, in)
	out := frame.ReadArgument(1)
	defer f.Release(out)
	if out.Contents.Int32() != -7 {
		t.Errorf("ReadArgument(1) = %s, want -7", out)
	}

	frame.SetReturnAddress(0x2A)
	if got := frame.ReturnAddress(); got != 0x2A {
		t.Errorf("ReturnAddress = %#x, want 0x2A", got)
	}
}

func TestCallFrameUninitializedLocals(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Program", m.CorLib.Object)
	md := m.DefineMethod(td, "Work", meta.MethodSig{Return: meta.Void}, 0)
	md.Locals = []meta.TypeSig{meta.Int32}
	md.Body = meta.NewMethodBody([]meta.Instruction{{Opcode: meta.OpRet}}, nil)
	md.Body.InitLocals = false
	cs := NewCallStack(256, newTestFactory(m))

	frame, err := cs.Push(md)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	local := frame.ReadLocal(0)
	if local.Contents.IsFullyKnown() {
		t.Errorf("local without initlocals = %s, want unknown", local)
	}
}

func TestCallStackAllocate(t *testing.T) {
	m := meta.NewModule("test")
	td := m.DefineType("Test", "Program", m.CorLib.Object)
	md := m.DefineMethod(td, "Work", meta.MethodSig{Return: meta.Void}, 0)
	cs := NewCallStack(64, newTestFactory(m))

	if _, err := cs.Allocate(cs.Root(), 8); !errors.Is(err, ErrInvalidProgram) {
		t.Errorf("Allocate on the root frame: error = %v, want ErrInvalidProgram", err)
	}
	frame, err := cs.Push(md)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	addr, err := cs.Allocate(frame, 20)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr != frame.Base()+8 || frame.Size() != 32 {
		t.Errorf("Allocate = %#x with frame size %d, want %#x and 32", addr, frame.Size(), frame.Base()+8)
	}
	if _, err := cs.Allocate(frame, 64); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("oversized Allocate: error = %v, want ErrStackOverflow", err)
	}
}
