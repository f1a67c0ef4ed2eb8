package vm

import (
	"context"
	"testing"

	"github.com/chazu/echo/asm"
	"github.com/chazu/echo/manifest"
	"github.com/chazu/echo/meta"
)

// newTestThread creates a machine for m with the default configuration and
// one thread on it.
func newTestThread(t *testing.T, m *meta.Module) (*Machine, *Thread) {
	t.Helper()
	return newTestThreadWith(t, m, DefaultConfig())
}

func newTestThreadWith(t *testing.T, m *meta.Module, cfg Config) (*Machine, *Thread) {
	t.Helper()
	machine, err := NewMachine(m, cfg)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	thread, err := machine.CreateThread()
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return machine, thread
}

// staticMethod defines a static method on a fresh Test.Program type and
// assembles body into it.
func staticMethod(t *testing.T, m *meta.Module, params []meta.TypeSig, ret meta.TypeSig, body string) *meta.MethodDef {
	t.Helper()
	td, ok := m.TypeByName("Test.Program")
	if !ok {
		td = m.DefineType("Test", "Program", m.CorLib.Object)
	}
	md := m.DefineMethod(td, "M"+string(rune('A'+len(td.Methods))), meta.MethodSig{Params: params, Return: ret}, 0)
	if err := asm.AssembleMethod(m, md, body); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return md
}

// loadProgram builds a module from a TOML program description.
func loadProgram(t *testing.T, src string) *manifest.Program {
	t.Helper()
	p, err := manifest.ParseProgram([]byte(src))
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	return p
}

// mustFind looks up "Type::Method" in m.
func mustFind(t *testing.T, m *meta.Module, typeName, methodName string) *meta.MethodDef {
	t.Helper()
	md, ok := m.FindMethod(typeName, methodName)
	if !ok {
		t.Fatalf("no method %s::%s", typeName, methodName)
	}
	return md
}

// callInt32 runs method and returns its int32 result.
func callInt32(t *testing.T, thread *Thread, method *meta.MethodDef, args ...StackSlot) int32 {
	t.Helper()
	got, err := thread.Call(context.Background(), method, args)
	if err != nil {
		t.Fatalf("Call %s: %v", method.Name, err)
	}
	defer thread.Machine.Factory.Release(got)
	if !got.Contents.IsFullyKnown() {
		t.Fatalf("Call %s returned %s, want a known value", method.Name, got)
	}
	return got.Contents.Int32()
}
