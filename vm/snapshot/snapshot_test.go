package snapshot_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/manifest"
	"github.com/chazu/echo/vm"
	"github.com/chazu/echo/vm/snapshot"
)

const counterProgram = `
name = "counter"

[[types]]
namespace = "Demo"
name = "Program"

  [[types.fields]]
  name = "count"
  type = "int32"
  static = true

  [[types.fields]]
  name = "label"
  type = "string"
  static = true

  [[types.methods]]
  name = "Bump"
  static = true
  returns = "int32"
  body = """
    ldstr "ticks"
    stsfld Demo.Program::label
    ldsfld Demo.Program::count
    ldc.i4.3
    add
    stsfld Demo.Program::count
    ldsfld Demo.Program::count
    ret
  """
`

func runCounter(t *testing.T) *vm.Machine {
	t.Helper()
	p, err := manifest.ParseProgram([]byte(counterProgram))
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	machine, err := vm.NewMachine(p.Module, vm.DefaultConfig())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	thread, err := machine.CreateThread()
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	md, ok := p.Module.FindMethod("Demo.Program", "Bump")
	if !ok {
		t.Fatal("no Demo.Program::Bump")
	}
	got, err := thread.Call(context.Background(), md, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	machine.Factory.Release(got)
	return machine
}

func TestCapture(t *testing.T) {
	machine := runCounter(t)
	s, err := snapshot.Capture(machine)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if s.Module != "counter" || s.MachineID != machine.ID.String() || s.PointerSize != 8 {
		t.Errorf("header = %q %q %d", s.Module, s.MachineID, s.PointerSize)
	}
	if len(s.Regions) == 0 {
		t.Error("no regions captured")
	}

	statics := map[string]*bitvec.BitVector{}
	for _, st := range s.Statics {
		statics[st.Field] = st.Value.BitVector()
	}
	if len(statics) != 2 {
		t.Fatalf("statics = %v, want count and label", statics)
	}
	if v := statics["Demo.Program::count"]; v == nil || !v.IsFullyKnown() || v.Int32() != 3 {
		t.Errorf("count = %v, want 3", v)
	}
	// Slots are handed out in first-use order.
	if s.Statics[0].Field != "Demo.Program::label" {
		t.Errorf("first static = %s, want Demo.Program::label", s.Statics[0].Field)
	}

	label := statics["Demo.Program::label"]
	obj, ok := s.Object(label.Uint64())
	if !ok {
		t.Fatalf("label points at %#x, which is not a captured object", label.Uint64())
	}
	if obj.Type != "System.String" {
		t.Errorf("label object type = %s, want System.String", obj.Type)
	}
	if s.HeapBytes() == 0 {
		t.Error("HeapBytes = 0")
	}

	if len(s.Threads) != 1 || len(s.Threads[0].Frames) != 0 {
		t.Errorf("threads = %+v, want one finished thread", s.Threads)
	}
	if s.Threads[0].Executed == 0 {
		t.Error("thread reports no executed instructions")
	}
}

func TestWireRoundTrip(t *testing.T) {
	s, err := snapshot.Capture(runCounter(t))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	data, err := snapshot.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := snapshot.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	again, err := snapshot.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(again) != string(data) {
		t.Error("encoding is not deterministic")
	}
}

func TestSaveLoad(t *testing.T) {
	s, err := snapshot.Capture(runCounter(t))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "counter.snap")
	if err := snapshot.Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := snapshot.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != s.ID || len(got.Objects) != len(s.Objects) {
		t.Errorf("loaded snapshot %s with %d objects, want %s with %d", got.ID, len(got.Objects), s.ID, len(s.Objects))
	}

	if _, err := snapshot.Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestUnmarshalRejectsOtherVersions(t *testing.T) {
	data, err := snapshot.Marshal(&snapshot.Snapshot{Version: snapshot.Version + 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := snapshot.Unmarshal(data); !errors.Is(err, snapshot.ErrVersion) {
		t.Errorf("Unmarshal error = %v, want ErrVersion", err)
	}
	if _, err := snapshot.Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("Unmarshal accepted garbage")
	}
}

func TestVectorPreservesUnknownBits(t *testing.T) {
	v := bitvec.MustParse("10??_01?1")
	got := snapshot.Vector{Bits: v.Bits(), Known: v.KnownMask()}.BitVector()
	if got.String() != v.String() {
		t.Errorf("BitVector = %s, want %s", got, v)
	}
	if (snapshot.Vector{}).BitVector() != nil {
		t.Error("empty vector should rebuild to nil")
	}
}
