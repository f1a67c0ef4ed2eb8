package meta

import "testing"

func TestBodyBuilderOffsets(t *testing.T) {
	b := NewBodyBuilder()
	b.Emit(OpLdcI4S, int32(5))
	b.Emit(OpLdcI4, int32(300))
	b.Op(OpAdd, OpRet)
	body := b.MustBuild()

	want := []struct {
		offset int
		op     Opcode
	}{
		{0, OpLdcI4S}, {2, OpLdcI4}, {7, OpAdd}, {8, OpRet},
	}
	if len(body.Instructions) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(body.Instructions), len(want))
	}
	for i, w := range want {
		in := body.Instructions[i]
		if in.Offset != w.offset || in.Opcode != w.op {
			t.Errorf("instr %d = %s, want %s at %d", i, &in, w.op, w.offset)
		}
	}
	if body.CodeSize() != 9 {
		t.Errorf("CodeSize() = %d, want 9", body.CodeSize())
	}
	if in, ok := body.InstructionAt(7); !ok || in.Opcode != OpAdd {
		t.Errorf("InstructionAt(7) = %v, %v", in, ok)
	}
	if _, ok := body.InstructionAt(1); ok {
		t.Error("InstructionAt(1) should not find an instruction")
	}
}

func TestBodyBuilderLabels(t *testing.T) {
	b := NewBodyBuilder()
	top := b.NewLabel("top")
	done := b.NewLabel("done")

	b.Mark(top)
	b.Op(OpLdarg0)                 // 0
	b.EmitBranch(OpBrfalseS, done) // 1
	b.EmitBranch(OpBr, top)        // 3
	b.Mark(done)
	b.Op(OpRet) // 8
	body := b.MustBuild()

	if got := body.Instructions[1].Operand; got != 8 {
		t.Errorf("forward branch target = %v, want 8", got)
	}
	if got := body.Instructions[2].Operand; got != 0 {
		t.Errorf("backward branch target = %v, want 0", got)
	}
}

func TestBodyBuilderSwitch(t *testing.T) {
	b := NewBodyBuilder()
	a, c := b.NewLabel("a"), b.NewLabel("c")
	b.Op(OpLdarg0)
	b.EmitSwitch(a, c) // 1, size 1+4+8
	b.Op(OpRet)        // 14
	b.Mark(a)
	b.Op(OpRet) // 15
	b.Mark(c)
	b.Op(OpRet) // 16
	body := b.MustBuild()

	targets := body.Instructions[1].Operand.([]int)
	if len(targets) != 2 || targets[0] != 15 || targets[1] != 16 {
		t.Errorf("switch targets = %v, want [15 16]", targets)
	}
}

func TestBodyBuilderUnmarkedLabel(t *testing.T) {
	b := NewBodyBuilder()
	b.EmitBranch(OpBr, b.NewLabel("nowhere"))
	if _, err := b.Build(); err == nil {
		t.Error("expected an error for an unmarked label")
	}
}

func TestBodyBuilderHandlers(t *testing.T) {
	m := NewModule("test")
	b := NewBodyBuilder()
	tryStart, tryEnd := b.NewLabel("try"), b.NewLabel("tryEnd")
	hStart, hEnd := b.NewLabel("handler"), b.NewLabel("handlerEnd")
	filter := b.NewLabel("filter")
	out := b.NewLabel("out")

	b.Mark(tryStart)
	b.Op(OpNop)
	b.EmitBranch(OpLeaveS, out)
	b.Mark(tryEnd)
	b.Mark(filter)
	b.Op(OpPop, OpLdcI41, OpEndfilter)
	b.Mark(hStart)
	b.Op(OpPop)
	b.EmitBranch(OpLeaveS, out)
	b.Mark(hEnd)
	b.Mark(out)
	b.Op(OpRet)

	b.AddHandler(HandlerFilter, HandlerLabels{
		TryStart: tryStart, TryEnd: tryEnd,
		HandlerStart: hStart, HandlerEnd: hEnd,
		FilterStart: filter,
	}, m.CorLib.Exception)
	body := b.MustBuild()

	if len(body.Handlers) != 1 {
		t.Fatalf("got %d handlers, want 1", len(body.Handlers))
	}
	h := body.Handlers[0]
	if h.Try != (Range{0, 3}) || h.Filter != (Range{3, 7}) || h.Handler != (Range{7, 10}) {
		t.Errorf("handler ranges = try %v filter %v handler %v", h.Try, h.Filter, h.Handler)
	}
	if !h.Try.Contains(2) || h.Try.Contains(3) {
		t.Error("Range.Contains should be half-open")
	}
}
