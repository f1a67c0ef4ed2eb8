package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

func branchTarget(instr *meta.Instruction) (int, bool) {
	t, ok := instr.Operand.(int)
	return t, ok
}

type branchHandler struct{}

func (branchHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpBr, meta.OpBrS} }

func (branchHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	target, ok := branchTarget(instr)
	if !ok {
		return invalidProgram("%s without a target", instr.Opcode)
	}
	return ctx.jump(target)
}

// takeBranch finishes a conditional branch whose outcome is known.
func takeBranch(ctx *ExecutionContext, instr *meta.Instruction, taken bool) DispatchResult {
	if !taken {
		return ctx.next(instr)
	}
	target, ok := branchTarget(instr)
	if !ok {
		return invalidProgram("%s without a target", instr.Opcode)
	}
	return ctx.jump(target)
}

func undeterminedBranch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	log.Warningf("%s: branch condition at IL_%04X is unknown", ctx.Frame().Method, instr.Offset)
	return undetermined(ErrUndeterminedBranch, "%s at IL_%04X", instr.Opcode, instr.Offset)
}

type conditionalBranchHandler struct{}

func (conditionalBranchHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpBrtrue, meta.OpBrtrueS, meta.OpBrfalse, meta.OpBrfalseS}
}

func (conditionalBranchHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	v := ctx.Stack().Pop()
	defer ctx.Factory().Release(v)

	cond := v.Contents.IsNonZero()
	if cond == bitvec.Unknown && ctx.Machine.Resolver.ResolveBranchCondition(ctx, instr, []*bitvec.BitVector{v.Contents}) {
		cond = v.Contents.IsNonZero()
	}
	if cond == bitvec.Unknown {
		return undeterminedBranch(ctx, instr)
	}
	brtrue := instr.Opcode == meta.OpBrtrue || instr.Opcode == meta.OpBrtrueS
	return takeBranch(ctx, instr, cond.ToBool() == brtrue)
}

type compareBranchHandler struct{}

var branchComparisons = map[meta.Opcode]comparison{
	meta.OpBeq: cmpEq, meta.OpBeqS: cmpEq,
	meta.OpBneUn: cmpNeUn, meta.OpBneUnS: cmpNeUn,
	meta.OpBge: cmpGe, meta.OpBgeS: cmpGe,
	meta.OpBgeUn: cmpGeUn, meta.OpBgeUnS: cmpGeUn,
	meta.OpBgt: cmpGt, meta.OpBgtS: cmpGt,
	meta.OpBgtUn: cmpGtUn, meta.OpBgtUnS: cmpGtUn,
	meta.OpBle: cmpLe, meta.OpBleS: cmpLe,
	meta.OpBleUn: cmpLeUn, meta.OpBleUnS: cmpLeUn,
	meta.OpBlt: cmpLt, meta.OpBltS: cmpLt,
	meta.OpBltUn: cmpLtUn, meta.OpBltUnS: cmpLtUn,
}

func (compareBranchHandler) Opcodes() []meta.Opcode {
	ops := make([]meta.Opcode, 0, len(branchComparisons))
	for op := range branchComparisons {
		ops = append(ops, op)
	}
	return ops
}

func (compareBranchHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	stack := ctx.Stack()
	stack.Require(2)
	b := stack.Pop()
	a := stack.Pop()
	defer f.Release(a, b)

	op := branchComparisons[instr.Opcode]
	cond, ok := compareSlots(f, op, a, b)
	if !ok {
		return invalidProgram("%s on %s and %s", instr.Opcode, a.Kind(f.PointerBits()), b.Kind(f.PointerBits()))
	}
	if cond == bitvec.Unknown && ctx.Machine.Resolver.ResolveBranchCondition(ctx, instr, []*bitvec.BitVector{a.Contents, b.Contents}) {
		cond, _ = compareSlots(f, op, a, b)
	}
	if cond == bitvec.Unknown {
		return undeterminedBranch(ctx, instr)
	}
	return takeBranch(ctx, instr, cond.ToBool())
}

type switchHandler struct{}

func (switchHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpSwitch} }

// Dispatch jumps to the selected target or falls through when the selector
// is out of range.
func (switchHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	targets, ok := instr.Operand.([]int)
	if !ok {
		return invalidProgram("switch without a target table")
	}
	v := ctx.Stack().Pop()
	defer ctx.Factory().Release(v)
	if v.Type != HintInteger {
		return invalidProgram("switch on %s", v.Kind(ctx.Factory().PointerBits()))
	}
	if !v.Contents.IsFullyKnown() && !ctx.Machine.Resolver.ResolveSwitchCondition(ctx, instr, v.Contents) {
		log.Warningf("%s: switch selector at IL_%04X is unknown", ctx.Frame().Method, instr.Offset)
		return undetermined(ErrUndeterminedBranch, "switch at IL_%04X", instr.Offset)
	}
	if i := v.Contents.Uint64(); i < uint64(len(targets)) {
		return ctx.jump(targets[i])
	}
	return ctx.next(instr)
}
