package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Exception instructions
// ---------------------------------------------------------------------------

type throwHandler struct{}

func (throwHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpThrow, meta.OpRethrow} }

func (throwHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	frame := ctx.Frame()
	if instr.Opcode == meta.OpRethrow {
		exc, ok := frame.ExceptionHandlers.CurrentException(instr.Offset)
		if !ok {
			return invalidProgram("rethrow at IL_%04X outside a catch handler", instr.Offset)
		}
		return exceptionResult(exc)
	}

	ref := frame.EvaluationStack.Pop()
	defer ctx.Factory().Release(ref)
	if !ref.Contents.IsFullyKnown() {
		return undetermined(ErrUndeterminedValue, "throw of an unknown reference at IL_%04X", instr.Offset)
	}
	addr := ref.Contents.Uint64()
	if addr == 0 {
		return ctx.nullReference(instr)
	}
	return exceptionResult(ObjectHandle{Address: addr, Machine: ctx.Machine})
}

type leaveHandler struct{}

func (leaveHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpLeave, meta.OpLeaveS} }

func (leaveHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	target, ok := branchTarget(instr)
	if !ok {
		return invalidProgram("%s without a target", instr.Opcode)
	}
	frame := ctx.Frame()
	frame.EvaluationStack.Clear()
	return ctx.jump(frame.ExceptionHandlers.Leave(instr.Offset, target))
}

type endFinallyHandler struct{}

func (endFinallyHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpEndfinally} }

func (endFinallyHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	frame := ctx.Frame()
	next, exc, rethrow, err := frame.ExceptionHandlers.EndFinally(instr.Offset)
	if err != nil {
		return DispatchResult{Kind: ResultInvalidProgram, Err: err}
	}
	frame.EvaluationStack.Clear()
	if rethrow {
		return exceptionResult(exc)
	}
	return ctx.jump(next)
}

type endFilterHandler struct{}

func (endFilterHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpEndfilter} }

func (endFilterHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	frame := ctx.Frame()
	v := frame.EvaluationStack.Pop()
	defer ctx.Factory().Release(v)

	cond := v.Contents.IsNonZero()
	if cond == bitvec.Unknown && ctx.Machine.Resolver.ResolveBranchCondition(ctx, instr, []*bitvec.BitVector{v.Contents}) {
		cond = v.Contents.IsNonZero()
	}
	if cond == bitvec.Unknown {
		return undeterminedBranch(ctx, instr)
	}

	jump, exc, ok, err := frame.ExceptionHandlers.EndFilter(instr.Offset, cond.ToBool())
	if err != nil {
		return DispatchResult{Kind: ResultInvalidProgram, Err: err}
	}
	frame.EvaluationStack.Clear()
	if !ok {
		// No handler of this method accepted it; keep unwinding.
		return exceptionResult(exc)
	}
	return enterHandler(ctx, jump)
}

// enterHandler transfers control to a handler, pushing the exception object
// for catch and filter entry.
func enterHandler(ctx *ExecutionContext, jump HandlerJump) DispatchResult {
	frame := ctx.Frame()
	frame.EvaluationStack.Clear()
	if jump.PushException {
		frame.EvaluationStack.Push(ctx.Factory().NativeInt(jump.Exception.Address))
	}
	return ctx.jump(jump.Offset)
}
