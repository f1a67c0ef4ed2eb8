package vm

import (
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Base instructions: constants, stack shuffling, arguments and locals
// ---------------------------------------------------------------------------

type nopHandler struct{}

func (nopHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpNop, meta.OpBreak} }

func (nopHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	return ctx.next(instr)
}

type constantHandler struct{}

func (constantHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{
		meta.OpLdnull,
		meta.OpLdcI4M1, meta.OpLdcI40, meta.OpLdcI41, meta.OpLdcI42, meta.OpLdcI43,
		meta.OpLdcI44, meta.OpLdcI45, meta.OpLdcI46, meta.OpLdcI47, meta.OpLdcI48,
		meta.OpLdcI4S, meta.OpLdcI4, meta.OpLdcI8, meta.OpLdcR4, meta.OpLdcR8,
	}
}

func (constantHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	switch op := instr.Opcode; op {
	case meta.OpLdnull:
		return ctx.push(instr, f.NativeInt(0))
	case meta.OpLdcI4M1:
		return ctx.push(instr, f.Int32(-1))
	case meta.OpLdcI40, meta.OpLdcI41, meta.OpLdcI42, meta.OpLdcI43,
		meta.OpLdcI44, meta.OpLdcI45, meta.OpLdcI46, meta.OpLdcI47, meta.OpLdcI48:
		return ctx.push(instr, f.Int32(int32(op-meta.OpLdcI40)))
	case meta.OpLdcI4S, meta.OpLdcI4:
		n, ok := instr.Operand.(int32)
		if !ok {
			return invalidProgram("%s expects an int32 operand, got %T", op, instr.Operand)
		}
		return ctx.push(instr, f.Int32(n))
	case meta.OpLdcI8:
		n, ok := instr.Operand.(int64)
		if !ok {
			return invalidProgram("%s expects an int64 operand, got %T", op, instr.Operand)
		}
		return ctx.push(instr, f.Int64(n))
	case meta.OpLdcR4:
		x, ok := instr.Operand.(float32)
		if !ok {
			return invalidProgram("%s expects a float32 operand, got %T", op, instr.Operand)
		}
		return ctx.push(instr, f.Float(float64(x)))
	default:
		x, ok := instr.Operand.(float64)
		if !ok {
			return invalidProgram("%s expects a float64 operand, got %T", op, instr.Operand)
		}
		return ctx.push(instr, f.Float(x))
	}
}

type stackHandler struct{}

func (stackHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpDup, meta.OpPop} }

func (stackHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	stack := ctx.Stack()
	if instr.Opcode == meta.OpPop {
		ctx.Factory().Release(stack.Pop())
		return ctx.next(instr)
	}
	top := stack.Peek()
	dup := ctx.Pool().Rent(top.Width(), false)
	dup.CopyFrom(top.Contents)
	return ctx.push(instr, StackSlot{Contents: dup, Type: top.Type})
}

// variableIndex decodes the argument or local index of instr.
func variableIndex(instr *meta.Instruction, first meta.Opcode) (int, bool) {
	switch instr.Opcode {
	case first, first + 1, first + 2, first + 3:
		return int(instr.Opcode - first), true
	}
	n, ok := instr.Operand.(int)
	return n, ok
}

type argumentHandler struct{}

func (argumentHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{
		meta.OpLdarg0, meta.OpLdarg1, meta.OpLdarg2, meta.OpLdarg3,
		meta.OpLdargS, meta.OpLdarg, meta.OpStargS, meta.OpStarg,
	}
}

func (argumentHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	frame := ctx.Frame()
	i, ok := variableIndex(instr, meta.OpLdarg0)
	if !ok || i < 0 || i >= frame.ArgumentCount() {
		return invalidProgram("%s: argument %v out of range", instr.Opcode, instr.Operand)
	}
	switch instr.Opcode {
	case meta.OpStargS, meta.OpStarg:
		v := frame.EvaluationStack.Pop()
		defer ctx.Factory().Release(v)
		frame.WriteArgument(i, v)
		return ctx.next(instr)
	}
	return ctx.push(instr, frame.ReadArgument(i))
}

type localHandler struct{}

func (localHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{
		meta.OpLdloc0, meta.OpLdloc1, meta.OpLdloc2, meta.OpLdloc3, meta.OpLdlocS, meta.OpLdloc,
		meta.OpStloc0, meta.OpStloc1, meta.OpStloc2, meta.OpStloc3, meta.OpStlocS, meta.OpStloc,
	}
}

func (localHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	frame := ctx.Frame()
	store := false
	i, ok := 0, false
	switch instr.Opcode {
	case meta.OpStloc0, meta.OpStloc1, meta.OpStloc2, meta.OpStloc3, meta.OpStlocS, meta.OpStloc:
		store = true
		i, ok = variableIndex(instr, meta.OpStloc0)
	default:
		i, ok = variableIndex(instr, meta.OpLdloc0)
	}
	if !ok || i < 0 || i >= frame.LocalCount() {
		return invalidProgram("%s: local %v out of range", instr.Opcode, instr.Operand)
	}
	if store {
		v := frame.EvaluationStack.Pop()
		defer ctx.Factory().Release(v)
		frame.WriteLocal(i, v)
		return ctx.next(instr)
	}
	return ctx.push(instr, frame.ReadLocal(i))
}

type addressOfHandler struct{}

func (addressOfHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpLdargaS, meta.OpLdarga, meta.OpLdlocaS, meta.OpLdloca}
}

func (addressOfHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	frame := ctx.Frame()
	i, ok := instr.Operand.(int)
	if !ok {
		return invalidProgram("%s expects a variable index", instr.Opcode)
	}
	var addr uint64
	switch instr.Opcode {
	case meta.OpLdargaS, meta.OpLdarga:
		if i < 0 || i >= frame.ArgumentCount() {
			return invalidProgram("%s: argument %d out of range", instr.Opcode, i)
		}
		addr = frame.ArgumentAddress(i)
	default:
		if i < 0 || i >= frame.LocalCount() {
			return invalidProgram("%s: local %d out of range", instr.Opcode, i)
		}
		addr = frame.LocalAddress(i)
	}
	return ctx.push(instr, ctx.Factory().NativeInt(addr))
}

type stringHandler struct{}

func (stringHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpLdstr} }

func (stringHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	s, ok := instr.Operand.(string)
	if !ok {
		return invalidProgram("ldstr expects a string operand, got %T", instr.Operand)
	}
	addr, err := ctx.Machine.Heap.InternString(s)
	if err != nil {
		return accessViolation(err)
	}
	return ctx.push(instr, ctx.Factory().NativeInt(addr))
}

type sizeofHandler struct{}

func (sizeofHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpSizeof} }

func (sizeofHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	sig, ok := instr.Operand.(meta.TypeSig)
	if !ok {
		return invalidProgram("sizeof expects a type operand, got %T", instr.Operand)
	}
	return ctx.push(instr, ctx.Factory().Int32(int32(ctx.Factory().TypeLayout(sig).Size)))
}
