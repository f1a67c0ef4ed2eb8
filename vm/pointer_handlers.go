package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Indirect loads and stores, localloc, block operations
// ---------------------------------------------------------------------------

type indirectHandler struct{}

var indirectTypes = map[meta.Opcode]meta.TypeSig{
	meta.OpLdindI1: meta.Int8, meta.OpLdindU1: meta.UInt8,
	meta.OpLdindI2: meta.Int16, meta.OpLdindU2: meta.UInt16,
	meta.OpLdindI4: meta.Int32, meta.OpLdindU4: meta.UInt32,
	meta.OpLdindI8: meta.Int64, meta.OpLdindI: meta.IntPtr,
	meta.OpLdindR4: meta.Float32, meta.OpLdindR8: meta.Float64,
	meta.OpLdindRef: meta.Object,
	meta.OpStindRef: meta.Object, meta.OpStindI1: meta.Int8,
	meta.OpStindI2: meta.Int16, meta.OpStindI4: meta.Int32,
	meta.OpStindI8: meta.Int64, meta.OpStindR4: meta.Float32,
	meta.OpStindR8: meta.Float64, meta.OpStindI: meta.IntPtr,
}

func (indirectHandler) Opcodes() []meta.Opcode {
	ops := make([]meta.Opcode, 0, len(indirectTypes))
	for op := range indirectTypes {
		ops = append(ops, op)
	}
	return ops
}

func (indirectHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	sig := indirectTypes[instr.Opcode]
	f := ctx.Factory()
	stack := ctx.Stack()
	switch instr.Opcode {
	case meta.OpStindRef, meta.OpStindI1, meta.OpStindI2, meta.OpStindI4,
		meta.OpStindI8, meta.OpStindR4, meta.OpStindR8, meta.OpStindI:
		stack.Require(2)
		value := stack.Pop()
		ptr := stack.Pop()
		defer f.Release(value, ptr)
		return storeThrough(ctx, instr, ptr, value, sig)
	}
	ptr := stack.Pop()
	defer f.Release(ptr)
	return loadThrough(ctx, instr, ptr, sig)
}

type localAllocHandler struct{}

func (localAllocHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpLocalloc} }

func (localAllocHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	size := ctx.Stack().Pop()
	defer f.Release(size)
	if !size.Contents.IsFullyKnown() {
		return undetermined(ErrUndeterminedValue, "localloc size at IL_%04X", instr.Offset)
	}
	n := size.Contents.Uint64()
	if n > uint64(ctx.Thread.CallStack.MaxSize()) {
		return stackOverflow(fmt.Errorf("%w: localloc of %d bytes exceeds the stack window", ErrStackOverflow, n))
	}
	addr, err := ctx.Thread.CallStack.Allocate(ctx.Frame(), int(n))
	if err != nil {
		if errors.Is(err, ErrStackOverflow) {
			return stackOverflow(err)
		}
		return DispatchResult{Kind: ResultInvalidProgram, Err: err}
	}
	return ctx.push(instr, f.NativeInt(addr))
}

type blockHandler struct{}

func (blockHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpCpblk, meta.OpInitblk} }

func (blockHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	m := ctx.Machine
	f := ctx.Factory()
	stack := ctx.Stack()
	stack.Require(3)
	size := stack.Pop()
	source := stack.Pop() // source address for cpblk, fill byte for initblk
	dest := stack.Pop()
	defer f.Release(size, source, dest)

	if !size.Contents.IsFullyKnown() {
		return undetermined(ErrUndeterminedValue, "%s size at IL_%04X", instr.Opcode, instr.Offset)
	}
	n := size.Contents.Uint64()
	if n == 0 {
		return ctx.next(instr)
	}
	if n > uint64(m.Config.HeapSize) {
		return accessViolation(fmt.Errorf("%w: %s of %d bytes", ErrAccessViolation, instr.Opcode, n))
	}

	buf := f.RentKnown(int(n) * 8)
	defer f.Pool.Return(buf)
	if instr.Opcode == meta.OpInitblk {
		b := f.RentKnown(8)
		source.Contents.ResizeInto(b, false)
		for i := 0; i < int(n); i++ {
			buf.WriteAt(i, b)
		}
		f.Pool.Return(b)
	} else {
		src, outcome := dereference(ctx, instr, source.Contents, false)
		switch outcome {
		case addressNull:
			return ctx.nullReference(instr)
		case addressUnknown:
			buf.MarkFullyUnknown()
		default:
			if err := m.Memory.Read(src, buf); err != nil {
				return accessViolation(err)
			}
		}
	}

	dst, outcome := dereference(ctx, instr, dest.Contents, true)
	switch outcome {
	case addressNull:
		return ctx.nullReference(instr)
	case addressUnknown:
		log.Warningf("%s: %s at IL_%04X writes to an unknown address, store dropped",
			ctx.Frame().Method, instr.Opcode, instr.Offset)
		return ctx.next(instr)
	}
	if err := m.Memory.Write(dst, buf); err != nil {
		return accessViolation(err)
	}
	return ctx.next(instr)
}
