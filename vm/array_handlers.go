package vm

import (
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

type newArrayHandler struct{}

func (newArrayHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpNewarr} }

func (newArrayHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	elem, ok := instr.Operand.(meta.TypeSig)
	if !ok {
		return invalidProgram("newarr expects a type operand, got %T", instr.Operand)
	}
	m := ctx.Machine
	f := ctx.Factory()
	n := ctx.Stack().Pop()
	defer f.Release(n)
	if n.Type != HintInteger {
		return invalidProgram("newarr length must be an integer, got %s", n.Type)
	}
	if !n.Contents.IsFullyKnown() && !m.Resolver.ResolveArrayIndex(ctx, instr, ObjectHandle{}, n.Contents) {
		return undetermined(ErrUndeterminedValue, "array length at IL_%04X", instr.Offset)
	}
	length := n.Contents.Int64()
	if length < 0 {
		return ctx.throw(m.Module.CorLib.OverflowException, "Arithmetic operation resulted in an overflow.")
	}
	if length > int64(m.Config.HeapSize) {
		return ctx.throw(m.Module.CorLib.OverflowException, "Array dimensions exceeded supported range.")
	}
	addr, err := m.Heap.AllocateArray(elem, int(length))
	if err != nil {
		return accessViolation(err)
	}
	return ctx.push(instr, f.NativeInt(addr))
}

type arrayLengthHandler struct{}

func (arrayLengthHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpLdlen} }

func (arrayLengthHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	f := ctx.Factory()
	ref := ctx.Stack().Pop()
	defer f.Release(ref)
	addr, outcome := dereference(ctx, instr, ref.Contents, false)
	switch outcome {
	case addressNull:
		return ctx.nullReference(instr)
	case addressUnknown:
		return ctx.push(instr, f.CreateUnknown(meta.IntPtr))
	}
	buf := f.RentKnown(f.PointerBits())
	if err := (ObjectHandle{Address: addr, Machine: ctx.Machine}).ReadLength(buf); err != nil {
		f.Pool.Return(buf)
		return accessViolation(err)
	}
	return ctx.push(instr, StackSlot{Contents: buf, Type: HintInteger})
}

type elementHandler struct{}

// elementTypes maps the typed element opcodes onto the element type they
// access. ldelem.ref and stelem.ref use the array's own element type.
var elementTypes = map[meta.Opcode]meta.TypeSig{
	meta.OpLdelemI1: meta.Int8, meta.OpLdelemU1: meta.UInt8,
	meta.OpLdelemI2: meta.Int16, meta.OpLdelemU2: meta.UInt16,
	meta.OpLdelemI4: meta.Int32, meta.OpLdelemU4: meta.UInt32,
	meta.OpLdelemI8: meta.Int64, meta.OpLdelemI: meta.IntPtr,
	meta.OpLdelemR4: meta.Float32, meta.OpLdelemR8: meta.Float64,
	meta.OpStelemI: meta.IntPtr, meta.OpStelemI1: meta.Int8,
	meta.OpStelemI2: meta.Int16, meta.OpStelemI4: meta.Int32,
	meta.OpStelemI8: meta.Int64, meta.OpStelemR4: meta.Float32,
	meta.OpStelemR8: meta.Float64,
}

func (elementHandler) Opcodes() []meta.Opcode {
	ops := []meta.Opcode{
		meta.OpLdelemRef, meta.OpStelemRef, meta.OpLdelem, meta.OpStelem, meta.OpLdelema,
	}
	for op := range elementTypes {
		ops = append(ops, op)
	}
	return ops
}

func isElementStore(op meta.Opcode) bool {
	switch op {
	case meta.OpStelem, meta.OpStelemRef, meta.OpStelemI, meta.OpStelemI1, meta.OpStelemI2,
		meta.OpStelemI4, meta.OpStelemI8, meta.OpStelemR4, meta.OpStelemR8:
		return true
	}
	return false
}

func (elementHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	m := ctx.Machine
	f := ctx.Factory()
	stack := ctx.Stack()
	store := isElementStore(instr.Opcode)

	var value StackSlot
	if store {
		stack.Require(3)
		value = stack.Pop()
		defer f.Release(value)
	}
	stack.Require(2)
	index := stack.Pop()
	array := stack.Pop()
	defer f.Release(index, array)
	if index.Type != HintInteger {
		return invalidProgram("%s index must be an integer, got %s", instr.Opcode, index.Type)
	}

	addr, outcome := dereference(ctx, instr, array.Contents, store)
	if outcome == addressNull {
		return ctx.nullReference(instr)
	}
	obj := ObjectHandle{Address: addr, Machine: m}

	var elem meta.TypeSig
	switch instr.Opcode {
	case meta.OpLdelem, meta.OpStelem, meta.OpLdelema:
		sig, ok := instr.Operand.(meta.TypeSig)
		if !ok {
			return invalidProgram("%s expects a type operand, got %T", instr.Opcode, instr.Operand)
		}
		elem = sig
	case meta.OpLdelemRef, meta.OpStelemRef:
		elem = meta.Object
		if outcome == addressKnown {
			if e, ok := obj.ElementType(); ok && e.IsReference() {
				elem = e
			}
		}
	default:
		elem = elementTypes[instr.Opcode]
	}

	if outcome == addressUnknown || !index.Contents.IsFullyKnown() && !m.Resolver.ResolveArrayIndex(ctx, instr, obj, index.Contents) {
		return unknownElement(ctx, instr, elem, store)
	}
	length, ok := obj.Length()
	if !ok {
		return unknownElement(ctx, instr, elem, store)
	}
	i := index.Contents.Uint64()
	if i >= uint64(length) {
		return ctx.indexOutOfRange(i, uint64(length))
	}
	at := obj.ElementAddress(int(i), f.TypeLayout(elem).Size)

	switch {
	case instr.Opcode == meta.OpLdelema:
		return ctx.push(instr, f.NativeInt(at))
	case !store:
		v, err := readValue(m, at, elem)
		if err != nil {
			return accessViolation(err)
		}
		return ctx.push(instr, v)
	}

	if instr.Opcode == meta.OpStelemRef && value.Contents.IsFullyKnown() && value.Contents.Uint64() != 0 {
		stored := ObjectHandle{Address: value.Contents.Uint64(), Machine: m}
		if t := stored.Type(); t != meta.NoType && !m.Module.IsAssignableTo(t, m.Module.TypeOfSig(elem)) {
			return ctx.throw(m.Module.CorLib.ArrayTypeMismatchException,
				"Attempted to access an element as a type incompatible with the array.")
		}
	}
	if err := writeValue(m, at, elem, value); err != nil {
		return accessViolation(err)
	}
	return ctx.next(instr)
}

// unknownElement completes an element access whose array or index is not
// known: loads produce an unknown value and stores are dropped.
func unknownElement(ctx *ExecutionContext, instr *meta.Instruction, elem meta.TypeSig, store bool) DispatchResult {
	if store {
		log.Warningf("%s: %s at IL_%04X has an unknown array or index, store dropped",
			ctx.Frame().Method, instr.Opcode, instr.Offset)
		return ctx.next(instr)
	}
	if instr.Opcode == meta.OpLdelema {
		return ctx.push(instr, ctx.Factory().CreateUnknown(meta.IntPtr))
	}
	return ctx.push(instr, ctx.Factory().CreateUnknown(elem))
}
