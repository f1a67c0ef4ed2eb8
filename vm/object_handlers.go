package vm

import (
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

type fieldHandler struct{}

func (fieldHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpLdfld, meta.OpLdflda, meta.OpStfld}
}

func (fieldHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	fd, ok := instr.Operand.(*meta.FieldDef)
	if !ok {
		return invalidProgram("%s expects a field operand, got %T", instr.Opcode, instr.Operand)
	}
	if fd.IsStatic {
		return invalidProgram("%s on static field %s", instr.Opcode, fd.Name)
	}
	f := ctx.Factory()
	stack := ctx.Stack()
	offset := f.FieldOffset(fd)

	switch instr.Opcode {
	case meta.OpStfld:
		stack.Require(2)
		value := stack.Pop()
		obj := stack.Pop()
		defer f.Release(value, obj)
		if obj.Type == HintStructure {
			return invalidProgram("stfld needs an object reference or a pointer, got a value")
		}
		ptr := offsetAddress(f, obj.Contents, offset)
		defer f.Release(ptr)
		if obj.Contents.IsFullyKnown() && obj.Contents.Uint64() == 0 {
			return ctx.nullReference(instr)
		}
		return storeThrough(ctx, instr, ptr, value, fd.Signature)

	case meta.OpLdflda:
		obj := stack.Pop()
		defer f.Release(obj)
		if obj.Type == HintStructure {
			return invalidProgram("ldflda needs an object reference or a pointer, got a value")
		}
		if obj.Contents.IsFullyKnown() && obj.Contents.Uint64() == 0 {
			return ctx.nullReference(instr)
		}
		return ctx.push(instr, offsetAddress(f, obj.Contents, offset))
	}

	obj := stack.Pop()
	defer f.Release(obj)
	if obj.Type == HintStructure {
		// The value type itself is on the stack.
		raw := f.RentMemory(fd.Signature, true)
		defer f.Pool.Return(raw)
		if offset*8+raw.Count() > obj.Width() {
			return invalidProgram("ldfld %s outside a value of %d bytes", fd.Name, obj.Width()/8)
		}
		obj.Contents.ReadAt(offset, raw)
		return ctx.push(instr, f.LoadValue(raw, fd.Signature))
	}
	if obj.Contents.IsFullyKnown() && obj.Contents.Uint64() == 0 {
		return ctx.nullReference(instr)
	}
	ptr := offsetAddress(f, obj.Contents, offset)
	defer f.Release(ptr)
	return loadThrough(ctx, instr, ptr, fd.Signature)
}

type staticFieldHandler struct{}

func (staticFieldHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpLdsfld, meta.OpLdsflda, meta.OpStsfld}
}

func (staticFieldHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	fd, ok := instr.Operand.(*meta.FieldDef)
	if !ok {
		return invalidProgram("%s expects a field operand, got %T", instr.Opcode, instr.Operand)
	}
	if !fd.IsStatic {
		return invalidProgram("%s on instance field %s", instr.Opcode, fd.Name)
	}
	m := ctx.Machine
	addr, err := m.Statics.FieldAddress(fd)
	if err != nil {
		return accessViolation(err)
	}
	switch instr.Opcode {
	case meta.OpLdsflda:
		return ctx.push(instr, ctx.Factory().NativeInt(addr))
	case meta.OpStsfld:
		value := ctx.Stack().Pop()
		defer ctx.Factory().Release(value)
		if err := writeValue(m, addr, fd.Signature, value); err != nil {
			return accessViolation(err)
		}
		return ctx.next(instr)
	}
	v, err := readValue(m, addr, fd.Signature)
	if err != nil {
		return accessViolation(err)
	}
	return ctx.push(instr, v)
}

// ---------------------------------------------------------------------------
// Boxing and casts
// ---------------------------------------------------------------------------

type boxHandler struct{}

func (boxHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpBox, meta.OpUnbox, meta.OpUnboxAny}
}

func (boxHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	sig, ok := instr.Operand.(meta.TypeSig)
	if !ok {
		return invalidProgram("%s expects a type operand, got %T", instr.Opcode, instr.Operand)
	}
	m := ctx.Machine
	f := ctx.Factory()
	valueType := m.Module.IsValueType(sig)

	if instr.Opcode == meta.OpBox {
		if !valueType {
			// Boxing a reference is the identity.
			return ctx.next(instr)
		}
		value := ctx.Stack().Pop()
		defer f.Release(value)
		addr, err := m.Heap.AllocateObject(m.Module.TypeOfSig(sig))
		if err != nil {
			return accessViolation(err)
		}
		box := ObjectHandle{Address: addr, Machine: m}
		if err := writeValue(m, box.BoxedValueAddress(), sig, value); err != nil {
			return accessViolation(err)
		}
		return ctx.push(instr, f.NativeInt(addr))
	}

	if instr.Opcode == meta.OpUnboxAny && !valueType {
		return castHandler{}.Dispatch(ctx, &meta.Instruction{
			Offset: instr.Offset, Opcode: meta.OpCastclass, Operand: sig, Size: instr.Size,
		})
	}
	if !valueType {
		return invalidProgram("unbox of reference type %s", m.Module.SigName(sig))
	}

	ref := ctx.Stack().Pop()
	defer f.Release(ref)
	addr, outcome := dereference(ctx, instr, ref.Contents, false)
	switch outcome {
	case addressNull:
		return ctx.nullReference(instr)
	case addressUnknown:
		if instr.Opcode == meta.OpUnbox {
			return ctx.push(instr, f.CreateUnknown(meta.IntPtr))
		}
		return ctx.push(instr, f.CreateUnknown(sig))
	}
	box := ObjectHandle{Address: addr, Machine: m}
	if want := m.Module.TypeOfSig(sig); box.Type() != want {
		return ctx.throw(m.Module.CorLib.InvalidCastException,
			"Unable to cast object of type '%s' to type '%s'.", typeName(m, box.Type()), m.Module.SigName(sig))
	}
	if instr.Opcode == meta.OpUnbox {
		return ctx.push(instr, f.NativeInt(box.BoxedValueAddress()))
	}
	v, err := readValue(m, box.BoxedValueAddress(), sig)
	if err != nil {
		return accessViolation(err)
	}
	return ctx.push(instr, v)
}

func typeName(m *Machine, t meta.TypeID) string {
	if t == meta.NoType {
		return "<unknown>"
	}
	return m.Module.Type(t).FullName()
}

type castHandler struct{}

func (castHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpCastclass, meta.OpIsinst} }

func (castHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	sig, ok := instr.Operand.(meta.TypeSig)
	if !ok {
		return invalidProgram("%s expects a type operand, got %T", instr.Opcode, instr.Operand)
	}
	m := ctx.Machine
	f := ctx.Factory()
	ref := ctx.Stack().Pop()
	defer f.Release(ref)

	if !ref.Contents.IsFullyKnown() {
		if instr.Opcode == meta.OpIsinst {
			return ctx.push(instr, f.CreateUnknown(meta.Object))
		}
		// The cast cannot be checked; the reference passes through.
		log.Debugf("castclass at IL_%04X on an unknown reference", instr.Offset)
		return ctx.push(instr, ref.Clone(f))
	}
	addr := ref.Contents.Uint64()
	if addr == 0 {
		return ctx.push(instr, f.NativeInt(0))
	}
	obj := ObjectHandle{Address: addr, Machine: m}
	target := m.Module.TypeOfSig(sig)
	if t := obj.Type(); t != meta.NoType && m.Module.IsAssignableTo(t, target) {
		return ctx.push(instr, f.NativeInt(addr))
	}
	if instr.Opcode == meta.OpIsinst {
		return ctx.push(instr, f.NativeInt(0))
	}
	return ctx.throw(m.Module.CorLib.InvalidCastException,
		"Unable to cast object of type '%s' to type '%s'.", typeName(m, obj.Type()), m.Module.SigName(sig))
}

// ---------------------------------------------------------------------------
// Value type instructions
// ---------------------------------------------------------------------------

type valueObjectHandler struct{}

func (valueObjectHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{meta.OpInitobj, meta.OpLdobj, meta.OpStobj, meta.OpCpobj}
}

func (valueObjectHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	sig, ok := instr.Operand.(meta.TypeSig)
	if !ok {
		return invalidProgram("%s expects a type operand, got %T", instr.Opcode, instr.Operand)
	}
	f := ctx.Factory()
	stack := ctx.Stack()

	switch instr.Opcode {
	case meta.OpLdobj:
		ptr := stack.Pop()
		defer f.Release(ptr)
		return loadThrough(ctx, instr, ptr, sig)

	case meta.OpStobj:
		stack.Require(2)
		value := stack.Pop()
		ptr := stack.Pop()
		defer f.Release(value, ptr)
		return storeThrough(ctx, instr, ptr, value, sig)

	case meta.OpInitobj:
		ptr := stack.Pop()
		defer f.Release(ptr)
		zero := f.CreateDefault(sig)
		defer f.Release(zero)
		return storeThrough(ctx, instr, ptr, zero, sig)
	}

	// cpobj
	stack.Require(2)
	src := stack.Pop()
	dst := stack.Pop()
	defer f.Release(src, dst)
	var value StackSlot
	addr, outcome := dereference(ctx, instr, src.Contents, false)
	switch outcome {
	case addressNull:
		return ctx.nullReference(instr)
	case addressUnknown:
		value = f.CreateUnknown(sig)
	default:
		v, err := readValue(ctx.Machine, addr, sig)
		if err != nil {
			return accessViolation(err)
		}
		value = v
	}
	defer f.Release(value)
	return storeThrough(ctx, instr, dst, value, sig)
}
