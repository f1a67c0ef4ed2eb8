package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

type callHandler struct{}

func (callHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpCall, meta.OpCallvirt} }

func (callHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	method, ok := instr.Operand.(*meta.MethodDef)
	if !ok {
		return invalidProgram("%s expects a method operand, got %T", instr.Opcode, instr.Operand)
	}
	stack := ctx.Stack()
	n := method.Signature.ArgumentCount()
	if stack.Count() < n {
		return invalidProgram("%s %s needs %d arguments, the stack holds %d",
			instr.Opcode, MethodName(ctx.Machine.Module, method), n, stack.Count())
	}
	args := stack.PopN(n)
	defer ctx.Factory().Release(args...)

	target := method
	if instr.Opcode == meta.OpCallvirt && method.Signature.HasThis {
		var r DispatchResult
		var done bool
		target, r, done = devirtualize(ctx, instr, method, args[0])
		if done {
			return r
		}
	}
	return invoke(ctx, instr, target, args, nil)
}

// devirtualize picks the implementation of a callvirt target from the
// receiver's runtime type. done is set when the call has already been
// completed or failed.
func devirtualize(ctx *ExecutionContext, instr *meta.Instruction, method *meta.MethodDef, receiver StackSlot) (target *meta.MethodDef, r DispatchResult, done bool) {
	m := ctx.Machine
	recv := receiver.Contents
	if !recv.IsFullyKnown() {
		if resolved, ok := m.Resolver.ResolveMethod(ctx, instr, method, recv); ok {
			return resolved, r, false
		}
		log.Warningf("%s: receiver of %s at IL_%04X is unknown, stepping over",
			ctx.Frame().Method, MethodName(m.Module, method), instr.Offset)
		res, _ := ReturnUnknownInvoker{}.Invoke(ctx, method, nil)
		return nil, completeStepOver(ctx, instr, method, res.Value, nil), true
	}
	if recv.Uint64() == 0 {
		return nil, ctx.nullReference(instr), true
	}
	if !method.IsVirtual() || m.Module.Type(method.DeclaringType).IsValueType {
		return method, r, false
	}

	obj := ObjectHandle{Address: recv.Uint64(), Machine: m}
	t := obj.Type()
	if t == meta.NoType {
		return nil, accessViolation(fmt.Errorf("%w: receiver %#x of %s is not an object",
			ErrAccessViolation, obj.Address, MethodName(m.Module, method))), true
	}
	ic := m.InlineCaches.GetOrCreate(ctx.Frame().Method, instr.Offset)
	if cached := ic.Lookup(t); cached != nil {
		return cached, r, false
	}
	impl, ok := m.VTables.For(t).Lookup(method)
	if !ok {
		return nil, invalidProgram("%s does not implement %s",
			m.Module.Type(t).FullName(), MethodName(m.Module, method)), true
	}
	ic.Update(t, impl)
	return impl, r, false
}

// invoke asks the machine's invoker how to carry out a call and applies the
// answer. ctor is set for newobj.
func invoke(ctx *ExecutionContext, instr *meta.Instruction, method *meta.MethodDef, args []StackSlot, ctor *constructed) DispatchResult {
	m := ctx.Machine
	m.Profiler.RecordCall(method)

	res, ok := m.Invoker.Invoke(ctx, method, args)
	if !ok {
		res, _ = ReturnUnknownInvoker{}.Invoke(ctx, method, args)
	}
	switch res.Kind {
	case InvokeStepIn:
		if res.Value.Contents != nil {
			ctx.Factory().Release(res.Value)
		}
		return stepIn(ctx, instr, method, args, ctor)
	case InvokeThrow:
		if res.Value.Contents != nil {
			ctx.Factory().Release(res.Value)
		}
		if res.Exception.IsNull() {
			return ctx.nullReference(instr)
		}
		return exceptionResult(res.Exception)
	}
	return completeStepOver(ctx, instr, method, res.Value, ctor)
}

func stepIn(ctx *ExecutionContext, instr *meta.Instruction, method *meta.MethodDef, args []StackSlot, ctor *constructed) DispatchResult {
	if method.Body == nil {
		return invalidProgram("cannot step into %s: it has no body", MethodName(ctx.Machine.Module, method))
	}
	frame, err := ctx.Thread.CallStack.Push(method)
	if err != nil {
		if errors.Is(err, ErrStackOverflow) {
			return stackOverflow(err)
		}
		return accessViolation(err)
	}
	for i, a := range args {
		frame.WriteArgument(i, a)
	}
	frame.SetReturnAddress(instr.NextOffset())
	frame.constructing = ctor
	if ctx.Machine.Config.Trace {
		log.Debugf("enter %s (depth %d)", MethodName(ctx.Machine.Module, method), ctx.Thread.CallStack.Count()-1)
	}
	return Success()
}

// completeStepOver pushes the synthesized result of a call that was not
// executed and moves past it. value is consumed.
func completeStepOver(ctx *ExecutionContext, instr *meta.Instruction, method *meta.MethodDef, value StackSlot, ctor *constructed) DispatchResult {
	f := ctx.Factory()
	if ctor != nil {
		if value.Contents != nil {
			f.Release(value)
		}
		if r := pushConstructed(ctx, ctor); !r.IsSuccess() {
			return r
		}
		return ctx.next(instr)
	}
	if !method.Signature.ReturnsValue() {
		if value.Contents != nil {
			f.Release(value)
		}
		return ctx.next(instr)
	}
	if value.Contents == nil {
		value = f.CreateUnknown(method.Signature.Return)
	}
	defer f.Release(value)
	return ctx.push(instr, f.Coerce(value, method.Signature.Return))
}

// pushConstructed places the result of newobj on the current stack: the
// object reference for classes, the value itself for value types.
func pushConstructed(ctx *ExecutionContext, c *constructed) DispatchResult {
	f := ctx.Factory()
	if !c.valueType {
		ctx.Stack().Push(f.NativeInt(c.address))
		return Success()
	}
	sig := ctx.Machine.Module.Type(c.typ).Sig()
	raw := f.RentMemory(sig, true)
	defer f.Pool.Return(raw)
	if err := ctx.Machine.Memory.Read(c.address, raw); err != nil {
		return accessViolation(err)
	}
	ctx.Stack().Push(f.LoadValue(raw, sig))
	return Success()
}

type newObjectHandler struct{}

func (newObjectHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpNewobj} }

func (newObjectHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	ctor, ok := instr.Operand.(*meta.MethodDef)
	if !ok || !ctor.Signature.HasThis {
		return invalidProgram("newobj expects an instance constructor, got %v", instr.Operand)
	}
	m := ctx.Machine
	td := m.Module.Type(ctor.DeclaringType)
	if td.IsAbstract || td.IsInterface {
		return invalidProgram("newobj: cannot instantiate %s", td.FullName())
	}
	stack := ctx.Stack()
	if stack.Count() < len(ctor.Signature.Params) {
		return invalidProgram("newobj %s needs %d arguments, the stack holds %d",
			MethodName(m.Module, ctor), len(ctor.Signature.Params), stack.Count())
	}
	params := stack.PopN(len(ctor.Signature.Params))

	f := ctx.Factory()
	addr, err := m.Heap.AllocateObject(td.ID)
	if err != nil {
		f.Release(params...)
		return accessViolation(err)
	}
	// Value types are constructed in a box and copied out on return.
	c := &constructed{address: addr, typ: td.ID, valueType: td.IsValueType}
	if td.IsValueType {
		c.address = ObjectHandle{Address: addr, Machine: m}.BoxedValueAddress()
	}
	args := append([]StackSlot{f.NativeInt(c.address)}, params...)
	defer f.Release(args...)
	return invoke(ctx, instr, ctor, args, c)
}

type returnHandler struct{}

func (returnHandler) Opcodes() []meta.Opcode { return []meta.Opcode{meta.OpRet} }

func (returnHandler) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult {
	cs := ctx.Thread.CallStack
	frame := cs.Peek()
	if frame.IsRoot() {
		return invalidProgram("ret without a method frame")
	}
	f := ctx.Factory()
	sig := frame.Method.Signature
	var value StackSlot
	if sig.ReturnsValue() {
		value = frame.EvaluationStack.Pop()
		defer f.Release(value)
	}
	if n := frame.EvaluationStack.Count(); n != 0 {
		return invalidProgram("ret in %s leaves %d values on the evaluation stack", frame.Method, n)
	}

	returnAddress := frame.ReturnAddress()
	ctor := frame.constructing
	cs.Pop()
	caller := cs.Peek()
	if ctx.Machine.Config.Trace {
		log.Debugf("leave %s", MethodName(ctx.Machine.Module, frame.Method))
	}

	switch {
	case ctor != nil:
		if r := pushConstructed(ctx, ctor); !r.IsSuccess() {
			return r
		}
	case sig.ReturnsValue():
		caller.EvaluationStack.Push(f.Coerce(value, sig.Return))
	}
	if !caller.IsRoot() {
		caller.ProgramCounter = returnAddress
	}
	return Success()
}

type unsupportedHandler struct{}

func (unsupportedHandler) Opcodes() []meta.Opcode {
	return []meta.Opcode{
		meta.OpJmp, meta.OpCalli, meta.OpLdftn, meta.OpLdvftn, meta.OpLdtoken, meta.OpArglist,
	}
}

func (unsupportedHandler) Dispatch(_ *ExecutionContext, instr *meta.Instruction) DispatchResult {
	return invalidProgram("%s is not supported", instr.Opcode)
}
