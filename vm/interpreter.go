package vm

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/echo/meta"
)

var log = commonlog.GetLogger("echo.vm")

// ---------------------------------------------------------------------------
// Thread: the driver loop
// ---------------------------------------------------------------------------

// Thread executes methods on one call stack of a machine.
type Thread struct {
	ID        int
	Machine   *Machine
	CallStack *CallStack

	executed uint64
}

// Executed returns the number of instructions dispatched by the thread.
func (t *Thread) Executed() uint64 {
	return t.executed
}

// Step dispatches the instruction at the program counter of the top frame.
// Exceptions are routed to the handlers of the current method and, if it has
// none that apply, to its callers. An exception escaping every frame is
// returned as *EmulatedException; fatal results as *FatalError.
func (t *Thread) Step(ctx context.Context) error {
	frame := t.CallStack.Peek()
	if frame.IsRoot() {
		return ErrThreadFinished
	}
	m := t.Machine
	name := MethodName(m.Module, frame.Method)
	instr, ok := frame.CurrentInstruction()
	if !ok {
		return &FatalError{
			Kind:   ResultInvalidProgram,
			Method: name,
			Offset: frame.ProgramCounter,
			Err:    fmt.Errorf("%w: no instruction at this offset", ErrInvalidProgram),
		}
	}
	if m.Config.Trace {
		log.Debugf("%s %s [stack %d]", name, instr, frame.EvaluationStack.Count())
	}
	m.Profiler.RecordInstruction(instr.Opcode)

	ec := &ExecutionContext{Ctx: ctx, Machine: m, Thread: t}
	r := m.Dispatcher.Dispatch(ec, instr)
	t.executed++
	switch {
	case r.IsSuccess():
		return nil
	case r.IsException():
		return t.unwind(ec, r.Exception)
	}
	return &FatalError{Kind: r.Kind, Method: name, Offset: instr.Offset, Err: r.Err}
}

// unwind looks for a handler of exc, popping frames that have none.
func (t *Thread) unwind(ec *ExecutionContext, exc ObjectHandle) error {
	for {
		frame := t.CallStack.Peek()
		if frame.IsRoot() {
			err := newEmulatedException(t.Machine, exc)
			log.Infof("thread %d: %v", t.ID, err)
			return err
		}
		if jump, ok := frame.ExceptionHandlers.RegisterException(frame.ProgramCounter, exc); ok {
			enterHandler(ec, jump)
			return nil
		}
		if t.Machine.Config.Trace {
			log.Debugf("%s does not handle %s", MethodName(t.Machine.Module, frame.Method), exc)
		}
		t.CallStack.Pop()
	}
}

// Run steps until the frames present when it was called have returned, the
// instruction limit is reached, ctx is done or an error occurs.
func (t *Thread) Run(ctx context.Context) error {
	limit := t.Machine.Config.MaxInstructions
	for n := 0; !t.CallStack.Peek().IsRoot(); n++ {
		if limit > 0 && n >= limit {
			return fmt.Errorf("%w: stopped after %d instructions", ErrInstructionLimit, n)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Call runs method to completion with the given arguments (receiver first
// for instance methods) and returns its result. The arguments are not
// consumed; the caller owns the returned slot, whose Contents is nil for
// void methods.
func (t *Thread) Call(ctx context.Context, method *meta.MethodDef, args []StackSlot) (StackSlot, error) {
	name := MethodName(t.Machine.Module, method)
	if method.Body == nil {
		return StackSlot{}, fmt.Errorf("%w: %s has no body", ErrInvalidProgram, name)
	}
	if n := method.Signature.ArgumentCount(); len(args) != n {
		return StackSlot{}, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidProgram, name, n, len(args))
	}
	for i, a := range args {
		if err := a.checkWidth(); err != nil {
			return StackSlot{}, fmt.Errorf("%w: %s argument %d: %v", ErrInvalidProgram, name, i, err)
		}
	}
	if t.CallStack.Count() != 1 {
		return StackSlot{}, fmt.Errorf("thread %d is already running", t.ID)
	}

	frame, err := t.CallStack.Push(method)
	if err != nil {
		return StackSlot{}, err
	}
	for i, a := range args {
		frame.WriteArgument(i, a)
	}
	frame.SetReturnAddress(0)

	log.Infof("thread %d: calling %s", t.ID, name)
	if err := t.Run(ctx); err != nil {
		t.Reset()
		return StackSlot{}, err
	}
	log.Infof("thread %d: %s returned after %d instructions", t.ID, name, t.executed)

	root := t.CallStack.Root().EvaluationStack
	if !method.Signature.ReturnsValue() || root.Count() == 0 {
		return StackSlot{}, nil
	}
	return root.Pop(), nil
}

// Reset pops every frame and empties the root evaluation stack.
func (t *Thread) Reset() {
	for t.CallStack.Pop() != nil {
	}
	t.CallStack.Root().EvaluationStack.Clear()
}
