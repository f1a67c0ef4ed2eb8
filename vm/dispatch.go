package vm

import (
	"context"
	"fmt"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Execution context
// ---------------------------------------------------------------------------

// ExecutionContext is what an opcode handler sees: the machine, the thread
// and the Go context of the driver.
type ExecutionContext struct {
	Ctx     context.Context
	Machine *Machine
	Thread  *Thread
}

// Frame returns the current top frame.
func (c *ExecutionContext) Frame() *CallFrame {
	return c.Thread.CallStack.Peek()
}

// Stack returns the evaluation stack of the top frame.
func (c *ExecutionContext) Stack() *EvaluationStack {
	return c.Frame().EvaluationStack
}

// Factory returns the machine's value factory.
func (c *ExecutionContext) Factory() *ValueFactory {
	return c.Machine.Factory
}

// Pool returns the machine's vector pool.
func (c *ExecutionContext) Pool() *bitvec.Pool {
	return c.Machine.Pool
}

// next advances the program counter past instr.
func (c *ExecutionContext) next(instr *meta.Instruction) DispatchResult {
	c.Frame().ProgramCounter = instr.NextOffset()
	return Success()
}

// jump moves the program counter to an absolute offset.
func (c *ExecutionContext) jump(offset int) DispatchResult {
	c.Frame().ProgramCounter = offset
	return Success()
}

// push places a slot on the top frame's stack and advances past instr.
func (c *ExecutionContext) push(instr *meta.Instruction, slot StackSlot) DispatchResult {
	c.Stack().Push(slot)
	return c.next(instr)
}

// throw allocates an exception of type t with a message and returns it as
// an exception result.
func (c *ExecutionContext) throw(t meta.TypeID, format string, args ...any) DispatchResult {
	exc, err := c.Machine.NewException(t, fmt.Sprintf(format, args...))
	if err != nil {
		return accessViolation(err)
	}
	return exceptionResult(exc)
}

func (c *ExecutionContext) nullReference(instr *meta.Instruction) DispatchResult {
	r := c.throw(c.Machine.Module.CorLib.NullReferenceException,
		"Object reference not set to an instance of an object (%s).", instr.Opcode)
	if r.Kind == ResultException {
		r.Kind = ResultNullReference
	}
	return r
}

func (c *ExecutionContext) indexOutOfRange(index, length uint64) DispatchResult {
	r := c.throw(c.Machine.Module.CorLib.IndexOutOfRangeException,
		"Index %d was outside the bounds of the array of length %d.", index, length)
	if r.Kind == ResultException {
		r.Kind = ResultIndexOutOfRange
	}
	return r
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// OpcodeHandler executes one family of opcodes.
type OpcodeHandler interface {
	// Opcodes lists the opcodes the handler implements.
	Opcodes() []meta.Opcode
	// Dispatch executes instr. Handlers advance or redirect the program
	// counter themselves.
	Dispatch(ctx *ExecutionContext, instr *meta.Instruction) DispatchResult
}

// Dispatcher maps every opcode to its handler through a static table.
type Dispatcher struct {
	handlers map[meta.Opcode]OpcodeHandler
}

// NewDispatcher creates a dispatcher with every built-in handler registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[meta.Opcode]OpcodeHandler)}
	for _, h := range []OpcodeHandler{
		// base
		nopHandler{},
		constantHandler{},
		stackHandler{},
		argumentHandler{},
		localHandler{},
		addressOfHandler{},
		stringHandler{},
		sizeofHandler{},
		// arithmetic, comparison, conversion
		binaryArithmeticHandler{},
		shiftHandler{},
		unaryArithmeticHandler{},
		checkFiniteHandler{},
		comparisonHandler{},
		conversionHandler{},
		// control flow
		branchHandler{},
		conditionalBranchHandler{},
		compareBranchHandler{},
		switchHandler{},
		// calls
		callHandler{},
		newObjectHandler{},
		returnHandler{},
		unsupportedHandler{},
		// objects and arrays
		fieldHandler{},
		staticFieldHandler{},
		boxHandler{},
		castHandler{},
		valueObjectHandler{},
		newArrayHandler{},
		arrayLengthHandler{},
		elementHandler{},
		// pointers
		indirectHandler{},
		localAllocHandler{},
		blockHandler{},
		// exceptions
		throwHandler{},
		leaveHandler{},
		endFinallyHandler{},
		endFilterHandler{},
	} {
		d.Register(h)
	}
	return d
}

// Register installs h for each opcode it declares, replacing any previous
// handler.
func (d *Dispatcher) Register(h OpcodeHandler) {
	for _, op := range h.Opcodes() {
		d.handlers[op] = h
	}
}

// Handler returns the handler for op.
func (d *Dispatcher) Handler(op meta.Opcode) (OpcodeHandler, bool) {
	h, ok := d.handlers[op]
	return h, ok
}

// Dispatch executes one instruction. A handler that pops an empty
// evaluation stack produces an invalid-program result.
func (d *Dispatcher) Dispatch(ctx *ExecutionContext, instr *meta.Instruction) (result DispatchResult) {
	h, ok := d.handlers[instr.Opcode]
	if !ok {
		return invalidProgram("no handler for opcode %s", instr.Opcode)
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stackUnderflow); !ok {
				panic(r)
			}
			result = invalidProgram("%s at IL_%04X underflows the evaluation stack", instr.Opcode, instr.Offset)
		}
	}()
	return h.Dispatch(ctx, instr)
}
