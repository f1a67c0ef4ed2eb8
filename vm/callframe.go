package vm

import (
	"fmt"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// CallFrame: one method activation
// ---------------------------------------------------------------------------

// constructed records the object a constructor frame is initializing, so
// ret can hand it to the caller of newobj.
type constructed struct {
	address   uint64
	typ       meta.TypeID
	valueType bool
}

// CallFrame is the activation record of a method. Its memory lives inside
// the owning call stack's window with this layout, every entry aligned to
// the pointer size:
//
//	locals | return address | this | parameters | localloc area
//
// The root frame of a call stack has no method and no memory; it only holds
// the evaluation stack that receives the results of top-level calls.
type CallFrame struct {
	Method            *meta.MethodDef
	ProgramCounter    int
	EvaluationStack   *EvaluationStack
	ExceptionHandlers *ExceptionHandlerStack

	factory      *ValueFactory
	memory       *BasicMemory
	base         uint64
	localOffsets []int
	argOffsets   []int
	argTypes     []meta.TypeSig
	returnOffset int
	fixedSize    int
	allocated    int
	constructing *constructed
}

// NewCallFrame computes the frame layout for method. The frame is not bound
// to memory until it is pushed onto a call stack.
func NewCallFrame(method *meta.MethodDef, factory *ValueFactory) *CallFrame {
	f := &CallFrame{
		Method:          method,
		EvaluationStack: NewEvaluationStack(factory.Pool),
		factory:         factory,
	}
	if method == nil {
		f.ExceptionHandlers = NewExceptionHandlerStack(factory.Module, nil)
		return f
	}
	var handlers []meta.ExceptionHandlerInfo
	if method.Body != nil {
		handlers = method.Body.Handlers
	}
	f.ExceptionHandlers = NewExceptionHandlerStack(factory.Module, handlers)

	ptr := factory.PointerSize
	offset := 0
	for _, l := range method.Locals {
		f.localOffsets = append(f.localOffsets, offset)
		offset += alignUp(factory.TypeLayout(l).Size, ptr)
	}
	f.returnOffset = offset
	offset += ptr

	if method.Signature.HasThis {
		decl := factory.Module.Type(method.DeclaringType)
		this := decl.Sig()
		if decl.IsValueType {
			this = meta.ByRefTo(this)
		}
		f.argTypes = append(f.argTypes, this)
	}
	f.argTypes = append(f.argTypes, method.Signature.Params...)
	for _, a := range f.argTypes {
		f.argOffsets = append(f.argOffsets, offset)
		offset += alignUp(factory.TypeLayout(a).Size, ptr)
	}
	f.fixedSize = offset
	return f
}

// IsRoot reports whether f is the root frame of a call stack.
func (f *CallFrame) IsRoot() bool {
	return f.Method == nil
}

// Base returns the address of the first byte of the frame.
func (f *CallFrame) Base() uint64 {
	return f.base
}

// Size returns the fixed frame size plus the localloc area.
func (f *CallFrame) Size() int {
	return f.fixedSize + f.allocated
}

// LocalCount returns the number of local variables.
func (f *CallFrame) LocalCount() int {
	return len(f.localOffsets)
}

// ArgumentCount returns the number of arguments including this.
func (f *CallFrame) ArgumentCount() int {
	return len(f.argOffsets)
}

// LocalType returns the declared type of local i.
func (f *CallFrame) LocalType(i int) meta.TypeSig {
	f.checkLocal(i)
	return f.Method.Locals[i]
}

// ArgumentType returns the type of argument i; argument 0 is this for
// instance methods.
func (f *CallFrame) ArgumentType(i int) meta.TypeSig {
	f.checkArgument(i)
	return f.argTypes[i]
}

// LocalAddress returns the absolute address of local i.
func (f *CallFrame) LocalAddress(i int) uint64 {
	f.checkLocal(i)
	return f.base + uint64(f.localOffsets[i])
}

// ArgumentAddress returns the absolute address of argument i.
func (f *CallFrame) ArgumentAddress(i int) uint64 {
	f.checkArgument(i)
	return f.base + uint64(f.argOffsets[i])
}

func (f *CallFrame) checkLocal(i int) {
	if i < 0 || i >= len(f.localOffsets) {
		panic(fmt.Sprintf("vm: local index %d out of range in %s", i, f.Method))
	}
}

func (f *CallFrame) checkArgument(i int) {
	if i < 0 || i >= len(f.argOffsets) {
		panic(fmt.Sprintf("vm: argument index %d out of range in %s", i, f.Method))
	}
}

func (f *CallFrame) read(addr uint64, sig meta.TypeSig) StackSlot {
	raw := f.factory.RentMemory(sig, true)
	defer f.factory.Pool.Return(raw)
	if err := f.memory.Read(addr, raw); err != nil {
		panic(fmt.Sprintf("vm: frame of %s: %v", f.Method, err))
	}
	return f.factory.LoadValue(raw, sig)
}

func (f *CallFrame) write(addr uint64, sig meta.TypeSig, slot StackSlot) {
	raw := f.factory.StoreValue(slot, sig)
	defer f.factory.Pool.Return(raw)
	if err := f.memory.Write(addr, raw); err != nil {
		panic(fmt.Sprintf("vm: frame of %s: %v", f.Method, err))
	}
}

// ReadLocal loads local i as a new stack slot.
func (f *CallFrame) ReadLocal(i int) StackSlot {
	return f.read(f.LocalAddress(i), f.LocalType(i))
}

// WriteLocal stores slot into local i. The slot is not consumed.
func (f *CallFrame) WriteLocal(i int, slot StackSlot) {
	f.write(f.LocalAddress(i), f.LocalType(i), slot)
}

// ReadArgument loads argument i as a new stack slot.
func (f *CallFrame) ReadArgument(i int) StackSlot {
	return f.read(f.ArgumentAddress(i), f.ArgumentType(i))
}

// WriteArgument stores slot into argument i. The slot is not consumed.
func (f *CallFrame) WriteArgument(i int, slot StackSlot) {
	f.write(f.ArgumentAddress(i), f.ArgumentType(i), slot)
}

// ReturnAddress returns the caller offset stored in the return slot.
func (f *CallFrame) ReturnAddress() int {
	w := f.factory.RentKnown(f.factory.PointerBits())
	defer f.factory.Pool.Return(w)
	if err := f.memory.Read(f.base+uint64(f.returnOffset), w); err != nil {
		panic(fmt.Sprintf("vm: frame of %s: %v", f.Method, err))
	}
	return int(w.Uint64())
}

// SetReturnAddress records the caller offset execution resumes at.
func (f *CallFrame) SetReturnAddress(offset int) {
	w := f.factory.RentKnown(f.factory.PointerBits())
	defer f.factory.Pool.Return(w)
	w.WriteUint64(uint64(offset))
	if err := f.memory.Write(f.base+uint64(f.returnOffset), w); err != nil {
		panic(fmt.Sprintf("vm: frame of %s: %v", f.Method, err))
	}
}

// CurrentInstruction returns the instruction at the program counter.
func (f *CallFrame) CurrentInstruction() (*meta.Instruction, bool) {
	if f.Method == nil || f.Method.Body == nil {
		return nil, false
	}
	return f.Method.Body.InstructionAt(f.ProgramCounter)
}

// bind places the frame at base inside memory and initializes its fixed
// part. Locals are zeroed when the body asks for it and unknown otherwise.
func (f *CallFrame) bind(memory *BasicMemory, base uint64) error {
	f.memory = memory
	f.base = base
	if f.fixedSize == 0 {
		return nil
	}
	initLocals := f.Method.Body == nil || f.Method.Body.InitLocals
	if err := memory.Fill(base, f.returnOffset, initLocals); err != nil {
		return err
	}
	return memory.Fill(base+uint64(f.returnOffset), f.fixedSize-f.returnOffset, true)
}

// allocate grows the localloc area by size bytes.
func (f *CallFrame) allocate(size int) (uint64, error) {
	addr := f.base + uint64(f.Size())
	n := alignUp(size, f.factory.PointerSize)
	initLocals := f.Method.Body == nil || f.Method.Body.InitLocals
	if err := f.memory.Fill(addr, n, initLocals); err != nil {
		return 0, err
	}
	f.allocated += n
	return addr, nil
}

// RawMemory returns a copy of the frame memory, or nil for the root frame.
func (f *CallFrame) RawMemory() *bitvec.BitVector {
	if f.Size() == 0 {
		return nil
	}
	raw := bitvec.New(f.Size()*8, true)
	if err := f.memory.Read(f.base, raw); err != nil {
		return nil
	}
	return raw
}
