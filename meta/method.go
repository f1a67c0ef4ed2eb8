package meta

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one decoded CIL instruction.
//
// Operand holds an int32 (ldc.i4 family), int64, float32, float64, int
// (branch target offset, local or argument index), []int (switch targets),
// string, TypeSig, *FieldDef or *MethodDef depending on the opcode.
type Instruction struct {
	Offset  int
	Opcode  Opcode
	Operand any
	Size    int
}

// NextOffset returns the offset of the instruction that follows.
func (i *Instruction) NextOffset() int {
	return i.Offset + i.Size
}

// EncodedSize computes the size of the instruction in bytes.
func EncodedSize(op Opcode, operand any) int {
	size := op.Size()
	ot := op.OperandType()
	if ot == InlineSwitch {
		targets, _ := operand.([]int)
		return size + 4 + 4*len(targets)
	}
	return size + operandSizes[ot]
}

func (i *Instruction) String() string {
	label := fmt.Sprintf("IL_%04X: %s", i.Offset, i.Opcode)
	switch v := i.Operand.(type) {
	case nil:
		return label
	case []int:
		parts := make([]string, len(v))
		for j, t := range v {
			parts[j] = fmt.Sprintf("IL_%04X", t)
		}
		return fmt.Sprintf("%s (%s)", label, strings.Join(parts, ", "))
	case int:
		if i.Opcode.IsBranch() {
			return fmt.Sprintf("%s IL_%04X", label, v)
		}
		return fmt.Sprintf("%s %d", label, v)
	case string:
		return fmt.Sprintf("%s %q", label, v)
	case *MethodDef:
		return fmt.Sprintf("%s %s", label, v.Name)
	case *FieldDef:
		return fmt.Sprintf("%s %s", label, v.Name)
	}
	return fmt.Sprintf("%s %v", label, i.Operand)
}

// ---------------------------------------------------------------------------
// Exception handler metadata
// ---------------------------------------------------------------------------

// HandlerKind identifies the clause type of an exception handler.
type HandlerKind byte

const (
	HandlerCatch HandlerKind = iota
	HandlerFilter
	HandlerFinally
	HandlerFault
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFilter:
		return "filter"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	}
	return "unknown"
}

// Range is a half-open byte offset interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Contains returns true if offset lies in the range.
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// ExceptionHandlerInfo is one exception clause of a method body. Filter is
// only meaningful for HandlerFilter, CatchType only for HandlerCatch.
type ExceptionHandlerInfo struct {
	Kind      HandlerKind
	Try       Range
	Handler   Range
	Filter    Range
	CatchType TypeID
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// MethodID indexes Module.Methods.
type MethodID int

// MethodSig is the calling signature of a method.
type MethodSig struct {
	HasThis      bool
	Params       []TypeSig
	Return       TypeSig
	GenericArity int
}

// ArgumentCount returns the number of stack operands a call consumes,
// including the implicit receiver.
func (s MethodSig) ArgumentCount() int {
	n := len(s.Params)
	if s.HasThis {
		n++
	}
	return n
}

// ReturnsValue returns true unless the return type is void.
func (s MethodSig) ReturnsValue() bool {
	return s.Return.Elem != ElemVoid
}

// Equal compares parameter and return types.
func (s MethodSig) Equal(o MethodSig) bool {
	if s.HasThis != o.HasThis || len(s.Params) != len(o.Params) || !s.Return.Equal(o.Return) {
		return false
	}
	for i := range s.Params {
		if !s.Params[i].Equal(o.Params[i]) {
			return false
		}
	}
	return true
}

// MethodAttributes describes dispatch-related method flags.
type MethodAttributes uint8

const (
	MethodVirtual MethodAttributes = 1 << iota
	MethodAbstract
	MethodNewSlot
	MethodConstructor
)

// MethodDef describes a method. Body is nil for abstract and external
// methods.
type MethodDef struct {
	ID            MethodID
	DeclaringType TypeID
	Name          string
	Signature     MethodSig
	Attributes    MethodAttributes
	Locals        []TypeSig
	Body          *MethodBody
}

// IsVirtual reports whether the method participates in virtual dispatch.
func (m *MethodDef) IsVirtual() bool { return m.Attributes&MethodVirtual != 0 }

// IsAbstract reports whether the method has no implementation.
func (m *MethodDef) IsAbstract() bool { return m.Attributes&MethodAbstract != 0 }

// IsNewSlot reports whether the method hides rather than overrides.
func (m *MethodDef) IsNewSlot() bool { return m.Attributes&MethodNewSlot != 0 }

// IsConstructor reports whether the method is an instance constructor.
func (m *MethodDef) IsConstructor() bool { return m.Attributes&MethodConstructor != 0 }

// IsStatic reports whether the method has no receiver.
func (m *MethodDef) IsStatic() bool { return !m.Signature.HasThis }

func (m *MethodDef) String() string {
	return m.Name
}

// ---------------------------------------------------------------------------
// Method bodies
// ---------------------------------------------------------------------------

// MethodBody holds the decoded instructions and exception clauses of a
// method.
type MethodBody struct {
	Instructions []Instruction
	Handlers     []ExceptionHandlerInfo
	MaxStack     int
	InitLocals   bool

	index map[int]int
}

// NewMethodBody creates a body and indexes its instructions by offset.
func NewMethodBody(instructions []Instruction, handlers []ExceptionHandlerInfo) *MethodBody {
	b := &MethodBody{
		Instructions: instructions,
		Handlers:     handlers,
		MaxStack:     8,
		InitLocals:   true,
	}
	b.reindex()
	return b
}

func (b *MethodBody) reindex() {
	b.index = make(map[int]int, len(b.Instructions))
	for i := range b.Instructions {
		b.index[b.Instructions[i].Offset] = i
	}
}

// InstructionAt returns the instruction starting at offset.
func (b *MethodBody) InstructionAt(offset int) (*Instruction, bool) {
	if b.index == nil {
		b.reindex()
	}
	i, ok := b.index[offset]
	if !ok {
		return nil, false
	}
	return &b.Instructions[i], true
}

// CodeSize returns the total encoded size of the body.
func (b *MethodBody) CodeSize() int {
	if len(b.Instructions) == 0 {
		return 0
	}
	return b.Instructions[len(b.Instructions)-1].NextOffset()
}
