package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// UnknownResolver: policy for undetermined values
// ---------------------------------------------------------------------------

// UnknownResolver is consulted when an instruction needs a concrete value
// that is not fully known. Each method may concretize the vector in place
// and returns true if it did, in which case the instruction proceeds as if
// the value had been known. Returning false keeps the default behavior of
// the instruction: fatal for branch and switch conditions, an unknown
// result for loads, a dropped store for writes.
type UnknownResolver interface {
	ResolveBranchCondition(ctx *ExecutionContext, instr *meta.Instruction, operands []*bitvec.BitVector) bool
	ResolveSwitchCondition(ctx *ExecutionContext, instr *meta.Instruction, selector *bitvec.BitVector) bool
	ResolveSourcePointer(ctx *ExecutionContext, instr *meta.Instruction, address *bitvec.BitVector) bool
	ResolveDestinationPointer(ctx *ExecutionContext, instr *meta.Instruction, address *bitvec.BitVector) bool
	ResolveArrayIndex(ctx *ExecutionContext, instr *meta.Instruction, array ObjectHandle, index *bitvec.BitVector) bool
	// ResolveMethod picks the target of a virtual call whose receiver is not
	// known.
	ResolveMethod(ctx *ExecutionContext, instr *meta.Instruction, method *meta.MethodDef, receiver *bitvec.BitVector) (*meta.MethodDef, bool)
}

// DefaultResolver leaves every value unresolved.
type DefaultResolver struct{}

func (DefaultResolver) ResolveBranchCondition(*ExecutionContext, *meta.Instruction, []*bitvec.BitVector) bool {
	return false
}

func (DefaultResolver) ResolveSwitchCondition(*ExecutionContext, *meta.Instruction, *bitvec.BitVector) bool {
	return false
}

func (DefaultResolver) ResolveSourcePointer(*ExecutionContext, *meta.Instruction, *bitvec.BitVector) bool {
	return false
}

func (DefaultResolver) ResolveDestinationPointer(*ExecutionContext, *meta.Instruction, *bitvec.BitVector) bool {
	return false
}

func (DefaultResolver) ResolveArrayIndex(*ExecutionContext, *meta.Instruction, ObjectHandle, *bitvec.BitVector) bool {
	return false
}

func (DefaultResolver) ResolveMethod(*ExecutionContext, *meta.Instruction, *meta.MethodDef, *bitvec.BitVector) (*meta.MethodDef, bool) {
	return nil, false
}

// ConcreteResolver turns every unknown bit into a known zero. Virtual calls
// on unknown receivers go to the declared method when it has a body.
type ConcreteResolver struct{}

func (ConcreteResolver) ResolveBranchCondition(_ *ExecutionContext, _ *meta.Instruction, operands []*bitvec.BitVector) bool {
	for _, v := range operands {
		v.MarkFullyKnown()
	}
	return true
}

func (ConcreteResolver) ResolveSwitchCondition(_ *ExecutionContext, _ *meta.Instruction, selector *bitvec.BitVector) bool {
	selector.MarkFullyKnown()
	return true
}

func (ConcreteResolver) ResolveSourcePointer(_ *ExecutionContext, _ *meta.Instruction, address *bitvec.BitVector) bool {
	address.MarkFullyKnown()
	return true
}

func (ConcreteResolver) ResolveDestinationPointer(_ *ExecutionContext, _ *meta.Instruction, address *bitvec.BitVector) bool {
	address.MarkFullyKnown()
	return true
}

func (ConcreteResolver) ResolveArrayIndex(_ *ExecutionContext, _ *meta.Instruction, _ ObjectHandle, index *bitvec.BitVector) bool {
	index.MarkFullyKnown()
	return true
}

func (ConcreteResolver) ResolveMethod(_ *ExecutionContext, _ *meta.Instruction, method *meta.MethodDef, _ *bitvec.BitVector) (*meta.MethodDef, bool) {
	if method.IsAbstract() {
		return nil, false
	}
	return method, true
}
