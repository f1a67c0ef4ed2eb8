package vm

import (
	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Dereferencing addresses taken from the evaluation stack
// ---------------------------------------------------------------------------

// addressOutcome classifies an address operand.
type addressOutcome uint8

const (
	addressKnown addressOutcome = iota
	addressNull
	addressUnknown
)

// dereference decides whether addr can be followed. A partially known
// address is offered to the resolver first, as a source or destination
// pointer depending on write. The resolver may concretize addr in place.
func dereference(ctx *ExecutionContext, instr *meta.Instruction, addr *bitvec.BitVector, write bool) (uint64, addressOutcome) {
	if !addr.IsFullyKnown() {
		var resolved bool
		if write {
			resolved = ctx.Machine.Resolver.ResolveDestinationPointer(ctx, instr, addr)
		} else {
			resolved = ctx.Machine.Resolver.ResolveSourcePointer(ctx, instr, addr)
		}
		if !resolved || !addr.IsFullyKnown() {
			return 0, addressUnknown
		}
	}
	if a := addr.Uint64(); a != 0 {
		return a, addressKnown
	}
	return 0, addressNull
}

// readValue loads a value of type sig from memory as a new stack slot.
func readValue(m *Machine, addr uint64, sig meta.TypeSig) (StackSlot, error) {
	f := m.Factory
	raw := f.RentMemory(sig, true)
	defer f.Pool.Return(raw)
	if err := m.Memory.Read(addr, raw); err != nil {
		return StackSlot{}, err
	}
	return f.LoadValue(raw, sig), nil
}

// writeValue stores slot into memory as a value of type sig.
func writeValue(m *Machine, addr uint64, sig meta.TypeSig, slot StackSlot) error {
	f := m.Factory
	raw := f.StoreValue(slot, sig)
	defer f.Pool.Return(raw)
	return m.Memory.Write(addr, raw)
}

// offsetAddress adds a byte offset to a possibly partially known address.
// Known low bits of the base stay known.
func offsetAddress(f *ValueFactory, base *bitvec.BitVector, offset int) StackSlot {
	out := f.RentKnown(f.PointerBits())
	base.ResizeInto(out, false)
	delta := f.RentKnown(f.PointerBits())
	defer f.Pool.Return(delta)
	delta.WriteUint64(uint64(offset))
	out.Add(delta)
	return StackSlot{Contents: out, Type: HintInteger}
}

// loadThrough pushes the value of type sig stored at the address in ptr.
// An unknown address yields an unknown value.
func loadThrough(ctx *ExecutionContext, instr *meta.Instruction, ptr StackSlot, sig meta.TypeSig) DispatchResult {
	addr, outcome := dereference(ctx, instr, ptr.Contents, false)
	switch outcome {
	case addressNull:
		return ctx.nullReference(instr)
	case addressUnknown:
		log.Debugf("%s at IL_%04X reads through an unknown address", instr.Opcode, instr.Offset)
		return ctx.push(instr, ctx.Factory().CreateUnknown(sig))
	}
	v, err := readValue(ctx.Machine, addr, sig)
	if err != nil {
		return accessViolation(err)
	}
	return ctx.push(instr, v)
}

// storeThrough writes value as type sig to the address in ptr. A store to
// an unknown address is dropped.
func storeThrough(ctx *ExecutionContext, instr *meta.Instruction, ptr, value StackSlot, sig meta.TypeSig) DispatchResult {
	addr, outcome := dereference(ctx, instr, ptr.Contents, true)
	switch outcome {
	case addressNull:
		return ctx.nullReference(instr)
	case addressUnknown:
		log.Warningf("%s: %s at IL_%04X writes to an unknown address, store dropped",
			ctx.Frame().Method, instr.Opcode, instr.Offset)
		return ctx.next(instr)
	}
	if err := writeValue(ctx.Machine, addr, sig, value); err != nil {
		return accessViolation(err)
	}
	return ctx.next(instr)
}
