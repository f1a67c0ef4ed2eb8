package vm

import "github.com/chazu/echo/bitvec"

// stackUnderflow is the panic value raised when a handler pops an empty
// evaluation stack. The dispatcher turns it into an invalid-program result.
type stackUnderflow struct{}

func (stackUnderflow) Error() string { return "evaluation stack underflow" }

// EvaluationStack is the operand stack of one call frame. Slots pushed onto
// the stack are owned by it; a popped slot is owned by the caller, which
// must return its contents to the pool.
type EvaluationStack struct {
	slots []StackSlot
	pool  *bitvec.Pool
}

// NewEvaluationStack creates an empty stack returning vectors to pool.
func NewEvaluationStack(pool *bitvec.Pool) *EvaluationStack {
	return &EvaluationStack{slots: make([]StackSlot, 0, 8), pool: pool}
}

// Push places a slot on top of the stack.
func (s *EvaluationStack) Push(slot StackSlot) {
	s.slots = append(s.slots, slot)
}

// Pop removes and returns the top slot.
func (s *EvaluationStack) Pop() StackSlot {
	n := len(s.slots)
	if n == 0 {
		panic(stackUnderflow{})
	}
	slot := s.slots[n-1]
	s.slots[n-1] = StackSlot{}
	s.slots = s.slots[:n-1]
	return slot
}

// PopN removes the top n slots and returns them bottom first.
func (s *EvaluationStack) PopN(n int) []StackSlot {
	s.Require(n)
	out := make([]StackSlot, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = s.Pop()
	}
	return out
}

// Require panics with an underflow unless the stack holds at least n slots.
// Handlers popping several operands call it first so that an underflow never
// strands the operands already popped.
func (s *EvaluationStack) Require(n int) {
	if len(s.slots) < n {
		panic(stackUnderflow{})
	}
}

// Peek returns the top slot without removing it.
func (s *EvaluationStack) Peek() StackSlot {
	return s.PeekAt(0)
}

// PeekAt returns the slot depth entries below the top.
func (s *EvaluationStack) PeekAt(depth int) StackSlot {
	i := len(s.slots) - 1 - depth
	if i < 0 {
		panic(stackUnderflow{})
	}
	return s.slots[i]
}

// Count returns the number of slots.
func (s *EvaluationStack) Count() int {
	return len(s.slots)
}

// Slots returns the slots bottom first. The slice must not be modified.
func (s *EvaluationStack) Slots() []StackSlot {
	return s.slots
}

// Clear empties the stack, returning every vector to the pool.
func (s *EvaluationStack) Clear() {
	for i, slot := range s.slots {
		s.pool.Return(slot.Contents)
		s.slots[i] = StackSlot{}
	}
	s.slots = s.slots[:0]
}
