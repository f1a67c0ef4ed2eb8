package vm

import (
	"fmt"

	"github.com/chazu/echo/bitvec"
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// CallStack: frames in one contiguous window
// ---------------------------------------------------------------------------

// CallStack holds the frames of one thread. Frames are laid out back to back
// in a single memory window that grows towards higher addresses. The bottom
// entry is a root frame that is never popped.
type CallStack struct {
	factory *ValueFactory
	memory  *BasicMemory
	frames  []*CallFrame
}

// NewCallStack creates a call stack with a window of maxSize bytes.
func NewCallStack(maxSize int, factory *ValueFactory) *CallStack {
	cs := &CallStack{
		factory: factory,
		memory:  NewBasicMemory(maxSize, true),
	}
	root := NewCallFrame(nil, factory)
	root.memory = cs.memory
	cs.frames = append(cs.frames, root)
	return cs
}

func (cs *CallStack) AddressRange() AddressRange { return cs.memory.AddressRange() }
func (cs *CallStack) Read(a uint64, b *bitvec.BitVector) error { return cs.memory.Read(a, b) }
func (cs *CallStack) Write(a uint64, b *bitvec.BitVector) error { return cs.memory.Write(a, b) }

// Rebase moves the window and every frame in it.
func (cs *CallStack) Rebase(base uint64) {
	old := cs.memory.base
	cs.memory.Rebase(base)
	for _, f := range cs.frames {
		f.base = f.base - old + base
	}
}

// MaxSize returns the window size in bytes.
func (cs *CallStack) MaxSize() int {
	return cs.memory.data.ByteCount()
}

// Used returns the number of bytes occupied by frames.
func (cs *CallStack) Used() int {
	top := cs.Peek()
	return int(top.base-cs.memory.base) + top.Size()
}

// Push creates a frame for method directly above the current top frame. It
// fails with ErrStackOverflow when the frame does not fit in the window.
func (cs *CallStack) Push(method *meta.MethodDef) (*CallFrame, error) {
	frame := NewCallFrame(method, cs.factory)
	top := cs.Peek()
	base := top.base + uint64(top.Size())
	if top.IsRoot() {
		base = cs.memory.base
	}
	if int(base-cs.memory.base)+frame.Size() > cs.MaxSize() {
		return nil, fmt.Errorf("%w: frame of %s needs %d bytes, %d of %d in use",
			ErrStackOverflow, method, frame.Size(), cs.Used(), cs.MaxSize())
	}
	if err := frame.bind(cs.memory, base); err != nil {
		return nil, err
	}
	cs.frames = append(cs.frames, frame)
	return frame, nil
}

// Pop removes the top frame and releases its evaluation stack. It returns
// nil, leaving the stack untouched, when only the root frame remains.
func (cs *CallStack) Pop() *CallFrame {
	n := len(cs.frames)
	if n == 1 {
		return nil
	}
	frame := cs.frames[n-1]
	cs.frames[n-1] = nil
	cs.frames = cs.frames[:n-1]
	frame.EvaluationStack.Clear()
	return frame
}

// Peek returns the top frame.
func (cs *CallStack) Peek() *CallFrame {
	return cs.frames[len(cs.frames)-1]
}

// Root returns the root frame.
func (cs *CallStack) Root() *CallFrame {
	return cs.frames[0]
}

// Count returns the number of frames including the root.
func (cs *CallStack) Count() int {
	return len(cs.frames)
}

// Frames returns the frames bottom first. The slice must not be modified.
func (cs *CallStack) Frames() []*CallFrame {
	return cs.frames
}

// Allocate grows the localloc area of frame, which must be the top frame.
func (cs *CallStack) Allocate(frame *CallFrame, size int) (uint64, error) {
	if frame != cs.Peek() || frame.IsRoot() {
		return 0, fmt.Errorf("%w: only the top frame may allocate", ErrInvalidProgram)
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: negative allocation size %d", ErrInvalidProgram, size)
	}
	if cs.Used()+alignUp(size, cs.factory.PointerSize) > cs.MaxSize() {
		return 0, fmt.Errorf("%w: localloc of %d bytes in %s", ErrStackOverflow, size, frame.Method)
	}
	return frame.allocate(size)
}
