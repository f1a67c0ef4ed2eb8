package vm

import (
	"fmt"

	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// Exception handler frames
// ---------------------------------------------------------------------------

// HandlerState is the state of one protected region.
type HandlerState uint8

const (
	StateIdle HandlerState = iota
	StateDispatching
	StateHandling
	StateFiltering
	StateInFinally
)

var handlerStateNames = [...]string{
	StateIdle:        "idle",
	StateDispatching: "dispatching",
	StateHandling:    "handling",
	StateFiltering:   "filtering",
	StateInFinally:   "in-finally",
}

func (s HandlerState) String() string {
	if int(s) < len(handlerStateNames) {
		return handlerStateNames[s]
	}
	return fmt.Sprintf("HandlerState(%d)", uint8(s))
}

// HandlerJump tells the driver where to continue after an exception
// handling transition, and whether the exception object must be pushed on
// the emptied evaluation stack (catch and filter entry).
type HandlerJump struct {
	Offset        int
	PushException bool
	Exception     ObjectHandle
}

// ExceptionHandlerFrame tracks one protected region and the handlers that
// share its try range, in declaration order.
type ExceptionHandlerFrame struct {
	TryRange       meta.Range
	Handlers       []meta.ExceptionHandlerInfo
	CurrentHandler int
	State          HandlerState
	Exception      ObjectHandle
	LeaveTarget    int

	module        *meta.Module
	exceptionType meta.TypeID
	hasException  bool
	hasLeave      bool
}

func newExceptionHandlerFrame(module *meta.Module, try meta.Range) *ExceptionHandlerFrame {
	return &ExceptionHandlerFrame{TryRange: try, CurrentHandler: -1, module: module}
}

// Reset returns the frame to Idle and forgets the captured exception and
// any pending leave.
func (f *ExceptionHandlerFrame) Reset() {
	f.State = StateIdle
	f.CurrentHandler = -1
	f.Exception = ObjectHandle{}
	f.exceptionType = meta.NoType
	f.hasException = false
	f.hasLeave = false
	f.LeaveTarget = 0
}

func (f *ExceptionHandlerFrame) current() *meta.ExceptionHandlerInfo {
	if f.CurrentHandler < 0 || f.CurrentHandler >= len(f.Handlers) {
		return nil
	}
	return &f.Handlers[f.CurrentHandler]
}

// inFilter reports whether offset lies in the filter expression being run.
func (f *ExceptionHandlerFrame) inFilter(offset int) bool {
	h := f.current()
	return f.State == StateFiltering && h != nil && h.Filter.Contains(offset)
}

// Encloses reports whether offset is inside the try range, or inside the
// handler or filter code this frame is currently running.
func (f *ExceptionHandlerFrame) Encloses(offset int) bool {
	if f.TryRange.Contains(offset) {
		return true
	}
	if f.State == StateIdle {
		return false
	}
	h := f.current()
	if h == nil {
		return false
	}
	return h.Handler.Contains(offset) || (h.Kind == meta.HandlerFilter && h.Filter.Contains(offset))
}

// sameRegion reports whether a leave from offset to target stays inside the
// part of the frame holding offset. A leave out of a handler or filter exits
// the frame even when target lies in the try range.
func (f *ExceptionHandlerFrame) sameRegion(offset, target int) bool {
	if f.TryRange.Contains(offset) {
		return f.TryRange.Contains(target)
	}
	h := f.current()
	if h == nil {
		return false
	}
	if h.Handler.Contains(offset) {
		return h.Handler.Contains(target)
	}
	return h.Kind == meta.HandlerFilter && h.Filter.Contains(offset) && h.Filter.Contains(target)
}

// RegisterException starts or continues dispatch of exc in this frame. It
// returns false when no handler of this frame accepts it; the frame is then
// reset and dispatch must continue in the enclosing frame.
func (f *ExceptionHandlerFrame) RegisterException(exc ObjectHandle, excType meta.TypeID) (HandlerJump, bool) {
	switch f.State {
	case StateHandling, StateInFinally:
		// The handler itself raised: it has failed.
		f.Reset()
		return HandlerJump{}, false
	}
	if !f.hasException {
		f.Exception = exc
		f.exceptionType = excType
		f.hasException = true
	}
	f.State = StateDispatching
	return f.nextHandler(f.CurrentHandler + 1)
}

func (f *ExceptionHandlerFrame) nextHandler(from int) (HandlerJump, bool) {
	for i := from; i < len(f.Handlers); i++ {
		h := f.Handlers[i]
		switch h.Kind {
		case meta.HandlerCatch:
			if !f.module.IsAssignableTo(f.exceptionType, h.CatchType) {
				continue
			}
			f.CurrentHandler, f.State = i, StateHandling
			return HandlerJump{Offset: h.Handler.Start, PushException: true, Exception: f.Exception}, true
		case meta.HandlerFilter:
			f.CurrentHandler, f.State = i, StateFiltering
			return HandlerJump{Offset: h.Filter.Start, PushException: true, Exception: f.Exception}, true
		case meta.HandlerFinally, meta.HandlerFault:
			f.CurrentHandler, f.State = i, StateInFinally
			return HandlerJump{Offset: h.Handler.Start}, true
		}
	}
	f.Reset()
	return HandlerJump{}, false
}

// Leave exits the protected region or the catch handler towards target. If
// the region has a finally clause, control is redirected to it and target is
// remembered for EndFinally; the returned bool reports the redirect.
func (f *ExceptionHandlerFrame) Leave(target int) (int, bool) {
	if f.State == StateInFinally {
		// Leaving from inside the finally block itself abandons it.
		f.Reset()
		return target, false
	}
	f.Reset()
	for i, h := range f.Handlers {
		if h.Kind == meta.HandlerFinally {
			f.CurrentHandler, f.State = i, StateInFinally
			f.LeaveTarget, f.hasLeave = target, true
			return h.Handler.Start, true
		}
	}
	return target, false
}

// EndFinally completes a finally or fault block. With a pending leave it
// returns the leave target; otherwise it returns the captured exception,
// which must be raised again outside this frame.
func (f *ExceptionHandlerFrame) EndFinally() (next int, exc ObjectHandle, rethrow bool) {
	if f.hasLeave {
		next = f.LeaveTarget
		f.Reset()
		return next, ObjectHandle{}, false
	}
	exc = f.Exception
	f.Reset()
	return 0, exc, true
}

// EndFilter completes a filter expression. A true result enters the filter's
// handler; false continues with the following handlers of this frame. When
// none remains the captured exception is returned for outer dispatch.
func (f *ExceptionHandlerFrame) EndFilter(accept bool) (HandlerJump, ObjectHandle, bool) {
	h := f.current()
	if h == nil || f.State != StateFiltering {
		return HandlerJump{}, ObjectHandle{}, false
	}
	if accept {
		f.State = StateHandling
		return HandlerJump{Offset: h.Handler.Start, PushException: true, Exception: f.Exception}, ObjectHandle{}, true
	}
	exc := f.Exception
	f.State = StateDispatching
	if jump, ok := f.nextHandler(f.CurrentHandler + 1); ok {
		return jump, ObjectHandle{}, true
	}
	return HandlerJump{}, exc, false
}

// ---------------------------------------------------------------------------
// ExceptionHandlerStack: the protected regions of one method
// ---------------------------------------------------------------------------

// ExceptionHandlerStack holds the handler frames of a call frame, innermost
// region first.
type ExceptionHandlerStack struct {
	Frames []*ExceptionHandlerFrame
	module *meta.Module
}

// NewExceptionHandlerStack groups handlers with identical try ranges into
// frames. Handler metadata lists inner regions before outer ones, so the
// resulting frames are ordered innermost first.
func NewExceptionHandlerStack(module *meta.Module, handlers []meta.ExceptionHandlerInfo) *ExceptionHandlerStack {
	s := &ExceptionHandlerStack{module: module}
	byRange := make(map[meta.Range]*ExceptionHandlerFrame)
	for _, h := range handlers {
		f, ok := byRange[h.Try]
		if !ok {
			f = newExceptionHandlerFrame(module, h.Try)
			byRange[h.Try] = f
			s.Frames = append(s.Frames, f)
		}
		f.Handlers = append(f.Handlers, h)
	}
	return s
}

// Enclosing returns the frames enclosing offset, innermost first.
func (s *ExceptionHandlerStack) Enclosing(offset int) []*ExceptionHandlerFrame {
	var out []*ExceptionHandlerFrame
	for _, f := range s.Frames {
		if f.Encloses(offset) {
			out = append(out, f)
		}
	}
	return out
}

// RegisterException dispatches exc raised at offset. It returns false when
// no region of this method handles it, in which case the call frame must be
// unwound. An exception raised inside a running filter is discarded and the
// filter is treated as having returned false.
func (s *ExceptionHandlerStack) RegisterException(offset int, exc ObjectHandle) (HandlerJump, bool) {
	excType := exc.Type()
	frames := s.Enclosing(offset)
	for i, f := range frames {
		if f.inFilter(offset) {
			jump, original, ok := f.EndFilter(false)
			if ok {
				return jump, true
			}
			return s.dispatch(frames[i+1:], original, original.Type())
		}
	}
	return s.dispatch(frames, exc, excType)
}

func (s *ExceptionHandlerStack) dispatch(frames []*ExceptionHandlerFrame, exc ObjectHandle, excType meta.TypeID) (HandlerJump, bool) {
	for _, f := range frames {
		if jump, ok := f.RegisterException(exc, excType); ok {
			return jump, true
		}
	}
	return HandlerJump{}, false
}

// Leave handles a leave instruction at offset towards target. Regions that
// enclose offset but not target are exited innermost first; the first one
// with a finally clause redirects control into it.
func (s *ExceptionHandlerStack) Leave(offset, target int) int {
	for _, f := range s.Enclosing(offset) {
		if f.sameRegion(offset, target) {
			break
		}
		if next, redirected := f.Leave(target); redirected {
			return next
		}
	}
	return target
}

// EndFinally completes the finally or fault block containing offset. It
// returns the offset to continue at, or the exception to raise again when
// the block ran during unwinding.
func (s *ExceptionHandlerStack) EndFinally(offset int) (int, ObjectHandle, bool, error) {
	for _, f := range s.Frames {
		h := f.current()
		if f.State != StateInFinally || h == nil || !h.Handler.Contains(offset) {
			continue
		}
		target := f.LeaveTarget
		leaving := f.hasLeave
		next, exc, rethrow := f.EndFinally()
		if rethrow {
			return 0, exc, true, nil
		}
		if leaving {
			// Continue exiting any outer regions between here and target.
			next = s.Leave(offset, target)
		}
		return next, ObjectHandle{}, false, nil
	}
	return 0, ObjectHandle{}, false, fmt.Errorf("%w: endfinally at IL_%04X outside a finally block", ErrInvalidProgram, offset)
}

// EndFilter completes the filter containing offset.
func (s *ExceptionHandlerStack) EndFilter(offset int, accept bool) (HandlerJump, ObjectHandle, bool, error) {
	for i, f := range s.Frames {
		if !f.inFilter(offset) {
			continue
		}
		jump, exc, ok := f.EndFilter(accept)
		if ok {
			return jump, ObjectHandle{}, true, nil
		}
		// Continue in the regions enclosing this one.
		var outer []*ExceptionHandlerFrame
		for _, o := range s.Frames[i+1:] {
			if o.Encloses(offset) {
				outer = append(outer, o)
			}
		}
		if jump, ok := s.dispatch(outer, exc, exc.Type()); ok {
			return jump, ObjectHandle{}, true, nil
		}
		return HandlerJump{}, exc, false, nil
	}
	return HandlerJump{}, ObjectHandle{}, false, fmt.Errorf("%w: endfilter at IL_%04X outside a filter", ErrInvalidProgram, offset)
}

// CurrentException returns the exception being handled by the catch or
// filter handler containing offset, for rethrow.
func (s *ExceptionHandlerStack) CurrentException(offset int) (ObjectHandle, bool) {
	for _, f := range s.Frames {
		h := f.current()
		if f.State == StateHandling && h != nil && h.Handler.Contains(offset) {
			return f.Exception, true
		}
	}
	return ObjectHandle{}, false
}
