package vm

import "fmt"

// ---------------------------------------------------------------------------
// DispatchResult: outcome of one instruction
// ---------------------------------------------------------------------------

// DispatchResultKind discriminates DispatchResult.
type DispatchResultKind uint8

const (
	ResultSuccess DispatchResultKind = iota
	ResultException
	ResultInvalidProgram
	ResultNullReference
	ResultIndexOutOfRange
	ResultStackOverflow
	ResultUndetermined
	ResultAccessViolation
)

var resultNames = [...]string{
	ResultSuccess:         "success",
	ResultException:       "exception",
	ResultInvalidProgram:  "invalid program",
	ResultNullReference:   "null reference",
	ResultIndexOutOfRange: "index out of range",
	ResultStackOverflow:   "stack overflow",
	ResultUndetermined:    "undetermined",
	ResultAccessViolation: "access violation",
}

func (k DispatchResultKind) String() string {
	if int(k) < len(resultNames) {
		return resultNames[k]
	}
	return fmt.Sprintf("DispatchResultKind(%d)", uint8(k))
}

// DispatchResult is returned by every opcode handler. Exception,
// NullReference and IndexOutOfRange carry an allocated exception object and
// are routed through the frame's exception handlers; the remaining failure
// kinds are fatal and carry Err.
type DispatchResult struct {
	Kind      DispatchResultKind
	Exception ObjectHandle
	Err       error
}

// Success is the result of an instruction that completed normally.
func Success() DispatchResult {
	return DispatchResult{Kind: ResultSuccess}
}

// IsSuccess reports whether the instruction completed normally.
func (r DispatchResult) IsSuccess() bool {
	return r.Kind == ResultSuccess
}

// IsException reports whether r carries an exception object.
func (r DispatchResult) IsException() bool {
	switch r.Kind {
	case ResultException, ResultNullReference, ResultIndexOutOfRange:
		return true
	}
	return false
}

// IsFatal reports whether r stops the thread.
func (r DispatchResult) IsFatal() bool {
	return !r.IsSuccess() && !r.IsException()
}

func invalidProgram(format string, args ...any) DispatchResult {
	return DispatchResult{
		Kind: ResultInvalidProgram,
		Err:  fmt.Errorf("%w: %s", ErrInvalidProgram, fmt.Sprintf(format, args...)),
	}
}

func stackOverflow(err error) DispatchResult {
	return DispatchResult{Kind: ResultStackOverflow, Err: err}
}

func accessViolation(err error) DispatchResult {
	return DispatchResult{Kind: ResultAccessViolation, Err: err}
}

func undetermined(err error, format string, args ...any) DispatchResult {
	return DispatchResult{
		Kind: ResultUndetermined,
		Err:  fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)),
	}
}

func exceptionResult(exc ObjectHandle) DispatchResult {
	return DispatchResult{Kind: ResultException, Exception: exc}
}
