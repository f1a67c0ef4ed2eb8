package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/echo/meta"
)

// Sentinel errors wrapped by FatalError.
var (
	ErrStackOverflow      = errors.New("stack overflow")
	ErrInvalidProgram     = errors.New("invalid program")
	ErrUndeterminedBranch = errors.New("undetermined branch condition")
	ErrUndeterminedValue  = errors.New("undetermined value")
	ErrAccessViolation    = errors.New("access violation")
	ErrHeapExhausted      = errors.New("heap exhausted")
	ErrInstructionLimit   = errors.New("instruction limit reached")
	ErrThreadFinished     = errors.New("thread has no frames to execute")
)

// FatalError stops a thread. It records where execution stopped.
type FatalError struct {
	Kind   DispatchResultKind
	Method string
	Offset int
	Err    error
}

func (e *FatalError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s in %s at IL_%04X: %v", e.Kind, e.Method, e.Offset, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// EmulatedException is returned when an exception object escapes the
// outermost frame of a thread.
type EmulatedException struct {
	Exception ObjectHandle
	TypeName  string
	Message   string
}

func (e *EmulatedException) Error() string {
	if e.Message == "" {
		return "unhandled exception " + e.TypeName
	}
	return fmt.Sprintf("unhandled exception %s: %s", e.TypeName, e.Message)
}

func newEmulatedException(m *Machine, exc ObjectHandle) *EmulatedException {
	e := &EmulatedException{Exception: exc, TypeName: "<unknown>"}
	if t := exc.Type(); t != meta.NoType {
		e.TypeName = m.Module.Type(t).FullName()
	}
	e.Message, _ = m.ExceptionMessage(exc)
	return e
}
