package vm

import (
	"github.com/chazu/echo/meta"
)

// ---------------------------------------------------------------------------
// MethodInvoker: what happens at a call site
// ---------------------------------------------------------------------------

// InvocationKind discriminates InvocationResult.
type InvocationKind uint8

const (
	// InvokeStepIn executes the callee's body in a new call frame.
	InvokeStepIn InvocationKind = iota
	// InvokeStepOver skips the body and uses a synthesized return value.
	InvokeStepOver
	// InvokeThrow raises an exception at the call site.
	InvokeThrow
)

// InvocationResult is an invoker's decision for one call.
type InvocationResult struct {
	Kind      InvocationKind
	Value     StackSlot // the return value for StepOver; Contents is nil for void
	Exception ObjectHandle
}

// StepIn asks the machine to execute the callee.
func StepIn() InvocationResult {
	return InvocationResult{Kind: InvokeStepIn}
}

// StepOver returns value to the caller without executing the callee. The
// result takes ownership of value.
func StepOver(value StackSlot) InvocationResult {
	return InvocationResult{Kind: InvokeStepOver, Value: value}
}

// Throw raises exc at the call site.
func Throw(exc ObjectHandle) InvocationResult {
	return InvocationResult{Kind: InvokeThrow, Exception: exc}
}

// MethodInvoker decides how a call is carried out. args holds the receiver
// (if any) followed by the parameters; the invoker must not retain them.
// Returning false means the invoker has no answer for this method.
type MethodInvoker interface {
	Invoke(ctx *ExecutionContext, method *meta.MethodDef, args []StackSlot) (InvocationResult, bool)
}

// StepInInvoker steps into every method that has a body.
type StepInInvoker struct{}

func (StepInInvoker) Invoke(_ *ExecutionContext, method *meta.MethodDef, _ []StackSlot) (InvocationResult, bool) {
	if method.Body == nil {
		return InvocationResult{}, false
	}
	return StepIn(), true
}

// ReturnUnknownInvoker steps over every call, producing a fully unknown
// return value.
type ReturnUnknownInvoker struct{}

func (ReturnUnknownInvoker) Invoke(ctx *ExecutionContext, method *meta.MethodDef, _ []StackSlot) (InvocationResult, bool) {
	if !method.Signature.ReturnsValue() {
		return StepOver(StackSlot{}), true
	}
	return StepOver(ctx.Factory().CreateUnknown(method.Signature.Return)), true
}

// ReturnDefaultInvoker steps over every call, producing the zero value of
// the return type.
type ReturnDefaultInvoker struct{}

func (ReturnDefaultInvoker) Invoke(ctx *ExecutionContext, method *meta.MethodDef, _ []StackSlot) (InvocationResult, bool) {
	if !method.Signature.ReturnsValue() {
		return StepOver(StackSlot{}), true
	}
	return StepOver(ctx.Factory().CreateDefault(method.Signature.Return)), true
}

// HookFunc emulates one method in Go.
type HookFunc func(ctx *ExecutionContext, method *meta.MethodDef, args []StackSlot) InvocationResult

// HookInvoker answers calls to methods registered by their full name,
// "Namespace.Type::Method".
type HookInvoker struct {
	hooks map[string]HookFunc
}

// NewHookInvoker creates an empty hook table.
func NewHookInvoker() *HookInvoker {
	return &HookInvoker{hooks: make(map[string]HookFunc)}
}

// Register installs fn for the named method.
func (h *HookInvoker) Register(name string, fn HookFunc) {
	h.hooks[name] = fn
}

func (h *HookInvoker) Invoke(ctx *ExecutionContext, method *meta.MethodDef, args []StackSlot) (InvocationResult, bool) {
	fn, ok := h.hooks[MethodName(ctx.Machine.Module, method)]
	if !ok {
		return InvocationResult{}, false
	}
	return fn(ctx, method, args), true
}

// ChainInvoker asks each invoker in turn; the first answer wins.
type ChainInvoker []MethodInvoker

func (c ChainInvoker) Invoke(ctx *ExecutionContext, method *meta.MethodDef, args []StackSlot) (InvocationResult, bool) {
	for _, inv := range c {
		if r, ok := inv.Invoke(ctx, method, args); ok {
			return r, true
		}
	}
	return InvocationResult{}, false
}

// MethodName returns "Namespace.Type::Method".
func MethodName(m *meta.Module, method *meta.MethodDef) string {
	if method.DeclaringType == meta.NoType {
		return method.Name
	}
	return m.Type(method.DeclaringType).FullName() + "::" + method.Name
}
