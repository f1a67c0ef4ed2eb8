// Package vm implements the echo symbolic CIL virtual machine.
//
// This package contains:
//   - Stack slots holding tri-state bit vectors
//   - Value layout and marshalling between memory and the evaluation stack
//   - Mapped memory spaces: statics, heap and per-thread call stacks
//   - Call frames and the exception handler state machine
//   - The opcode dispatcher and its handler families
//   - Resolution policies for undetermined values and call-site invokers
package vm
