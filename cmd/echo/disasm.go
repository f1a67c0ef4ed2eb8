package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/echo/manifest"
	"github.com/chazu/echo/meta"
	"github.com/chazu/echo/vm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <program.toml> [Type::Method...]",
	Short: "Print the assembled instructions of a program",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		prog, err := manifest.LoadProgram(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(args) == 1 {
			for _, td := range prog.Module.Types {
				for _, md := range td.Methods {
					if md.Body != nil {
						disassemble(w, prog.Module, md)
					}
				}
			}
			return nil
		}
		for _, ref := range args[1:] {
			typeName, methodName, ok := strings.Cut(ref, "::")
			if !ok {
				return fmt.Errorf("%q is not Type::Method", ref)
			}
			md, ok := prog.Module.FindMethod(typeName, methodName)
			if !ok {
				return fmt.Errorf("method %q not found", ref)
			}
			disassemble(w, prog.Module, md)
		}
		return nil
	},
}

// disassemble writes one method: its signature, locals, instructions and
// exception clauses.
func disassemble(w io.Writer, m *meta.Module, md *meta.MethodDef) {
	params := make([]string, len(md.Signature.Params))
	for i, p := range md.Signature.Params {
		params[i] = m.SigName(p)
	}
	kind := "instance"
	if md.IsStatic() {
		kind = "static"
	}
	fmt.Fprintf(w, ".method %s %s %s(%s)\n", kind, m.SigName(md.Signature.Return), vm.MethodName(m, md), strings.Join(params, ", "))
	if md.Body == nil {
		fmt.Fprintln(w, "  // no body")
		return
	}
	fmt.Fprintf(w, "  .maxstack %d\n", md.Body.MaxStack)
	if len(md.Locals) > 0 {
		locals := make([]string, len(md.Locals))
		for i, l := range md.Locals {
			locals[i] = m.SigName(l)
		}
		fmt.Fprintf(w, "  .locals (%s)\n", strings.Join(locals, ", "))
	}
	for i := range md.Body.Instructions {
		fmt.Fprintf(w, "  %s\n", &md.Body.Instructions[i])
	}
	for _, h := range md.Body.Handlers {
		fmt.Fprintf(w, "  .try IL_%04X to IL_%04X %s", h.Try.Start, h.Try.End, h.Kind)
		switch h.Kind {
		case meta.HandlerCatch:
			fmt.Fprintf(w, " %s", m.Type(h.CatchType).FullName())
		case meta.HandlerFilter:
			fmt.Fprintf(w, " IL_%04X", h.Filter.Start)
		}
		fmt.Fprintf(w, " handler IL_%04X to IL_%04X\n", h.Handler.Start, h.Handler.End)
	}
	fmt.Fprintln(w)
}
