package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/echo/manifest"
	"github.com/chazu/echo/meta"
	"github.com/chazu/echo/vm"
)

var log = commonlog.GetLogger("echo.cmd")

var (
	runEntries      []string
	runDefaults     bool
	runTimeout      time.Duration
	runProfile      bool
	runHotThreshold uint64
)

var runCmd = &cobra.Command{
	Use:   "run <program.toml>",
	Short: "Run the entry points of a program",
	Long: `run calls every entry point of the program, each on its own machine,
and prints the value it returns. Parameters are passed as fully unknown values
unless --defaults is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		prog, err := manifest.LoadProgram(args[0])
		if err != nil {
			return err
		}
		entries, err := selectEntries(prog, runEntries)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		results := make([]string, len(entries))
		var mu sync.Mutex
		failed := 0
		report := newProfileReport(cmd.ErrOrStderr())
		g, ctx := errgroup.WithContext(ctx)
		for i, md := range entries {
			i, md := i, md
			g.Go(func() error {
				out, err := runEntry(ctx, cfg, prog.Module, md, report)
				if err != nil {
					var exc *vm.EmulatedException
					if !errors.As(err, &exc) {
						return err
					}
					mu.Lock()
					failed++
					mu.Unlock()
					out = err.Error()
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for i, md := range entries {
			fmt.Fprintf(w, "%s: %s\n", vm.MethodName(prog.Module, md), results[i])
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d entry points threw", failed, len(entries))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVarP(&runEntries, "entry", "e", nil, "entry point Type::Method (default: the program's entries)")
	runCmd.Flags().BoolVar(&runDefaults, "defaults", false, "pass zero values instead of unknown values as parameters")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "cancel the run after this long")
	runCmd.Flags().BoolVar(&runProfile, "profile", false, "print the most called methods, opcodes and call site caches to stderr")
	runCmd.Flags().Uint64Var(&runHotThreshold, "hot-threshold", 100, "calls after which --profile reports a method as hot")
}

// selectEntries resolves the named entry points, falling back to the
// program's declared ones. Entry points must be static.
func selectEntries(prog *manifest.Program, names []string) ([]*meta.MethodDef, error) {
	entries := prog.Entries
	if len(names) > 0 {
		entries = nil
		for _, name := range names {
			typeName, methodName, ok := strings.Cut(name, "::")
			if !ok {
				return nil, fmt.Errorf("entry %q is not Type::Method", name)
			}
			md, ok := prog.Module.FindMethod(typeName, methodName)
			if !ok {
				return nil, fmt.Errorf("entry %q not found", name)
			}
			entries = append(entries, md)
		}
	}
	if len(entries) == 0 {
		return nil, errors.New("no entry points; list them in the program or pass --entry")
	}
	for _, md := range entries {
		if !md.IsStatic() {
			return nil, fmt.Errorf("entry %s is an instance method", vm.MethodName(prog.Module, md))
		}
	}
	return entries, nil
}

// newMachine builds a machine configured from echo.toml.
func newMachine(cfg *manifest.Config, module *meta.Module) (*vm.Machine, error) {
	m, err := vm.NewMachine(module, vm.Config{
		PointerSize:     cfg.Machine.PointerSize,
		StackSize:       cfg.Machine.StackSize,
		HeapSize:        cfg.Machine.HeapSize,
		MaxInstructions: cfg.Machine.MaxInstructions,
		Trace:           cfg.Machine.Trace,
	})
	if err != nil {
		return nil, err
	}
	switch cfg.Resolver.Mode {
	case manifest.ResolverZero:
		m.Resolver = vm.ConcreteResolver{}
	default:
		m.Resolver = vm.DefaultResolver{}
	}
	switch cfg.Invoker.Mode {
	case manifest.InvokerReturnUnknown:
		m.Invoker = vm.ReturnUnknownInvoker{}
	case manifest.InvokerReturnDefault:
		m.Invoker = vm.ReturnDefaultInvoker{}
	default:
		m.Invoker = vm.StepInInvoker{}
	}
	return m, nil
}

// entryArguments builds the parameter values for an entry point.
func entryArguments(m *vm.Machine, md *meta.MethodDef) []vm.StackSlot {
	args := make([]vm.StackSlot, len(md.Signature.Params))
	for i, p := range md.Signature.Params {
		if runDefaults {
			args[i] = m.Factory.CreateDefault(p)
		} else {
			args[i] = m.Factory.CreateUnknown(p)
		}
	}
	return args
}

func runEntry(ctx context.Context, cfg *manifest.Config, module *meta.Module, md *meta.MethodDef, report *profileReport) (string, error) {
	m, err := newMachine(cfg, module)
	if err != nil {
		return "", err
	}
	if runProfile {
		m.Profiler.MethodHotThreshold = runHotThreshold
		m.Profiler.OnHot = func(p *vm.MethodProfile) {
			log.Infof("%s is hot after %d calls", vm.MethodName(module, p.Method), p.InvocationCount)
		}
	}
	thread, err := m.CreateThread()
	if err != nil {
		return "", err
	}
	args := entryArguments(m, md)
	defer m.Factory.Release(args...)

	result, err := thread.Call(ctx, md, args)
	if runProfile {
		report.print(m, md)
	}
	if err != nil {
		return "", err
	}
	defer m.Factory.Release(result)
	log.Debugf("%s on machine %s executed %d instructions", vm.MethodName(module, md), m.ID, thread.Executed())
	return describeResult(m, md, result), nil
}

// describeResult formats a return value, decoding strings and reporting
// object types where the reference is known.
func describeResult(m *vm.Machine, md *meta.MethodDef, result vm.StackSlot) string {
	if result.Contents == nil {
		return "void"
	}
	if !md.Signature.Return.IsReference() || !result.Contents.IsFullyKnown() {
		return result.String()
	}
	h := m.Handle(result.Contents.Uint64())
	if h.Type() == m.Module.CorLib.String {
		if s, ok := h.ReadString(); ok {
			return fmt.Sprintf("%q", s)
		}
	}
	return h.String()
}

// profileReport serializes the profiles of concurrently running entries.
type profileReport struct {
	mu sync.Mutex
	w  io.Writer
}

func newProfileReport(w io.Writer) *profileReport {
	return &profileReport{w: w}
}

func (r *profileReport) print(m *vm.Machine, entry *meta.MethodDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := m.Profiler
	stats := p.Stats()
	fmt.Fprintf(r.w, "profile %s: %d calls to %d methods (%d hot), %d instructions\n",
		vm.MethodName(m.Module, entry), stats.MethodInvocations, stats.TotalMethods, stats.HotMethods, stats.Instructions)
	for _, mp := range p.TopMethods(5) {
		mark := " "
		if p.IsMethodHot(mp.Method) {
			mark = "*"
		}
		fmt.Fprintf(r.w, "  %8d %s %s\n", mp.InvocationCount, mark, vm.MethodName(m.Module, mp.Method))
	}
	for _, op := range p.TopOpcodes(5) {
		fmt.Fprintf(r.w, "  %8d   %s\n", p.OpcodeCount(op), op)
	}
	mono, poly, mega, hits, misses := m.InlineCaches.Stats()
	fmt.Fprintf(r.w, "  call sites: %d mono, %d poly, %d mega (%d hits, %d misses)\n", mono, poly, mega, hits, misses)
	for _, site := range m.InlineCaches.Sites() {
		fmt.Fprintf(r.w, "    IL_%04X in %s: %s, %.0f%% hits\n", site.Offset,
			vm.MethodName(m.Module, m.Module.Method(site.Method)), site.Cache.State, site.Cache.HitRate())
	}
}
