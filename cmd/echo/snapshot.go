package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chazu/echo/manifest"
	"github.com/chazu/echo/vm"
	"github.com/chazu/echo/vm/snapshot"
)

var snapshotOut string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture or inspect machine snapshots",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <program.toml> <Type::Method>",
	Short: "Run one entry point and write the machine state as CBOR",
	Long: `save runs the entry point and captures the machine afterwards. A run
that stops on an undetermined value or an unhandled exception is still
captured, with the heap and statics as the failing instruction left them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		prog, err := manifest.LoadProgram(args[0])
		if err != nil {
			return err
		}
		entries, err := selectEntries(prog, args[1:])
		if err != nil {
			return err
		}
		md := entries[0]

		m, err := newMachine(cfg, prog.Module)
		if err != nil {
			return err
		}
		thread, err := m.CreateThread()
		if err != nil {
			return err
		}
		argv := entryArguments(m, md)
		defer m.Factory.Release(argv...)

		result, runErr := thread.Call(cmd.Context(), md, argv)
		var fatal *vm.FatalError
		var exc *vm.EmulatedException
		if runErr != nil && !errors.As(runErr, &fatal) && !errors.As(runErr, &exc) {
			return runErr
		}
		s, err := snapshot.Capture(m)
		m.Factory.Release(result)
		if err != nil {
			return err
		}
		if err := snapshot.Save(snapshotOut, s); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if runErr != nil {
			fmt.Fprintf(w, "%s stopped: %v\n", vm.MethodName(prog.Module, md), runErr)
		}
		fmt.Fprintf(w, "wrote %s\n", snapshotOut)
		summarize(w, s)
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the contents of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := snapshot.Load(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		summarize(w, s)
		for _, st := range s.Statics {
			fmt.Fprintf(w, "  static %s @%#x = %s\n", st.Field, st.Address, st.Value.BitVector().Hex())
		}
		for _, o := range s.Objects {
			fmt.Fprintf(w, "  object %s @%#x (%d bytes)\n", o.Type, o.Address, len(o.Data.Bits))
		}
		for _, t := range s.Threads {
			for _, f := range t.Frames {
				fmt.Fprintf(w, "  thread %d frame %s IL_%04X, %d stack slots\n", t.ID, f.Method, f.ProgramCounter, len(f.Stack))
			}
		}
		return nil
	},
}

func init() {
	snapshotSaveCmd.Flags().StringVarP(&snapshotOut, "output", "o", "echo.snap", "snapshot file to write")
	snapshotSaveCmd.Flags().BoolVar(&runDefaults, "defaults", false, "pass zero values instead of unknown values as parameters")
	snapshotCmd.AddCommand(snapshotSaveCmd, snapshotShowCmd)
}

func summarize(w io.Writer, s *snapshot.Snapshot) {
	fmt.Fprintf(w, "snapshot %s of %s (machine %s, %d-bit)\n", s.ID, s.Module, s.MachineID, s.PointerSize*8)
	fmt.Fprintf(w, "  %d regions, %d objects (%d bytes), %d statics, %d threads\n",
		len(s.Regions), len(s.Objects), s.HeapBytes(), len(s.Statics), len(s.Threads))
}
