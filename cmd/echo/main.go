// Echo CLI - runs, disassembles and snapshots TOML-described CIL programs
// on the tri-state machine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/echo/manifest"
)

var (
	configDir string
	verbosity int
)

var rootCmd = &cobra.Command{
	Use:   "echo",
	Short: "Emulate CIL programs with partially known values",
	Long: `echo executes CIL method bodies on a machine whose every bit may be
0, 1 or unknown. Programs are TOML files listing types, fields and methods
with assembler bodies. Machine settings are read from the nearest echo.toml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory to search upward for echo.toml")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.AddCommand(runCmd, disasmCmd, snapshotCmd)
}

// loadConfig finds echo.toml and configures logging from it. Command-line
// verbosity adds to the configured level.
func loadConfig() (*manifest.Config, error) {
	cfg, err := manifest.FindAndLoad(configDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
	}
	commonlog.Configure(cfg.Log.Verbosity+verbosity, cfg.LogPath())
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
