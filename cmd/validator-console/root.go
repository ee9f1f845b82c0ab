package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pushchain/validator-console/internal/exitcodes"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func defaultPath(file string) string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".validator-console", file)
}

// newRootCmd builds the CLI. The root command launches the operator
// console; `logs` tails its engine log and `version` prints the build
// version.
func newRootCmd() *cobra.Command {
	var (
		configPath string
		logPath    string
	)

	rootCmd := &cobra.Command{
		Use:   "validator-console",
		Short: "Operator console for paired-node validator deployments",
		Long: `Launch the paired-node operator console. For every configured validator
pair it continuously:

  • polls on-chain vote data (delinquency detection, 5s cadence)
  • probes each node over SSH (reachability, 30s cadence)
  • streams each node's catchup/sync status
  • raises alerts when thresholds are crossed

With auto-failover enabled it executes an emergency identity swap when the
active node goes delinquent while RPC is healthy.

Keys: r refresh · s switch view · y confirm switch · q quit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return exitcodes.TerminalErr("console requires an interactive terminal", nil)
			}
			return runConsole(cmd.Context(), configPath, logPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath("console.yaml"), "Console configuration file")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-file", defaultPath("console.log"), "Engine log file (the TUI owns stdout)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "logs",
		Short: "Follow the console's engine log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return followLog(cmd.Context(), logPath)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("validator-console %s\n", Version)
		},
	})

	return rootCmd
}

// Execute runs the CLI and exits with the code mapped from the error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.CodeForError(err))
	}
}
