// Package cli implements the cobra-based CLI commands for portjar.
//
// Each subcommand (reserve, drop, list, allocate, import-docker, serve,
// config) is defined in its own file within this package. This file defines
// the root command that carries the global flags.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/model"
)

// Global flag variables shared across all subcommands, bound to cobra
// persistent flags on the root command.
var (
	// jsonOutput switches command output to JSON for machine consumption.
	jsonOutput bool

	// verbose prints progress to stderr and lowers the log level to debug.
	verbose bool

	// configPath overrides the config file location.
	configPath string

	// jarPath overrides the jar file and forces the file store.
	jarPath string

	// lenient skips invalid lines when loading the jar.
	lenient bool
)

// version, commit, and date are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command with every subcommand
// registered. The root command itself only provides help and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portjar",
		Short: "Port registry for local services",
		Long: `portjar keeps a registry of which service owns which port, so that
development services never fight over the same port.

The registry is a plain text file with one reservation per line:

  web 8080
  api/tcp 9090
  dns/udp 53

Port 0 asks portjar to pick a free port from the configured range.`,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $PORTJAR_CONFIG or <user config dir>/portjar/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&jarPath, "jar", "", "Jar file to use instead of the configured store")
	rootCmd.PersistentFlags().BoolVar(&lenient, "lenient", false, "Skip invalid lines when loading the jar")

	rootCmd.AddCommand(NewReserveCommand())
	rootCmd.AddCommand(NewDropCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewAllocateCommand())
	rootCmd.AddCommand(NewImportDockerCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// Execute runs the root command until it returns or the process is
// interrupted, then exits with the code matching the error.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(cliErr.Message, cliErr.Err)
	} else {
		printError(err.Error(), nil)
	}
	os.Exit(int(model.ExitCodeFor(err)))
}

// printError writes an error to stderr, as JSON when --json is set.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
