// Command hodctl is the operator-facing CLI for hod: it runs outside a
// job's own ranks, submitting new jobs to the batch scheduler and
// inspecting the ranks of one already running. It is new surface this
// repository adds (spec.md only specifies the in-job engine); see
// SPEC_FULL.md §1 and §6.1.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hpcugent/hod/internal/logging"
)

// Version is overwritten via -ldflags at build time, following
// cuemby-warren's cmd/warren version-template convention.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "hodctl",
	Short:   "Operate hod jobs: submit batch allocations, inspect running ranks",
	Version: Version,
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.SetVersionTemplate(fmt.Sprintf("hodctl version %s\n", Version))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	logging.Init(logging.Config{Level: logging.Level(level), JSONOutput: jsonOut})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
