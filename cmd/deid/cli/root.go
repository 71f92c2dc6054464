// Package cli implements the deid command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "deid",
	Short: "De-identify medical records by detecting and masking PHI",
	Long: `deid chunks input documents, detects protected health information with
deterministic tools and an LLM identifier grounded in regulation context,
masks each detected entity, and writes the masked result plus a per-file
report.

Get started:
  deid process notes/*.txt       Process one or more files
  deid process notes/ --resume   Resume a previously interrupted run
  deid evaluate samples.json     Score predictions against ground truth`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(processCmd, evaluateCmd)
}
