package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "porta",
	Short: "Porta - Portfolio advisory pipeline",
	Long: `Porta runs a multi-stage portfolio advisory pipeline: candidate
discovery, momentum and fundamental scoring, market review, risk sizing,
trade decisions, and a markdown report.

Stages coordinate over a shared blackboard and degrade gracefully when
external services (Redis, generative backends) are unavailable.`,
	Version: version,
}

func init() {
	// Silence Cobra's default error and usage printing; printer.Error
	// already wrote the formatted message to stderr.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
