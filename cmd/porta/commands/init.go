package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/porta/internal/config"
	"github.com/dyluth/porta/internal/printer"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

const starterConfig = `version: "1.0"

# Tickers analyzed on every run.
universe:
  - AAPL
  - MSFT
  - GOOG

redis:
  url: redis://localhost:6379/0

capability:
  provider: mock # set to "gemini" and export GEMINI_API_KEY for live runs
  # model: gemini-2.5-flash

risk:
  base_weight_pct: 10

report:
  language: en
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter porta.yml in the current directory",
	Long: `Create a starter porta.yml in the current directory.

The generated file uses the mock generative backend and a small default
universe, so 'porta run' works immediately with no external services.

Use --force to overwrite an existing porta.yml.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing porta.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			return printer.Error(
				fmt.Sprintf("%s already exists", config.DefaultPath),
				"Refusing to overwrite an existing configuration.",
				[]string{"Use --force to overwrite it"},
			)
		}
	}

	if err := os.WriteFile(config.DefaultPath, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.DefaultPath, err)
	}

	printer.Success("created %s\n", config.DefaultPath)
	printer.Println("Edit the universe, then run 'porta run'.")
	return nil
}
