package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dyluth/porta/internal/capability"
	"github.com/dyluth/porta/internal/config"
	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/internal/memo"
	"github.com/dyluth/porta/internal/pipeline"
	"github.com/dyluth/porta/internal/printer"
	"github.com/dyluth/porta/internal/stages"
	"github.com/dyluth/porta/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	runConfigPath string
	runMock       bool
	runLanguage   string
	runOutPath    string
	runCash       float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full advisory pass over the configured universe",
	Long: `Run a full advisory pass over the configured universe.

Reads porta.yml (or --config), executes every pipeline stage, and prints
the markdown report to stdout (or --out). Market data comes from the
offline demo provider, so runs are deterministic and need no network.

Redis memoizes candidate discovery per universe per day; when Redis is
unreachable the run proceeds without memoization.

Examples:
  # Run with the default config and mock backend
  porta run

  # Live generative backend, Korean report written to a file
  porta run --lang ko --out report.md`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", config.DefaultPath, "Path to porta.yml")
	runCmd.Flags().BoolVarP(&runMock, "mock", "m", false, "Force the mock generative backend")
	runCmd.Flags().StringVarP(&runLanguage, "lang", "l", "", "Report language override (en or ko)")
	runCmd.Flags().StringVarP(&runOutPath, "out", "o", "", "Write the report to a file instead of stdout")
	runCmd.Flags().Float64Var(&runCash, "cash", 10000, "Starting cash for the demo portfolio")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{"Run 'porta init' to create a starter porta.yml"},
		)
	}

	language := cfg.Report.Language
	if runLanguage != "" {
		language = runLanguage
	}
	if language != "en" && language != "ko" {
		return printer.Error(
			fmt.Sprintf("invalid language %q", language),
			"The report renderer supports 'en' and 'ko'.",
			nil,
		)
	}

	client := buildCapability(ctx, cfg, runMock)
	cache := buildCache(ctx, cfg)

	asOf := time.Now().UTC()
	runner := pipeline.New(
		stages.Config{
			Market:        marketdata.NewDemo(append([]string{cfg.Market.Benchmark}, cfg.Universe...), asOf),
			Capability:    client,
			Cache:         cache,
			BaseWeightPct: *cfg.Risk.BaseWeightPct,
			Benchmark:     cfg.Market.Benchmark,
			Period:        cfg.Market.Period,
		},
		pipeline.WithProgress(printer.Progress),
		pipeline.WithWaveLimit(*cfg.Engine.WaveLimit),
	)

	printer.Step("analyzing %d tickers as of %s\n", len(cfg.Universe), asOf.Format("2006-01-02"))

	result, err := runner.Run(ctx, pipeline.Input{
		Universe: cfg.Universe,
		AsOf:     asOf,
		Language: language,
		Portfolio: &blackboard.Portfolio{
			BaseCurrency: "USD",
			Cash:         runCash,
		},
	})
	if err != nil {
		return printer.Error(
			"pipeline run failed",
			err.Error(),
			[]string{"Retry with --mock to rule out the generative backend"},
		)
	}

	printer.Success("run %s complete: %d decisions\n", result.RunID, len(result.Decisions))

	if runOutPath != "" {
		if err := os.WriteFile(runOutPath, []byte(result.ReportMD), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		printer.Success("report written to %s\n", runOutPath)
		return nil
	}

	printer.Println()
	printer.Printf("%s", result.ReportMD)
	return nil
}

// buildCapability selects the generative backend. Falls back to the mock
// when forced, when configured, or when the gemini key is missing.
func buildCapability(ctx context.Context, cfg *config.PortaConfig, forceMock bool) capability.Client {
	if forceMock || cfg.Capability.Provider == "mock" {
		return capability.NewMock()
	}

	apiKey := os.Getenv(cfg.Capability.APIKeyEnv)
	if apiKey == "" {
		printer.Warning("%s is not set, using the mock backend\n", cfg.Capability.APIKeyEnv)
		return capability.NewMock()
	}

	client, err := capability.NewGemini(ctx, apiKey, cfg.Capability.Model)
	if err != nil {
		printer.Warning("gemini unavailable (%v), using the mock backend\n", err)
		return capability.NewMock()
	}
	return client
}

// buildCache connects the discovery memoization cache. Returns nil when
// Redis cannot be reached; the pipeline runs without memoization then.
func buildCache(ctx context.Context, cfg *config.PortaConfig) *memo.Cache {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		printer.Warning("invalid redis url %q, memoization disabled\n", cfg.Redis.URL)
		return nil
	}

	cache := memo.NewCache(redis.NewClient(opts), time.Duration(*cfg.Cache.TTLHours)*time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		printer.Warning("redis unreachable at %s, memoization disabled\n", cfg.Redis.URL)
		return nil
	}
	return cache
}
