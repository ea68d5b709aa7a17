package commands

import (
	"context"
	"sort"
	"time"

	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/internal/printer"
	"github.com/dyluth/porta/internal/scoring"
	"github.com/dyluth/porta/pkg/blackboard"
	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score TICKER [TICKER...]",
	Short: "Score tickers with the momentum and fundamental kernels",
	Long: `Score tickers with the momentum and fundamental kernels and print
the results, without running the full pipeline.

Uses the offline demo data provider. Cross-sectional momentum
normalization applies across the tickers given, so scores depend on the
batch, not just the individual ticker.

Examples:
  porta score AAPL
  porta score AAPL MSFT NVDA`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	market := marketdata.NewDemo(args, time.Now().UTC())

	var series []marketdata.Series
	fundamentals := make(map[string]marketdata.Fundamentals, len(args))
	for _, ticker := range args {
		s, err := market.FetchSeries(ctx, ticker, "6mo")
		if err != nil {
			return printer.Error("failed to fetch market data", err.Error(), nil)
		}
		series = append(series, s)

		f, err := market.FetchFundamentals(ctx, ticker)
		if err != nil {
			return printer.Error("failed to fetch fundamentals", err.Error(), nil)
		}
		fundamentals[ticker] = f
	}

	momo := scoring.MomentumScores(series)
	fund := scoring.FundamentalScores(fundamentals)

	momoFor := make(map[string]blackboard.MomentumScore, len(momo))
	for _, m := range momo {
		momoFor[m.Ticker] = m
	}
	fundFor := make(map[string]blackboard.FundamentalScore, len(fund))
	for _, f := range fund {
		fundFor[f.Ticker] = f
	}

	tickers := append([]string(nil), args...)
	sort.Strings(tickers)

	printer.Printf("%-8s %6s %6s %-8s %s\n", "TICKER", "MOMO", "FUND", "LABEL", "CONFIDENCE")
	for _, ticker := range tickers {
		m, hasMomo := momoFor[ticker]
		f, hasFund := fundFor[ticker]
		if !hasMomo && !hasFund {
			printer.Printf("%-8s insufficient data\n", ticker)
			continue
		}
		printer.Printf("%-8s %6d %6d %-8s %s\n",
			ticker, m.MOMO, f.FUND, f.Label, m.DataConfidence)
	}
	return nil
}
