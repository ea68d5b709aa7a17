package stages

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/dyluth/porta/internal/capability"
	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/pkg/blackboard"
)

// tradingDaysPerYear annualizes daily volatility.
const tradingDaysPerYear = 252

// NewReviewer builds the strategy-review stage. It is a start stage running
// in parallel with discovery: it condenses recent benchmark performance into
// a deterministic summary, then asks the capability model for an opinion.
// When that fails the stage falls back to a deterministic opinion derived
// from the benchmark trend, so a review note is always produced.
func NewReviewer(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name:    NameReviewer,
		Inputs:  []blackboard.Field{blackboard.FieldAsOf},
		Outputs: []blackboard.Field{blackboard.FieldReviewNote, blackboard.FieldMessages},
		Done:    blackboard.FlagReviewEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagReviewEnd) {
				return nil, nil
			}

			var summary *blackboard.BenchmarkSummary
			series, err := cfg.Market.FetchSeries(ctx, cfg.benchmark(), cfg.period())
			if err != nil {
				log.Printf("[Reviewer] benchmark %s unavailable: %v", cfg.benchmark(), err)
			} else {
				summary = benchmarkSummary(series)
			}

			note := reviewNote(ctx, cfg, summary)

			return blackboard.Patch{
				blackboard.FieldReviewNote: note,
				blackboard.FlagReviewEnd:   true,
				blackboard.FieldMessages: cfg.message(NameReviewer,
					"review complete: preference=%s adjustment=%+.1f", note.Preference, note.Adjustment),
			}, nil
		},
	}
}

// reviewNote asks the capability model for an opinion over the benchmark
// summary, falling back to a deterministic opinion on any failure.
func reviewNote(ctx context.Context, cfg Config, summary *blackboard.BenchmarkSummary) *blackboard.ReviewNote {
	fallback := deterministicReview(cfg, summary)

	raw, err := cfg.Capability.Generate(ctx, capability.TaskReview, reviewPrompt(cfg, summary))
	if err != nil {
		log.Printf("[Reviewer] capability review failed, using deterministic fallback: %v", err)
		return fallback
	}
	op, err := capability.ParseReview(raw)
	if err != nil {
		log.Printf("[Reviewer] unparseable review, using deterministic fallback: %v", err)
		return fallback
	}

	return &blackboard.ReviewNote{
		Period:     fallback.Period,
		Opinion:    op.Opinion,
		Preference: op.Preference,
		Adjustment: math.Max(-5, math.Min(5, op.Adjustment)),
		Benchmark:  summary,
	}
}

// deterministicReview derives a review note from the benchmark trend alone:
// a rising benchmark nudges the strategy toward momentum, a falling one
// away from it.
func deterministicReview(cfg Config, summary *blackboard.BenchmarkSummary) *blackboard.ReviewNote {
	note := &blackboard.ReviewNote{
		Period:     reviewPeriod(cfg, summary),
		Opinion:    "benchmark history unavailable, holding strategy weights steady",
		Preference: "balanced",
		Benchmark:  summary,
	}
	if summary == nil {
		return note
	}
	if summary.Trend == "rising" {
		note.Opinion = fmt.Sprintf("%s trending up over the window, favouring momentum signals", summary.Ticker)
		note.Preference = "momentum"
		note.Adjustment = 2
	} else {
		note.Opinion = fmt.Sprintf("%s trending down over the window, favouring fundamentals", summary.Ticker)
		note.Preference = "fundamental"
		note.Adjustment = -2
	}
	return note
}

func reviewPeriod(cfg Config, summary *blackboard.BenchmarkSummary) string {
	end := cfg.now().UTC()
	start := end.AddDate(0, 0, -7)
	return fmt.Sprintf("%s...%s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// benchmarkSummary condenses a benchmark price history into trailing
// returns, annualized volatility and a coarse trend. Nil when the history
// is empty.
func benchmarkSummary(s marketdata.Series) *blackboard.BenchmarkSummary {
	n := s.Len()
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	for i, c := range s.Candles {
		closes[i] = c.Close
	}
	last := closes[n-1]

	summary := &blackboard.BenchmarkSummary{
		Ticker:      s.Ticker,
		TotalReturn: last/closes[0] - 1,
		DataPoints:  n,
	}
	trailing := func(days int) *float64 {
		if n <= days {
			return nil
		}
		r := last/closes[n-1-days] - 1
		return &r
	}
	summary.Return7D = trailing(7)
	summary.Return20D = trailing(20)
	summary.Return60D = trailing(60)

	if n >= 2 {
		rets := make([]float64, 0, n-1)
		for i := 1; i < n; i++ {
			if closes[i-1] > 0 {
				rets = append(rets, closes[i]/closes[i-1]-1)
			}
		}
		if len(rets) >= 2 {
			mu := 0.0
			for _, r := range rets {
				mu += r
			}
			mu /= float64(len(rets))
			variance := 0.0
			for _, r := range rets {
				variance += (r - mu) * (r - mu)
			}
			variance /= float64(len(rets))
			summary.Volatility = math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
		}
	}

	// Trend prefers the 20-day window, then 7-day, then total.
	trend := summary.TotalReturn
	if summary.Return20D != nil {
		trend = *summary.Return20D
	} else if summary.Return7D != nil {
		trend = *summary.Return7D
	}
	if trend > 0 {
		summary.Trend = "rising"
	} else {
		summary.Trend = "falling"
	}
	return summary
}

func reviewPrompt(cfg Config, summary *blackboard.BenchmarkSummary) string {
	base := "You are a portfolio performance reviewer.\n" +
		"Given recent benchmark behaviour, state an opinion on whether momentum or " +
		"fundamental signals deserve more weight right now.\n"
	if summary != nil {
		base += fmt.Sprintf("Benchmark %s: total return %.2f%%, annualized volatility %.2f%%, trend %s.\n",
			summary.Ticker, 100*summary.TotalReturn, 100*summary.Volatility, summary.Trend)
	}
	return base + `Respond as JSON: {"opinion": "", "preference": "momentum|fundamental|balanced", "adjustment": 0}` +
		"\nadjustment is a number in [-5, 5]; positive favours momentum."
}
