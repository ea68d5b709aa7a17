package stages

import (
	"context"
	"log"
	"sort"

	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/internal/scoring"
	"github.com/dyluth/porta/pkg/blackboard"
)

// NewRisk builds the risk-sizing stage. It joins on momentum, fundamentals
// and the review so that every scored instrument gets a position cap before
// decisions are synthesized. Betas come from the fundamentals provider and
// ATR from the momentum features already on the blackboard; either may be
// missing, the kernel applies defaults.
func NewRisk(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name: NameRisk,
		Inputs: []blackboard.Field{
			blackboard.FieldMomoScore,
			blackboard.FieldFundScore,
			blackboard.FieldReviewNote,
		},
		Outputs: []blackboard.Field{blackboard.FieldRiskNote, blackboard.FieldMessages},
		Done:    blackboard.FlagRiskEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagRiskEnd,
				blackboard.FlagMomoEnd, blackboard.FlagFundEnd, blackboard.FlagReviewEnd) {
				return nil, nil
			}

			atrByTicker := make(map[string]*float64)
			seen := make(map[string]bool)
			var tickers []string
			for _, m := range snap.MomoScore {
				if !seen[m.Ticker] {
					seen[m.Ticker] = true
					tickers = append(tickers, m.Ticker)
				}
				atrByTicker[m.Ticker] = m.Features.ATRPct14
			}
			for _, f := range snap.FundScore {
				if !seen[f.Ticker] {
					seen[f.Ticker] = true
					tickers = append(tickers, f.Ticker)
				}
			}
			sort.Strings(tickers)

			inputs := make([]scoring.TickerRiskInput, 0, len(tickers))
			for _, t := range tickers {
				in := scoring.TickerRiskInput{Ticker: t, ATRPct: atrByTicker[t]}
				if f, err := cfg.Market.FetchFundamentals(ctx, t); err != nil {
					log.Printf("[Risk] no fundamentals for %s, beta defaults: %v", t, err)
				} else {
					in.Beta = f.Beta
				}
				inputs = append(inputs, in)
			}

			assessment := scoring.Assess(cfg.baseWeight(), inputs)

			return blackboard.Patch{
				blackboard.FieldRiskNote: assessment,
				blackboard.FlagRiskEnd:   true,
				blackboard.FieldMessages: cfg.message(NameRisk,
					"sized %d instruments, %d warnings", len(assessment.PerTicker), len(assessment.Warnings)),
			}, nil
		},
	}
}
