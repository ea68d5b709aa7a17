package stages

import (
	"context"
	"log"

	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/internal/scoring"
	"github.com/dyluth/porta/pkg/blackboard"
)

// NewFund builds the fundamental-scoring stage. Like momentum it waits for
// discovery, then fetches a fundamentals snapshot per analysis ticker and
// runs the VGQE kernel. Per-instrument fetch failures skip the instrument,
// never the batch.
func NewFund(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name: NameFund,
		Inputs: []blackboard.Field{
			blackboard.FieldUniverse,
			blackboard.FieldNewCandidates,
			blackboard.FieldPortfolio,
		},
		Outputs: []blackboard.Field{blackboard.FieldFundScore, blackboard.FieldMessages},
		Done:    blackboard.FlagFundEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagFundEnd, blackboard.FlagCrawlerEnd) {
				return nil, nil
			}

			tickers := analysisTickers(snap)
			batch := make(map[string]marketdata.Fundamentals, len(tickers))
			skipped := 0
			for _, t := range tickers {
				f, err := cfg.Market.FetchFundamentals(ctx, t)
				if err != nil {
					log.Printf("[Fund] skipping %s: %v", t, err)
					skipped++
					continue
				}
				batch[t] = f
			}

			scores := scoring.FundamentalScores(batch)

			return blackboard.Patch{
				blackboard.FieldFundScore: scores,
				blackboard.FlagFundEnd:    true,
				blackboard.FieldMessages: cfg.message(NameFund,
					"scored %d of %d instruments (%d skipped)", len(scores), len(tickers), skipped),
			}, nil
		},
	}
}
