package stages

import (
	"context"
	"log"

	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/internal/scoring"
	"github.com/dyluth/porta/pkg/blackboard"
)

// NewMomo builds the momentum-scoring stage. It waits for discovery so the
// batch includes new candidates, fetches price history for every analysis
// ticker, and runs the momentum kernel cross-sectionally over the batch.
func NewMomo(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name: NameMomo,
		Inputs: []blackboard.Field{
			blackboard.FieldUniverse,
			blackboard.FieldNewCandidates,
			blackboard.FieldPortfolio,
		},
		Outputs: []blackboard.Field{blackboard.FieldMomoScore, blackboard.FieldMessages},
		Done:    blackboard.FlagMomoEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagMomoEnd, blackboard.FlagCrawlerEnd) {
				return nil, nil
			}

			tickers := analysisTickers(snap)
			batch := make([]marketdata.Series, 0, len(tickers))
			skipped := 0
			for _, t := range tickers {
				s, err := cfg.Market.FetchSeries(ctx, t, cfg.period())
				if err != nil {
					log.Printf("[Momo] skipping %s: %v", t, err)
					skipped++
					continue
				}
				batch = append(batch, s)
			}

			scores := scoring.MomentumScores(batch)

			return blackboard.Patch{
				blackboard.FieldMomoScore: scores,
				blackboard.FlagMomoEnd:    true,
				blackboard.FieldMessages: cfg.message(NameMomo,
					"scored %d of %d instruments (%d skipped)", len(scores), len(tickers), skipped),
			}, nil
		},
	}
}
