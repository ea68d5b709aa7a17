package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/dyluth/porta/pkg/blackboard"
)

// atrNeutral is the ATR percentage treated as neutral volatility; positions
// shrink once ATR rises above it.
const atrNeutral = 0.04

// MaxWeightPct caps a position weight as volatility or market sensitivity
// rises above neutral (beta=1, atr=4%). The result never exceeds baseWeight
// and is monotonically non-increasing in both beta and atrPct.
func MaxWeightPct(baseWeight, beta, atrPct float64) float64 {
	denom := math.Max(1, math.Max(beta, atrPct/atrNeutral))
	return baseWeight * math.Min(1, 1/denom)
}

// TickerRiskInput is one instrument's inputs to the risk-sizing kernel.
// A nil Beta falls back to 1.0; a nil ATRPct is treated as zero with a note.
type TickerRiskInput struct {
	Ticker string
	Beta   *float64
	ATRPct *float64
}

// Assess sizes every instrument in the batch and derives portfolio-level
// limits and warnings. Pure; the result is sorted by ticker.
func Assess(baseWeight float64, inputs []TickerRiskInput) *blackboard.RiskAssessment {
	sorted := append([]TickerRiskInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	perTicker := make([]blackboard.TickerRisk, 0, len(sorted))
	var warnings []blackboard.PortfolioWarning

	for _, in := range sorted {
		beta := 1.0
		var notes []string
		if in.Beta != nil {
			beta = *in.Beta
		} else {
			notes = append(notes, "beta unavailable, assuming 1.0")
		}

		atr := 0.0
		if in.ATRPct != nil {
			atr = *in.ATRPct
		} else {
			notes = append(notes, "ATR unavailable, no volatility penalty applied")
		}

		maxWeight := MaxWeightPct(baseWeight, beta, atr)
		if beta > 1 {
			notes = append(notes, fmt.Sprintf("beta %.2f above market, cap reduced", beta))
		}
		if atr > atrNeutral {
			notes = append(notes, fmt.Sprintf("ATR %.1f%% above neutral %.0f%%, cap reduced", 100*atr, 100*atrNeutral))
		}

		allowed := true
		if atr > 2*atrNeutral {
			allowed = false
			notes = append(notes, "volatility more than twice neutral, new exposure blocked")
			warnings = append(warnings, blackboard.PortfolioWarning{
				Type:   "volatility",
				Actual: atr,
				Limit:  2 * atrNeutral,
			})
		}

		perTicker = append(perTicker, blackboard.TickerRisk{
			Ticker:       in.Ticker,
			Allowed:      allowed,
			MaxWeightPct: maxWeight,
			Beta:         beta,
			ATRPct:       atr,
			Notes:        notes,
		})
	}

	note := fmt.Sprintf("position caps sized from base weight %.1f%% across %d instruments", baseWeight, len(perTicker))
	return &blackboard.RiskAssessment{
		PerTicker: perTicker,
		PortfolioLimits: blackboard.PortfolioLimits{
			SingleStockCap: baseWeight,
			SectorCaps:     []blackboard.SectorCap{},
			CashFloor:      5,
		},
		Warnings:    warnings,
		OverallNote: note,
	}
}
