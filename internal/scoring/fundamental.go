package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/pkg/blackboard"
)

// minFundamentalFields is the minimum number of populated fundamental fields
// required before an instrument is scored at all.
const minFundamentalFields = 5

// FundamentalScores scores a batch of fundamental snapshots with the VGQE
// model. Instruments with too little data or no current price are excluded.
// The result is sorted by ticker.
func FundamentalScores(batch map[string]marketdata.Fundamentals) []blackboard.FundamentalScore {
	tickers := make([]string, 0, len(batch))
	for t := range batch {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var scores []blackboard.FundamentalScore
	for _, ticker := range tickers {
		f := batch[ticker]
		if f.PopulatedCount() < minFundamentalFields || f.CurrentPrice == nil {
			continue
		}
		scores = append(scores, scoreFundamentals(ticker, f))
	}
	return scores
}

func scoreFundamentals(ticker string, f marketdata.Fundamentals) blackboard.FundamentalScore {
	var vFactors, gFactors, qFactors, eFactors []string

	// Valuation.
	v := 50
	if pe := f.PE(); pe != nil {
		if *pe < 15 {
			v += 20
			vFactors = append(vFactors, fmt.Sprintf("low P/E (%.1f), attractive valuation", *pe))
		} else if *pe > 30 {
			v -= 15
			vFactors = append(vFactors, fmt.Sprintf("high P/E (%.1f), stretched valuation", *pe))
		}
	}
	if f.PriceToBook != nil {
		if *f.PriceToBook < 1.5 {
			v += 15
			vFactors = append(vFactors, fmt.Sprintf("low P/B (%.1f)", *f.PriceToBook))
		} else if *f.PriceToBook > 4 {
			v -= 10
			vFactors = append(vFactors, fmt.Sprintf("high P/B (%.1f)", *f.PriceToBook))
		}
	}
	if f.EVToSales != nil {
		if *f.EVToSales < 3 {
			v += 10
			vFactors = append(vFactors, fmt.Sprintf("low EV/Sales (%.1f)", *f.EVToSales))
		} else if *f.EVToSales > 8 {
			v -= 10
			vFactors = append(vFactors, fmt.Sprintf("high EV/Sales (%.1f)", *f.EVToSales))
		}
	}
	v = clampInt(v, 0, 100)

	// Growth.
	g := 50
	if f.RevenueGrowth != nil {
		if *f.RevenueGrowth > 0.15 {
			g += 25
			gFactors = append(gFactors, fmt.Sprintf("strong revenue growth (%.1f%%)", 100**f.RevenueGrowth))
		} else if *f.RevenueGrowth < 0 {
			g -= 20
			gFactors = append(gFactors, fmt.Sprintf("shrinking revenue (%.1f%%)", 100**f.RevenueGrowth))
		}
	}
	if f.EarningsGrowth != nil {
		if *f.EarningsGrowth > 0.20 {
			g += 20
			gFactors = append(gFactors, fmt.Sprintf("high earnings growth (%.1f%%)", 100**f.EarningsGrowth))
		} else if *f.EarningsGrowth < 0 {
			g -= 15
			gFactors = append(gFactors, fmt.Sprintf("falling earnings (%.1f%%)", 100**f.EarningsGrowth))
		}
	}
	g = clampInt(g, 0, 100)

	// Quality.
	q := 50
	if f.ReturnOnEquity != nil {
		if *f.ReturnOnEquity > 0.20 {
			q += 25
			qFactors = append(qFactors, fmt.Sprintf("high ROE (%.1f%%)", 100**f.ReturnOnEquity))
		} else if *f.ReturnOnEquity < 0.10 {
			q -= 15
			qFactors = append(qFactors, fmt.Sprintf("low ROE (%.1f%%)", 100**f.ReturnOnEquity))
		}
	}
	if f.OperatingMargin != nil {
		if *f.OperatingMargin > 0.20 {
			q += 20
			qFactors = append(qFactors, fmt.Sprintf("excellent operating margin (%.1f%%)", 100**f.OperatingMargin))
		} else if *f.OperatingMargin < 0.05 {
			q -= 20
			qFactors = append(qFactors, fmt.Sprintf("thin operating margin (%.1f%%)", 100**f.OperatingMargin))
		}
	}
	if f.DebtToEquity != nil {
		if *f.DebtToEquity < 30 {
			q += 10
			qFactors = append(qFactors, fmt.Sprintf("low debt/equity (%.0f)", *f.DebtToEquity))
		} else if *f.DebtToEquity > 80 {
			q -= 15
			qFactors = append(qFactors, fmt.Sprintf("high debt/equity (%.0f)", *f.DebtToEquity))
		}
	}
	q = clampInt(q, 0, 100)

	// Earnings.
	e := 50
	if f.EPS != nil {
		if *f.EPS > 0 {
			e += 10
			eFactors = append(eFactors, fmt.Sprintf("positive EPS (%.1f)", *f.EPS))
		} else if *f.EPS < 0 {
			e -= 20
			eFactors = append(eFactors, fmt.Sprintf("negative EPS (%.1f)", *f.EPS))
		}
	}
	if f.RecommendationMean != nil {
		if *f.RecommendationMean <= 2.0 {
			e += 15
			eFactors = append(eFactors, "strong analyst recommendations")
		} else if *f.RecommendationMean >= 4.0 {
			e -= 10
			eFactors = append(eFactors, "cautious analyst outlook")
		}
	}
	e = clampInt(e, 0, 100)

	fund := int(math.Floor(0.30*float64(v) + 0.30*float64(g) + 0.25*float64(q) + 0.15*float64(e)))

	var label blackboard.FundLabel
	switch {
	case fund >= 70:
		label = blackboard.FundLabelStrong
	case fund >= 50:
		label = blackboard.FundLabelNeutral
	default:
		label = blackboard.FundLabelWeak
	}

	var insights []string
	for _, factors := range [][]string{vFactors, gFactors, qFactors, eFactors} {
		if len(factors) > 3 {
			factors = factors[:3]
		}
		insights = append(insights, factors...)
	}
	if len(insights) == 0 {
		insights = []string{"limited data for detailed analysis"}
	}

	return blackboard.FundamentalScore{
		Ticker:         ticker,
		FUND:           fund,
		Scores:         blackboard.ScoreBreakdown{V: v, G: g, Q: q, E: e},
		Label:          label,
		Insights:       insights,
		DataConfidence: fundamentalConfidence(f),
	}
}

// fundamentalConfidence counts missing key metrics: 3 or more missing is
// low, 1-2 is medium, none is high.
func fundamentalConfidence(f marketdata.Fundamentals) blackboard.Confidence {
	missing := 0
	for _, p := range []*float64{f.PE(), f.PriceToBook, f.RevenueGrowth, f.ReturnOnEquity, f.OperatingMargin} {
		if p == nil {
			missing++
		}
	}
	switch {
	case missing >= 3:
		return blackboard.ConfidenceLow
	case missing >= 1:
		return blackboard.ConfidenceMedium
	default:
		return blackboard.ConfidenceHigh
	}
}
