package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/pkg/blackboard"
)

// flatMarket serves constant prices so weight arithmetic stays exact.
func flatMarket(prices map[string]float64) *marketdata.StaticProvider {
	p := marketdata.NewStaticProvider()
	for ticker, price := range prices {
		p.AddSeries(marketdata.SyntheticSeries(ticker, 5, fixedAsOf, price, 0, 0.01, 1000))
	}
	return p
}

// deciderBoard builds a blackboard already advanced past risk with the
// given scores and caps.
func deciderBoard(t *testing.T, portfolio *blackboard.Portfolio,
	momo map[string]int, fund map[string]int, adjustment float64,
	risk *blackboard.RiskAssessment) *blackboard.Blackboard {
	t.Helper()

	var universe []string
	for ticker := range momo {
		universe = append(universe, ticker)
	}
	bb := blackboard.New(blackboard.Inputs{
		Universe:  universe,
		AsOf:      fixedAsOf,
		Portfolio: portfolio,
	})

	momoScores := make([]blackboard.MomentumScore, 0, len(momo))
	for ticker, v := range momo {
		momoScores = append(momoScores, blackboard.MomentumScore{
			Ticker: ticker, MOMO: v, DataConfidence: blackboard.ConfidenceHigh,
		})
	}
	fundScores := make([]blackboard.FundamentalScore, 0, len(fund))
	for ticker, v := range fund {
		fundScores = append(fundScores, blackboard.FundamentalScore{
			Ticker: ticker, FUND: v, Label: blackboard.FundLabelNeutral,
			DataConfidence: blackboard.ConfidenceHigh,
		})
	}

	apply(t, bb, blackboard.Patch{
		blackboard.FlagCrawlerEnd: true,
		blackboard.FieldMomoScore: momoScores,
		blackboard.FlagMomoEnd:    true,
		blackboard.FieldFundScore: fundScores,
		blackboard.FlagFundEnd:    true,
		blackboard.FieldReviewNote: &blackboard.ReviewNote{
			Period: "test", Opinion: "test", Preference: "balanced", Adjustment: adjustment,
		},
		blackboard.FlagReviewEnd: true,
		blackboard.FieldRiskNote: risk,
		blackboard.FlagRiskEnd:   true,
	})
	return bb
}

func uniformRisk(baseWeight float64, tickers ...string) *blackboard.RiskAssessment {
	r := &blackboard.RiskAssessment{
		PortfolioLimits: blackboard.PortfolioLimits{SingleStockCap: baseWeight, CashFloor: 5},
	}
	for _, t := range tickers {
		r.PerTicker = append(r.PerTicker, blackboard.TickerRisk{
			Ticker: t, Allowed: true, MaxWeightPct: baseWeight, Beta: 1, ATRPct: 0.02,
		})
	}
	return r
}

func runDecider(t *testing.T, cfg Config, bb *blackboard.Blackboard) {
	t.Helper()
	patch, err := NewDecider(cfg).Body(context.Background(), bb.Clone())
	require.NoError(t, err)
	apply(t, bb, patch)
	require.True(t, bb.DeciderEnd)
}

func decisionFor(t *testing.T, bb *blackboard.Blackboard, ticker string) blackboard.Decision {
	t.Helper()
	for _, d := range bb.Decisions {
		if d.Ticker == ticker {
			return d
		}
	}
	t.Fatalf("no decision for %s", ticker)
	return blackboard.Decision{}
}

func TestDeciderGatesOnRisk(t *testing.T) {
	cfg := testConfig(t)
	patch, err := NewDecider(cfg).Body(context.Background(), testBoard())
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestDeciderBuysStrongSignal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"NVDA": 100})
	portfolio := &blackboard.Portfolio{BaseCurrency: "USD", Cash: 7500}

	bb := deciderBoard(t, portfolio,
		map[string]int{"NVDA": 90}, map[string]int{"NVDA": 80}, 0,
		uniformRisk(8, "NVDA"))
	runDecider(t, cfg, bb)

	d := decisionFor(t, bb, "NVDA")
	assert.Equal(t, blackboard.ActionBuy, d.Action)
	assert.InDelta(t, 78.5, d.TotalScore, 1e-9) // 0.45*90 + 0.35*80 + 0.20*50
	assert.Equal(t, 8.0, d.TargetWeightPct)
	assert.InDelta(t, 6.0, d.SharesToTrade, 1e-9) // 8% of 7500 at 100
	assert.InDelta(t, 600.0, d.TradeValue, 1e-9)

	require.NotNil(t, bb.FinalPortfolio)
	assert.InDelta(t, 6900.0, bb.FinalPortfolio.Cash, 1e-9)
	pos := bb.FinalPortfolio.Position("NVDA")
	require.NotNil(t, pos)
	assert.InDelta(t, 6.0, pos.Shares, 1e-9)
	assert.InDelta(t, 100.0, pos.AvgPrice, 1e-9)
}

func TestDeciderTrimsOverweightNeutralHolding(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"AAPL": 250})
	portfolio := &blackboard.Portfolio{
		BaseCurrency: "USD",
		Cash:         5000,
		Positions:    []blackboard.Position{{Ticker: "AAPL", Shares: 10, AvgPrice: 200}},
	}

	bb := deciderBoard(t, portfolio,
		map[string]int{"AAPL": 55}, map[string]int{"AAPL": 60}, 0,
		uniformRisk(10, "AAPL"))
	runDecider(t, cfg, bb)

	d := decisionFor(t, bb, "AAPL")
	assert.Equal(t, blackboard.ActionTrim, d.Action)
	assert.Equal(t, 10.0, d.TargetWeightPct)
	assert.InDelta(t, 33.33, d.CurrentWeightPct, 1e-9)
	assert.InDelta(t, 7.0, d.SharesToTrade, 1e-9) // 2500 -> 750 position value
	assert.InDelta(t, 1750.0, d.TradeValue, 1e-9)

	assert.InDelta(t, 6750.0, bb.FinalPortfolio.Cash, 1e-9)
	pos := bb.FinalPortfolio.Position("AAPL")
	require.NotNil(t, pos)
	assert.InDelta(t, 3.0, pos.Shares, 1e-9)
}

func TestDeciderHoldsNeutralWithinCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"AAPL": 100})
	portfolio := &blackboard.Portfolio{
		BaseCurrency: "USD",
		Cash:         9500,
		Positions:    []blackboard.Position{{Ticker: "AAPL", Shares: 5, AvgPrice: 90}},
	}

	bb := deciderBoard(t, portfolio,
		map[string]int{"AAPL": 55}, map[string]int{"AAPL": 60}, 0,
		uniformRisk(10, "AAPL"))
	runDecider(t, cfg, bb)

	d := decisionFor(t, bb, "AAPL")
	assert.Equal(t, blackboard.ActionHold, d.Action)
	assert.Equal(t, 0.0, d.SharesToTrade)
	assert.InDelta(t, 5.0, d.CurrentWeightPct, 1e-9)
	assert.Equal(t, d.CurrentWeightPct, d.TargetWeightPct)
}

func TestDeciderSellsVeryWeakHolding(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"MEME": 50})
	portfolio := &blackboard.Portfolio{
		BaseCurrency: "USD",
		Cash:         800,
		Positions:    []blackboard.Position{{Ticker: "MEME", Shares: 4, AvgPrice: 120}},
	}

	bb := deciderBoard(t, portfolio,
		map[string]int{"MEME": 10}, map[string]int{"MEME": 20}, 0,
		uniformRisk(10, "MEME"))
	runDecider(t, cfg, bb)

	d := decisionFor(t, bb, "MEME")
	assert.Equal(t, blackboard.ActionSell, d.Action)
	assert.Equal(t, 0.0, d.TargetWeightPct)
	assert.InDelta(t, 4.0, d.SharesToTrade, 1e-9)

	assert.Nil(t, bb.FinalPortfolio.Position("MEME"))
	assert.InDelta(t, 1000.0, bb.FinalPortfolio.Cash, 1e-9)
}

func TestDeciderRiskBlockForcesExit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"MEME": 50, "YOLO": 20})
	portfolio := &blackboard.Portfolio{
		BaseCurrency: "USD",
		Cash:         800,
		Positions:    []blackboard.Position{{Ticker: "MEME", Shares: 4, AvgPrice: 40}},
	}

	risk := &blackboard.RiskAssessment{
		PerTicker: []blackboard.TickerRisk{
			{Ticker: "MEME", Allowed: false, MaxWeightPct: 4, Beta: 2, ATRPct: 0.1},
			{Ticker: "YOLO", Allowed: false, MaxWeightPct: 4, Beta: 2, ATRPct: 0.1},
		},
		PortfolioLimits: blackboard.PortfolioLimits{SingleStockCap: 10, CashFloor: 5},
	}
	// Strong scores must not override a risk block.
	bb := deciderBoard(t, portfolio,
		map[string]int{"MEME": 95, "YOLO": 95}, map[string]int{"MEME": 95, "YOLO": 95}, 0, risk)
	runDecider(t, cfg, bb)

	meme := decisionFor(t, bb, "MEME")
	assert.Equal(t, blackboard.ActionSell, meme.Action, "held blocked instrument is closed")
	assert.NotEmpty(t, meme.RiskNotes)

	yolo := decisionFor(t, bb, "YOLO")
	assert.Equal(t, blackboard.ActionNoAction, yolo.Action, "unheld blocked instrument is skipped")
	assert.Equal(t, 0.0, yolo.SharesToTrade)
}

func TestDeciderReviewAdjustmentTipsTheScale(t *testing.T) {
	portfolio := &blackboard.Portfolio{BaseCurrency: "USD", Cash: 10000}
	scores := map[string]int{"AAPL": 65}

	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"AAPL": 100})

	neutral := deciderBoard(t, portfolio, scores, scores, 0, uniformRisk(10, "AAPL"))
	runDecider(t, cfg, neutral)
	assert.Equal(t, blackboard.ActionNoAction, decisionFor(t, neutral, "AAPL").Action,
		"total 62 stays below the buy threshold")

	favoured := deciderBoard(t, portfolio, scores, scores, 5, uniformRisk(10, "AAPL"))
	runDecider(t, cfg, favoured)
	assert.Equal(t, blackboard.ActionBuy, decisionFor(t, favoured, "AAPL").Action,
		"a +5 review adjustment lifts the total to 72")
}

func TestDeciderIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market = flatMarket(map[string]float64{"AAPL": 100, "MSFT": 200})
	portfolio := &blackboard.Portfolio{
		BaseCurrency: "USD",
		Cash:         5000,
		Positions:    []blackboard.Position{{Ticker: "MSFT", Shares: 5, AvgPrice: 180}},
	}
	momo := map[string]int{"AAPL": 80, "MSFT": 45}
	fund := map[string]int{"AAPL": 75, "MSFT": 40}

	first := deciderBoard(t, portfolio, momo, fund, 1, uniformRisk(10, "AAPL", "MSFT"))
	runDecider(t, cfg, first)
	second := deciderBoard(t, portfolio, momo, fund, 1, uniformRisk(10, "AAPL", "MSFT"))
	runDecider(t, cfg, second)

	assert.Equal(t, first.Decisions, second.Decisions)
	assert.Equal(t, first.FinalPortfolio, second.FinalPortfolio)
}
