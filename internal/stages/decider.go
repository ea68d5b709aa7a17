package stages

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/pkg/blackboard"
)

// Signal blend weights and action thresholds for decision synthesis.
const (
	momoWeight   = 0.45
	fundWeight   = 0.35
	reviewWeight = 0.20

	buyThreshold  = 70.0
	holdThreshold = 50.0
	trimThreshold = 35.0
)

// NewDecider builds the decision-synthesis stage. It is fully deterministic:
// the same scores, risk caps and review note always produce the same
// decisions. It blends the momentum and fundamental composites with the
// review adjustment, applies the risk caps, and projects the post-trade
// portfolio.
func NewDecider(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name: NameDecider,
		Inputs: []blackboard.Field{
			blackboard.FieldMomoScore,
			blackboard.FieldFundScore,
			blackboard.FieldReviewNote,
			blackboard.FieldRiskNote,
			blackboard.FieldPortfolio,
		},
		Outputs: []blackboard.Field{
			blackboard.FieldDecisions,
			blackboard.FieldFinalPortfolio,
			blackboard.FieldMessages,
		},
		Done: blackboard.FlagDeciderEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagDeciderEnd, blackboard.FlagRiskEnd) {
				return nil, nil
			}

			decisions, final := synthesize(ctx, cfg, snap)

			trades := 0
			for _, d := range decisions {
				if d.Action != blackboard.ActionHold && d.Action != blackboard.ActionNoAction {
					trades++
				}
			}

			return blackboard.Patch{
				blackboard.FieldDecisions:      decisions,
				blackboard.FieldFinalPortfolio: final,
				blackboard.FlagDeciderEnd:      true,
				blackboard.FieldMessages: cfg.message(NameDecider,
					"synthesized %d decisions (%d trades)", len(decisions), trades),
			}, nil
		},
	}
}

// synthesize produces one decision per analysed or held instrument plus the
// projected portfolio after executing them.
func synthesize(ctx context.Context, cfg Config, snap *blackboard.Blackboard) ([]blackboard.Decision, *blackboard.Portfolio) {
	reviewBase := 50.0
	if snap.ReviewNote != nil {
		reviewBase = clampFloat(50+10*snap.ReviewNote.Adjustment, 0, 100)
	}

	momoByTicker := make(map[string]int)
	for _, m := range snap.MomoScore {
		momoByTicker[m.Ticker] = m.MOMO
	}
	fundByTicker := make(map[string]int)
	for _, f := range snap.FundScore {
		fundByTicker[f.Ticker] = f.FUND
	}

	seen := make(map[string]bool)
	var tickers []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}
	for _, m := range snap.MomoScore {
		add(m.Ticker)
	}
	for _, f := range snap.FundScore {
		add(f.Ticker)
	}
	if snap.Portfolio != nil {
		for _, p := range snap.Portfolio.Positions {
			add(p.Ticker)
		}
	}
	sort.Strings(tickers)

	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		s, err := cfg.Market.FetchSeries(ctx, t, cfg.period())
		if err != nil || s.LastClose() <= 0 {
			log.Printf("[Decider] no price for %s, using cost basis where held", t)
			continue
		}
		prices[t] = s.LastClose()
	}

	totalValue := snap.Portfolio.TotalValue(prices)
	final := snap.Portfolio.Clone()
	if final == nil {
		final = &blackboard.Portfolio{}
	}

	decisions := make([]blackboard.Decision, 0, len(tickers))
	for _, t := range tickers {
		d := decideOne(cfg, snap, t, prices, totalValue, reviewBase, momoByTicker, fundByTicker)
		applyTrade(final, d, priceFor(snap.Portfolio, t, prices))
		decisions = append(decisions, d)
	}
	return decisions, final
}

func decideOne(cfg Config, snap *blackboard.Blackboard, ticker string, prices map[string]float64,
	totalValue, reviewBase float64, momoByTicker, fundByTicker map[string]int) blackboard.Decision {

	momo := 50.0
	if v, ok := momoByTicker[ticker]; ok {
		momo = float64(v)
	}
	fund := 50.0
	if v, ok := fundByTicker[ticker]; ok {
		fund = float64(v)
	}
	total := momoWeight*momo + fundWeight*fund + reviewWeight*reviewBase

	capWeight := cfg.baseWeight()
	allowed := true
	var riskNotes []string
	if r := snap.RiskNote.ForTicker(ticker); r != nil {
		capWeight = r.MaxWeightPct
		allowed = r.Allowed
		riskNotes = r.Notes
	}

	pos := snap.Portfolio.Position(ticker)
	held := pos != nil && pos.Shares > 0
	price := priceFor(snap.Portfolio, ticker, prices)

	currentWeight := 0.0
	if held && totalValue > 0 {
		currentWeight = pos.Shares * price / totalValue * 100
	}

	d := blackboard.Decision{
		Ticker:           ticker,
		CurrentWeightPct: round2(currentWeight),
		TotalScore:       round2(total),
		MomoScore:        momo,
		FundScore:        fund,
		RiskNotes:        riskNotes,
	}

	switch {
	case !allowed:
		if held {
			d.Action = blackboard.ActionSell
			d.TargetWeightPct = 0
			d.Reason = "risk blocked: exposure must be closed"
		} else {
			d.Action = blackboard.ActionNoAction
			d.Reason = "risk blocked: no new exposure"
		}
	case total >= buyThreshold:
		d.Action = blackboard.ActionBuy
		d.TargetWeightPct = round2(capWeight)
		d.Reason = fmt.Sprintf("strong combined signal %.0f (MOMO %.0f, FUND %.0f)", total, momo, fund)
		if held && currentWeight >= capWeight {
			d.Action = blackboard.ActionHold
			d.TargetWeightPct = round2(currentWeight)
			d.Reason = fmt.Sprintf("strong signal %.0f but position already at cap", total)
		}
	case total >= holdThreshold:
		if !held {
			d.Action = blackboard.ActionNoAction
			d.Reason = fmt.Sprintf("neutral signal %.0f, not initiating", total)
		} else if currentWeight > capWeight {
			d.Action = blackboard.ActionTrim
			d.TargetWeightPct = round2(capWeight)
			d.Reason = fmt.Sprintf("neutral signal %.0f, trimming to risk cap %.1f%%", total, capWeight)
		} else {
			d.Action = blackboard.ActionHold
			d.TargetWeightPct = round2(currentWeight)
			d.Reason = fmt.Sprintf("neutral signal %.0f, holding", total)
		}
	case total >= trimThreshold:
		if held {
			d.Action = blackboard.ActionTrim
			d.TargetWeightPct = round2(currentWeight / 2)
			d.Reason = fmt.Sprintf("weak signal %.0f, halving position", total)
		} else {
			d.Action = blackboard.ActionNoAction
			d.Reason = fmt.Sprintf("weak signal %.0f, avoiding", total)
		}
	default:
		if held {
			d.Action = blackboard.ActionSell
			d.TargetWeightPct = 0
			d.Reason = fmt.Sprintf("very weak signal %.0f, exiting", total)
		} else {
			d.Action = blackboard.ActionNoAction
			d.Reason = fmt.Sprintf("very weak signal %.0f, avoiding", total)
		}
	}

	if price > 0 && totalValue > 0 {
		deltaValue := (d.TargetWeightPct - currentWeight) / 100 * totalValue
		switch d.Action {
		case blackboard.ActionBuy:
			d.SharesToTrade = round2(deltaValue / price)
			d.TradeValue = round2(deltaValue)
		case blackboard.ActionTrim, blackboard.ActionSell:
			d.SharesToTrade = round2(-deltaValue / price)
			d.TradeValue = round2(-deltaValue)
		}
	}
	return d
}

// priceFor resolves a trade price: last close first, cost basis for held
// positions without one.
func priceFor(p *blackboard.Portfolio, ticker string, prices map[string]float64) float64 {
	if px, ok := prices[ticker]; ok {
		return px
	}
	if pos := p.Position(ticker); pos != nil {
		return pos.AvgPrice
	}
	return 0
}

// applyTrade projects one decision onto the portfolio.
func applyTrade(p *blackboard.Portfolio, d blackboard.Decision, price float64) {
	if d.SharesToTrade <= 0 || price <= 0 {
		return
	}

	switch d.Action {
	case blackboard.ActionBuy:
		p.Cash -= d.SharesToTrade * price
		if pos := p.Position(d.Ticker); pos != nil {
			totalCost := pos.Shares*pos.AvgPrice + d.SharesToTrade*price
			pos.Shares += d.SharesToTrade
			pos.AvgPrice = totalCost / pos.Shares
		} else {
			p.Positions = append(p.Positions, blackboard.Position{
				Ticker:   d.Ticker,
				Shares:   d.SharesToTrade,
				AvgPrice: price,
			})
		}
	case blackboard.ActionTrim, blackboard.ActionSell:
		pos := p.Position(d.Ticker)
		if pos == nil {
			return
		}
		sold := math.Min(d.SharesToTrade, pos.Shares)
		p.Cash += sold * price
		pos.Shares -= sold
		if pos.Shares <= 1e-9 {
			for i := range p.Positions {
				if p.Positions[i].Ticker == d.Ticker {
					p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
					break
				}
			}
		}
	}
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
