package marketdata

import (
	"context"
	"hash/fnv"
	"strings"
	"time"
)

// Demo is a fully offline Provider that fabricates plausible data for any
// ticker asked of it. Series shape and fundamentals derive deterministically
// from the ticker name, so repeated demo runs see identical data. Tickers
// discovered mid-run are seeded on first fetch.
type Demo struct {
	static *StaticProvider
	asOf   time.Time
}

// NewDemo creates a demo provider pre-seeded with the given tickers.
func NewDemo(tickers []string, asOf time.Time) *Demo {
	d := &Demo{static: NewStaticProvider(), asOf: asOf}
	for _, t := range tickers {
		d.seed(t)
	}
	return d
}

// FetchSeries implements Provider.
func (d *Demo) FetchSeries(ctx context.Context, ticker, period string) (Series, error) {
	d.seed(ticker)
	return d.static.FetchSeries(ctx, ticker, period)
}

// FetchFundamentals implements Provider.
func (d *Demo) FetchFundamentals(ctx context.Context, ticker string) (Fundamentals, error) {
	d.seed(ticker)
	return d.static.FetchFundamentals(ctx, ticker)
}

// SearchByName implements Provider. Any non-empty query resolves to a
// synthetic ticker derived from its first word.
func (d *Demo) SearchByName(ctx context.Context, query string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	word := strings.Fields(query)[0]
	ticker := strings.ToUpper(word)
	if len(ticker) > 5 {
		ticker = ticker[:5]
	}
	return []Match{{Ticker: ticker, CompanyName: query}}, nil
}

// seed registers series and fundamentals for a ticker if not yet present.
// Idempotent: the data is a pure function of the ticker and asOf date.
func (d *Demo) seed(ticker string) {
	d.static.mu.RLock()
	_, ok := d.static.series[ticker]
	d.static.mu.RUnlock()
	if ok || ticker == "" {
		return
	}

	h := fnv.New32a()
	h.Write([]byte(ticker))
	n := h.Sum32()

	// Spread the hash across the tunable dimensions.
	dailyRet := -0.004 + float64(n%17)/16*0.014 // [-0.4%, +1.0%] per day
	startClose := 20 + float64(n%97)*8
	spread := 0.008 + float64(n%7)/6*0.03
	volume := float64(500_000 + n%11*400_000)

	d.static.AddSeries(SyntheticSeries(ticker, 120, d.asOf, startClose, dailyRet, spread, volume))
	d.static.AddFundamentals(ticker, demoFundamentals(n))
}

func demoFundamentals(n uint32) Fundamentals {
	price := 20 + float64(n%97)*8
	return Fundamentals{
		CurrentPrice:       Float(price * 1.01),
		TrailingPE:         Float(8 + float64(n%41)),
		PriceToBook:        Float(0.8 + float64(n%9)*0.6),
		EVToSales:          Float(1 + float64(n%12)*0.8),
		RevenueGrowth:      Float(-0.05 + float64(n%13)*0.03),
		EarningsGrowth:     Float(-0.1 + float64(n%15)*0.04),
		ReturnOnEquity:     Float(0.02 + float64(n%11)*0.03),
		OperatingMargin:    Float(0.01 + float64(n%19)*0.02),
		DebtToEquity:       Float(10 + float64(n%23)*6),
		EPS:                Float(-1 + float64(n%9)*1.5),
		RecommendationMean: Float(1.5 + float64(n%6)*0.5),
		Beta:               Float(0.6 + float64(n%14)*0.12),
	}
}
