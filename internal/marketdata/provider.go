// Package marketdata defines the market-data collaborator contract the
// pipeline stages consume, plus a deterministic in-memory provider used by
// tests and offline runs.
package marketdata

import (
	"context"
	"fmt"
	"time"
)

// Candle is one OHLCV observation.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a price/volume history for one instrument, sorted ascending by
// date.
type Series struct {
	Ticker  string   `json:"ticker"`
	Candles []Candle `json:"candles"`
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Candles) }

// LastClose returns the most recent close, or 0 for an empty series.
func (s Series) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

// Fundamentals is a snapshot of per-instrument fundamental fields. Nil
// pointers mean the field was unavailable from the provider.
type Fundamentals struct {
	CurrentPrice       *float64 `json:"current_price"`
	TrailingPE         *float64 `json:"trailing_pe"`
	ForwardPE          *float64 `json:"forward_pe"`
	PriceToBook        *float64 `json:"price_to_book"`
	EVToSales          *float64 `json:"ev_to_sales"`
	RevenueGrowth      *float64 `json:"revenue_growth"`
	EarningsGrowth     *float64 `json:"earnings_growth"`
	ReturnOnEquity     *float64 `json:"return_on_equity"`
	OperatingMargin    *float64 `json:"operating_margin"`
	DebtToEquity       *float64 `json:"debt_to_equity"`
	EPS                *float64 `json:"eps"`
	RecommendationMean *float64 `json:"recommendation_mean"`
	Beta               *float64 `json:"beta"`
}

// PE returns the trailing P/E, falling back to forward P/E.
func (f Fundamentals) PE() *float64 {
	if f.TrailingPE != nil {
		return f.TrailingPE
	}
	return f.ForwardPE
}

// PopulatedCount returns how many fundamental fields carry a value.
// CurrentPrice counts; it is also a hard requirement for scoring.
func (f Fundamentals) PopulatedCount() int {
	n := 0
	for _, p := range []*float64{
		f.CurrentPrice, f.TrailingPE, f.ForwardPE, f.PriceToBook, f.EVToSales,
		f.RevenueGrowth, f.EarningsGrowth, f.ReturnOnEquity, f.OperatingMargin,
		f.DebtToEquity, f.EPS, f.RecommendationMean, f.Beta,
	} {
		if p != nil {
			n++
		}
	}
	return n
}

// Match is one result of a name search.
type Match struct {
	Ticker      string `json:"ticker"`
	CompanyName string `json:"companyName"`
}

// Provider is the external market-data collaborator. Implementations may be
// slow or flaky; per-instrument failures must not fail a whole batch.
type Provider interface {
	// FetchSeries returns OHLCV history for one instrument over a period
	// such as "6mo" or "1y".
	FetchSeries(ctx context.Context, ticker, period string) (Series, error)

	// FetchFundamentals returns the fundamental field snapshot for one
	// instrument.
	FetchFundamentals(ctx context.Context, ticker string) (Fundamentals, error)

	// SearchByName resolves a free-text company name to candidate tickers.
	SearchByName(ctx context.Context, query string) ([]Match, error)
}

// ErrNotFound reports an instrument the provider has no data for.
type ErrNotFound struct {
	Ticker string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no market data for %q", e.Ticker)
}

// Float returns a pointer to v. Convenience for building Fundamentals
// literals.
func Float(v float64) *float64 { return &v }
