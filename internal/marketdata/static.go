package marketdata

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// StaticProvider serves canned data from memory. It backs tests and the
// offline demo mode of the CLI. Safe for concurrent use.
type StaticProvider struct {
	mu           sync.RWMutex
	series       map[string]Series
	fundamentals map[string]Fundamentals
	matches      map[string][]Match
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		series:       make(map[string]Series),
		fundamentals: make(map[string]Fundamentals),
		matches:      make(map[string][]Match),
	}
}

// AddSeries registers a price history.
func (p *StaticProvider) AddSeries(s Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[s.Ticker] = s
}

// AddFundamentals registers a fundamentals snapshot.
func (p *StaticProvider) AddFundamentals(ticker string, f Fundamentals) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundamentals[ticker] = f
}

// AddMatch registers a name-search result.
func (p *StaticProvider) AddMatch(query string, matches ...Match) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches[strings.ToLower(query)] = matches
}

// FetchSeries implements Provider.
func (p *StaticProvider) FetchSeries(ctx context.Context, ticker, period string) (Series, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.series[ticker]
	if !ok {
		return Series{}, &ErrNotFound{Ticker: ticker}
	}
	return s, nil
}

// FetchFundamentals implements Provider.
func (p *StaticProvider) FetchFundamentals(ctx context.Context, ticker string) (Fundamentals, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.fundamentals[ticker]
	if !ok {
		return Fundamentals{}, &ErrNotFound{Ticker: ticker}
	}
	return f, nil
}

// SearchByName implements Provider.
func (p *StaticProvider) SearchByName(ctx context.Context, query string) ([]Match, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.matches[strings.ToLower(query)], nil
}

// SyntheticSeries builds a deterministic daily series of n observations
// ending at end. Each close moves by dailyRet relative to the previous
// close; highs and lows straddle the close by spreadPct; volume is flat.
// Useful for kernel tests that need a clean trend with no gaps.
func SyntheticSeries(ticker string, n int, end time.Time, startClose, dailyRet, spreadPct, volume float64) Series {
	candles := make([]Candle, n)
	close := startClose
	for i := 0; i < n; i++ {
		if i > 0 {
			close *= 1 + dailyRet
		}
		date := end.AddDate(0, 0, -(n - 1 - i))
		spread := close * spreadPct
		candles[i] = Candle{
			Date:   date,
			Open:   close - spread/2,
			High:   close + spread,
			Low:    close - spread,
			Close:  close,
			Volume: volume,
		}
	}
	return Series{Ticker: ticker, Candles: candles}
}

// WithFlatTail appends m flat-to-declining observations to a copy of s,
// extending the date range day by day.
func WithFlatTail(s Series, m int, dailyRet float64) Series {
	if len(s.Candles) == 0 || m <= 0 {
		return s
	}
	out := Series{Ticker: s.Ticker, Candles: append([]Candle(nil), s.Candles...)}
	last := out.Candles[len(out.Candles)-1]
	close := last.Close
	for i := 1; i <= m; i++ {
		close *= 1 + dailyRet
		spread := math.Abs(close) * 0.01
		out.Candles = append(out.Candles, Candle{
			Date:   last.Date.AddDate(0, 0, i),
			Open:   close,
			High:   close + spread,
			Low:    close - spread,
			Close:  close,
			Volume: last.Volume,
		})
	}
	return out
}
