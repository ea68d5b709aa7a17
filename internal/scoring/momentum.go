// Package scoring holds the pure kernels of the advisory pipeline: momentum,
// fundamentals and risk sizing. Every function here is deterministic and
// side-effect free; stages feed them market-data snapshots and merge the
// records they return.
package scoring

import (
	"math"
	"sort"

	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/pkg/blackboard"
)

// minMomentumObs is the history floor below which an instrument is dropped
// from the momentum batch entirely rather than scored as zero.
const minMomentumObs = 70

// MomentumScores scores a cross-sectional batch of price histories.
// Instruments with insufficient history are excluded; z-scores are computed
// across the surviving batch only, never across time. The result is sorted
// by ticker.
func MomentumScores(batch []marketdata.Series) []blackboard.MomentumScore {
	type member struct {
		ticker   string
		obs      int
		features blackboard.MomentumFeatures
	}

	var members []member
	for _, s := range batch {
		if s.Len() < minMomentumObs {
			continue
		}
		members = append(members, member{
			ticker:   s.Ticker,
			obs:      s.Len(),
			features: momentumFeatures(s),
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ticker < members[j].ticker })

	z20 := crossSectional(members, func(m member) *float64 { return m.features.R20 })
	z60 := crossSectional(members, func(m member) *float64 { return m.features.R60 })
	zvol := crossSectional(members, func(m member) *float64 { return m.features.VolSurge })

	scores := make([]blackboard.MomentumScore, 0, len(members))
	for i, m := range members {
		norm := blackboard.MomentumNorm{Z20: z20[i], Z60: z60[i], ZVol: zvol[i]}
		scores = append(scores, blackboard.MomentumScore{
			Ticker:         m.ticker,
			MOMO:           momo(m.features, norm),
			Features:       m.features,
			Norm:           norm,
			DataConfidence: momentumConfidence(m.obs),
		})
	}
	return scores
}

func momentumConfidence(obs int) blackboard.Confidence {
	switch {
	case obs >= 100:
		return blackboard.ConfidenceHigh
	case obs >= 60:
		return blackboard.ConfidenceMedium
	default:
		return blackboard.ConfidenceLow
	}
}

func momentumFeatures(s marketdata.Series) blackboard.MomentumFeatures {
	var f blackboard.MomentumFeatures
	n := s.Len()
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range s.Candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	last := closes[n-1]

	if n >= 21 {
		r20 := last/closes[n-21] - 1
		f.R20 = &r20
	}
	if n >= 61 {
		r60 := last/closes[n-61] - 1
		f.R60 = &r60
	}
	if n >= 60 {
		cross := mean(closes[n-20:]) > mean(closes[n-60:])
		f.MACross = &cross
	}
	if n >= 21 {
		// Breakout against the 20-period window ending one period ago.
		high := closes[n-21]
		for _, c := range closes[n-21 : n-1] {
			if c > high {
				high = c
			}
		}
		breakout := last > high
		f.Breakout = &breakout
	}
	if n >= 20 {
		avg20 := mean(volumes[n-20:])
		if avg20 > 0 {
			surge := mean(volumes[n-5:]) / avg20
			f.VolSurge = &surge
		}
	}
	if n >= 14 && last > 0 {
		atr := mean(trueRanges(s)[n-14:]) / last
		f.ATRPct14 = &atr
	}
	return f
}

// trueRanges returns one true-range value per observation. The first
// observation has no previous close, so its range is simply high-low.
func trueRanges(s marketdata.Series) []float64 {
	tr := make([]float64, s.Len())
	for i, c := range s.Candles {
		r := c.High - c.Low
		if i > 0 {
			prev := s.Candles[i-1].Close
			if hc := math.Abs(c.High - prev); hc > r {
				r = hc
			}
			if lc := math.Abs(c.Low - prev); lc > r {
				r = lc
			}
		}
		tr[i] = r
	}
	return tr
}

// ATRPct computes the rolling-n mean true range over the tail of the series
// divided by the last close. Nil when the history is too short.
func ATRPct(s marketdata.Series, n int) *float64 {
	if s.Len() < n || n <= 0 || s.LastClose() <= 0 {
		return nil
	}
	atr := mean(trueRanges(s)[s.Len()-n:]) / s.LastClose()
	return &atr
}

// crossSectional z-scores one feature across the batch using the population
// standard deviation. Entries are nil (omitted) when the feature itself is
// nil, when fewer than two batch members carry a value, or when the spread
// is zero - never NaN or Inf.
func crossSectional[T any](members []T, feature func(T) *float64) []*float64 {
	out := make([]*float64, len(members))

	var values []float64
	for _, m := range members {
		if v := feature(m); v != nil && !math.IsNaN(*v) {
			values = append(values, *v)
		}
	}
	if len(values) < 2 {
		return out
	}
	mu := mean(values)
	sigma := 0.0
	for _, v := range values {
		sigma += (v - mu) * (v - mu)
	}
	sigma = math.Sqrt(sigma / float64(len(values)))
	if sigma == 0 {
		return out
	}

	for i, m := range members {
		v := feature(m)
		if v == nil || math.IsNaN(*v) {
			continue
		}
		z := round2((*v - mu) / sigma)
		out[i] = &z
	}
	return out
}

// momo combines raw features and batch z-scores into the composite score.
// Subterms that cannot be computed contribute zero.
func momo(f blackboard.MomentumFeatures, norm blackboard.MomentumNorm) int {
	var s float64

	if norm.Z20 != nil && norm.Z60 != nil {
		trend := 0.4**norm.Z20 + 0.6**norm.Z60
		s += 0.5 * trend
	}
	if norm.ZVol != nil && f.VolSurge != nil {
		volConf := 0.7**norm.ZVol + 0.3*math.Log(math.Max(*f.VolSurge, 0.1))
		s += 0.3 * volConf
	}

	pattern := 0.5*indicator(f.MACross) + 0.5*indicator(f.Breakout)
	s += 0.3 * pattern

	if f.ATRPct14 != nil {
		s -= 0.2 * (*f.ATRPct14 / 0.04)
	}

	score := int(math.Round(100 * sigmoid(0.7*s)))
	return clampInt(score, 0, 100)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func indicator(b *bool) float64 {
	if b != nil && *b {
		return 1
	}
	return 0
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
