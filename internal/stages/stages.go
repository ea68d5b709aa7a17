// Package stages adapts the advisory pipeline's stage bodies to the engine
// contract. Each constructor returns a declared engine.Stage whose body
// gates on its upstream readiness flags, calls collaborators, runs the
// relevant scoring kernel, and emits a patch. Bodies never mutate the
// snapshot they receive.
package stages

import (
	"fmt"
	"time"

	"github.com/dyluth/porta/internal/capability"
	"github.com/dyluth/porta/internal/marketdata"
	"github.com/dyluth/porta/internal/memo"
	"github.com/dyluth/porta/pkg/blackboard"
)

// Stage names, used for registration, progress reporting and messages.
const (
	NameCrawler  = "crawler"
	NameMomo     = "momo"
	NameFund     = "fund"
	NameReviewer = "reviewer"
	NameRisk     = "risk"
	NameDecider  = "decider"
	NameReporter = "reporter"
)

// Config carries the collaborators and tuning shared across stage
// constructors.
type Config struct {
	Market     marketdata.Provider
	Capability capability.Client

	// Cache memoizes candidate discovery. Nil disables memoization.
	Cache *memo.Cache

	// BaseWeightPct is the uncapped position weight. Zero means 10.
	BaseWeightPct float64

	// Benchmark is the instrument reviewed for recent market context.
	// Empty means "SPY".
	Benchmark string

	// Period is the history window requested from the market-data
	// provider. Empty means "6mo".
	Period string

	// Now is overridable for deterministic tests. Nil means time.Now.
	Now func() time.Time
}

func (c Config) baseWeight() float64 {
	if c.BaseWeightPct <= 0 {
		return 10
	}
	return c.BaseWeightPct
}

func (c Config) benchmark() string {
	if c.Benchmark == "" {
		return "SPY"
	}
	return c.Benchmark
}

func (c Config) period() string {
	if c.Period == "" {
		return "6mo"
	}
	return c.Period
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// message builds one trace entry for the shared accumulator.
func (c Config) message(stage, format string, args ...any) blackboard.Message {
	return blackboard.Message{
		Stage:   stage,
		Content: fmt.Sprintf(format, args...),
		At:      c.now().UTC(),
	}
}

// analysisTickers is the instrument set the scoring stages operate on: the
// configured universe, anything discovery surfaced, and current holdings.
// Deduplicated, order preserved.
func analysisTickers(snap *blackboard.Blackboard) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range snap.Universe {
		add(t)
	}
	for _, c := range snap.NewCandidates {
		add(c.Ticker)
	}
	if snap.Portfolio != nil {
		for _, p := range snap.Portfolio.Positions {
			add(p.Ticker)
		}
	}
	return out
}
