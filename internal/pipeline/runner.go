// Package pipeline assembles the advisory stages into the full analysis
// graph and drives it for one run. The graph is fixed: discovery and review
// start in parallel, momentum and fundamentals fan out from discovery, risk
// joins all three analysis paths, then decisions and the report are
// synthesized sequentially.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/internal/stages"
	"github.com/dyluth/porta/pkg/blackboard"
)

// Input is what a caller supplies for one run.
type Input struct {
	Universe  []string
	AsOf      time.Time
	Language  string
	Portfolio *blackboard.Portfolio
}

// Result is the distilled outcome of a completed run. Board carries the
// full final state for callers that want more than the headline outputs.
type Result struct {
	RunID          string
	ReportMD       string
	Decisions      []blackboard.Decision
	FinalPortfolio *blackboard.Portfolio
	Messages       []blackboard.Message
	Board          *blackboard.Blackboard
}

// ProgressFunc receives coarse progress as stages commit. Percent is a
// monotonic estimate in [0,100].
type ProgressFunc func(stage string, percent int)

// progressPct maps each stage commit to an overall completion estimate.
var progressPct = map[string]int{
	stages.NameCrawler:  25,
	stages.NameReviewer: 35,
	stages.NameFund:     50,
	stages.NameMomo:     60,
	stages.NameRisk:     75,
	stages.NameDecider:  85,
	stages.NameReporter: 90,
}

// Option configures a Runner.
type Option func(*Runner)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithWaveLimit overrides the engine's scheduling-wave limit.
func WithWaveLimit(n int) Option {
	return func(r *Runner) { r.waveLimit = n }
}

// Runner executes advisory runs over a fixed stage graph. Safe for
// sequential reuse; a fresh engine is assembled per run.
type Runner struct {
	cfg       stages.Config
	progress  ProgressFunc
	waveLimit int
}

// New creates a runner from stage collaborators.
func New(cfg stages.Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one full advisory pass.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	if len(in.Universe) == 0 {
		return nil, fmt.Errorf("universe cannot be empty")
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		if r.cfg.Now != nil {
			asOf = r.cfg.Now()
		} else {
			asOf = time.Now()
		}
	}

	e, err := r.buildEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble pipeline: %w", err)
	}

	bb := blackboard.New(blackboard.Inputs{
		Universe:  in.Universe,
		AsOf:      asOf,
		Language:  in.Language,
		Portfolio: in.Portfolio,
	})

	final, err := e.Run(ctx, bb)
	if err != nil {
		return nil, err
	}
	if r.progress != nil {
		r.progress("done", 100)
	}

	return &Result{
		RunID:          final.RunID,
		ReportMD:       final.ReportMD,
		Decisions:      final.Decisions,
		FinalPortfolio: final.FinalPortfolio,
		Messages:       final.Messages,
		Board:          final,
	}, nil
}

func (r *Runner) buildEngine() (*engine.Engine, error) {
	var opts []engine.Option
	if r.waveLimit > 0 {
		opts = append(opts, engine.WithWaveLimit(r.waveLimit))
	}
	if r.progress != nil {
		fn := r.progress
		opts = append(opts, engine.WithProgress(func(stage string) {
			fn(stage, progressPct[stage])
		}))
	}

	e := engine.New(opts...)
	for _, s := range []*engine.Stage{
		stages.NewCrawler(r.cfg),
		stages.NewReviewer(r.cfg),
		stages.NewMomo(r.cfg),
		stages.NewFund(r.cfg),
		stages.NewRisk(r.cfg),
		stages.NewDecider(r.cfg),
		stages.NewReporter(r.cfg),
	} {
		if err := e.Register(s); err != nil {
			return nil, err
		}
	}

	edges := [][2]string{
		{stages.NameCrawler, stages.NameMomo},
		{stages.NameCrawler, stages.NameFund},
		{stages.NameMomo, stages.NameRisk},
		{stages.NameFund, stages.NameRisk},
		{stages.NameReviewer, stages.NameRisk},
		{stages.NameRisk, stages.NameDecider},
		{stages.NameDecider, stages.NameReporter},
	}
	for _, edge := range edges {
		if err := e.Connect(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}
	return e, nil
}
