// Package engine executes a registered set of pipeline stages over a shared
// blackboard until no further stage can make progress.
//
// The execution model is deliberately at-least-once: a stage becomes a
// candidate to fire the moment any one of its upstream stages commits, and
// the engine invokes it every time it becomes a candidate. Stage bodies are
// therefore responsible for their own readiness and idempotency checks (see
// Gate); an invocation whose preconditions are unmet returns an empty patch
// and the engine treats it as "not yet ready". A stage has effectively
// executed exactly once when its readiness flag flips, which happens at most
// once per run.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/porta/pkg/blackboard"
)

// DefaultWaveLimit bounds how many scheduling waves a run may take before
// the engine declares a deadlock.
const DefaultWaveLimit = 32

// Body is one stage's executable. It receives a read-only snapshot of the
// blackboard as of the moment the stage became a candidate and returns the
// patch to merge, or an empty patch when its preconditions are not (or no
// longer) satisfied. Returning an error aborts the whole run.
type Body func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error)

// Stage describes one registered pipeline stage. Done is the readiness flag
// the stage owns; it is implicitly part of the declared outputs.
type Stage struct {
	Name    string
	Inputs  []blackboard.Field
	Outputs []blackboard.Field
	Done    blackboard.Field
	Body    Body
}

func (s *Stage) writable(f blackboard.Field) bool {
	if f == s.Done {
		return true
	}
	for _, o := range s.Outputs {
		if o == f {
			return true
		}
	}
	return false
}

// ProgressFunc is invoked on the scheduling goroutine each time a stage's
// readiness flag commits.
type ProgressFunc func(stage string)

// Option configures an Engine.
type Option func(*Engine)

// WithWaveLimit overrides the default wave limit.
func WithWaveLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.waveLimit = n
		}
	}
}

// WithProgress registers a coarse progress callback fired once per stage
// commit.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// Engine owns the registered stages and directed edges and executes runs.
// Configure it fully before the first Run; it is not safe to register
// stages concurrently with a run.
type Engine struct {
	stages     map[string]*Stage
	downstream map[string][]string
	upstream   map[string][]string
	waveLimit  int
	progress   ProgressFunc
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		stages:     make(map[string]*Stage),
		downstream: make(map[string][]string),
		upstream:   make(map[string][]string),
		waveLimit:  DefaultWaveLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a stage. Every non-accumulator output field must have
// exactly one owning stage across the whole graph.
func (e *Engine) Register(s *Stage) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}
	if s.Body == nil {
		return fmt.Errorf("stage %q has no body", s.Name)
	}
	if !s.Done.IsFlag() {
		return fmt.Errorf("stage %q: done field %q is not a readiness flag", s.Name, s.Done)
	}
	if _, exists := e.stages[s.Name]; exists {
		return fmt.Errorf("stage %q already registered", s.Name)
	}

	for name, other := range e.stages {
		for _, f := range append([]blackboard.Field{other.Done}, other.Outputs...) {
			if f.IsAccumulator() {
				continue
			}
			if s.writable(f) {
				return fmt.Errorf("field %q already owned by stage %q", f, name)
			}
		}
	}

	e.stages[s.Name] = s
	return nil
}

// Connect adds a directed edge: a commit of from makes to a candidate.
func (e *Engine) Connect(from, to string) error {
	if _, ok := e.stages[from]; !ok {
		return fmt.Errorf("unknown stage %q", from)
	}
	if _, ok := e.stages[to]; !ok {
		return fmt.Errorf("unknown stage %q", to)
	}
	for _, existing := range e.downstream[from] {
		if existing == to {
			return nil
		}
	}
	e.downstream[from] = append(e.downstream[from], to)
	e.upstream[to] = append(e.upstream[to], from)
	return nil
}

// Run executes the pipeline to quiescence and returns the final blackboard.
// Start stages (no upstream edge) fire once, unconditionally, in the first
// wave. Candidates of one wave run concurrently against the same committed
// snapshot; their patches merge at the wave boundary.
func (e *Engine) Run(ctx context.Context, bb *blackboard.Blackboard) (*blackboard.Blackboard, error) {
	if err := e.checkAcyclic(); err != nil {
		return nil, err
	}

	candidates := e.startStages()
	wave := 0

	for len(candidates) > 0 {
		wave++
		if wave > e.waveLimit {
			return nil, &DeadlockError{Waves: wave - 1, Missing: e.missingTerminalFlags(bb)}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.logEvent("wave_started", map[string]interface{}{
			"run_id":     bb.RunID,
			"wave":       wave,
			"candidates": candidates,
		})

		results, err := e.runWave(ctx, bb.Clone(), candidates)
		if err != nil {
			return nil, err
		}

		before := bb.Flags()
		for _, r := range results {
			if err := e.applyPatch(bb, r); err != nil {
				return nil, err
			}
		}

		committed := e.committedStages(before, bb.Flags())
		for _, name := range committed {
			if e.progress != nil {
				e.progress(name)
			}
			e.logEvent("stage_committed", map[string]interface{}{
				"run_id": bb.RunID,
				"wave":   wave,
				"stage":  name,
			})
		}

		candidates = e.nextCandidates(committed)
	}

	if missing := e.missingTerminalFlags(bb); len(missing) > 0 {
		return nil, &DeadlockError{Waves: wave, Missing: missing}
	}

	return bb, nil
}

type waveResult struct {
	stage string
	patch blackboard.Patch
}

// runWave invokes every candidate body concurrently against one shared
// read-only snapshot and returns the patches sorted by stage name so the
// merge order is deterministic.
func (e *Engine) runWave(ctx context.Context, snap *blackboard.Blackboard, candidates []string) ([]waveResult, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  []waveResult
		firstErr error
	)

	for _, name := range candidates {
		stage := e.stages[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			patch, err := stage.Body(ctx, snap)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("stage %q: %w", stage.Name, err)
				}
				return
			}
			results = append(results, waveResult{stage: stage.Name, patch: patch})
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(results, func(i, j int) bool { return results[i].stage < results[j].stage })
	return results, nil
}

func (e *Engine) applyPatch(bb *blackboard.Blackboard, r waveResult) error {
	if r.patch.IsEmpty() {
		return nil
	}
	stage := e.stages[r.stage]
	for f := range r.patch {
		if !stage.writable(f) {
			return &UnknownFieldError{Stage: r.stage, Field: f}
		}
	}
	if err := bb.Apply(r.patch); err != nil {
		return fmt.Errorf("merging patch from stage %q: %w", r.stage, err)
	}
	return nil
}

// committedStages returns the names of stages whose readiness flag flipped
// false to true between the two flag snapshots, sorted.
func (e *Engine) committedStages(before, after map[blackboard.Field]bool) []string {
	var names []string
	for _, s := range e.stages {
		if after[s.Done] && !before[s.Done] {
			names = append(names, s.Name)
		}
	}
	sort.Strings(names)
	return names
}

// nextCandidates maps a set of committed stages to the deduplicated,
// sorted set of their downstream stages.
func (e *Engine) nextCandidates(committed []string) []string {
	seen := make(map[string]bool)
	var next []string
	for _, name := range committed {
		for _, to := range e.downstream[name] {
			if !seen[to] {
				seen[to] = true
				next = append(next, to)
			}
		}
	}
	sort.Strings(next)
	return next
}

func (e *Engine) startStages() []string {
	var starts []string
	for name := range e.stages {
		if len(e.upstream[name]) == 0 {
			starts = append(starts, name)
		}
	}
	sort.Strings(starts)
	return starts
}

// missingTerminalFlags returns the readiness flags of terminal stages (no
// downstream edges) that are still unset.
func (e *Engine) missingTerminalFlags(bb *blackboard.Blackboard) []blackboard.Field {
	var missing []blackboard.Field
	for name, s := range e.stages {
		if len(e.downstream[name]) > 0 {
			continue
		}
		if !bb.Flag(s.Done) {
			missing = append(missing, s.Done)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// checkAcyclic runs Kahn's algorithm over the edge set. Stages left with a
// nonzero in-degree are inside (or downstream of) a cycle.
func (e *Engine) checkAcyclic() error {
	indegree := make(map[string]int, len(e.stages))
	for name := range e.stages {
		indegree[name] = len(e.upstream[name])
	}

	var queue []string
	for name, d := range indegree {
		if d == 0 {
			queue = append(queue, name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, to := range e.downstream[name] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if visited == len(e.stages) {
		return nil
	}

	var cyclic []string
	for name, d := range indegree {
		if d > 0 {
			cyclic = append(cyclic, name)
		}
	}
	sort.Strings(cyclic)
	return &CycleError{Stages: cyclic}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
