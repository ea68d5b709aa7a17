package stages

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dyluth/porta/internal/capability"
	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/internal/memo"
	"github.com/dyluth/porta/pkg/blackboard"
)

// maxCandidates bounds how many discovered instruments enter a run.
const maxCandidates = 5

// NewCrawler builds the candidate-discovery stage. It is a start stage: it
// fires in the first wave with no upstream dependencies. Discovery degrades
// gracefully; a capability failure still commits the readiness flag with an
// empty candidate list so the rest of the pipeline proceeds.
func NewCrawler(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name:   NameCrawler,
		Inputs: []blackboard.Field{blackboard.FieldUniverse, blackboard.FieldAsOf, blackboard.FieldPortfolio},
		Outputs: []blackboard.Field{
			blackboard.FieldCrawlSnapshotID,
			blackboard.FieldNewCandidates,
			blackboard.FieldMessages,
		},
		Done: blackboard.FlagCrawlerEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagCrawlerEnd) {
				return nil, nil
			}

			key := memo.KeyFor(snap.AsOf, snap.Universe)
			if snapshotID, cached, ok := cfg.Cache.Get(ctx, key); ok {
				return blackboard.Patch{
					blackboard.FieldCrawlSnapshotID: snapshotID,
					blackboard.FieldNewCandidates:   cached,
					blackboard.FlagCrawlerEnd:       true,
					blackboard.FieldMessages: cfg.message(NameCrawler,
						"reused memoized discovery %s (%d candidates)", snapshotID, len(cached)),
				}, nil
			}

			snapshotID := "crawl_" + cfg.now().UTC().Format("20060102_150405")

			candidates, err := discover(ctx, cfg, snap)
			if err != nil {
				log.Printf("[Crawler] discovery degraded to empty: %v", err)
				return blackboard.Patch{
					blackboard.FieldCrawlSnapshotID: snapshotID,
					blackboard.FieldNewCandidates:   []blackboard.Candidate{},
					blackboard.FlagCrawlerEnd:       true,
					blackboard.FieldMessages: cfg.message(NameCrawler,
						"discovery failed, continuing without new candidates: %v", err),
				}, nil
			}

			cfg.Cache.Put(ctx, key, snapshotID, candidates)

			return blackboard.Patch{
				blackboard.FieldCrawlSnapshotID: snapshotID,
				blackboard.FieldNewCandidates:   candidates,
				blackboard.FlagCrawlerEnd:       true,
				blackboard.FieldMessages: cfg.message(NameCrawler,
					"discovered %d candidates in snapshot %s", len(candidates), snapshotID),
			}, nil
		},
	}
}

// discover asks the capability model for candidates and resolves them
// against the market-data provider, dropping anything already owned or in
// the universe.
func discover(ctx context.Context, cfg Config, snap *blackboard.Blackboard) ([]blackboard.Candidate, error) {
	raw, err := cfg.Capability.Generate(ctx, capability.TaskDiscovery, discoveryPrompt(snap))
	if err != nil {
		return nil, fmt.Errorf("candidate discovery failed: %w", err)
	}
	parsed, err := capability.ParseCandidates(raw)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	for _, t := range snap.Universe {
		known[t] = true
	}
	if snap.Portfolio != nil {
		for _, p := range snap.Portfolio.Positions {
			known[p.Ticker] = true
		}
	}

	candidates := make([]blackboard.Candidate, 0, len(parsed))
	for _, c := range parsed {
		if c.Ticker == "" && c.Name != "" {
			c.Ticker = resolveTicker(ctx, cfg, c.Name)
		}
		if c.Ticker == "" || known[c.Ticker] {
			continue
		}
		known[c.Ticker] = true
		candidates = append(candidates, c)
		if len(candidates) == maxCandidates {
			break
		}
	}
	return candidates, nil
}

// resolveTicker maps a company name to a ticker via the provider's name
// search. Empty when nothing matched.
func resolveTicker(ctx context.Context, cfg Config, name string) string {
	matches, err := cfg.Market.SearchByName(ctx, name)
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0].Ticker
}

func discoveryPrompt(snap *blackboard.Blackboard) string {
	var held []string
	if snap.Portfolio != nil {
		for _, p := range snap.Portfolio.Positions {
			held = append(held, p.Ticker)
		}
	}
	var b strings.Builder
	b.WriteString("You are a financial data crawler surfacing new portfolio candidates.\n")
	fmt.Fprintf(&b, "As of: %s\n", snap.AsOf.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "Watched universe: %s\n", strings.Join(snap.Universe, ", "))
	fmt.Fprintf(&b, "Current holdings: %s\n", strings.Join(held, ", "))
	fmt.Fprintf(&b, "Suggest up to %d liquid instruments not listed above.\n", maxCandidates)
	b.WriteString(`Respond as JSON: {"new_candidates": [{"ticker": "", "name": "", "reason": ""}]}`)
	return b.String()
}
