// Package blackboard provides the typed shared state for one porta pipeline
// run.
//
// # Overview
//
// The blackboard is the single record threaded through a run. Every stage of
// the advisory pipeline (candidate discovery, momentum, fundamentals, review,
// risk, decision, report) reads a narrow view of it and contributes a Patch
// back. It implements the Blackboard architectural pattern - a shared
// workspace where independent stages collaborate through disjoint-field
// writes.
//
// # Core Concepts
//
// Fields are partitioned into four groups:
//
//   - Inputs (universe, asof, language, portfolio) are immutable for the run.
//     Applying a patch that writes one is an error.
//   - Accumulators (messages) are append-only. Concurrent writers append;
//     order across writers is unspecified, order within one writer is kept.
//   - Stage outputs (momo_score, fund_score, review_note, risk_note,
//     decisions, final_portfolio, report_md, new_candidates) each have
//     exactly one owning stage. A later write overwrites.
//   - Readiness flags (crawler_end, momo_end, fund_end, review_end,
//     risk_end, decider_end, reporter_end) are set exactly once by the
//     owning stage, in the same patch that commits its output. Flags are
//     never cleared during a run.
//
// A stage's readiness flag is true if and only if the stage has produced its
// output at least once in this run. Downstream stages join on these flags.
//
// # Usage Example
//
//	bb := blackboard.New(blackboard.Inputs{
//		Universe: []string{"AAPL", "MSFT"},
//		AsOf:     time.Now().UTC(),
//		Language: "en",
//	})
//
//	patch := blackboard.Patch{
//		blackboard.FieldMomoScore: scores,
//		blackboard.FlagMomoEnd:    true,
//	}
//	if err := bb.Apply(patch); err != nil {
//		log.Fatal(err)
//	}
//
// # Design Principles
//
//   - Type Safety: one canonical typed record per run; no duck-typed maps.
//   - Single Writer: every non-accumulator field has one owning stage.
//   - Idempotency: flags are monotonic, so duplicate commits are harmless.
//   - Isolation: the blackboard has no identity beyond a single run; it is
//     created from caller inputs and discarded (or persisted by a caller)
//     at run end.
package blackboard
