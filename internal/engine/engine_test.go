package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/porta/pkg/blackboard"
)

func newTestBlackboard() *blackboard.Blackboard {
	return blackboard.New(blackboard.Inputs{
		Universe: []string{"AAPL"},
		AsOf:     time.Date(2025, 9, 6, 8, 0, 0, 0, time.UTC),
		Language: "en",
	})
}

// flagStage builds a stage that gates on its upstream flags, counts how
// often it does real work, and commits only its Done flag.
func flagStage(name string, done blackboard.Field, effective *int32, upstream ...blackboard.Field) *Stage {
	return &Stage{
		Name: name,
		Done: done,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !Gate(snap, done, upstream...) {
				return nil, nil
			}
			atomic.AddInt32(effective, 1)
			return blackboard.Patch{done: true}, nil
		},
	}
}

func TestRunSingleStartStage(t *testing.T) {
	e := New()
	var n int32
	require.NoError(t, e.Register(flagStage("crawler", blackboard.FlagCrawlerEnd, &n)))

	bb, err := e.Run(context.Background(), newTestBlackboard())
	require.NoError(t, err)
	assert.True(t, bb.CrawlerEnd)
	assert.Equal(t, int32(1), n)
}

func TestThreePredecessorBarrier(t *testing.T) {
	// momo, fund and review all feed risk. risk is invoked once per
	// upstream commit but must do real work exactly once, after all three
	// flags are set.
	e := New()
	var momoN, fundN, reviewN, riskN int32

	// momo commits one wave later than the others, so risk is invoked
	// with only a partial flag set first.
	slowMomo := &Stage{
		Name: "momo",
		Done: blackboard.FlagMomoEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !Gate(snap, blackboard.FlagMomoEnd, blackboard.FlagCrawlerEnd) {
				return nil, nil
			}
			atomic.AddInt32(&momoN, 1)
			return blackboard.Patch{blackboard.FlagMomoEnd: true}, nil
		},
	}

	var crawlN int32
	require.NoError(t, e.Register(flagStage("crawler", blackboard.FlagCrawlerEnd, &crawlN)))
	require.NoError(t, e.Register(slowMomo))
	require.NoError(t, e.Register(flagStage("fund", blackboard.FlagFundEnd, &fundN)))
	require.NoError(t, e.Register(flagStage("review", blackboard.FlagReviewEnd, &reviewN)))
	require.NoError(t, e.Register(flagStage("risk", blackboard.FlagRiskEnd, &riskN,
		blackboard.FlagMomoEnd, blackboard.FlagFundEnd, blackboard.FlagReviewEnd)))

	require.NoError(t, e.Connect("crawler", "momo"))
	require.NoError(t, e.Connect("momo", "risk"))
	require.NoError(t, e.Connect("fund", "risk"))
	require.NoError(t, e.Connect("review", "risk"))

	bb, err := e.Run(context.Background(), newTestBlackboard())
	require.NoError(t, err)

	assert.True(t, bb.RiskEnd)
	assert.Equal(t, int32(1), riskN, "risk must execute effectively exactly once")
	assert.Equal(t, int32(1), momoN)
}

func TestIdempotentRedelivery(t *testing.T) {
	// Invoking an already-committed stage's body again produces an empty
	// patch and changes nothing.
	var n int32
	stage := flagStage("momo", blackboard.FlagMomoEnd, &n, blackboard.FlagCrawlerEnd)

	bb := newTestBlackboard()
	require.NoError(t, bb.Apply(blackboard.Patch{blackboard.FlagCrawlerEnd: true}))
	require.NoError(t, bb.Apply(blackboard.Patch{blackboard.FlagMomoEnd: true}))

	snap := bb.Clone()
	patch, err := stage.Body(context.Background(), snap)
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty(), "duplicate delivery must be a no-op")
	assert.Equal(t, int32(0), n)
}

func TestNotReadyStageReturnsEmptyPatch(t *testing.T) {
	var n int32
	stage := flagStage("risk", blackboard.FlagRiskEnd, &n,
		blackboard.FlagMomoEnd, blackboard.FlagFundEnd, blackboard.FlagReviewEnd)

	bb := newTestBlackboard()
	// Only 2 of 3 upstream flags set.
	require.NoError(t, bb.Apply(blackboard.Patch{blackboard.FlagMomoEnd: true}))
	require.NoError(t, bb.Apply(blackboard.Patch{blackboard.FlagFundEnd: true}))

	patch, err := stage.Body(context.Background(), bb.Clone())
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
	assert.Equal(t, int32(0), n)
}

func TestCycleDetection(t *testing.T) {
	e := New()
	var a, b int32
	require.NoError(t, e.Register(flagStage("decider", blackboard.FlagDeciderEnd, &a)))
	require.NoError(t, e.Register(flagStage("reporter", blackboard.FlagReporterEnd, &b)))
	require.NoError(t, e.Connect("decider", "reporter"))
	require.NoError(t, e.Connect("reporter", "decider"))

	_, err := e.Run(context.Background(), newTestBlackboard())
	require.Error(t, err)

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.ElementsMatch(t, []string{"decider", "reporter"}, ce.Stages)
}

func TestUnknownFieldRejected(t *testing.T) {
	e := New()
	rogue := &Stage{
		Name:    "momo",
		Done:    blackboard.FlagMomoEnd,
		Outputs: []blackboard.Field{blackboard.FieldMomoScore},
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			return blackboard.Patch{
				blackboard.FieldFundScore: []blackboard.FundamentalScore{},
				blackboard.FlagMomoEnd:    true,
			}, nil
		},
	}
	require.NoError(t, e.Register(rogue))

	_, err := e.Run(context.Background(), newTestBlackboard())
	require.Error(t, err)

	var ufe *UnknownFieldError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, "momo", ufe.Stage)
	assert.Equal(t, blackboard.FieldFundScore, ufe.Field)
}

func TestDeadlockAtFixedPoint(t *testing.T) {
	// risk waits on a review flag nothing ever sets: the run reaches a
	// fixed point with the terminal flag missing.
	e := New()
	var momoN, riskN int32
	require.NoError(t, e.Register(flagStage("momo", blackboard.FlagMomoEnd, &momoN)))
	require.NoError(t, e.Register(flagStage("risk", blackboard.FlagRiskEnd, &riskN,
		blackboard.FlagMomoEnd, blackboard.FlagReviewEnd)))
	require.NoError(t, e.Connect("momo", "risk"))

	_, err := e.Run(context.Background(), newTestBlackboard())
	require.Error(t, err)

	var de *DeadlockError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []blackboard.Field{blackboard.FlagRiskEnd}, de.Missing)
	assert.Equal(t, int32(0), riskN)
}

func TestWaveLimit(t *testing.T) {
	// A four-stage chain needs four waves; a limit of two must abort it.
	e := New(WithWaveLimit(2))
	var a, b, c, d int32
	require.NoError(t, e.Register(flagStage("crawler", blackboard.FlagCrawlerEnd, &a)))
	require.NoError(t, e.Register(flagStage("momo", blackboard.FlagMomoEnd, &b, blackboard.FlagCrawlerEnd)))
	require.NoError(t, e.Register(flagStage("risk", blackboard.FlagRiskEnd, &c, blackboard.FlagMomoEnd)))
	require.NoError(t, e.Register(flagStage("decider", blackboard.FlagDeciderEnd, &d, blackboard.FlagRiskEnd)))
	require.NoError(t, e.Connect("crawler", "momo"))
	require.NoError(t, e.Connect("momo", "risk"))
	require.NoError(t, e.Connect("risk", "decider"))

	_, err := e.Run(context.Background(), newTestBlackboard())
	require.Error(t, err)
	assert.True(t, IsDeadlock(err))
}

func TestIndependentStagesShareSnapshot(t *testing.T) {
	// momo and fund both fire after crawler and must observe the same
	// committed upstream state.
	e := New()
	var crawlN int32
	seen := make(chan bool, 2)

	require.NoError(t, e.Register(flagStage("crawler", blackboard.FlagCrawlerEnd, &crawlN)))
	for _, s := range []struct {
		name string
		done blackboard.Field
	}{{"momo", blackboard.FlagMomoEnd}, {"fund", blackboard.FlagFundEnd}} {
		done := s.done
		require.NoError(t, e.Register(&Stage{
			Name: s.name,
			Done: done,
			Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
				if !Gate(snap, done, blackboard.FlagCrawlerEnd) {
					return nil, nil
				}
				seen <- snap.CrawlerEnd
				return blackboard.Patch{done: true}, nil
			},
		}))
	}
	require.NoError(t, e.Connect("crawler", "momo"))
	require.NoError(t, e.Connect("crawler", "fund"))

	_, err := e.Run(context.Background(), newTestBlackboard())
	require.NoError(t, err)

	close(seen)
	count := 0
	for v := range seen {
		assert.True(t, v)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestStageErrorAbortsRun(t *testing.T) {
	e := New()
	boom := &Stage{
		Name: "crawler",
		Done: blackboard.FlagCrawlerEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			return nil, fmt.Errorf("capability exploded")
		},
	}
	require.NoError(t, e.Register(boom))

	_, err := e.Run(context.Background(), newTestBlackboard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stage "crawler"`)
	assert.Contains(t, err.Error(), "capability exploded")
}

func TestContextCancellation(t *testing.T) {
	e := New()
	var n int32
	require.NoError(t, e.Register(flagStage("crawler", blackboard.FlagCrawlerEnd, &n)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, newTestBlackboard())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), n)
}

func TestRegisterRejectsDuplicateOwnership(t *testing.T) {
	e := New()
	var a, b int32
	require.NoError(t, e.Register(flagStage("momo", blackboard.FlagMomoEnd, &a)))

	dup := flagStage("momo2", blackboard.FlagMomoEnd, &b)
	err := e.Register(dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already owned")
}

func TestRegisterAllowsSharedAccumulator(t *testing.T) {
	e := New()
	s1 := &Stage{
		Name:    "momo",
		Done:    blackboard.FlagMomoEnd,
		Outputs: []blackboard.Field{blackboard.FieldMomoScore, blackboard.FieldMessages},
		Body:    func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) { return nil, nil },
	}
	s2 := &Stage{
		Name:    "fund",
		Done:    blackboard.FlagFundEnd,
		Outputs: []blackboard.Field{blackboard.FieldFundScore, blackboard.FieldMessages},
		Body:    func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) { return nil, nil },
	}
	require.NoError(t, e.Register(s1))
	require.NoError(t, e.Register(s2))
}

func TestJoinOn(t *testing.T) {
	bb := newTestBlackboard()
	require.NoError(t, bb.Apply(blackboard.Patch{blackboard.FlagMomoEnd: true}))

	assert.True(t, JoinOn(bb, blackboard.FlagMomoEnd))
	assert.False(t, JoinOn(bb, blackboard.FlagMomoEnd, blackboard.FlagFundEnd))
	assert.True(t, JoinOn(bb), "empty join is vacuously satisfied")
}
