package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInputs() Inputs {
	return Inputs{
		Universe: []string{"AAPL", "MSFT"},
		AsOf:     time.Date(2025, 9, 6, 8, 0, 0, 0, time.UTC),
		Language: "en",
		Portfolio: &Portfolio{
			BaseCurrency: "USD",
			Cash:         10000,
			Positions:    []Position{{Ticker: "AAPL", Shares: 10, AvgPrice: 150}},
		},
	}
}

func TestNewBlackboard(t *testing.T) {
	bb := New(testInputs())

	require.NotEmpty(t, bb.RunID)
	assert.Equal(t, []string{"AAPL", "MSFT"}, bb.Universe)
	assert.Equal(t, "en", bb.Language)
	assert.False(t, bb.CrawlerEnd)
	assert.Nil(t, bb.ReviewNote)
}

func TestNewBlackboardDefaultsLanguage(t *testing.T) {
	in := testInputs()
	in.Language = ""
	bb := New(in)
	assert.Equal(t, "en", bb.Language)
}

func TestApplyStageOutputOverwrites(t *testing.T) {
	bb := New(testInputs())

	first := []MomentumScore{{Ticker: "AAPL", MOMO: 40, DataConfidence: ConfidenceLow}}
	second := []MomentumScore{{Ticker: "AAPL", MOMO: 63, DataConfidence: ConfidenceHigh}}

	require.NoError(t, bb.Apply(Patch{FieldMomoScore: first}))
	require.NoError(t, bb.Apply(Patch{FieldMomoScore: second}))

	require.Len(t, bb.MomoScore, 1)
	assert.Equal(t, 63, bb.MomoScore[0].MOMO)
}

func TestApplyAccumulatorAppends(t *testing.T) {
	bb := New(testInputs())

	require.NoError(t, bb.Apply(Patch{FieldMessages: Message{Stage: "momo", Content: "scored 2"}}))
	require.NoError(t, bb.Apply(Patch{FieldMessages: []Message{
		{Stage: "fund", Content: "scored 2"},
		{Stage: "fund", Content: "1 skipped"},
	}}))

	require.Len(t, bb.Messages, 3)
	assert.Equal(t, "momo", bb.Messages[0].Stage)
	assert.Equal(t, "fund", bb.Messages[2].Stage)
}

func TestApplyFlagSemantics(t *testing.T) {
	bb := New(testInputs())

	require.NoError(t, bb.Apply(Patch{FlagMomoEnd: true}))
	assert.True(t, bb.Flag(FlagMomoEnd))

	// Setting an already-true flag again is a harmless no-op.
	require.NoError(t, bb.Apply(Patch{FlagMomoEnd: true}))
	assert.True(t, bb.Flag(FlagMomoEnd))

	// Flags are never cleared during a run.
	err := bb.Apply(Patch{FlagMomoEnd: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be cleared")
}

func TestApplyRejectsInputWrites(t *testing.T) {
	bb := New(testInputs())

	for _, f := range []Field{FieldUniverse, FieldAsOf, FieldLanguage, FieldPortfolio} {
		err := bb.Apply(Patch{f: "anything"})
		require.Error(t, err, "input field %s must be immutable", f)
		assert.Contains(t, err.Error(), "immutable input")
	}
}

func TestApplyRejectsUnknownField(t *testing.T) {
	bb := New(testInputs())
	err := bb.Apply(Patch{Field("no_such_field"): 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown blackboard field")
}

func TestApplyRejectsWrongType(t *testing.T) {
	bb := New(testInputs())
	err := bb.Apply(Patch{FieldMomoScore: "not a score slice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects []MomentumScore")
}

func TestCloneIsDeep(t *testing.T) {
	bb := New(testInputs())
	require.NoError(t, bb.Apply(Patch{
		FieldMomoScore: []MomentumScore{{Ticker: "AAPL", MOMO: 50, DataConfidence: ConfidenceHigh}},
		FieldRiskNote: &RiskAssessment{
			PerTicker: []TickerRisk{{Ticker: "AAPL", Allowed: true, MaxWeightPct: 8}},
		},
		FlagMomoEnd: true,
	}))

	snap := bb.Clone()
	snap.MomoScore[0].MOMO = 99
	snap.RiskNote.PerTicker[0].MaxWeightPct = 1
	snap.Universe[0] = "ZZZ"

	assert.Equal(t, 50, bb.MomoScore[0].MOMO)
	assert.Equal(t, 8.0, bb.RiskNote.PerTicker[0].MaxWeightPct)
	assert.Equal(t, "AAPL", bb.Universe[0])
	assert.True(t, snap.Flag(FlagMomoEnd))
}

func TestFlagsSnapshot(t *testing.T) {
	bb := New(testInputs())
	before := bb.Flags()
	require.NoError(t, bb.Apply(Patch{FlagCrawlerEnd: true}))
	after := bb.Flags()

	flipped := 0
	for f, v := range after {
		if v && !before[f] {
			flipped++
			assert.Equal(t, FlagCrawlerEnd, f)
		}
	}
	assert.Equal(t, 1, flipped)
}

func TestFieldClassification(t *testing.T) {
	tests := []struct {
		field Field
		input bool
		accum bool
		flag  bool
	}{
		{FieldUniverse, true, false, false},
		{FieldMessages, false, true, false},
		{FieldMomoScore, false, false, false},
		{FlagRiskEnd, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			assert.Equal(t, tt.input, tt.field.IsInput())
			assert.Equal(t, tt.accum, tt.field.IsAccumulator())
			assert.Equal(t, tt.flag, tt.field.IsFlag())
		})
	}
}
