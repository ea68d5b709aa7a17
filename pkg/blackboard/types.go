package blackboard

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field names a single blackboard field. Patches are keyed by Field, and
// every stage declares the Fields it reads and writes.
type Field string

// Input fields. Immutable for the run.
const (
	FieldUniverse  Field = "universe"
	FieldAsOf      Field = "asof"
	FieldLanguage  Field = "language"
	FieldPortfolio Field = "portfolio"
)

// Accumulator fields. Append-only.
const (
	FieldMessages Field = "messages"
)

// Stage output fields. Exactly one writer stage each.
const (
	FieldCrawlSnapshotID Field = "crawl_snapshot_id"
	FieldNewCandidates   Field = "new_candidates"
	FieldMomoScore       Field = "momo_score"
	FieldFundScore       Field = "fund_score"
	FieldReviewNote      Field = "review_note"
	FieldRiskNote        Field = "risk_note"
	FieldDecisions       Field = "decisions"
	FieldFinalPortfolio  Field = "final_portfolio"
	FieldReportMD        Field = "report_md"
)

// Readiness flags. Set once by the owning stage, never cleared.
const (
	FlagCrawlerEnd  Field = "crawler_end"
	FlagMomoEnd     Field = "momo_end"
	FlagFundEnd     Field = "fund_end"
	FlagReviewEnd   Field = "review_end"
	FlagRiskEnd     Field = "risk_end"
	FlagDeciderEnd  Field = "decider_end"
	FlagReporterEnd Field = "reporter_end"
)

// IsInput reports whether f is an immutable input field.
func (f Field) IsInput() bool {
	switch f {
	case FieldUniverse, FieldAsOf, FieldLanguage, FieldPortfolio:
		return true
	}
	return false
}

// IsAccumulator reports whether f uses the append reducer instead of
// overwrite.
func (f Field) IsAccumulator() bool {
	return f == FieldMessages
}

// IsFlag reports whether f is a readiness flag.
func (f Field) IsFlag() bool {
	switch f {
	case FlagCrawlerEnd, FlagMomoEnd, FlagFundEnd, FlagReviewEnd,
		FlagRiskEnd, FlagDeciderEnd, FlagReporterEnd:
		return true
	}
	return false
}

// Patch is a partial write to the blackboard produced by one stage
// invocation. An empty (or nil) patch is a no-op and signals "not ready yet"
// or "already done" to the engine.
type Patch map[Field]any

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}

// Message is one entry in the shared messages accumulator. Stages append a
// short trace of what they did; the engine never reads it.
type Message struct {
	Stage   string    `json:"stage"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Inputs holds the caller-supplied values a run starts from.
type Inputs struct {
	Universe  []string
	AsOf      time.Time
	Language  string
	Portfolio *Portfolio
}

// Blackboard is the canonical typed state record for one pipeline run.
// It is mutated only through Apply, which the engine calls at wave
// boundaries; stage bodies receive read-only clones.
type Blackboard struct {
	RunID string

	// Inputs (immutable for the run).
	Universe  []string
	AsOf      time.Time
	Language  string
	Portfolio *Portfolio

	// Accumulators.
	Messages []Message

	// Stage outputs.
	CrawlSnapshotID string
	NewCandidates   []Candidate
	MomoScore       []MomentumScore
	FundScore       []FundamentalScore
	ReviewNote      *ReviewNote
	RiskNote        *RiskAssessment
	Decisions       []Decision
	FinalPortfolio  *Portfolio
	ReportMD        string

	// Readiness flags.
	CrawlerEnd  bool
	MomoEnd     bool
	FundEnd     bool
	ReviewEnd   bool
	RiskEnd     bool
	DeciderEnd  bool
	ReporterEnd bool
}

// New creates a blackboard for one run from caller-supplied inputs.
func New(in Inputs) *Blackboard {
	lang := in.Language
	if lang == "" {
		lang = "en"
	}
	return &Blackboard{
		RunID:     uuid.New().String(),
		Universe:  append([]string(nil), in.Universe...),
		AsOf:      in.AsOf,
		Language:  lang,
		Portfolio: in.Portfolio.Clone(),
	}
}

// Clone returns a deep copy. The engine hands clones to concurrently running
// stage bodies so every candidate in a wave observes the same committed
// state.
func (b *Blackboard) Clone() *Blackboard {
	c := *b
	c.Universe = append([]string(nil), b.Universe...)
	c.Messages = append([]Message(nil), b.Messages...)
	c.NewCandidates = append([]Candidate(nil), b.NewCandidates...)
	c.MomoScore = append([]MomentumScore(nil), b.MomoScore...)
	c.FundScore = append([]FundamentalScore(nil), b.FundScore...)
	c.Decisions = append([]Decision(nil), b.Decisions...)
	c.Portfolio = b.Portfolio.Clone()
	c.FinalPortfolio = b.FinalPortfolio.Clone()
	if b.ReviewNote != nil {
		rn := *b.ReviewNote
		c.ReviewNote = &rn
	}
	if b.RiskNote != nil {
		c.RiskNote = b.RiskNote.Clone()
	}
	return &c
}

// Flag returns the value of a readiness flag.
// Unknown fields report false.
func (b *Blackboard) Flag(f Field) bool {
	switch f {
	case FlagCrawlerEnd:
		return b.CrawlerEnd
	case FlagMomoEnd:
		return b.MomoEnd
	case FlagFundEnd:
		return b.FundEnd
	case FlagReviewEnd:
		return b.ReviewEnd
	case FlagRiskEnd:
		return b.RiskEnd
	case FlagDeciderEnd:
		return b.DeciderEnd
	case FlagReporterEnd:
		return b.ReporterEnd
	}
	return false
}

// Flags returns a snapshot of every readiness flag. The engine diffs two of
// these to find the commits of a wave.
func (b *Blackboard) Flags() map[Field]bool {
	return map[Field]bool{
		FlagCrawlerEnd:  b.CrawlerEnd,
		FlagMomoEnd:     b.MomoEnd,
		FlagFundEnd:     b.FundEnd,
		FlagReviewEnd:   b.ReviewEnd,
		FlagRiskEnd:     b.RiskEnd,
		FlagDeciderEnd:  b.DeciderEnd,
		FlagReporterEnd: b.ReporterEnd,
	}
}

// Apply merges a patch into the blackboard. Stage outputs overwrite,
// accumulators append, flags are set-once. Writing an input field, clearing
// a flag, or supplying a value of the wrong type is an error.
//
// Apply is commutative and associative for patches with disjoint
// non-accumulator field sets, which the single-writer ownership rule
// guarantees across stages.
func (b *Blackboard) Apply(p Patch) error {
	for f, v := range p {
		if f.IsInput() {
			return fmt.Errorf("field %q is an immutable input", f)
		}
		if err := b.set(f, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Blackboard) set(f Field, v any) error {
	if f.IsFlag() {
		val, ok := v.(bool)
		if !ok {
			return typeErr(f, "bool", v)
		}
		if !val {
			return fmt.Errorf("flag %q cannot be cleared", f)
		}
		switch f {
		case FlagCrawlerEnd:
			b.CrawlerEnd = true
		case FlagMomoEnd:
			b.MomoEnd = true
		case FlagFundEnd:
			b.FundEnd = true
		case FlagReviewEnd:
			b.ReviewEnd = true
		case FlagRiskEnd:
			b.RiskEnd = true
		case FlagDeciderEnd:
			b.DeciderEnd = true
		case FlagReporterEnd:
			b.ReporterEnd = true
		}
		return nil
	}

	switch f {
	case FieldMessages:
		switch m := v.(type) {
		case Message:
			b.Messages = append(b.Messages, m)
		case []Message:
			b.Messages = append(b.Messages, m...)
		default:
			return typeErr(f, "Message or []Message", v)
		}
	case FieldCrawlSnapshotID:
		s, ok := v.(string)
		if !ok {
			return typeErr(f, "string", v)
		}
		b.CrawlSnapshotID = s
	case FieldNewCandidates:
		c, ok := v.([]Candidate)
		if !ok {
			return typeErr(f, "[]Candidate", v)
		}
		b.NewCandidates = c
	case FieldMomoScore:
		s, ok := v.([]MomentumScore)
		if !ok {
			return typeErr(f, "[]MomentumScore", v)
		}
		b.MomoScore = s
	case FieldFundScore:
		s, ok := v.([]FundamentalScore)
		if !ok {
			return typeErr(f, "[]FundamentalScore", v)
		}
		b.FundScore = s
	case FieldReviewNote:
		n, ok := v.(*ReviewNote)
		if !ok {
			return typeErr(f, "*ReviewNote", v)
		}
		b.ReviewNote = n
	case FieldRiskNote:
		n, ok := v.(*RiskAssessment)
		if !ok {
			return typeErr(f, "*RiskAssessment", v)
		}
		b.RiskNote = n
	case FieldDecisions:
		d, ok := v.([]Decision)
		if !ok {
			return typeErr(f, "[]Decision", v)
		}
		b.Decisions = d
	case FieldFinalPortfolio:
		pf, ok := v.(*Portfolio)
		if !ok {
			return typeErr(f, "*Portfolio", v)
		}
		b.FinalPortfolio = pf
	case FieldReportMD:
		s, ok := v.(string)
		if !ok {
			return typeErr(f, "string", v)
		}
		b.ReportMD = s
	default:
		return fmt.Errorf("unknown blackboard field: %q", f)
	}
	return nil
}

func typeErr(f Field, want string, got any) error {
	return fmt.Errorf("field %q expects %s, got %T", f, want, got)
}
