package blackboard

import "fmt"

// Confidence tags how much history backed a score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Validate checks if the Confidence is a valid enum value.
func (c Confidence) Validate() error {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return nil
	default:
		return fmt.Errorf("unknown data confidence: %q", c)
	}
}

// MomentumFeatures holds the raw per-instrument momentum inputs. Nil means
// the feature could not be computed from the available history.
type MomentumFeatures struct {
	R20      *float64 `json:"r20"`
	R60      *float64 `json:"r60"`
	MACross  *bool    `json:"ma_cross"`
	Breakout *bool    `json:"breakout"`
	VolSurge *float64 `json:"vol_surge"`
	ATRPct14 *float64 `json:"atr_pct_14"`
}

// MomentumNorm holds the cross-sectional z-scores of a batch member. A nil
// entry means the z-score was skipped (batch too small or zero spread),
// never NaN or Inf.
type MomentumNorm struct {
	Z20  *float64 `json:"z20,omitempty"`
	Z60  *float64 `json:"z60,omitempty"`
	ZVol *float64 `json:"zvol,omitempty"`
}

// MomentumScore is the momentum kernel's record for one instrument.
type MomentumScore struct {
	Ticker         string           `json:"ticker"`
	MOMO           int              `json:"MOMO"`
	Features       MomentumFeatures `json:"features"`
	Norm           MomentumNorm     `json:"norm"`
	DataConfidence Confidence       `json:"data_confidence"`
}

// Validate checks if the MomentumScore has valid field values.
func (m *MomentumScore) Validate() error {
	if m.Ticker == "" {
		return fmt.Errorf("momentum score ticker cannot be empty")
	}
	if m.MOMO < 0 || m.MOMO > 100 {
		return fmt.Errorf("MOMO out of range [0,100]: %d", m.MOMO)
	}
	if err := m.DataConfidence.Validate(); err != nil {
		return fmt.Errorf("invalid momentum confidence: %w", err)
	}
	return nil
}

// FundLabel classifies a fundamental composite score.
type FundLabel string

const (
	FundLabelStrong  FundLabel = "Strong"
	FundLabelNeutral FundLabel = "Neutral"
	FundLabelWeak    FundLabel = "Weak"
)

// Validate checks if the FundLabel is a valid enum value.
func (l FundLabel) Validate() error {
	switch l {
	case FundLabelStrong, FundLabelNeutral, FundLabelWeak:
		return nil
	default:
		return fmt.Errorf("unknown fundamental label: %q", l)
	}
}

// ScoreBreakdown holds the four fundamental subscores, each in [0,100].
type ScoreBreakdown struct {
	V int `json:"V"`
	G int `json:"G"`
	Q int `json:"Q"`
	E int `json:"E"`
}

// FundamentalScore is the fundamental kernel's record for one instrument.
type FundamentalScore struct {
	Ticker         string         `json:"ticker"`
	FUND           int            `json:"FUND"`
	Scores         ScoreBreakdown `json:"scores"`
	Label          FundLabel      `json:"label"`
	Insights       []string       `json:"insights"`
	DataConfidence Confidence     `json:"data_confidence"`
}

// Validate checks if the FundamentalScore has valid field values.
func (f *FundamentalScore) Validate() error {
	if f.Ticker == "" {
		return fmt.Errorf("fundamental score ticker cannot be empty")
	}
	if f.FUND < 0 || f.FUND > 100 {
		return fmt.Errorf("FUND out of range [0,100]: %d", f.FUND)
	}
	for _, sub := range []struct {
		name string
		val  int
	}{{"V", f.Scores.V}, {"G", f.Scores.G}, {"Q", f.Scores.Q}, {"E", f.Scores.E}} {
		if sub.val < 0 || sub.val > 100 {
			return fmt.Errorf("subscore %s out of range [0,100]: %d", sub.name, sub.val)
		}
	}
	if err := f.Label.Validate(); err != nil {
		return fmt.Errorf("invalid fundamental label: %w", err)
	}
	if err := f.DataConfidence.Validate(); err != nil {
		return fmt.Errorf("invalid fundamental confidence: %w", err)
	}
	return nil
}

// TickerRisk is the risk assessment for one instrument.
type TickerRisk struct {
	Ticker       string   `json:"ticker"`
	Allowed      bool     `json:"allowed"`
	MaxWeightPct float64  `json:"max_weight_pct"`
	Beta         float64  `json:"beta"`
	ATRPct       float64  `json:"atr_pct"`
	Notes        []string `json:"notes"`
}

// SectorCap limits the aggregate weight of one sector.
type SectorCap struct {
	Sector string  `json:"sector"`
	Cap    float64 `json:"cap"`
}

// PortfolioLimits holds portfolio-wide risk bounds.
type PortfolioLimits struct {
	SingleStockCap float64     `json:"single_stock_cap"`
	SectorCaps     []SectorCap `json:"sector_caps"`
	CashFloor      float64     `json:"cash_floor"`
}

// PortfolioWarning records a limit the current portfolio already breaches.
type PortfolioWarning struct {
	Type   string  `json:"type"`
	Sector string  `json:"sector,omitempty"`
	Actual float64 `json:"actual"`
	Limit  float64 `json:"limit"`
}

// RiskAssessment is the risk stage's output: position caps, portfolio
// limits, and warnings.
type RiskAssessment struct {
	PerTicker       []TickerRisk       `json:"per_ticker"`
	PortfolioLimits PortfolioLimits    `json:"portfolio_limits"`
	Warnings        []PortfolioWarning `json:"portfolio_warnings"`
	OverallNote     string             `json:"overall_note"`
}

// Clone returns a deep copy. Nil-safe.
func (r *RiskAssessment) Clone() *RiskAssessment {
	if r == nil {
		return nil
	}
	c := *r
	c.PerTicker = make([]TickerRisk, len(r.PerTicker))
	for i, t := range r.PerTicker {
		t.Notes = append([]string(nil), t.Notes...)
		c.PerTicker[i] = t
	}
	c.PortfolioLimits.SectorCaps = append([]SectorCap(nil), r.PortfolioLimits.SectorCaps...)
	c.Warnings = append([]PortfolioWarning(nil), r.Warnings...)
	return &c
}

// ForTicker returns the per-ticker assessment, or nil if the instrument was
// not assessed.
func (r *RiskAssessment) ForTicker(ticker string) *TickerRisk {
	if r == nil {
		return nil
	}
	for i := range r.PerTicker {
		if r.PerTicker[i].Ticker == ticker {
			return &r.PerTicker[i]
		}
	}
	return nil
}

// Action is a trade decision type.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionHold     Action = "HOLD"
	ActionTrim     Action = "TRIM"
	ActionNoAction Action = "NO_ACTION"
)

// Validate checks if the Action is a valid enum value.
func (a Action) Validate() error {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionTrim, ActionNoAction:
		return nil
	default:
		return fmt.Errorf("unknown action: %q", a)
	}
}

// Decision is one synthesized trade decision.
type Decision struct {
	Ticker           string   `json:"ticker"`
	Action           Action   `json:"action"`
	TargetWeightPct  float64  `json:"target_weight_pct"`
	CurrentWeightPct float64  `json:"current_weight_pct"`
	SharesToTrade    float64  `json:"shares_to_trade"`
	TradeValue       float64  `json:"trade_value"`
	TotalScore       float64  `json:"total_score"`
	MomoScore        float64  `json:"momo_score"`
	FundScore        float64  `json:"fund_score"`
	Reason           string   `json:"reason"`
	RiskNotes        []string `json:"risk_notes"`
}

// Validate checks if the Decision has valid field values.
func (d *Decision) Validate() error {
	if d.Ticker == "" {
		return fmt.Errorf("decision ticker cannot be empty")
	}
	if err := d.Action.Validate(); err != nil {
		return fmt.Errorf("invalid decision action: %w", err)
	}
	if d.TargetWeightPct < 0 || d.TargetWeightPct > 100 {
		return fmt.Errorf("target weight out of range [0,100]: %v", d.TargetWeightPct)
	}
	return nil
}

// Candidate is one instrument surfaced by candidate discovery.
type Candidate struct {
	Ticker  string   `json:"ticker"`
	Name    string   `json:"name"`
	Reason  string   `json:"reason"`
	RefURLs []string `json:"ref_url,omitempty"`
}

// BenchmarkSummary condenses recent benchmark performance for the review
// stage. Nil return fields mean the benchmark history was too short.
type BenchmarkSummary struct {
	Ticker      string   `json:"benchmark"`
	TotalReturn float64  `json:"total_return"`
	Return7D    *float64 `json:"return_7d"`
	Return20D   *float64 `json:"return_20d"`
	Return60D   *float64 `json:"return_60d"`
	Volatility  float64  `json:"volatility"`
	Trend       string   `json:"recent_trend"` // "rising" or "falling"
	DataPoints  int      `json:"data_points"`
}

// ReviewNote is the review stage's output: an assessment of recent
// performance and a score adjustment consumed by decision synthesis.
type ReviewNote struct {
	Period     string            `json:"period"`
	Opinion    string            `json:"opinion"`
	Preference string            `json:"preference"`
	Adjustment float64           `json:"adjustment"`
	Benchmark  *BenchmarkSummary `json:"benchmark,omitempty"`
}
