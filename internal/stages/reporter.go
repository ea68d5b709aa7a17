package stages

import (
	"context"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/dyluth/porta/internal/capability"
	"github.com/dyluth/porta/internal/engine"
	"github.com/dyluth/porta/pkg/blackboard"
)

// NewReporter builds the final report stage. The report body is rendered
// deterministically from the blackboard; the capability model contributes
// only an optional narrative summary, and its failure degrades to the
// deterministic report rather than failing the run.
func NewReporter(cfg Config) *engine.Stage {
	return &engine.Stage{
		Name: NameReporter,
		Inputs: []blackboard.Field{
			blackboard.FieldLanguage,
			blackboard.FieldDecisions,
			blackboard.FieldFinalPortfolio,
			blackboard.FieldReviewNote,
			blackboard.FieldRiskNote,
		},
		Outputs: []blackboard.Field{blackboard.FieldReportMD, blackboard.FieldMessages},
		Done:    blackboard.FlagReporterEnd,
		Body: func(ctx context.Context, snap *blackboard.Blackboard) (blackboard.Patch, error) {
			if !engine.Gate(snap, blackboard.FlagReporterEnd, blackboard.FlagDeciderEnd) {
				return nil, nil
			}

			summary := narrativeSummary(ctx, cfg, snap)

			report, err := renderReport(cfg, snap, summary)
			if err != nil {
				return nil, fmt.Errorf("failed to render report: %w", err)
			}

			return blackboard.Patch{
				blackboard.FieldReportMD:   report,
				blackboard.FlagReporterEnd: true,
				blackboard.FieldMessages: cfg.message(NameReporter,
					"rendered %s report (%d bytes)", snap.Language, len(report)),
			}, nil
		},
	}
}

// narrativeSummary asks the capability model for a short prose summary of
// the run. Empty on any failure.
func narrativeSummary(ctx context.Context, cfg Config, snap *blackboard.Blackboard) string {
	var lines []string
	for _, d := range snap.Decisions {
		lines = append(lines, fmt.Sprintf("%s %s (score %.0f): %s", d.Action, d.Ticker, d.TotalScore, d.Reason))
	}
	prompt := "You are a financial report writer. Summarize these portfolio decisions in one short paragraph"
	if snap.Language == "ko" {
		prompt += ", in Korean"
	}
	prompt += ":\n" + strings.Join(lines, "\n")

	summary, err := cfg.Capability.Generate(ctx, capability.TaskSummary, prompt)
	if err != nil {
		log.Printf("[Reporter] narrative summary unavailable: %v", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// headings maps template section names per report language.
var headings = map[string]map[string]string{
	"en": {
		"title":      "Portfolio Analysis Report",
		"summary":    "Summary",
		"changes":    "Portfolio Changes",
		"analysis":   "Stock Analysis",
		"outlook":    "Market Outlook & Strategy",
		"warnings":   "Risk Warnings",
		"disclaimer": "Legal Disclaimer",
		"disclaimerBody": "This report is for informational purposes only and should not be " +
			"considered as investment advice.",
		"noWarnings": "No risk warnings outstanding.",
	},
	"ko": {
		"title":      "포트폴리오 분석 리포트",
		"summary":    "요약",
		"changes":    "포트폴리오 변경사항",
		"analysis":   "종목 분석",
		"outlook":    "시장 전망 및 전략",
		"warnings":   "리스크 경고",
		"disclaimer": "법적 고지",
		"disclaimerBody": "본 리포트는 정보 제공 목적으로만 작성되었으며 투자 자문으로 " +
			"간주되어서는 안 됩니다.",
		"noWarnings": "현재 리스크 경고 없음.",
	},
}

var reportTemplate = template.Must(template.New("report").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`# {{.H.title}}
*Generated: {{.GeneratedAt}}*
{{if .SnapshotID}}*Snapshot: {{.SnapshotID}}*
{{end}}
{{- if .Summary}}
## {{.H.summary}}
{{.Summary}}
{{end}}
## {{.H.changes}}
| Action | Ticker | Target Weight | Current Weight | Rationale |
|--------|--------|---------------|----------------|-----------|
{{- range .Decisions}}
| {{.Action}} | {{.Ticker}} | {{printf "%.1f%%" .TargetWeightPct}} | {{printf "%.1f%%" .CurrentWeightPct}} | {{.Reason}} |
{{- end}}

## {{.H.analysis}}
{{range .Decisions}}### {{.Ticker}} - {{.Action}}
- **Combined Score**: {{printf "%.0f" .TotalScore}}/100 (Momentum: {{printf "%.0f" .MomoScore}}, Fundamental: {{printf "%.0f" .FundScore}})
{{- if .RiskNotes}}
- **Risk Notes**: {{join .RiskNotes "; "}}
{{- end}}

{{end}}
{{- if .Review}}## {{.H.outlook}}
{{.Review.Opinion}} (preference: {{.Review.Preference}}, adjustment: {{printf "%+.1f" .Review.Adjustment}})

{{end}}
{{- "" -}}
## {{.H.warnings}}
{{- if .Warnings}}
{{- range .Warnings}}
- {{.Type}}: {{printf "%.3f" .Actual}} exceeds limit {{printf "%.3f" .Limit}}
{{- end}}
{{- else}}
{{.H.noWarnings}}
{{- end}}

## {{.H.disclaimer}}
{{.H.disclaimerBody}}
`))

type reportData struct {
	H           map[string]string
	GeneratedAt string
	SnapshotID  string
	Summary     string
	Decisions   []blackboard.Decision
	Review      *blackboard.ReviewNote
	Warnings    []blackboard.PortfolioWarning
}

func renderReport(cfg Config, snap *blackboard.Blackboard, summary string) (string, error) {
	h, ok := headings[snap.Language]
	if !ok {
		h = headings["en"]
	}

	data := reportData{
		H:           h,
		GeneratedAt: cfg.now().UTC().Format(time.RFC3339),
		SnapshotID:  snap.CrawlSnapshotID,
		Summary:     summary,
		Decisions:   snap.Decisions,
		Review:      snap.ReviewNote,
	}
	if snap.RiskNote != nil {
		data.Warnings = snap.RiskNote.Warnings
	}

	var b strings.Builder
	if err := reportTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
