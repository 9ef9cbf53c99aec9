package report

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

const (
	promptMaxFindings      = 25
	promptMaxActions       = 5
	promptMaxProfileTokens = 1500
)

const systemPrompt = "You are a senior business analyst who explains data to non-technical business leaders. " +
	"Only use numbers present in the analysis you are given."

var tierInstructions = map[Tier]string{
	TierExecutive: `Write a one-page executive summary a business owner can read in two minutes.
Sections:
1. THE HEADLINE: the single most important finding in one or two sentences.
2. BY THE NUMBERS: data quality score, records analyzed, critical issue count.
3. TOP 3 THINGS YOU NEED TO KNOW.
4. THIS WEEK'S PRIORITIES: at most three actions with owners.
5. BOTTOM LINE.
Use plain language and no statistical jargon.`,

	TierFull: `Write a comprehensive executive report with these sections:
1. EXECUTIVE SUMMARY (2-3 paragraphs): the most important finding, overall health, immediate actions.
2. WHAT YOUR DATA TELLS US (4-5 key insights): translate numbers into business stories.
3. RED FLAGS & URGENT ISSUES: critical problems, potential revenue or cost impact, quick fixes vs long-term solutions.
4. OPPORTUNITIES FOR GROWTH: positive trends to build on and strategic recommendations.
5. YOUR 30-DAY ACTION PLAN: week 1 critical fixes, weeks 2-3 high priority improvements, week 4 strategic initiatives, expected outcomes.
6. DATA QUALITY REPORT CARD: what works, what needs improvement, impact on decision-making reliability.
Write in the first person with a conversational, confident tone. Explain every term in simple words,
include specific numbers and percentages, and end each section with what to do next.`,

	TierTechnical: `Write a technical data-quality report for analysts and data engineers.
Sections:
1. DATASET PROFILE: shape, column types, completeness.
2. CLEANING LOG: duplicates, imputation, coercion failures.
3. ANOMALIES: outliers with method, bounds and rows; missing-data patterns; structural issues.
4. STATISTICAL FINDINGS: trends with slope and t-statistic, correlations with r and n, concentration.
5. REMEDIATION: concrete pipeline and validation changes, ordered by priority.
Be precise and cite columns and row numbers. Keep prose short.`,
}

// BuildPrompt renders the payload into a single user prompt and estimates its tokens.
func BuildPrompt(p Payload) (string, int) {
	tier := p.Tier
	if _, ok := tierInstructions[tier]; !ok {
		tier = TierExecutive
	}
	var sb strings.Builder
	sb.WriteString("[INSTRUCTIONS]\n")
	sb.WriteString(tierInstructions[tier])
	sb.WriteString("\n\n")

	sb.WriteString("[DATASET OVERVIEW]\n")
	fmt.Fprintf(&sb, "- Name: %s\n", p.Dataset.Name)
	fmt.Fprintf(&sb, "- Size: %s\n", p.Summary.DatasetSize)
	fmt.Fprintf(&sb, "- Data Quality Score: %.1f%% (%s)\n", p.Dataset.Quality.Score, p.Dataset.Quality.Grade)
	fmt.Fprintf(&sb, "- Completeness: %.1f%%, Uniqueness: %.1f%%\n", p.Dataset.Quality.Completeness, p.Dataset.Quality.Uniqueness)
	fmt.Fprintf(&sb, "- Assessment: %s\n\n", p.Summary.Recommendation)

	if p.Profile != "" {
		sb.WriteString(utils.TruncateToTokenLimit(strings.TrimSpace(p.Profile), promptMaxProfileTokens))
		sb.WriteString("\n\n")
	}

	sb.WriteString("[KEY METRICS]\n")
	if len(p.Summary.KeyMetrics) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, m := range p.Summary.KeyMetrics {
		fmt.Fprintf(&sb, "- %s: average %.2f, trend %s, variability %s, range %s\n", m.Name, m.Average, m.Trend, m.Variability, m.Range)
	}
	sb.WriteString("\n[ALERTS]\n")
	writeList(&sb, p.Summary.Alerts)
	sb.WriteString("\n[OPPORTUNITIES]\n")
	writeList(&sb, p.Summary.Opportunities)

	sb.WriteString("\n[FINDINGS]\n")
	if len(p.Findings) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, f := range p.Findings {
		if i == promptMaxFindings {
			fmt.Fprintf(&sb, "... %d more findings omitted\n", len(p.Findings)-i)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s%s\n", f.Severity, f.Kind, f.Description, findingExtra(f, tier))
	}

	sb.WriteString("\n[PRIORITY ACTIONS]\n")
	if len(p.Actions) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, a := range p.Actions {
		if i == promptMaxActions {
			break
		}
		fmt.Fprintf(&sb, "%d. (%s) %s\n   Reason: %s\n   Quick win: %s\n   Long term: %s\n   Owner: %s, Timeline: %s\n",
			i+1, a.Priority.Label(), a.Action, a.Reason, a.QuickWin, a.LongTerm, a.Owner, a.Timeline)
	}

	sb.WriteString("\n[TASK]\n")
	sb.WriteString("Based on the analysis above, write the report now.\n")
	prompt := sb.String()
	return prompt, utils.CountTokens(systemPrompt) + utils.CountTokens(prompt)
}

func writeList(sb *strings.Builder, items []string) {
	if len(items) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
}

// findingExtra adds statistics only the technical tier asks for.
func findingExtra(f analysis.Finding, tier Tier) string {
	if tier != TierTechnical {
		return ""
	}
	switch {
	case f.Outlier != nil:
		return fmt.Sprintf(" (method=%s row=%d bounds=[%.4g, %.4g])", f.Outlier.Method, f.Outlier.Row, f.Outlier.Lower, f.Outlier.Upper)
	case f.Trend != nil:
		return fmt.Sprintf(" (slope=%.4g t=%.2f n=%d)", f.Trend.Slope, f.Trend.TStat, f.Trend.N)
	case f.Correlation != nil:
		return fmt.Sprintf(" (r=%.3f n=%d)", f.Correlation.R, f.Correlation.N)
	case f.Missing != nil:
		return fmt.Sprintf(" (missing=%d/%d)", f.Missing.Missing, f.Missing.Total)
	}
	return fmt.Sprintf(" (effect=%.2f)", f.EffectSize)
}
