package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/insightloom-cli/internal/insight"
)

const fallbackTopActions = 3

// Fallback renders a report from the payload alone, without any model.
func Fallback(p Payload) string {
	at := p.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	s := p.Summary
	q := p.Dataset.Quality

	var b strings.Builder
	b.WriteString("# EXECUTIVE BUSINESS REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", at.Format("January 2, 2006 at 3:04 PM"))

	b.WriteString("## AT A GLANCE\n\n")
	fmt.Fprintf(&b, "Your dataset contains **%s** with an overall data quality score of **%.1f%%**.\n\n", s.DatasetSize, q.Score)
	fmt.Fprintf(&b, "**Quality Grade:** %s\n", q.Grade)
	fmt.Fprintf(&b, "**Assessment:** %s\n\n", s.Recommendation)

	b.WriteString("## KEY METRICS\n\n")
	if len(s.KeyMetrics) == 0 {
		b.WriteString("No numeric metrics were available.\n")
	}
	for _, m := range s.KeyMetrics {
		fmt.Fprintf(&b, "**%s:** %s (Average: %.2f, Variability: %s)\n", m.Name, m.Trend, m.Average, m.Variability)
	}

	b.WriteString("\n## URGENT ISSUES\n\n")
	if len(s.Alerts) == 0 {
		b.WriteString("No urgent issues detected.\n")
	}
	for _, a := range s.Alerts {
		fmt.Fprintf(&b, "- %s\n", a)
	}

	b.WriteString("\n## TOP 3 PRIORITY ACTIONS\n\n")
	if len(p.Actions) == 0 {
		b.WriteString("No actions suggested for this dataset.\n")
	}
	for i, a := range p.Actions {
		if i == fallbackTopActions {
			break
		}
		writeAction(&b, i+1, a)
	}

	b.WriteString("\n## NEXT STEPS\n\n")
	b.WriteString("1. Review the priority actions above with your team\n")
	b.WriteString("2. Assign owners and set deadlines for each action\n")
	b.WriteString("3. Schedule a follow-up review in 2 weeks\n")
	b.WriteString("4. Use the detailed findings for deeper analysis\n\n")
	b.WriteString("---\n\n*This is an automated analysis. For best results, review with your data team.*\n")
	return b.String()
}

func writeAction(b *strings.Builder, n int, a insight.ActionSuggestion) {
	fmt.Fprintf(b, "### %d. %s\n\n", n, a.Action)
	fmt.Fprintf(b, "**Priority:** %s | **Category:** %s\n\n", a.Priority.Label(), a.Category)
	fmt.Fprintf(b, "**Why this matters:** %s\n\n", a.Reason)
	fmt.Fprintf(b, "**What to do now:** %s\n\n", a.QuickWin)
	if a.ExpectedBenefit != "" {
		fmt.Fprintf(b, "**Expected benefit:** %s\n\n", a.ExpectedBenefit)
	}
	fmt.Fprintf(b, "**Owner:** %s | **Timeline:** %s\n\n---\n\n", a.Owner, a.Timeline)
}
