package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
)

// ColumnInsight is a short plain-language readout of one column.
type ColumnInsight struct {
	Column string   `json:"column" yaml:"column"`
	Type   string   `json:"type" yaml:"type"`
	Lines  []string `json:"lines" yaml:"lines"`
}

// QuickInsights describes column in a few lines: center, spread and gaps
// for numbers, category balance for everything else.
func QuickInsights(t *dataset.Table, column string) (ColumnInsight, error) {
	c, ok := t.Lookup(column)
	if !ok {
		return ColumnInsight{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	return quickInsight(c, t.NumRows()), nil
}

// QuickInsightsAll runs QuickInsights over every column in order.
func QuickInsightsAll(t *dataset.Table) []ColumnInsight {
	out := make([]ColumnInsight, 0, t.NumCols())
	for _, c := range t.Columns() {
		out = append(out, quickInsight(c, t.NumRows()))
	}
	return out
}

func quickInsight(c dataset.Column, rows int) ColumnInsight {
	ci := ColumnInsight{Column: c.Name, Type: string(c.Type)}
	if rows == 0 {
		ci.Lines = []string{"No rows"}
		return ci
	}
	if c.Type == dataset.Numeric {
		vals, _ := c.Floats()
		if len(vals) == 0 {
			ci.Lines = []string{"No numeric values"}
			return ci
		}
		p := profileOf(c.Name, vals)
		ci.Lines = append(ci.Lines,
			fmt.Sprintf("Average: %.2f", p.Mean),
			fmt.Sprintf("Typical value (median): %.2f", p.Median),
			fmt.Sprintf("Range: %.2f to %.2f", p.Min, p.Max),
		)
		switch {
		case p.CV < 10:
			ci.Lines = append(ci.Lines, "Variability: very consistent (low)")
		case p.CV < 30:
			ci.Lines = append(ci.Lines, "Variability: moderate")
		default:
			ci.Lines = append(ci.Lines, "Variability: highly variable (unpredictable)")
		}
		if pct := float64(c.Missing()) * 100 / float64(rows); pct > 10 {
			ci.Lines = append(ci.Lines, fmt.Sprintf("Data quality: %.1f%% missing", pct))
		} else {
			ci.Lines = append(ci.Lines, "Data quality: complete")
		}
		return ci
	}

	counts := map[string]int{}
	for _, v := range c.Values {
		if v.Observed() {
			counts[strings.TrimSpace(v.Raw)]++
		}
	}
	if len(counts) == 0 {
		ci.Lines = []string{"No values"}
		return ci
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] == counts[keys[j]] {
			return keys[i] < keys[j]
		}
		return counts[keys[i]] > counts[keys[j]]
	})
	top := keys[0]
	ci.Lines = append(ci.Lines,
		fmt.Sprintf("Total categories: %d", len(counts)),
		fmt.Sprintf("Most common: %s (%d times)", top, counts[top]),
	)
	if share := float64(counts[top]) * 100 / float64(rows); share > 70 {
		ci.Lines = append(ci.Lines, fmt.Sprintf("Concentration risk: %.1f%% in one category", share))
	} else {
		ci.Lines = append(ci.Lines, "Distribution: well balanced")
	}
	return ci
}
