package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
)

// Profile is a markdown-friendly description of a table, suitable for prompts.
type Profile struct {
	Name     string          `json:"name" yaml:"name"`
	Rows     int             `json:"rows" yaml:"rows"`
	Columns  []ColumnSummary `json:"columns" yaml:"columns"`
	Samples  [][]string      `json:"samples,omitempty" yaml:"samples,omitempty"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ColumnSummary captures the type and headline statistics of one column.
type ColumnSummary struct {
	Name    string             `json:"name" yaml:"name"`
	Type    dataset.ColumnType `json:"type" yaml:"type"`
	Unit    string             `json:"unit,omitempty" yaml:"unit,omitempty"`
	NonNull int                `json:"non_null" yaml:"non_null"`
	Missing int                `json:"missing" yaml:"missing"`
	Unique  int                `json:"unique,omitempty" yaml:"unique,omitempty"`
	// Numeric stats
	Min  float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max  float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Mean float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std  float64 `json:"std,omitempty" yaml:"std,omitempty"`
	// Categorical top values
	TopValues    []CategoryCount `json:"top_values,omitempty" yaml:"top_values,omitempty"`
	ExampleTexts []string        `json:"examples,omitempty" yaml:"examples,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// Describe builds a Profile from a table, keeping up to sampleRows example rows.
func Describe(t *dataset.Table, sampleRows int) *Profile {
	p := &Profile{Name: t.Name, Rows: t.NumRows()}
	if t.Truncated {
		p.Warnings = append(p.Warnings, fmt.Sprintf("input truncated to %d rows", t.NumRows()))
	}
	for _, c := range t.Columns() {
		s := ColumnSummary{Name: c.Name, Type: c.Type, Unit: c.Unit}
		s.Missing = c.Missing()
		s.NonNull = len(c.Values) - s.Missing
		switch c.Type {
		case dataset.Numeric:
			vals, _ := c.Floats()
			if len(vals) > 0 {
				pr := profileOf(c.Name, vals)
				s.Min, s.Max, s.Mean, s.Std = pr.Min, pr.Max, pr.Mean, pr.Std
			}
		case dataset.Categorical:
			counts := map[string]int{}
			for _, v := range c.Values {
				if v.Observed() {
					counts[strings.TrimSpace(v.Raw)]++
				}
			}
			tops := make([]CategoryCount, 0, len(counts))
			for k, v := range counts {
				tops = append(tops, CategoryCount{Value: k, Count: v})
			}
			sort.Slice(tops, func(i, j int) bool {
				if tops[i].Count == tops[j].Count {
					return tops[i].Value < tops[j].Value
				}
				return tops[i].Count > tops[j].Count
			})
			s.Unique = len(tops)
			if len(tops) > 8 {
				tops = tops[:8]
			}
			s.TopValues = tops
		case dataset.Text:
			for _, v := range c.Values {
				if v.Observed() && len(s.ExampleTexts) < 3 {
					s.ExampleTexts = append(s.ExampleTexts, v.Raw)
				}
			}
		}
		p.Columns = append(p.Columns, s)
	}
	for i := 0; i < t.NumRows() && i < sampleRows; i++ {
		row := make([]string, t.NumCols())
		for j, v := range t.Row(i) {
			row[j] = v.Raw
		}
		p.Samples = append(p.Samples, row)
	}
	return p
}

// Markdown renders a compact profile suitable for prompts or standalone docs.
func (p *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if p.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", p.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", p.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(p.Columns)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Columns {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeName(c.Name)
		if c.Unit != "" {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", name, c.Type, c.NonNull, missPct))
		switch c.Type {
		case dataset.Numeric:
			if c.NonNull > 0 && !math.IsNaN(c.Mean) {
				b.WriteString(fmt.Sprintf(", min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			}
		case dataset.Categorical:
			if len(c.TopValues) > 0 {
				b.WriteString(", top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case dataset.Text:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(", e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(p.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range p.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range p.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range p.Samples {
			b.WriteString("| ")
			for i, val := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range p.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
