package insight

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
)

// Priority orders suggestions for the reader.
type Priority string

const (
	PriorityCritical  Priority = "critical"
	PriorityHigh      Priority = "high"
	PriorityStrategic Priority = "strategic"
)

func (p Priority) order() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityStrategic:
		return 2
	}
	return 3
}

// Label is the human-facing tier name used in reports.
func (p Priority) Label() string {
	switch p {
	case PriorityCritical:
		return "Critical Priority"
	case PriorityHigh:
		return "High Priority"
	default:
		return "Strategic Opportunity"
	}
}

// ActionSuggestion is a templated recommendation derived from one or more findings.
type ActionSuggestion struct {
	ID              string   `json:"id" yaml:"id"`
	Category        string   `json:"category" yaml:"category"`
	Priority        Priority `json:"priority" yaml:"priority"`
	Action          string   `json:"action" yaml:"action"`
	Reason          string   `json:"reason" yaml:"reason"`
	Impact          string   `json:"impact" yaml:"impact"`
	QuickWin        string   `json:"quick_win" yaml:"quick_win"`
	LongTerm        string   `json:"long_term" yaml:"long_term"`
	ExpectedBenefit string   `json:"expected_benefit" yaml:"expected_benefit"`
	Owner           string   `json:"owner" yaml:"owner"`
	Timeline        string   `json:"timeline" yaml:"timeline"`
	FindingIDs      []string `json:"finding_ids,omitempty" yaml:"finding_ids,omitempty"`

	effect float64
}

// DatasetSummary is the table-level context the mapper needs besides findings.
type DatasetSummary struct {
	Name          string                    `json:"name" yaml:"name"`
	Rows          int                       `json:"rows" yaml:"rows"`
	Columns       int                       `json:"columns" yaml:"columns"`
	DuplicateRows int                       `json:"duplicate_rows" yaml:"duplicate_rows"`
	Quality       analysis.QualityScore     `json:"quality" yaml:"quality"`
	Profiles      []analysis.NumericProfile `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	// MissingHigh is the missing fraction above which a column raises an
	// alert; zero means analysis.DefaultOptions().MissingHigh.
	MissingHigh float64 `json:"missing_high,omitempty" yaml:"missing_high,omitempty"`
}

// Options bounds the mapper output.
type Options struct {
	// MaxActions caps the number of suggestions; zero or less means no cap.
	MaxActions int
}

func DefaultOptions() Options { return Options{MaxActions: 10} }

// Title turns a column name like "unit_price" into "Unit Price".
// A cases.Caser is stateful, so each call builds its own.
func Title(column string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(column, "_", " "))
}

// sortActions orders by priority tier, then by the strongest source effect.
func sortActions(actions []ActionSuggestion) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Priority.order() != b.Priority.order() {
			return a.Priority.order() < b.Priority.order()
		}
		return a.effect > b.effect
	})
}

func newAction(p Priority, effect float64, ids ...string) ActionSuggestion {
	return ActionSuggestion{ID: uuid.NewString(), Priority: p, FindingIDs: ids, effect: effect}
}

// CountByPriority tallies suggestions per tier.
func CountByPriority(actions []ActionSuggestion) map[Priority]int {
	out := map[Priority]int{}
	for _, a := range actions {
		out[a.Priority]++
	}
	return out
}
