package analysis

import "github.com/KaramelBytes/insightloom-cli/internal/dataset"

// QualityScore summarizes dataset health as a 0-100 score.
type QualityScore struct {
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Uniqueness   float64 `json:"uniqueness" yaml:"uniqueness"`
	Score        float64 `json:"score" yaml:"score"`
	Grade        string  `json:"grade" yaml:"grade"`
}

// ScoreQuality weighs completeness (share of usable cells in the loaded
// table) at 60% and uniqueness (share of non-duplicate rows) at 40%.
func ScoreQuality(t *dataset.Table, duplicateRows int) QualityScore {
	rows, cols := t.NumRows(), t.NumCols()
	cells := rows * cols
	qs := QualityScore{Completeness: 100, Uniqueness: 100}
	if cells > 0 {
		missing := 0
		for _, c := range t.Columns() {
			missing += c.Missing()
		}
		qs.Completeness = (1 - float64(missing)/float64(cells)) * 100
	}
	if rows > 0 {
		qs.Uniqueness = (1 - float64(duplicateRows)/float64(rows)) * 100
	}
	qs.Score = qs.Completeness*0.6 + qs.Uniqueness*0.4
	qs.Grade = gradeFor(qs.Score)
	return qs
}

func gradeFor(score float64) string {
	switch {
	case score >= 95:
		return "Excellent"
	case score >= 85:
		return "Very Good"
	case score >= 75:
		return "Good"
	case score >= 60:
		return "Fair"
	default:
		return "Poor"
	}
}
