package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
)

// CellIssue is a non-fatal problem with one cell, such as a value that
// could not be read as its column type.
type CellIssue struct {
	Row    int    `json:"row" yaml:"row"`
	Column string `json:"column" yaml:"column"`
	Raw    string `json:"raw" yaml:"raw"`
	Reason string `json:"reason" yaml:"reason"`
}

// CleanResult is the cleaned table plus what the cleaner found on the way.
type CleanResult struct {
	Table             *dataset.Table
	Findings          []Finding
	Issues            []CellIssue
	Notes             []Note
	DuplicateRows     int
	DuplicatesDropped bool
	ImputedCells      int
	// MissingCells counts cells without a usable value before imputation.
	MissingCells     int
	DroppedColumns   []string
	DroppedRows      int
	OutliersReplaced int
}

// Clean detects duplicate rows, reports and handles missing values, and
// records coercion failures. The input table is not modified.
func Clean(ctx context.Context, t *dataset.Table, opt Options) (*CleanResult, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	res := &CleanResult{}

	keep, dupFindings, dupCount := findDuplicates(t, opt)
	res.Findings = append(res.Findings, dupFindings...)
	res.DuplicateRows = dupCount
	res.DuplicatesDropped = opt.DropDuplicates && dupCount > 0

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rowIDs := make([]int, 0, len(keep))
	for _, i := range keep {
		rowIDs = append(rowIDs, t.RowID(i))
	}
	rows := len(keep)
	cols := make([]dataset.Column, 0, t.NumCols())
	for _, src := range t.Columns() {
		col := dataset.Column{Name: src.Name, Unit: src.Unit, Type: src.Type, Values: make([]dataset.Value, rows)}
		for k, i := range keep {
			v := src.Values[i]
			if v.CoercionFailed() {
				res.Issues = append(res.Issues, CellIssue{
					Row:    t.RowID(i),
					Column: src.Name,
					Raw:    v.Raw,
					Reason: fmt.Sprintf("not a valid %s value", src.Type),
				})
			}
			col.Values[k] = v
		}
		f, ok := handleMissing(&col, opt)
		if ok {
			res.Findings = append(res.Findings, f)
			res.MissingCells += f.Missing.Missing
			res.ImputedCells += f.Missing.Imputed
			if f.Missing.Strategy == strategyDropColumn {
				res.DroppedColumns = append(res.DroppedColumns, col.Name)
				res.Notes = append(res.Notes, Note{Stage: "clean", Column: col.Name,
					Message: fmt.Sprintf("dropped %s: %.0f%% missing exceeds %.0f%%", col.Name, f.Missing.Fraction*100, opt.DropColumnThreshold*100)})
				continue
			}
		}
		cols = append(cols, col)
	}

	if opt.MissingHandling == MissingDropRows {
		cols, rowIDs, res.DroppedRows = dropIncompleteRows(cols, rowIDs)
		if res.DroppedRows > 0 {
			res.Notes = append(res.Notes, Note{Stage: "clean", Message: fmt.Sprintf("dropped %d row(s) with missing values", res.DroppedRows)})
		}
	}
	if opt.RemoveOutliers {
		for j := range cols {
			if n := replaceOutliers(&cols[j], opt); n > 0 {
				res.OutliersReplaced += n
				res.Notes = append(res.Notes, Note{Stage: "clean", Column: cols[j].Name,
					Message: fmt.Sprintf("replaced %d outlier value(s) in %s with the median", n, cols[j].Name)})
			}
		}
	}
	if len(cols) == 0 {
		rowIDs = nil
	}

	out, err := dataset.NewTable(t.Name, cols, rowIDs)
	if err != nil {
		return nil, fmt.Errorf("build cleaned table: %w", err)
	}
	out.Delimiter = t.Delimiter
	out.Truncated = t.Truncated
	res.Table = out
	return res, nil
}

// findDuplicates groups rows by full-row equality. It returns the positions
// to keep, one Finding per duplicate group, and the number of later copies.
func findDuplicates(t *dataset.Table, opt Options) (keep []int, findings []Finding, dupCount int) {
	n := t.NumRows()
	first := map[string]int{}
	groups := map[int][]int{}
	var order []int
	for i := 0; i < n; i++ {
		key := rowKey(t.Row(i))
		if f, seen := first[key]; seen {
			if len(groups[f]) == 0 {
				order = append(order, f)
			}
			groups[f] = append(groups[f], i)
			dupCount++
			if !opt.DropDuplicates {
				keep = append(keep, i)
			}
			continue
		}
		first[key] = i
		keep = append(keep, i)
	}
	for _, f := range order {
		dups := groups[f]
		ids := make([]int, len(dups))
		for k, p := range dups {
			ids[k] = t.RowID(p)
		}
		fd := newFinding(KindDuplicate, float64(len(dups))/float64(n), opt)
		fd.Rows = append([]int{t.RowID(f)}, ids...)
		fd.Duplicate = &DuplicateDetail{FirstRow: t.RowID(f), DuplicateRows: ids, Dropped: opt.DropDuplicates}
		fd.Description = fmt.Sprintf("row %d appears %d more time(s) (rows %s)", t.RowID(f), len(dups), joinInts(ids))
		findings = append(findings, fd)
	}
	return keep, findings, dupCount
}

func rowKey(vals []dataset.Value) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		if v.Null {
			b.WriteByte(0)
			continue
		}
		b.WriteString(strings.TrimSpace(v.Raw))
	}
	return b.String()
}

const (
	strategyDropColumn = "drop-column"
	strategyDropRows   = "drop-rows"
	strategyMode       = "mode"
)

// handleMissing reports the column's missing cells and fills them according
// to the missing-data handling and imputation strategy.
func handleMissing(col *dataset.Column, opt Options) (Finding, bool) {
	total := len(col.Values)
	missing := 0
	for _, v := range col.Values {
		if !v.Valid {
			missing++
		}
	}
	if missing == 0 || total == 0 {
		return Finding{}, false
	}
	frac := float64(missing) / float64(total)
	f := newFinding(KindMissingData, frac, opt)
	f.Columns = []string{col.Name}
	detail := &MissingDetail{Scope: "column", Missing: missing, Total: total, Fraction: frac}

	switch {
	case opt.MissingHandling == MissingDropCols && frac > opt.DropColumnThreshold:
		detail.Strategy = strategyDropColumn
	case opt.MissingHandling == MissingDropRows:
		detail.Strategy = strategyDropRows
	case opt.MissingHandling == MissingFillMode:
		if fill, ok := modeValue(col.Values); ok {
			detail.Imputed = fillGaps(col, fill)
			detail.Strategy = strategyMode
		}
	case col.Type == dataset.Numeric && opt.Imputation != ImputeFlagOnly:
		vals, _ := col.Floats()
		if len(vals) > 0 {
			var fill float64
			if opt.Imputation == ImputeMean {
				fill, _ = meanStd(vals)
			} else {
				fill = quantile(sortedCopy(vals), 0.5)
			}
			detail.Imputed = fillGaps(col, numericValue(fill))
			detail.Strategy = string(opt.Imputation)
		}
	}
	if detail.Strategy == "" {
		detail.Strategy = string(ImputeFlagOnly)
	}
	f.Missing = detail
	var action string
	switch {
	case detail.Strategy == strategyDropColumn:
		action = "column dropped"
	case detail.Strategy == strategyDropRows:
		action = "rows dropped"
	case detail.Imputed > 0:
		action = fmt.Sprintf("imputed with %s", detail.Strategy)
	default:
		action = "flagged"
	}
	f.Description = fmt.Sprintf("%s is missing %d of %d values (%.1f%%), %s", col.Name, missing, total, frac*100, action)
	return f, true
}

func numericValue(x float64) dataset.Value {
	return dataset.Value{Raw: strconv.FormatFloat(x, 'g', -1, 64), Num: x, Valid: true}
}

// fillGaps replaces every invalid cell with fill, marked as imputed.
func fillGaps(col *dataset.Column, fill dataset.Value) int {
	fill.Imputed = true
	fill.Null = false
	filled := make([]dataset.Value, len(col.Values))
	n := 0
	for i, v := range col.Values {
		if !v.Valid {
			v = fill
			n++
		}
		filled[i] = v
	}
	col.Values = filled
	return n
}

// modeValue returns the first occurrence of the most common observed value.
func modeValue(vals []dataset.Value) (dataset.Value, bool) {
	counts := map[string]int{}
	first := map[string]int{}
	best := ""
	for i, v := range vals {
		if !v.Observed() {
			continue
		}
		key := strings.TrimSpace(v.Raw)
		if _, seen := first[key]; !seen {
			first[key] = i
		}
		counts[key]++
		if c := counts[key]; c > counts[best] || (c == counts[best] && first[key] < first[best]) {
			best = key
		}
	}
	if len(counts) == 0 {
		return dataset.Value{}, false
	}
	return vals[first[best]], true
}

// dropIncompleteRows keeps only rows where every column has a valid value.
func dropIncompleteRows(cols []dataset.Column, rowIDs []int) ([]dataset.Column, []int, int) {
	var keep []int
	for i := range rowIDs {
		complete := true
		for _, c := range cols {
			if !c.Values[i].Valid {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	dropped := len(rowIDs) - len(keep)
	if dropped == 0 {
		return cols, rowIDs, 0
	}
	ids := make([]int, len(keep))
	for k, i := range keep {
		ids[k] = rowIDs[i]
	}
	out := make([]dataset.Column, len(cols))
	for j, c := range cols {
		vals := make([]dataset.Value, len(keep))
		for k, i := range keep {
			vals[k] = c.Values[i]
		}
		c.Values = vals
		out[j] = c
	}
	return out, ids, dropped
}

// replaceOutliers swaps numeric values outside the IQR fences for the median.
func replaceOutliers(col *dataset.Column, opt Options) int {
	vals, pos := col.Floats()
	if len(vals) < 4 {
		return 0
	}
	sorted := sortedCopy(vals)
	q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
	iqr := q3 - q1
	lower, upper := q1-opt.IQRMultiplier*iqr, q3+opt.IQRMultiplier*iqr
	median := numericValue(quantile(sorted, 0.5))
	replaced := 0
	var out []dataset.Value
	for i, x := range vals {
		if x >= lower && x <= upper {
			continue
		}
		if out == nil {
			out = append([]dataset.Value(nil), col.Values...)
		}
		out[pos[i]] = median
		replaced++
	}
	if out != nil {
		col.Values = out
	}
	return replaced
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
