package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// ColumnType is the type tag assigned to a column once at load time.
type ColumnType string

const (
	Numeric     ColumnType = "numeric"
	Categorical ColumnType = "categorical"
	Datetime    ColumnType = "datetime"
	Text        ColumnType = "text"
	// Unknown marks a column with no non-null values.
	Unknown ColumnType = "unknown"
)

// Value is a single cell. Raw always holds the source text; Num or Time hold
// the typed form when Valid is set for numeric or datetime columns.
type Value struct {
	Raw     string    `json:"raw"`
	Num     float64   `json:"num,omitempty"`
	Time    time.Time `json:"time,omitempty"`
	Null    bool      `json:"null,omitempty"`
	Valid   bool      `json:"valid"`
	Imputed bool      `json:"imputed,omitempty"`
}

// Observed reports whether the value came from the input and has a typed form.
func (v Value) Observed() bool { return v.Valid && !v.Imputed }

// CoercionFailed reports a non-null cell that could not be read as its column type.
func (v Value) CoercionFailed() bool { return !v.Null && !v.Valid }

// Column is a named, typed sequence of values.
type Column struct {
	Name   string     `json:"name"`
	Unit   string     `json:"unit,omitempty"`
	Type   ColumnType `json:"type"`
	Values []Value    `json:"-"`
}

// Missing returns the number of cells without a usable value, imputed cells included.
func (c Column) Missing() int {
	n := 0
	for _, v := range c.Values {
		if !v.Valid || v.Imputed {
			n++
		}
	}
	return n
}

// Floats returns observed numeric values and the row positions they came from.
func (c Column) Floats() (vals []float64, pos []int) {
	if c.Type != Numeric {
		return nil, nil
	}
	for i, v := range c.Values {
		if v.Observed() {
			vals = append(vals, v.Num)
			pos = append(pos, i)
		}
	}
	return vals, pos
}

// Table is an immutable, column-oriented dataset. Row positions map back to
// the source file through RowID.
type Table struct {
	Name      string
	Delimiter rune
	Truncated bool

	columns []Column
	rowIDs  []int
	index   map[string]int
}

// NewTable validates columns and builds a Table. rowIDs may be nil, in which
// case rows are numbered from zero.
func NewTable(name string, cols []Column, rowIDs []int) (*Table, error) {
	rows := 0
	if len(cols) > 0 {
		rows = len(cols[0].Values)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if len(c.Values) != rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, len(c.Values), rows)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		index[c.Name] = i
	}
	if rowIDs == nil {
		rowIDs = make([]int, rows)
		for i := range rowIDs {
			rowIDs[i] = i
		}
	}
	if len(rowIDs) != rows {
		return nil, fmt.Errorf("row ids: got %d, want %d", len(rowIDs), rows)
	}
	return &Table{Name: name, Delimiter: ',', columns: cols, rowIDs: rowIDs, index: index}, nil
}

func (t *Table) NumRows() int {
	if t == nil || len(t.columns) == 0 {
		return 0
	}
	return len(t.rowIDs)
}

func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// Columns returns the column list. Callers must treat it as read-only.
func (t *Table) Columns() []Column { return t.columns }

func (t *Table) Column(i int) Column { return t.columns[i] }

// ColumnByName looks up a column by its normalized name.
func (t *Table) ColumnByName(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Lookup resolves a user-supplied column name, normalized the way headers
// are, so "Unit Price" finds unit_price.
func (t *Table) Lookup(name string) (Column, bool) {
	if c, ok := t.ColumnByName(name); ok {
		return c, true
	}
	base, _ := splitUnits(name)
	return t.ColumnByName(normalizeName(base))
}

// RowID returns the source row index (0-based data row) for position i.
func (t *Table) RowID(i int) int { return t.rowIDs[i] }

// RowIDs returns a copy of the source row indices.
func (t *Table) RowIDs() []int {
	out := make([]int, len(t.rowIDs))
	copy(out, t.rowIDs)
	return out
}

// Row returns the values at position i across all columns.
func (t *Table) Row(i int) []Value {
	out := make([]Value, len(t.columns))
	for j, c := range t.columns {
		out[j] = c.Values[i]
	}
	return out
}

// Header returns column names, with units re-attached as "name (unit)".
func (t *Table) Header() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Name
		if c.Unit != "" {
			out[i] = fmt.Sprintf("%s (%s)", c.Name, c.Unit)
		}
	}
	return out
}

// WriteCSV serializes the header and raw cell values.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if t.Delimiter != 0 {
		cw.Comma = t.Delimiter
	}
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.columns))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range t.columns {
			rec[j] = c.Values[i].Raw
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV is a convenience wrapper around WriteCSV.
func (t *Table) CSV() (string, error) {
	var b strings.Builder
	if err := t.WriteCSV(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}
